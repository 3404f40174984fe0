package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// JSONHandler JSON 格式日志处理器
type JSONHandler struct {
	opts  *slog.HandlerOptions
	mu    *sync.Mutex
	enc   *json.Encoder
	attrs []slog.Attr
}

// NewJSONHandler 创建 JSON 处理器
func NewJSONHandler(out io.Writer, opts *slog.HandlerOptions) *JSONHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &JSONHandler{
		opts:  opts,
		mu:    &sync.Mutex{},
		enc:   json.NewEncoder(out),
		attrs: []slog.Attr{},
	}
}

// Enabled 检查日志级别是否启用
func (h *JSONHandler) Enabled(ctx context.Context, level slog.Level) bool {
	minLevel := h.opts.Level
	if minLevel == nil {
		return true
	}
	return level >= minLevel.Level()
}

// Handle 处理日志记录
func (h *JSONHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	obj := make(map[string]any)
	obj["time"] = r.Time.Format(time.RFC3339Nano)
	obj["level"] = r.Level.String()
	obj["msg"] = r.Message

	for _, a := range h.attrs {
		obj[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		obj[a.Key] = a.Value.Any()
		return true
	})

	return h.enc.Encode(obj)
}

// WithAttrs 返回带有额外属性的处理器
func (h *JSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &JSONHandler{
		opts:  h.opts,
		mu:    h.mu,
		enc:   h.enc,
		attrs: merged,
	}
}

// WithGroup 返回带有分组的处理器
func (h *JSONHandler) WithGroup(name string) slog.Handler {
	return h
}
