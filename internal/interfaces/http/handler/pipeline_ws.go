package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"github.com/repolens/backend/internal/infrastructure/config"
	"github.com/repolens/backend/internal/infrastructure/log"
	"github.com/repolens/backend/internal/infrastructure/websocket"
)

// PipelineWSHandler 流水线事件 WebSocket 接口处理器
// 桌面端订阅后实时收到各阶段事件；session 查询参数为空表示订阅全部会话
type PipelineWSHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
	logger   *slog.Logger
}

// NewPipelineWSHandler 创建 WebSocket 处理器
func NewPipelineWSHandler(hub *websocket.Hub, cfg *config.Config) *PipelineWSHandler {
	return &PipelineWSHandler{
		hub: hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			// 本机守护进程，来源不校验
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.NewModuleLogger("http", "pipeline_ws"),
	}
}

// Subscribe 升级连接并按会话订阅流水线事件
// @Summary 订阅流水线事件
// @Description WebSocket 升级；session 查询参数指定会话，为空订阅全部
// @Tags telemetry
// @Param session query string false "会话 ID"
// @Router /ws/pipeline [get]
func (h *PipelineWSHandler) Subscribe(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := &websocket.Connection{
		SessionID: c.Query("session"),
		Send:      make(chan []byte, 16),
	}
	h.hub.Register(conn)

	// 写协程：Hub 投递的事件推给客户端
	go func() {
		defer ws.Close()
		for data := range conn.Send {
			if err := ws.WriteMessage(gorilla.TextMessage, data); err != nil {
				return
			}
		}
	}()

	// 读循环只为感知对端关闭
	go func() {
		defer h.hub.Unregister(conn)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
