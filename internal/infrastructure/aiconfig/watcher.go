package aiconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/repolens/backend/internal/domain/events"
	"github.com/repolens/backend/internal/infrastructure/log"
)

// defaultDebounceDelay 配置文件变更防抖延迟
const defaultDebounceDelay = 500 * time.Millisecond

// ConfigWatcher AI 配置文件监听器
// 监听 ai_config.json 变更，防抖后重新加载并发布 ConfigUpdated 事件
type ConfigWatcher struct {
	manager  *Manager
	eventBus events.EventBus
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// 防抖相关（单文件，单定时器）
	debounceDelay time.Duration
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	// 控制
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConfigWatcher 创建配置文件监听器
func NewConfigWatcher(manager *Manager, eventBus events.EventBus) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		manager:       manager,
		eventBus:      eventBus,
		watcher:       watcher,
		logger:        log.NewModuleLogger("aiconfig", "watcher"),
		debounceDelay: defaultDebounceDelay,
		stopCh:        make(chan struct{}),
	}, nil
}

// Start 启动配置监听
func (w *ConfigWatcher) Start() error {
	configDir := filepath.Dir(w.manager.ConfigPath())

	// 监听目录而不是文件本身，编辑器原子替换不会丢事件
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	if err := w.watcher.Add(configDir); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Info("AI config watcher started", "path", w.manager.ConfigPath())
	return nil
}

// Stop 停止配置监听
func (w *ConfigWatcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	w.logger.Info("AI config watcher stopped")
}

// watchLoop 事件监听循环
func (w *ConfigWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 处理文件系统事件（带防抖）
func (w *ConfigWatcher) handleFsEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != configFileName {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.reload)
}

// reload 重新加载配置并发布更新事件
func (w *ConfigWatcher) reload() {
	cfg, err := w.manager.ReadConfig()
	if err != nil {
		w.logger.Error("Failed to reload AI config", "error", err)
		return
	}

	w.eventBus.Publish(&events.ConfigUpdatedEvent{
		Source:              "watcher",
		LLMConfigured:       cfg.LLMConfigured(),
		EmbeddingConfigured: cfg.EmbeddingConfigured(),
		VectorConfigured:    cfg.VectorConfigured(),
		EventTime:           time.Now(),
	})

	w.logger.Info("AI config reloaded",
		"llm_configured", cfg.LLMConfigured(),
		"embedding_configured", cfg.EmbeddingConfigured(),
		"vector_configured", cfg.VectorConfigured(),
	)
}
