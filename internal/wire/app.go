package wire

import (
	"database/sql"

	"log/slog"

	"github.com/repolens/backend/internal/application/backfill"
	"github.com/repolens/backend/internal/application/chat"
	"github.com/repolens/backend/internal/domain/events"
	"github.com/repolens/backend/internal/infrastructure/aiconfig"
	"github.com/repolens/backend/internal/infrastructure/discovery"
	applog "github.com/repolens/backend/internal/infrastructure/log"
	"github.com/repolens/backend/internal/infrastructure/telemetry"
	"github.com/repolens/backend/internal/infrastructure/websocket"
	"github.com/repolens/backend/internal/interfaces"
)

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer    *interfaces.HTTPServer
	MCPServer     *interfaces.MCPServer
	wsHub         *websocket.Hub
	stageBridge   *telemetry.StageEventBridge
	configWatcher *aiconfig.ConfigWatcher
	backfillPool  *backfill.Pool
	advertiser    *discovery.Advertiser
	aiProvider    *chat.AIProvider
	eventBus      events.EventBus
	db            *sql.DB
	logger        *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	wsHub *websocket.Hub,
	stageBridge *telemetry.StageEventBridge,
	configWatcher *aiconfig.ConfigWatcher,
	backfillPool *backfill.Pool,
	advertiser *discovery.Advertiser,
	aiProvider *chat.AIProvider,
	eventBus events.EventBus,
	db *sql.DB,
) *App {
	return &App{
		HTTPServer:    httpServer,
		MCPServer:     mcpServer,
		wsHub:         wsHub,
		stageBridge:   stageBridge,
		configWatcher: configWatcher,
		backfillPool:  backfillPool,
		advertiser:    advertiser,
		aiProvider:    aiProvider,
		eventBus:      eventBus,
		db:            db,
		logger:        applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
// 顺序：WebSocket Hub -> 事件桥 -> 配置监听 -> 回填 Worker -> mDNS 广播 -> HTTP
func (a *App) Start() error {
	a.logger.Info("Starting RepoLens backend application")

	// 启动 WebSocket Hub 与管线事件桥
	a.wsHub.Start()
	a.stageBridge.Start(a.eventBus)

	// 启动 AI 配置文件监听器
	if err := a.configWatcher.Start(); err != nil {
		a.logger.Error("Failed to start config watcher",
			"error", err,
		)
	}

	// 启动向量回填 Worker（未配置 embedding/vector 时保持空闲）
	a.backfillPool.Start()

	// 启动 mDNS 服务广播
	if err := a.advertiser.Start(); err != nil {
		a.logger.Error("Failed to start mDNS advertiser",
			"error", err,
		)
	}

	// 启动 HTTP 服务器（goroutine）
	go func() {
		if err := a.HTTPServer.Start(); err != nil {
			a.logger.Error("Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	a.logger.Info("RepoLens backend application started successfully")

	// MCP 服务器通过 HTTP Handler 提供服务，不需要单独启动
	// 已在 HTTP 服务器中注册 /mcp/sse 端点

	return nil
}

// GetShutdownChan 获取关闭信号通道（用于 main 函数监听异常退出）
func (a *App) GetShutdownChan() <-chan struct{} {
	return a.HTTPServer.GetShutdownChan()
}

// Stop 停止所有服务（与启动顺序相反）
func (a *App) Stop() error {
	a.logger.Info("Stopping RepoLens backend application")

	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
	}
	if err := a.MCPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop MCP server",
			"error", err,
		)
	}

	if err := a.advertiser.Stop(); err != nil {
		a.logger.Error("Failed to stop mDNS advertiser",
			"error", err,
		)
	}

	a.backfillPool.Stop()
	a.configWatcher.Stop()
	a.stageBridge.Stop()

	// 关闭 AI 客户端连接（Qdrant gRPC 等）
	a.aiProvider.Close()

	// 关闭事件总线
	a.eventBus.Close()
	a.logger.Info("Event bus closed")

	// 关闭数据库连接
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database connection",
				"error", err,
			)
			return err
		}
	}

	a.logger.Info("RepoLens backend application stopped successfully")

	return nil
}
