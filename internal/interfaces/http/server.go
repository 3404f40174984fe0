package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/repolens/backend/internal/infrastructure/config"
	"github.com/repolens/backend/internal/infrastructure/log"
	"github.com/repolens/backend/internal/interfaces/http/handler"
	"github.com/repolens/backend/internal/interfaces/http/middleware"
	"github.com/repolens/backend/internal/interfaces/mcp"

	_ "github.com/repolens/backend/docs" // Swagger docs
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router       *gin.Engine
	httpPort     string
	server       *http.Server
	shutdownChan chan struct{}
	logger       *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	serverCfg *config.ServerConfig,
	chatHandler *handler.ChatHandler,
	repositoryHandler *handler.RepositoryHandler,
	settingsHandler *handler.SettingsHandler,
	backfillHandler *handler.BackfillHandler,
	pipelineWSHandler *handler.PipelineWSHandler,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CORS(), middleware.RequestLogging())

	logger := log.NewModuleLogger("http", "server")

	// 注册路由
	api := router.Group("/api/v1")
	{
		// 问答
		api.POST("/chat/ask", chatHandler.Ask)

		// 仓库与知识快照
		api.GET("/repositories", repositoryHandler.List)
		api.GET("/repositories/:id", repositoryHandler.Get)
		api.DELETE("/repositories/:id", repositoryHandler.Remove)
		api.POST("/repositories/:id/snapshot", repositoryHandler.IngestSnapshot)
		api.GET("/repositories/:id/stats", repositoryHandler.Stats)

		// AI 配置
		api.GET("/settings/ai", settingsHandler.GetAIConfig)
		api.PUT("/settings/ai", settingsHandler.UpdateAIConfig)
		api.POST("/settings/ai/test", settingsHandler.TestAIConfig)

		// 向量回填队列
		api.GET("/backfill/stats", backfillHandler.Stats)
		api.POST("/backfill/retry", backfillHandler.Retry)
	}

	// 健康检查：返回体同时作为单例锁的探测依据
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": config.ServiceName,
			"version": config.Version,
		})
	})

	// 流水线事件订阅
	router.GET("/ws/pipeline", pipelineWSHandler.Subscribe)

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// MCP SSE 端点
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	return &HTTPServer{
		router:       router,
		httpPort:     serverCfg.HTTPPort,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}
}

// Start 启动服务器
// 非正常退出时关闭 shutdown 通道，通知主流程终止进程
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:    s.httpPort,
		Handler: s.router,
	}

	s.logger.Info("HTTP server starting", "port", s.httpPort)

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		close(s.shutdownChan)
		return err
	}
	return nil
}

// GetShutdownChan 获取关闭信号通道（服务器意外退出时关闭）
func (s *HTTPServer) GetShutdownChan() <-chan struct{} {
	return s.shutdownChan
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
