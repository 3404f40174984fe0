package handler

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/repolens/backend/internal/application/backfill"
	"github.com/repolens/backend/internal/application/chat"
	"github.com/repolens/backend/internal/application/ingest"
	"github.com/repolens/backend/internal/domain/events"
	"github.com/repolens/backend/internal/infrastructure/aiconfig"
	"github.com/repolens/backend/internal/infrastructure/config"
	"github.com/repolens/backend/internal/infrastructure/registry"
	"github.com/repolens/backend/internal/infrastructure/storage"
	"github.com/repolens/backend/internal/infrastructure/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// handlerTestEnv 真实存储栈上的接口层测试环境
// AI 服务全部未配置，问答走确定性降级路径
type handlerTestEnv struct {
	chatSvc   *chat.ChatService
	snapshots *ingest.SnapshotService
	pool      *backfill.Pool
	manager   *aiconfig.Manager
	bus       events.EventBus
}

// newHandlerTestEnv 在临时数据目录上组装完整服务栈
func newHandlerTestEnv(t *testing.T) *handlerTestEnv {
	t.Helper()
	t.Setenv("REPOLENS_DATA_DIR", t.TempDir())
	config.ResetDataDir()
	t.Cleanup(config.ResetDataDir)

	cfg := config.NewConfig()
	db, err := storage.ProvideDB(config.NewDatabaseConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := registry.ProvideStore()
	require.NoError(t, err)

	manager, err := aiconfig.NewManager()
	require.NoError(t, err)

	bus := telemetry.NewEventBus()
	t.Cleanup(bus.Close)

	provider := chat.NewAIProvider(manager, bus)
	t.Cleanup(provider.Close)

	entities := storage.NewEntityRepository(db)
	relationships := storage.NewRelationshipRepository(db)
	memory := storage.NewSessionMemoryRepository(db)
	queue := storage.NewBackfillQueueRepository(db)

	pool := backfill.NewPool(entities, queue, provider, bus)
	t.Cleanup(pool.Stop)

	return &handlerTestEnv{
		chatSvc:   chat.NewChatService(entities, relationships, memory, queue, store, provider, bus),
		snapshots: ingest.NewSnapshotService(entities, relationships, memory, queue, store, bus),
		pool:      pool,
		manager:   manager,
		bus:       bus,
	}
}

// newTestRouter 注册与生产一致的路由前缀
func (env *handlerTestEnv) newTestRouter() *gin.Engine {
	router := gin.New()
	api := router.Group("/api/v1")

	chatHandler := NewChatHandler(env.chatSvc)
	api.POST("/chat/ask", chatHandler.Ask)

	repoHandler := NewRepositoryHandler(env.snapshots)
	api.GET("/repositories", repoHandler.List)
	api.GET("/repositories/:id", repoHandler.Get)
	api.DELETE("/repositories/:id", repoHandler.Remove)
	api.POST("/repositories/:id/snapshot", repoHandler.IngestSnapshot)
	api.GET("/repositories/:id/stats", repoHandler.Stats)

	settingsHandler := NewSettingsHandler(env.manager, env.bus)
	api.GET("/settings/ai", settingsHandler.GetAIConfig)
	api.PUT("/settings/ai", settingsHandler.UpdateAIConfig)

	backfillHandler := NewBackfillHandler(env.pool)
	api.GET("/backfill/stats", backfillHandler.Stats)
	api.POST("/backfill/retry", backfillHandler.Retry)

	return router
}
