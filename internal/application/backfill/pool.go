package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/repolens/backend/internal/application/chat"
	"github.com/repolens/backend/internal/domain/events"
	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/log"
)

// ClientProvider 回填 Worker 需要的 AI 客户端来源
// *chat.AIProvider 实现此接口；配置缺失时两个方法返回 nil
type ClientProvider interface {
	// Batch 批量 Embedding 客户端
	Batch() chat.BatchEmbedder
	// VectorSink 向量写入器
	VectorSink() chat.VectorWriter
}

// Pool 向量回填 Worker 池
// 从持久化队列取任务，为实体生成语义向量后写入向量库；
// 检索从不等待回填，向量缺失只影响重排质量
type Pool struct {
	entities knowledge.EntityRepository
	queue    knowledge.BackfillQueueRepository
	provider ClientProvider
	logger   *slog.Logger

	// Worker 控制
	workerCount  int
	pollInterval time.Duration
	batchSize    int
	stopChan     chan struct{}
	wg           sync.WaitGroup
	isRunning    bool
	mu           sync.Mutex

	// 集合只在每次启动后确保一次
	collectionReady bool

	unsubscribe func()
}

// NewPool 创建回填 Worker 池并订阅配置更新事件
// 配置更新后按新配置的可用性启动或停止 Worker
func NewPool(
	entities knowledge.EntityRepository,
	queue knowledge.BackfillQueueRepository,
	provider ClientProvider,
	bus events.EventBus,
) *Pool {
	p := &Pool{
		entities:     entities,
		queue:        queue,
		provider:     provider,
		logger:       log.NewModuleLogger("backfill", "pool"),
		workerCount:  2,
		pollInterval: 30 * time.Second,
		batchSize:    5,
	}

	p.unsubscribe = bus.Subscribe(events.ConfigUpdated, events.HandlerFunc(func(events.Event) error {
		p.applyConfiguration()
		return nil
	}))
	return p
}

// Start 启动后台 Worker
// Embedding 或向量库未配置时不启动，配置就绪后由配置事件拉起
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startLocked()
}

func (p *Pool) startLocked() {
	if p.isRunning {
		return
	}
	if p.provider.Batch() == nil || p.provider.VectorSink() == nil {
		p.logger.Info("embedding or vector store not configured, backfill workers not started")
		return
	}

	p.stopChan = make(chan struct{})
	p.isRunning = true
	p.collectionReady = false

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("backfill workers started", "count", p.workerCount)
}

// Stop 停止后台 Worker 并取消配置订阅
func (p *Pool) Stop() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	p.stopWorkers()
}

func (p *Pool) stopWorkers() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("backfill workers stopped")
}

// applyConfiguration 配置变化后的启停决策
func (p *Pool) applyConfiguration() {
	configured := p.provider.Batch() != nil && p.provider.VectorSink() != nil
	p.mu.Lock()
	running := p.isRunning
	p.mu.Unlock()

	switch {
	case configured && !running:
		p.Start()
	case !configured && running:
		p.logger.Info("embedding or vector configuration removed, stopping backfill workers")
		p.stopWorkers()
	}
}

// IsRunning 检查 Worker 是否运行中
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

// worker 后台工作协程
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			p.logger.Debug("backfill worker stopping", "worker_id", id)
			return
		case <-ticker.C:
			p.processQueue(id)
		}
	}
}

// processQueue 取一批待处理任务逐个处理
func (p *Pool) processQueue(workerID int) {
	ctx := context.Background()

	tasks, err := p.queue.DequeueTasks(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to dequeue backfill tasks", "worker_id", workerID, "error", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	p.logger.Debug("processing backfill tasks", "worker_id", workerID, "count", len(tasks))

	for _, task := range tasks {
		select {
		case <-p.stopChan:
			return
		default:
			p.processTask(ctx, task)
		}
	}
}

// processTask 处理单个任务：取实体 → 组语义文本 → 向量化 → 入库
func (p *Pool) processTask(ctx context.Context, task *knowledge.BackfillTask) {
	task.MarkProcessing()
	if err := p.queue.UpdateTask(ctx, task); err != nil {
		p.logger.Error("failed to update task status", "entity_id", task.EntityID, "error", err)
		return
	}

	entity, err := p.entities.GetByID(ctx, task.EntityID)
	if err != nil || entity == nil {
		// 实体在快照重建中消失属于正常情况
		p.failTask(ctx, task, "entity not found")
		return
	}

	embedder, sink := p.provider.Batch(), p.provider.VectorSink()
	if embedder == nil || sink == nil {
		p.failTask(ctx, task, "embedding or vector store not configured")
		return
	}

	summary := SemanticSummary(entity)
	vectors, err := embedder.EmbedTexts(ctx, []string{summary})
	if err != nil {
		p.logger.Warn("failed to embed entity summary", "entity_id", task.EntityID, "error", err)
		p.failTask(ctx, task, err.Error())
		return
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		p.failTask(ctx, task, "embedding service returned no vector")
		return
	}

	if err := p.ensureCollection(ctx, sink, uint64(len(vectors[0]))); err != nil {
		p.logger.Warn("failed to ensure vector collection", "error", err)
		p.failTask(ctx, task, err.Error())
		return
	}

	if err := sink.UpsertEntityVector(ctx, task.RepositoryID, task.EntityID, summary, vectors[0]); err != nil {
		p.logger.Warn("failed to upsert entity vector", "entity_id", task.EntityID, "error", err)
		p.failTask(ctx, task, err.Error())
		return
	}

	task.MarkCompleted()
	if err := p.queue.UpdateTask(ctx, task); err != nil {
		p.logger.Error("failed to update task status", "entity_id", task.EntityID, "error", err)
		return
	}

	p.logger.Info("entity vector backfilled", "repository_id", task.RepositoryID, "entity_id", task.EntityID)
}

// failTask 记录失败并持久化重试调度
func (p *Pool) failTask(ctx context.Context, task *knowledge.BackfillTask, reason string) {
	task.MarkFailed(reason)
	if err := p.queue.UpdateTask(ctx, task); err != nil {
		p.logger.Error("failed to update task status", "entity_id", task.EntityID, "error", err)
	}
}

// ensureCollection 每次启动后首个成功向量化时确保集合存在
func (p *Pool) ensureCollection(ctx context.Context, sink chat.VectorWriter, vectorSize uint64) error {
	p.mu.Lock()
	ready := p.collectionReady
	p.mu.Unlock()
	if ready {
		return nil
	}

	if err := sink.EnsureCollection(ctx, vectorSize); err != nil {
		return err
	}

	p.mu.Lock()
	p.collectionReady = true
	p.mu.Unlock()
	return nil
}

// Stats 获取队列统计
func (p *Pool) Stats(ctx context.Context) (*knowledge.BackfillStats, error) {
	return p.queue.GetStats(ctx)
}

// RetryFailed 将全部 failed 任务重置为 pending
func (p *Pool) RetryFailed(ctx context.Context) (int64, error) {
	count, err := p.queue.ResetFailed(ctx)
	if err != nil {
		return 0, err
	}
	p.logger.Info("failed backfill tasks reset", "count", count)
	return count, nil
}

// SemanticSummary 组装实体的语义文本
// 名称、类型、业务域、标签、关键词、路由信息与摘要拼成向量化输入；
// 该文本随向量一并入库，保证可复现
func SemanticSummary(entity *knowledge.Entity) string {
	parts := []string{entity.Name}
	if entity.Kind != "" {
		parts = append(parts, entity.Kind)
	}
	if entity.Domain != "" {
		parts = append(parts, entity.Domain)
	}
	if len(entity.Metadata.Tags) > 0 {
		parts = append(parts, strings.Join(entity.Metadata.Tags, " "))
	}
	if len(entity.Metadata.Keywords) > 0 {
		parts = append(parts, strings.Join(entity.Metadata.Keywords, " "))
	}
	if entity.Metadata.RouteMethod != "" || entity.Metadata.RoutePath != "" {
		parts = append(parts, strings.TrimSpace(fmt.Sprintf("%s %s", entity.Metadata.RouteMethod, entity.Metadata.RoutePath)))
	}
	if entity.Metadata.Snippet != "" {
		parts = append(parts, entity.Metadata.Snippet)
	}
	return strings.Join(parts, "\n")
}
