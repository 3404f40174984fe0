package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/repolens/backend/internal/domain/events"
	"github.com/repolens/backend/internal/infrastructure/aiconfig"
	"github.com/repolens/backend/internal/infrastructure/embedding"
	"github.com/repolens/backend/internal/infrastructure/llm"
	"github.com/repolens/backend/internal/infrastructure/log"
	"github.com/repolens/backend/internal/infrastructure/vector"
)

// ChatCompleter LLM 对话补全能力
// 流水线阶段只依赖这个最小接口，便于测试替身
type ChatCompleter interface {
	// Complete 执行一次 system+user 的补全
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Language 回答语言偏好
	Language() string
}

// QuestionEmbedder 问题向量化能力
type QuestionEmbedder interface {
	// EmbedText 将单条文本转换为向量
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// VectorFetcher 实体向量批量读取能力
type VectorFetcher interface {
	// FetchVectors 按实体 ID 批量取回已存储的向量
	FetchVectors(ctx context.Context, entityIDs []string) (map[string][]float32, error)
}

// BatchEmbedder 批量向量化能力（回填 Worker 使用）
type BatchEmbedder interface {
	// EmbedTexts 批量向量化
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// GetVectorDimension 探测向量维度
	GetVectorDimension(ctx context.Context) (int, error)
}

// VectorWriter 实体向量写入能力（回填 Worker 使用）
type VectorWriter interface {
	// EnsureCollection 确保集合存在
	EnsureCollection(ctx context.Context, vectorSize uint64) error
	// UpsertEntityVector 写入或更新单个实体向量
	UpsertEntityVector(ctx context.Context, repositoryID, entityID, semanticSummary string, vector []float32) error
}

// AIProvider 按配置惰性持有 AI 客户端
// 配置更新事件到达时原子替换整组客户端；任何服务未配置时对应方法返回 nil，
// 调用方据此走确定性降级路径
type AIProvider struct {
	manager *aiconfig.Manager
	logger  *slog.Logger

	mu            sync.RWMutex
	pipeline      aiconfig.PipelineSection
	llmClient     *llm.Client
	embedClient   *embedding.Client
	vectorManager *vector.Manager
	vectorStore   *vector.EntityVectorStore

	unsubscribe func()
}

// NewAIProvider 创建 AI 客户端提供者并订阅配置更新事件
func NewAIProvider(manager *aiconfig.Manager, bus events.EventBus) *AIProvider {
	p := &AIProvider{
		manager: manager,
		logger:  log.NewModuleLogger("chat", "ai_provider"),
	}
	p.Reload()

	p.unsubscribe = bus.Subscribe(events.ConfigUpdated, events.HandlerFunc(func(events.Event) error {
		p.Reload()
		return nil
	}))
	return p
}

// Reload 重新读取配置并替换客户端
func (p *AIProvider) Reload() {
	cfg, err := p.manager.ReadConfig()
	if err != nil {
		p.logger.Warn("failed to read AI config, keeping previous clients", "error", err)
		return
	}

	var llmClient *llm.Client
	if cfg.LLMConfigured() {
		llmClient = llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Language)
	}

	var embedClient *embedding.Client
	if cfg.EmbeddingConfigured() {
		embedClient = embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model)
	}

	var vectorManager *vector.Manager
	var vectorStore *vector.EntityVectorStore
	if cfg.VectorConfigured() {
		vectorManager = vector.NewManager(cfg.Vector.Endpoint, cfg.Vector.APIKey)
		vectorStore = vector.NewEntityVectorStore(vectorManager)
	}

	p.mu.Lock()
	oldManager := p.vectorManager
	p.pipeline = cfg.Pipeline
	p.llmClient = llmClient
	p.embedClient = embedClient
	p.vectorManager = vectorManager
	p.vectorStore = vectorStore
	p.mu.Unlock()

	if oldManager != nil {
		oldManager.Close()
	}

	p.logger.Info("AI clients reloaded",
		"llm", cfg.LLMConfigured(),
		"embedding", cfg.EmbeddingConfigured(),
		"vector", cfg.VectorConfigured())
}

// Completer 返回 LLM 客户端，未配置时返回 nil
func (p *AIProvider) Completer() ChatCompleter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.llmClient == nil {
		return nil
	}
	return p.llmClient
}

// Embedder 返回 Embedding 客户端，未配置时返回 nil
func (p *AIProvider) Embedder() QuestionEmbedder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.embedClient == nil {
		return nil
	}
	return p.embedClient
}

// Batch 返回批量 Embedding 客户端，未配置时返回 nil
func (p *AIProvider) Batch() BatchEmbedder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.embedClient == nil {
		return nil
	}
	return p.embedClient
}

// VectorSink 返回向量写入器，未配置时返回 nil
func (p *AIProvider) VectorSink() VectorWriter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.vectorStore == nil {
		return nil
	}
	return p.vectorStore
}

// Vectors 返回向量读取器，未配置时返回 nil
func (p *AIProvider) Vectors() VectorFetcher {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.vectorStore == nil {
		return nil
	}
	return p.vectorStore
}

// Pipeline 返回当前流水线预算配置
func (p *AIProvider) Pipeline() aiconfig.PipelineSection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pipeline
}

// Close 取消事件订阅并释放客户端连接
func (p *AIProvider) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vectorManager != nil {
		p.vectorManager.Close()
		p.vectorManager = nil
		p.vectorStore = nil
	}
}
