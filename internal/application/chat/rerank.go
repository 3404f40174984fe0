package chat

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/log"
)

// positionPriorWeight 位置先验系数：入参顺序靠前的实体得到更高先验分
const positionPriorWeight = 0.15

// Reranker 向量重排器
// 可选阶段：任何失败（嵌入失败、向量库不可达、无存量向量）都静默放行，
// 保持入参顺序不变；重排永不增删实体
type Reranker struct {
	logger *slog.Logger
}

// NewReranker 创建向量重排器
func NewReranker() *Reranker {
	return &Reranker{
		logger: log.NewModuleLogger("chat", "rerank"),
	}
}

// RerankResult 重排结果
type RerankResult struct {
	// Seeds 重排后的种子（未执行重排时保持入参顺序）
	Seeds []*knowledge.Entity
	// MissingVectors 没有存量向量的实体 ID，交给回填队列
	MissingVectors []string
	// Applied 是否真正执行了重排
	Applied bool
}

// Rerank 按 余弦相似度+位置先验 重排种子
func (r *Reranker) Rerank(ctx context.Context, embedder QuestionEmbedder, vectors VectorFetcher, question string, seeds []*knowledge.Entity) *RerankResult {
	passthrough := &RerankResult{Seeds: seeds}
	if embedder == nil || vectors == nil || len(seeds) == 0 {
		return passthrough
	}

	questionVector, err := embedder.EmbedText(ctx, question)
	if err != nil {
		r.logger.Warn("failed to embed question, keeping retrieval order", "error", err)
		return passthrough
	}

	entityIDs := make([]string, len(seeds))
	for i, seed := range seeds {
		entityIDs[i] = seed.ID
	}
	stored, err := vectors.FetchVectors(ctx, entityIDs)
	if err != nil {
		r.logger.Warn("failed to fetch entity vectors, keeping retrieval order", "error", err)
		return passthrough
	}

	type scored struct {
		entity *knowledge.Entity
		score  float64
	}
	ranked := make([]scored, len(seeds))
	var missing []string
	for idx, seed := range seeds {
		score := positionPriorWeight / float64(1+idx)
		if vec, ok := stored[seed.ID]; ok {
			score += cosineSimilarity(questionVector, vec)
		} else {
			missing = append(missing, seed.ID)
		}
		ranked[idx] = scored{entity: seed, score: score}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	reordered := make([]*knowledge.Entity, len(ranked))
	for i, item := range ranked {
		reordered[i] = item.entity
	}
	return &RerankResult{Seeds: reordered, MissingVectors: missing, Applied: true}
}

// cosineSimilarity 余弦相似度，float64 累加；维度不一致或零范数返回 0
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
