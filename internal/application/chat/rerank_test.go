package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repolens/backend/internal/domain/knowledge"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

type fakeVectorFetcher struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeVectorFetcher) FetchVectors(context.Context, []string) (map[string][]float32, error) {
	return f.vectors, f.err
}

func rerankSeeds() []*knowledge.Entity {
	return []*knowledge.Entity{
		{ID: "a", Name: "Alpha"},
		{ID: "b", Name: "Beta"},
		{ID: "c", Name: "Gamma"},
	}
}

// TestReranker_NotConfigured 未配置嵌入服务时保持入参顺序
func TestReranker_NotConfigured(t *testing.T) {
	reranker := NewReranker()
	seeds := rerankSeeds()

	result := reranker.Rerank(context.Background(), nil, nil, "question", seeds)

	assert.False(t, result.Applied)
	assert.Equal(t, seeds, result.Seeds)
}

// TestReranker_CosinePlusPrior 最终得分 = 余弦相似度 + 0.15/(1+idx)
func TestReranker_CosinePlusPrior(t *testing.T) {
	reranker := NewReranker()
	seeds := rerankSeeds()

	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	fetcher := &fakeVectorFetcher{vectors: map[string][]float32{
		"a": {0, 1}, // 余弦 0，先验 0.15
		"b": {1, 0}, // 余弦 1，先验 0.075
		// c 没有向量：只有先验 0.05
	}}

	result := reranker.Rerank(context.Background(), embedder, fetcher, "question", seeds)

	require.True(t, result.Applied)
	require.Len(t, result.Seeds, 3, "重排永不增删实体")
	assert.Equal(t, "b", result.Seeds[0].ID)
	assert.Equal(t, "a", result.Seeds[1].ID)
	assert.Equal(t, "c", result.Seeds[2].ID)
	assert.Equal(t, []string{"c"}, result.MissingVectors)
}

// TestReranker_EmbedFailurePassthrough 嵌入失败静默放行
func TestReranker_EmbedFailurePassthrough(t *testing.T) {
	reranker := NewReranker()
	seeds := rerankSeeds()

	embedder := &fakeEmbedder{err: errors.New("service down")}
	fetcher := &fakeVectorFetcher{}

	result := reranker.Rerank(context.Background(), embedder, fetcher, "question", seeds)

	assert.False(t, result.Applied)
	assert.Equal(t, seeds, result.Seeds)
}

// TestReranker_FetchFailurePassthrough 向量库不可达静默放行
func TestReranker_FetchFailurePassthrough(t *testing.T) {
	reranker := NewReranker()
	seeds := rerankSeeds()

	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	fetcher := &fakeVectorFetcher{err: errors.New("qdrant unreachable")}

	result := reranker.Rerank(context.Background(), embedder, fetcher, "question", seeds)

	assert.False(t, result.Applied)
	assert.Equal(t, seeds, result.Seeds)
}

// TestReranker_NoStoredVectors 全部缺向量时只有位置先验，顺序不变
func TestReranker_NoStoredVectors(t *testing.T) {
	reranker := NewReranker()
	seeds := rerankSeeds()

	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	fetcher := &fakeVectorFetcher{vectors: map[string][]float32{}}

	result := reranker.Rerank(context.Background(), embedder, fetcher, "question", seeds)

	require.True(t, result.Applied)
	assert.Equal(t, []string{"a", "b", "c"}, entityIDs(result.Seeds))
	assert.Equal(t, []string{"a", "b", "c"}, result.MissingVectors)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// 零范数与维度不一致都得 0 分
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Zero(t, cosineSimilarity(nil, nil))
}
