package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/repolens/backend/internal/infrastructure/log"
)

// EntityVectorStore 实体向量读写
// 点 ID 与实体 ID 一致（确定性 UUID），payload 记录仓库归属与语义摘要
type EntityVectorStore struct {
	manager *Manager
	logger  *slog.Logger
}

// NewEntityVectorStore 创建实体向量存储
func NewEntityVectorStore(manager *Manager) *EntityVectorStore {
	return &EntityVectorStore{
		manager: manager,
		logger:  log.NewModuleLogger("vector", "entity_store"),
	}
}

// EnsureCollection 确保实体集合存在（回填 Worker 首次写入前调用）
func (s *EntityVectorStore) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	return s.manager.EnsureCollection(ctx, vectorSize)
}

// UpsertEntityVector 写入或更新单个实体向量
func (s *EntityVectorStore) UpsertEntityVector(ctx context.Context, repositoryID, entityID, semanticSummary string, vector []float32) error {
	client, err := s.manager.GetClient()
	if err != nil {
		return err
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(entityID),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"repository_id":    repositoryID,
			"entity_id":        entityID,
			"semantic_summary": semanticSummary,
		}),
	}

	if _, err := client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: EntityCollection,
		Points:         []*qdrant.PointStruct{point},
	}); err != nil {
		return fmt.Errorf("failed to upsert entity vector: %w", err)
	}

	s.logger.Debug("Entity vector upserted",
		"repository_id", repositoryID,
		"entity_id", entityID,
		"vector_dim", len(vector),
	)

	return nil
}

// FetchVectors 按实体 ID 批量取回已存储的向量
// 未入库的实体不在返回 map 中，调用方按缺失处理
func (s *EntityVectorStore) FetchVectors(ctx context.Context, entityIDs []string) (map[string][]float32, error) {
	if len(entityIDs) == 0 {
		return map[string][]float32{}, nil
	}

	client, err := s.manager.GetClient()
	if err != nil {
		return nil, err
	}

	ids := make([]*qdrant.PointId, len(entityIDs))
	for i, id := range entityIDs {
		ids[i] = qdrant.NewID(id)
	}

	points, err := client.Get(ctx, &qdrant.GetPoints{
		CollectionName: EntityCollection,
		Ids:            ids,
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entity vectors: %w", err)
	}

	vectors := make(map[string][]float32, len(points))
	for _, point := range points {
		id := point.GetId().GetUuid()
		if id == "" {
			continue
		}
		data := point.GetVectors().GetVector().GetData()
		if len(data) == 0 {
			continue
		}
		vectors[id] = data
	}

	s.logger.Debug("Entity vectors fetched",
		"requested", len(entityIDs),
		"returned", len(vectors),
	)

	return vectors, nil
}

// DeleteByRepository 删除某仓库的全部实体向量
func (s *EntityVectorStore) DeleteByRepository(ctx context.Context, repositoryID string) error {
	client, err := s.manager.GetClient()
	if err != nil {
		return err
	}

	if _, err := client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: EntityCollection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("repository_id", repositoryID),
			},
		}),
	}); err != nil {
		return fmt.Errorf("failed to delete entity vectors: %w", err)
	}

	s.logger.Info("Entity vectors deleted", "repository_id", repositoryID)
	return nil
}
