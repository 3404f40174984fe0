package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainChat "github.com/repolens/backend/internal/domain/chat"
	"github.com/repolens/backend/internal/domain/events"
	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/log"
)

// ErrInvalidSnapshot 快照内容不合法（缺实体、缺必填字段等）
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// RepositoryInput 快照随附的仓库元信息
// 未注册的仓库凭它完成注册，已注册的仓库用它刷新名称和地址
type RepositoryInput struct {
	// Name 仓库名称（为空时由注册表从 URL 或路径推导）
	Name string `json:"name"`
	// RemoteURL 远程仓库 URL
	RemoteURL string `json:"remote_url"`
	// LocalPath 本地路径
	LocalPath string `json:"local_path"`
}

// EntityInput 快照中的单个实体
type EntityInput struct {
	// Name 实体名称，仓库内与 FilePath 共同唯一
	Name string `json:"name"`
	// Kind 实体类型，如 function/class/route/model
	Kind string `json:"kind"`
	// FilePath 实体所在源文件路径
	FilePath string `json:"file_path"`
	// Domain 业务域标签（存储时统一小写）
	Domain string `json:"domain"`
	// Metadata 结构化元数据
	Metadata knowledge.EntityMetadata `json:"metadata"`
}

// RelationshipInput 快照中的单条关系边
type RelationshipInput struct {
	// Source 源实体名称
	Source string `json:"source"`
	// Target 目标实体名称
	Target string `json:"target"`
	// Kind 关系类型，如 calls/imports/renders
	Kind string `json:"kind"`
}

// SnapshotInput 一次完整的知识快照
type SnapshotInput struct {
	// Repository 仓库元信息（可选，见 RepositoryInput）
	Repository *RepositoryInput `json:"repository,omitempty"`
	// Entities 实体列表
	Entities []EntityInput `json:"entities"`
	// Relationships 关系列表
	Relationships []RelationshipInput `json:"relationships"`
}

// SnapshotService 知识快照摄取服务
// 快照是仓库图谱的唯一写入口：整体替换实体与关系，刷新注册表统计，
// 并把全部实体重新排入向量回填队列
type SnapshotService struct {
	entities      knowledge.EntityRepository
	relationships knowledge.RelationshipRepository
	memory        domainChat.SessionMemoryRepository
	backfillQueue knowledge.BackfillQueueRepository
	registry      knowledge.RepositoryRegistry
	bus           events.EventBus
	logger        *slog.Logger
}

// NewSnapshotService 创建快照摄取服务
func NewSnapshotService(
	entities knowledge.EntityRepository,
	relationships knowledge.RelationshipRepository,
	memory domainChat.SessionMemoryRepository,
	backfillQueue knowledge.BackfillQueueRepository,
	registry knowledge.RepositoryRegistry,
	bus events.EventBus,
) *SnapshotService {
	return &SnapshotService{
		entities:      entities,
		relationships: relationships,
		memory:        memory,
		backfillQueue: backfillQueue,
		registry:      registry,
		bus:           bus,
		logger:        log.NewModuleLogger("ingest", "snapshot"),
	}
}

// IngestSnapshot 摄取仓库知识快照
// 同一快照重复摄取是幂等的：实体 ID 由仓库、路径和名称确定性派生
func (s *SnapshotService) IngestSnapshot(ctx context.Context, repositoryID string, input *SnapshotInput) (*knowledge.SnapshotStats, error) {
	repositoryID = strings.TrimSpace(repositoryID)
	if repositoryID == "" {
		return nil, fmt.Errorf("%w: repository id is required", ErrInvalidSnapshot)
	}
	if input == nil {
		return nil, fmt.Errorf("%w: request body is required", ErrInvalidSnapshot)
	}

	repo, err := s.ensureRegistered(ctx, repositoryID, input.Repository)
	if err != nil {
		return nil, err
	}

	entities, err := s.buildEntities(repositoryID, input.Entities)
	if err != nil {
		return nil, err
	}
	relationships, err := s.buildRelationships(repositoryID, input.Relationships)
	if err != nil {
		return nil, err
	}

	// 整体替换：旧快照的实体和关系全部失效
	if err := s.entities.DeleteByRepository(ctx, repositoryID); err != nil {
		return nil, fmt.Errorf("failed to clear entities: %w", err)
	}
	if err := s.relationships.DeleteByRepository(ctx, repositoryID); err != nil {
		return nil, fmt.Errorf("failed to clear relationships: %w", err)
	}
	if err := s.entities.SaveBatch(ctx, entities); err != nil {
		return nil, fmt.Errorf("failed to save entities: %w", err)
	}
	if len(relationships) > 0 {
		if err := s.relationships.SaveBatch(ctx, relationships); err != nil {
			return nil, fmt.Errorf("failed to save relationships: %w", err)
		}
	}

	if err := s.registry.UpdateSnapshotStats(ctx, repositoryID, len(entities), len(relationships)); err != nil {
		return nil, fmt.Errorf("failed to update snapshot stats: %w", err)
	}

	// 快照重建后旧向量全部过期，无条件重置回填任务；
	// 失败只记日志，检索不依赖向量
	tasks := make([]*knowledge.BackfillTask, len(entities))
	for i, entity := range entities {
		tasks[i] = knowledge.NewBackfillTask(repositoryID, entity.ID)
	}
	if err := s.backfillQueue.EnqueueBatch(ctx, tasks, true); err != nil {
		s.logger.Warn("failed to enqueue backfill tasks",
			"repository_id", repositoryID, "error", err)
	}

	domains, err := s.entities.ListDomains(ctx, repositoryID)
	if err != nil {
		s.logger.Warn("failed to list domains", "repository_id", repositoryID, "error", err)
		domains = nil
	}

	s.bus.Publish(&events.SnapshotIngestedEvent{
		RepositoryID:      repositoryID,
		EntityCount:       len(entities),
		RelationshipCount: len(relationships),
		EventTime:         time.Now(),
	})

	s.logger.Info("snapshot ingested",
		"repository_id", repositoryID,
		"repository_name", repo.Name,
		"entity_count", len(entities),
		"relationship_count", len(relationships))

	return &knowledge.SnapshotStats{
		RepositoryID:      repositoryID,
		EntityCount:       len(entities),
		RelationshipCount: len(relationships),
		Domains:           domains,
	}, nil
}

// ensureRegistered 确认仓库已注册
// 未注册且快照携带元信息时现场注册；已注册且携带元信息时刷新条目
func (s *SnapshotService) ensureRegistered(ctx context.Context, repositoryID string, meta *RepositoryInput) (*knowledge.Repository, error) {
	repo, err := s.registry.Get(ctx, repositoryID)
	if err == nil {
		if meta == nil {
			return repo, nil
		}
		updated := *repo
		if name := strings.TrimSpace(meta.Name); name != "" {
			updated.Name = name
		}
		if remoteURL := strings.TrimSpace(meta.RemoteURL); remoteURL != "" {
			updated.RemoteURL = remoteURL
		}
		if localPath := strings.TrimSpace(meta.LocalPath); localPath != "" {
			updated.LocalPath = localPath
		}
		if err := s.registry.Register(ctx, &updated); err != nil {
			return nil, fmt.Errorf("failed to refresh repository: %w", err)
		}
		return &updated, nil
	}
	if !errors.Is(err, knowledge.ErrRepositoryNotFound) {
		return nil, fmt.Errorf("failed to look up repository: %w", err)
	}

	// 注册需要远程 URL 或本地路径，没有就维持未注册错误
	if meta == nil || (strings.TrimSpace(meta.RemoteURL) == "" && strings.TrimSpace(meta.LocalPath) == "") {
		return nil, err
	}

	repo = &knowledge.Repository{
		ID:        repositoryID,
		Name:      strings.TrimSpace(meta.Name),
		RemoteURL: strings.TrimSpace(meta.RemoteURL),
		LocalPath: strings.TrimSpace(meta.LocalPath),
	}
	if err := s.registry.Register(ctx, repo); err != nil {
		return nil, fmt.Errorf("failed to register repository: %w", err)
	}
	return repo, nil
}

// buildEntities 校验实体输入并构造存储模型
// 同一 (name, file_path) 在一次快照中出现多次时取最后一条
func (s *SnapshotService) buildEntities(repositoryID string, inputs []EntityInput) ([]*knowledge.Entity, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: snapshot must contain at least one entity", ErrInvalidSnapshot)
	}

	now := time.Now()
	seen := make(map[string]int, len(inputs))
	entities := make([]*knowledge.Entity, 0, len(inputs))
	for i, input := range inputs {
		name := strings.TrimSpace(input.Name)
		filePath := strings.TrimSpace(input.FilePath)
		if name == "" || filePath == "" {
			return nil, fmt.Errorf("%w: entity %d requires name and file_path", ErrInvalidSnapshot, i)
		}

		entity := &knowledge.Entity{
			ID:           knowledge.NewEntityID(repositoryID, filePath, name),
			RepositoryID: repositoryID,
			Name:         name,
			Kind:         strings.TrimSpace(input.Kind),
			FilePath:     filePath,
			Domain:       strings.ToLower(strings.TrimSpace(input.Domain)),
			Metadata:     input.Metadata,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if idx, ok := seen[entity.ID]; ok {
			entities[idx] = entity
			continue
		}
		seen[entity.ID] = len(entities)
		entities = append(entities, entity)
	}
	return entities, nil
}

// buildRelationships 校验关系输入并构造存储模型
// 重复的 (source, target, kind) 三元组折叠为一条
func (s *SnapshotService) buildRelationships(repositoryID string, inputs []RelationshipInput) ([]*knowledge.Relationship, error) {
	seen := make(map[string]bool, len(inputs))
	relationships := make([]*knowledge.Relationship, 0, len(inputs))
	for i, input := range inputs {
		source := strings.TrimSpace(input.Source)
		target := strings.TrimSpace(input.Target)
		kind := strings.TrimSpace(input.Kind)
		if source == "" || target == "" || kind == "" {
			return nil, fmt.Errorf("%w: relationship %d requires source, target and kind", ErrInvalidSnapshot, i)
		}

		key := source + "\x00" + target + "\x00" + kind
		if seen[key] {
			continue
		}
		seen[key] = true
		relationships = append(relationships, &knowledge.Relationship{
			RepositoryID: repositoryID,
			Source:       source,
			Target:       target,
			Kind:         kind,
		})
	}
	return relationships, nil
}

// Stats 获取仓库知识快照统计
func (s *SnapshotService) Stats(ctx context.Context, repositoryID string) (*knowledge.SnapshotStats, error) {
	if _, err := s.registry.Get(ctx, repositoryID); err != nil {
		return nil, err
	}

	entityCount, err := s.entities.CountByRepository(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}
	relationshipCount, err := s.relationships.CountByRepository(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to count relationships: %w", err)
	}
	domains, err := s.entities.ListDomains(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	return &knowledge.SnapshotStats{
		RepositoryID:      repositoryID,
		EntityCount:       entityCount,
		RelationshipCount: relationshipCount,
		Domains:           domains,
	}, nil
}

// ListRepositories 列出全部已注册仓库
func (s *SnapshotService) ListRepositories(ctx context.Context) ([]*knowledge.Repository, error) {
	return s.registry.List(ctx)
}

// GetRepository 获取单个仓库
func (s *SnapshotService) GetRepository(ctx context.Context, repositoryID string) (*knowledge.Repository, error) {
	return s.registry.Get(ctx, repositoryID)
}

// RemoveRepository 移除仓库并级联清理其全部关联数据
func (s *SnapshotService) RemoveRepository(ctx context.Context, repositoryID string) error {
	if _, err := s.registry.Get(ctx, repositoryID); err != nil {
		return err
	}

	if err := s.entities.DeleteByRepository(ctx, repositoryID); err != nil {
		return fmt.Errorf("failed to delete entities: %w", err)
	}
	if err := s.relationships.DeleteByRepository(ctx, repositoryID); err != nil {
		return fmt.Errorf("failed to delete relationships: %w", err)
	}
	if err := s.memory.DeleteByRepository(ctx, repositoryID); err != nil {
		return fmt.Errorf("failed to delete session memory: %w", err)
	}
	if err := s.backfillQueue.DeleteByRepository(ctx, repositoryID); err != nil {
		return fmt.Errorf("failed to delete backfill tasks: %w", err)
	}
	if err := s.registry.Remove(ctx, repositoryID); err != nil {
		return fmt.Errorf("failed to remove repository: %w", err)
	}

	s.logger.Info("repository removed", "repository_id", repositoryID)
	return nil
}
