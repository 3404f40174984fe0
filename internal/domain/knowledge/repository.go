package knowledge

import "context"

// EntityRepository 实体存储接口
type EntityRepository interface {
	// SaveBatch 批量保存实体（按 repository_id+name+file_path 幂等更新）
	SaveBatch(ctx context.Context, entities []*Entity) error

	// GetByID 根据 ID 获取实体
	GetByID(ctx context.Context, id string) (*Entity, error)

	// GetByIDs 批量获取实体
	GetByIDs(ctx context.Context, ids []string) ([]*Entity, error)

	// GetByNames 根据名称批量获取仓库内的实体
	GetByNames(ctx context.Context, repositoryID string, names []string) ([]*Entity, error)

	// ListByRepository 列出仓库内的实体（按名称排序，带上限）
	ListByRepository(ctx context.Context, repositoryID string, limit int) ([]*Entity, error)

	// SearchByKeyword 名称或文件路径子串匹配检索（大小写不敏感）
	SearchByKeyword(ctx context.Context, repositoryID, keyword string, limit int) ([]*Entity, error)

	// ListByDomain 列出指定业务域的实体（按名称排序，带上限）
	ListByDomain(ctx context.Context, repositoryID, domain string, limit int) ([]*Entity, error)

	// ListDomains 列出仓库内去重后的业务域
	ListDomains(ctx context.Context, repositoryID string) ([]string, error)

	// CountByRepository 统计仓库内实体数量
	CountByRepository(ctx context.Context, repositoryID string) (int, error)

	// DeleteByRepository 删除仓库的全部实体
	DeleteByRepository(ctx context.Context, repositoryID string) error
}

// RelationshipRepository 关系存储接口
type RelationshipRepository interface {
	// SaveBatch 批量保存关系（重复边忽略）
	SaveBatch(ctx context.Context, relationships []*Relationship) error

	// GetBySourceNames 获取以指定名称为源的出边
	GetBySourceNames(ctx context.Context, repositoryID string, names []string, limit int) ([]*Relationship, error)

	// GetByTargetNames 获取以指定名称为目标的入边
	GetByTargetNames(ctx context.Context, repositoryID string, names []string, limit int) ([]*Relationship, error)

	// CountByRepository 统计仓库内关系数量
	CountByRepository(ctx context.Context, repositoryID string) (int, error)

	// DeleteByRepository 删除仓库的全部关系
	DeleteByRepository(ctx context.Context, repositoryID string) error
}

// BackfillQueueRepository 向量回填队列存储接口
type BackfillQueueRepository interface {
	// Enqueue 入队任务；已存在的任务仅在 failed 状态下重置为 pending
	Enqueue(ctx context.Context, task *BackfillTask) error

	// EnqueueBatch 批量入队；reset 为 true 时无条件重置为 pending（快照重建后向量已过期）
	EnqueueBatch(ctx context.Context, tasks []*BackfillTask, reset bool) error

	// DequeueTasks 取出待处理任务（按优先级和创建时间排序）
	DequeueTasks(ctx context.Context, limit int) ([]*BackfillTask, error)

	// UpdateTask 更新任务状态
	UpdateTask(ctx context.Context, task *BackfillTask) error

	// GetStats 获取队列统计
	GetStats(ctx context.Context) (*BackfillStats, error)

	// ResetFailed 将所有 failed 任务重置为 pending，返回重置数量
	ResetFailed(ctx context.Context) (int64, error)

	// DeleteByRepository 删除仓库的全部任务
	DeleteByRepository(ctx context.Context, repositoryID string) error
}
