package chat

import "context"

// SessionMemory 会话记忆条目
// 记录某个会话中实体被答案引用的累计权重，用于后续轮次的检索加权
type SessionMemory struct {
	// SessionID 会话 ID
	SessionID string `json:"session_id"`
	// RepositoryID 仓库 ID
	RepositoryID string `json:"repository_id"`
	// EntityID 实体 ID
	EntityID string `json:"entity_id"`
	// Weight 累计使用次数
	Weight int `json:"weight"`
	// LastUsedAt 最近一次使用时间（Unix 时间戳）
	LastUsedAt int64 `json:"last_used_at"`
}

// SessionMemoryRepository 会话记忆存储接口
type SessionMemoryRepository interface {
	// Recall 取回会话最近使用的记忆条目（按 last_used_at 倒序，带上限）
	Recall(ctx context.Context, sessionID, repositoryID string, limit int) ([]*SessionMemory, error)

	// Upsert 记录实体使用：不存在则以权重 1 插入，存在则权重 +1 并刷新时间
	Upsert(ctx context.Context, sessionID, repositoryID string, entityIDs []string) error

	// DeleteByRepository 删除仓库的全部会话记忆
	DeleteByRepository(ctx context.Context, repositoryID string) error
}
