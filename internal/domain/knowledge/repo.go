package knowledge

import (
	"context"
	"errors"
	"time"
)

// ErrRepositoryNotFound 仓库未注册
var ErrRepositoryNotFound = errors.New("repository not found")

// Repository 被检视的代码仓库
type Repository struct {
	// ID 仓库唯一标识（基于 remote URL 的 hash，或注册时显式指定）
	ID string `json:"id" yaml:"id"`
	// Name 仓库名称
	Name string `json:"name" yaml:"name"`
	// RemoteURL 远程仓库 URL（规范化后）
	RemoteURL string `json:"remote_url" yaml:"remote_url"`
	// LocalPath 本地路径（可选）
	LocalPath string `json:"local_path,omitempty" yaml:"local_path,omitempty"`
	// EntityCount 最近一次快照的实体数量
	EntityCount int `json:"entity_count" yaml:"entity_count"`
	// RelationshipCount 最近一次快照的关系数量
	RelationshipCount int `json:"relationship_count" yaml:"relationship_count"`
	// LastIngestedAt 最近一次快照摄取时间
	LastIngestedAt time.Time `json:"last_ingested_at" yaml:"last_ingested_at"`
	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	// UpdatedAt 更新时间
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// RepositoryRegistry 仓库注册表接口
type RepositoryRegistry interface {
	// Register 注册或更新仓库（ID 为空时根据 remote URL 派生）
	Register(ctx context.Context, repo *Repository) error

	// Get 根据 ID 获取仓库；未注册返回 ErrRepositoryNotFound
	Get(ctx context.Context, id string) (*Repository, error)

	// List 获取全部仓库（按名称排序）
	List(ctx context.Context) ([]*Repository, error)

	// Remove 移除仓库
	Remove(ctx context.Context, id string) error

	// UpdateSnapshotStats 更新快照统计并刷新摄取时间
	UpdateSnapshotStats(ctx context.Context, id string, entityCount, relationshipCount int) error
}
