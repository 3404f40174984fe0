package knowledge

import "time"

// Entity 知识快照中的实体（仓库里有名字的结构单元）
type Entity struct {
	// ID 实体唯一标识（由仓库 ID、文件路径和名称确定性派生）
	ID string `json:"id"`
	// RepositoryID 所属仓库 ID
	RepositoryID string `json:"repository_id"`
	// Name 实体名称，关系边引用的键
	Name string `json:"name"`
	// Kind 实体类型，如 function/class/route/model
	Kind string `json:"kind"`
	// FilePath 实体所在源文件路径（相对仓库根目录）
	FilePath string `json:"file_path"`
	// Domain 业务域标签，如 auth/search/billing
	Domain string `json:"domain"`
	// Metadata 结构化元数据
	Metadata EntityMetadata `json:"metadata"`
	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt 更新时间
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityMetadata 实体的结构化元数据
// 固定字段而非自由 map，保证检索与回答阶段取值稳定
type EntityMetadata struct {
	// Tags 标签列表
	Tags []string `json:"tags,omitempty"`
	// Keywords 额外检索关键词
	Keywords []string `json:"keywords,omitempty"`
	// Snippet 代码或文档摘要片段
	Snippet string `json:"snippet,omitempty"`
	// RouteMethod HTTP 方法（路由类实体）
	RouteMethod string `json:"route_method,omitempty"`
	// RoutePath 路由路径（路由类实体）
	RoutePath string `json:"route_path,omitempty"`
}

// IsEmpty 检查元数据是否为空
func (m EntityMetadata) IsEmpty() bool {
	return len(m.Tags) == 0 &&
		len(m.Keywords) == 0 &&
		m.Snippet == "" &&
		m.RouteMethod == "" &&
		m.RoutePath == ""
}

// Relationship 实体间的有向关系边
type Relationship struct {
	// ID 数据库自增 ID
	ID int64 `json:"id"`
	// RepositoryID 所属仓库 ID
	RepositoryID string `json:"repository_id"`
	// Source 源实体名称
	Source string `json:"source"`
	// Target 目标实体名称
	Target string `json:"target"`
	// Kind 关系类型，如 calls/imports/renders
	Kind string `json:"kind"`
}

// SnapshotStats 仓库知识快照统计
type SnapshotStats struct {
	// RepositoryID 仓库 ID
	RepositoryID string `json:"repository_id"`
	// EntityCount 实体数量
	EntityCount int `json:"entity_count"`
	// RelationshipCount 关系数量
	RelationshipCount int `json:"relationship_count"`
	// Domains 去重后的业务域列表
	Domains []string `json:"domains"`
}
