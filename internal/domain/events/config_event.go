package events

import "time"

// ConfigUpdatedEvent AI 配置更新事件
// API 写入或配置文件热加载后触发，订阅方据此重建客户端
type ConfigUpdatedEvent struct {
	// Source 更新来源（api/watcher）
	Source string `json:"source"`
	// LLMConfigured 更新后 LLM 是否可用
	LLMConfigured bool `json:"llm_configured"`
	// EmbeddingConfigured 更新后 Embedding 服务是否可用
	EmbeddingConfigured bool `json:"embedding_configured"`
	// VectorConfigured 更新后向量库是否可用
	VectorConfigured bool `json:"vector_configured"`
	// EventTime 事件发生时间
	EventTime time.Time `json:"event_time"`
}

// Type 实现 Event 接口
func (e *ConfigUpdatedEvent) Type() EventType {
	return ConfigUpdated
}

// Timestamp 实现 Event 接口
func (e *ConfigUpdatedEvent) Timestamp() time.Time {
	return e.EventTime
}

// SnapshotIngestedEvent 仓库知识快照摄取完成事件
type SnapshotIngestedEvent struct {
	// RepositoryID 仓库 ID
	RepositoryID string `json:"repository_id"`
	// EntityCount 摄取的实体数量
	EntityCount int `json:"entity_count"`
	// RelationshipCount 摄取的关系数量
	RelationshipCount int `json:"relationship_count"`
	// EventTime 事件发生时间
	EventTime time.Time `json:"event_time"`
}

// Type 实现 Event 接口
func (e *SnapshotIngestedEvent) Type() EventType {
	return SnapshotIngested
}

// Timestamp 实现 Event 接口
func (e *SnapshotIngestedEvent) Timestamp() time.Time {
	return e.EventTime
}
