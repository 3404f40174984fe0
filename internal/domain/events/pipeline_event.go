package events

import "time"

// PipelineStageEvent 管线单阶段完成事件
// 每个聊天请求的每个阶段都会发布一条，供调试视图实时展示
type PipelineStageEvent struct {
	// SessionID 会话 ID
	SessionID string `json:"session_id"`
	// RepositoryID 仓库 ID
	RepositoryID string `json:"repository_id"`
	// Stage 阶段名称
	Stage string `json:"stage"`
	// Status 阶段状态（ok/fallback/skipped/timeout）
	Status string `json:"status"`
	// ElapsedMS 阶段耗时（毫秒）
	ElapsedMS int64 `json:"elapsed_ms"`
	// Detail 附加说明（命中数量、降级原因等）
	Detail string `json:"detail,omitempty"`
	// EventTime 事件发生时间
	EventTime time.Time `json:"event_time"`
}

// Type 实现 Event 接口
func (e *PipelineStageEvent) Type() EventType {
	return PipelineStageCompleted
}

// Timestamp 实现 Event 接口
func (e *PipelineStageEvent) Timestamp() time.Time {
	return e.EventTime
}

// PipelineCompletedEvent 管线整体完成事件
type PipelineCompletedEvent struct {
	// SessionID 会话 ID
	SessionID string `json:"session_id"`
	// RepositoryID 仓库 ID
	RepositoryID string `json:"repository_id"`
	// Intent 识别出的意图
	Intent string `json:"intent"`
	// Confidence 回答置信度
	Confidence string `json:"confidence"`
	// SeedCount 种子实体数量
	SeedCount int `json:"seed_count"`
	// EdgeCount 关系边数量
	EdgeCount int `json:"edge_count"`
	// RelatedCount 关联实体数量
	RelatedCount int `json:"related_count"`
	// TotalElapsedMS 总耗时（毫秒）
	TotalElapsedMS int64 `json:"total_elapsed_ms"`
	// BudgetMS 软预算（毫秒）
	BudgetMS int64 `json:"budget_ms"`
	// OverBudget 是否超出软预算
	OverBudget bool `json:"over_budget"`
	// EventTime 事件发生时间
	EventTime time.Time `json:"event_time"`
}

// Type 实现 Event 接口
func (e *PipelineCompletedEvent) Type() EventType {
	return PipelineCompleted
}

// Timestamp 实现 Event 接口
func (e *PipelineCompletedEvent) Timestamp() time.Time {
	return e.EventTime
}
