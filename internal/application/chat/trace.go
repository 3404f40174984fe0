package chat

import "time"

// StageRecord 流水线单阶段执行记录
type StageRecord struct {
	// Stage 阶段名称
	Stage string `json:"stage"`
	// Status 阶段状态（ok/fallback/skipped/timeout）
	Status string `json:"status"`
	// ElapsedMS 阶段耗时（毫秒）
	ElapsedMS int64 `json:"elapsed_ms"`
	// Detail 附加说明（命中数量、降级原因等）
	Detail string `json:"detail,omitempty"`
}

// PipelineTrace 流水线调试轨迹
// 始终发布到事件总线；仅当请求 Debug=true 时随响应返回
type PipelineTrace struct {
	// Stages 各阶段记录（按执行顺序）
	Stages []StageRecord `json:"stages"`
	// SeedCount 种子实体数量
	SeedCount int `json:"seed_count"`
	// EdgeCount 关系边数量
	EdgeCount int `json:"edge_count"`
	// RelatedCount 关联实体数量
	RelatedCount int `json:"related_count"`
	// SeedSource 种子来源（keyword/domain_fallback/none）
	SeedSource string `json:"seed_source,omitempty"`
	// TotalElapsedMS 总耗时（毫秒）
	TotalElapsedMS int64 `json:"total_elapsed_ms"`
	// BudgetMS 软预算（毫秒），仅记录不强制
	BudgetMS int64 `json:"budget_ms"`
	// OverBudget 总耗时是否超出软预算
	OverBudget bool `json:"over_budget"`

	startedAt time.Time
}

// newPipelineTrace 创建轨迹并记录起始时间
func newPipelineTrace(budgetMS int64) *PipelineTrace {
	return &PipelineTrace{
		Stages:    make([]StageRecord, 0, 9),
		BudgetMS:  budgetMS,
		startedAt: time.Now(),
	}
}

// Record 追加一条阶段记录
func (t *PipelineTrace) Record(stage, status string, elapsed time.Duration, detail string) {
	t.Stages = append(t.Stages, StageRecord{
		Stage:     stage,
		Status:    status,
		ElapsedMS: elapsed.Milliseconds(),
		Detail:    detail,
	})
}

// Finish 结算总耗时并判定是否超预算
func (t *PipelineTrace) Finish() {
	t.TotalElapsedMS = time.Since(t.startedAt).Milliseconds()
	t.OverBudget = t.TotalElapsedMS > t.BudgetMS
}

// StageStatus 返回指定阶段的状态，未执行返回空串
func (t *PipelineTrace) StageStatus(stage string) string {
	for _, record := range t.Stages {
		if record.Stage == stage {
			return record.Status
		}
	}
	return ""
}
