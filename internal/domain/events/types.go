// Package events 定义领域事件类型和接口
// 用于系统内部的事件驱动通信
package events

import "time"

// EventType 事件类型标识
type EventType string

// 聊天管线相关事件类型
const (
	// PipelineStageCompleted 管线单阶段完成事件（含降级/跳过/超时）
	PipelineStageCompleted EventType = "pipeline.stage.completed"
	// PipelineCompleted 管线整体完成事件
	PipelineCompleted EventType = "pipeline.completed"
)

// 配置相关事件类型
const (
	// ConfigUpdated AI 配置更新事件（API 修改或文件热加载）
	ConfigUpdated EventType = "config.updated"
)

// 快照相关事件类型
const (
	// SnapshotIngested 仓库知识快照摄取完成事件
	SnapshotIngested EventType = "snapshot.ingested"
)

// 管线阶段名称
const (
	StageFrontdesk = "frontdesk"
	StageIntent    = "intent"
	StageExpand    = "expand"
	StageRetrieve  = "retrieve"
	StageGraph     = "graph"
	StageRerank    = "rerank"
	StageReason    = "reason"
	StageTranslate = "translate"
	StageMemory    = "memory"
)

// 管线阶段状态
const (
	StageStatusOK       = "ok"
	StageStatusFallback = "fallback"
	StageStatusSkipped  = "skipped"
	StageStatusTimeout  = "timeout"
)

// Event 领域事件接口
// 所有事件类型都必须实现此接口
type Event interface {
	// Type 返回事件类型
	Type() EventType
	// Timestamp 返回事件发生时间
	Timestamp() time.Time
}
