package telemetry

import (
	"log/slog"

	"github.com/repolens/backend/internal/domain/events"
	"github.com/repolens/backend/internal/infrastructure/log"
	"github.com/repolens/backend/internal/infrastructure/websocket"
)

// wsEvent 推送给 WebSocket 订阅者的事件包装
type wsEvent struct {
	Type string       `json:"type"`
	Data events.Event `json:"data"`
}

// StageEventBridge 将流水线事件转发到 WebSocket Hub
// 桌面端订阅 /ws/pipeline 后按会话动画展示各阶段进度
type StageEventBridge struct {
	hub         *websocket.Hub
	logger      *slog.Logger
	unsubscribe func()
}

// NewStageEventBridge 创建阶段事件桥
func NewStageEventBridge(hub *websocket.Hub) *StageEventBridge {
	return &StageEventBridge{
		hub:    hub,
		logger: log.NewModuleLogger("telemetry", "stage_bridge"),
	}
}

// Start 订阅流水线事件
func (b *StageEventBridge) Start(bus events.EventBus) {
	b.unsubscribe = bus.SubscribeMultiple(
		[]events.EventType{events.PipelineStageCompleted, events.PipelineCompleted},
		events.HandlerFunc(b.handleEvent),
	)
	b.logger.Info("Stage event bridge started")
}

// Stop 取消订阅
func (b *StageEventBridge) Stop() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

// handleEvent 转发单个事件到对应会话分组
func (b *StageEventBridge) handleEvent(event events.Event) error {
	var sessionID string
	switch e := event.(type) {
	case *events.PipelineStageEvent:
		sessionID = e.SessionID
	case *events.PipelineCompletedEvent:
		sessionID = e.SessionID
	default:
		return nil
	}

	return b.hub.BroadcastToSession(sessionID, wsEvent{
		Type: string(event.Type()),
		Data: event,
	})
}
