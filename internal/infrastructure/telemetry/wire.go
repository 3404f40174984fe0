package telemetry

import "github.com/google/wire"

// ProviderSet 事件遥测 ProviderSet
var ProviderSet = wire.NewSet(
	NewEventBus,
	NewStageEventBridge,
)
