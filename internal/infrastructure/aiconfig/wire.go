package aiconfig

import "github.com/google/wire"

// ProviderSet AI 配置 ProviderSet
var ProviderSet = wire.NewSet(
	NewManager,
	NewConfigWatcher,
)
