package backfill

import (
	"github.com/google/wire"

	"github.com/repolens/backend/internal/application/chat"
)

// ProviderSet 向量回填应用层 ProviderSet
var ProviderSet = wire.NewSet(
	NewPool,
	// 接口绑定：backfill.ClientProvider -> chat.AIProvider
	wire.Bind(
		new(ClientProvider),
		new(*chat.AIProvider),
	),
)
