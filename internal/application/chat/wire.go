package chat

import "github.com/google/wire"

// ProviderSet 问答应用层 ProviderSet
var ProviderSet = wire.NewSet(
	NewAIProvider,
	NewChatService,
)
