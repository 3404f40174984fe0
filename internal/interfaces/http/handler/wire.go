package handler

import "github.com/google/wire"

// ProviderSet Handler ProviderSet
var ProviderSet = wire.NewSet(
	NewChatHandler,
	NewRepositoryHandler,
	NewSettingsHandler,
	NewBackfillHandler,
	NewPipelineWSHandler,
)
