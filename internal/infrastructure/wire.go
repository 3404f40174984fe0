package infrastructure

import (
	"github.com/google/wire"

	"github.com/repolens/backend/internal/infrastructure/aiconfig"
	"github.com/repolens/backend/internal/infrastructure/config"
	"github.com/repolens/backend/internal/infrastructure/discovery"
	"github.com/repolens/backend/internal/infrastructure/registry"
	"github.com/repolens/backend/internal/infrastructure/storage"
	"github.com/repolens/backend/internal/infrastructure/telemetry"
	"github.com/repolens/backend/internal/infrastructure/websocket"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	registry.ProviderSet,
	aiconfig.ProviderSet,
	telemetry.ProviderSet,
	websocket.ProviderSet,
	discovery.ProviderSet,
)
