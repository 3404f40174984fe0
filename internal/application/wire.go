package application

import (
	"github.com/google/wire"

	"github.com/repolens/backend/internal/application/backfill"
	"github.com/repolens/backend/internal/application/chat"
	"github.com/repolens/backend/internal/application/ingest"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	chat.ProviderSet,
	ingest.ProviderSet,
	backfill.ProviderSet,
)
