package ingest

import "github.com/google/wire"

// ProviderSet 快照摄取应用层 ProviderSet
var ProviderSet = wire.NewSet(
	NewSnapshotService,
)
