package registry

import (
	"github.com/google/wire"

	"github.com/repolens/backend/internal/domain/knowledge"
)

// ProviderSet 仓库注册表 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideStore,
	// 接口绑定：knowledge.RepositoryRegistry -> registry.Store
	wire.Bind(
		new(knowledge.RepositoryRegistry),
		new(*Store),
	),
)
