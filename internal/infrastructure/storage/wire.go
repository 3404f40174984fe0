package storage

import "github.com/google/wire"

// ProviderSet Storage 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideDB,                  // 提供数据库连接
	NewEntityRepository,        // 实体仓储
	NewRelationshipRepository,  // 关系仓储
	NewSessionMemoryRepository, // 会话记忆仓储
	NewBackfillQueueRepository, // 向量回填队列仓储
)
