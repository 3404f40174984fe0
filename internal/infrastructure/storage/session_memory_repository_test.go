package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionMemoryRepository_UpsertIncrementsWeight 跨轮次复用实体时权重从 1 递增到 2
func TestSessionMemoryRepository_UpsertIncrementsWeight(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSessionMemoryRepository(db)
	ctx := context.Background()

	// 第一轮：实体首次使用
	require.NoError(t, repo.Upsert(ctx, "session-1", "repo-1", []string{"entity-1"}))

	memories, err := repo.Recall(ctx, "session-1", "repo-1", 30)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, 1, memories[0].Weight)

	// 第二轮：同一实体再次使用
	require.NoError(t, repo.Upsert(ctx, "session-1", "repo-1", []string{"entity-1"}))

	memories, err = repo.Recall(ctx, "session-1", "repo-1", 30)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, 2, memories[0].Weight)
}

func TestSessionMemoryRepository_RecallIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSessionMemoryRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "session-1", "repo-1", []string{"e1", "e2"}))
	require.NoError(t, repo.Upsert(ctx, "session-2", "repo-1", []string{"e3"}))
	require.NoError(t, repo.Upsert(ctx, "session-1", "repo-2", []string{"e4"}))

	memories, err := repo.Recall(ctx, "session-1", "repo-1", 30)
	require.NoError(t, err)
	assert.Len(t, memories, 2, "会话与仓库维度都应隔离")
}

func TestSessionMemoryRepository_RecallLimit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSessionMemoryRepository(db)
	ctx := context.Background()

	ids := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		ids = append(ids, string(rune('a'+i%26))+string(rune('0'+i/26)))
	}
	require.NoError(t, repo.Upsert(ctx, "session-1", "repo-1", ids))

	memories, err := repo.Recall(ctx, "session-1", "repo-1", 30)
	require.NoError(t, err)
	assert.Len(t, memories, 30)
}

func TestSessionMemoryRepository_DeleteByRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSessionMemoryRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "session-1", "repo-1", []string{"e1"}))
	require.NoError(t, repo.Upsert(ctx, "session-1", "repo-2", []string{"e2"}))

	require.NoError(t, repo.DeleteByRepository(ctx, "repo-1"))

	memories, err := repo.Recall(ctx, "session-1", "repo-1", 30)
	require.NoError(t, err)
	assert.Empty(t, memories)

	memories, err = repo.Recall(ctx, "session-1", "repo-2", 30)
	require.NoError(t, err)
	assert.Len(t, memories, 1)
}
