package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// setupTestDB 创建临时测试数据库并初始化表结构
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "repolens_test_*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)

	// 启用 WAL 模式
	_, err = db.Exec("PRAGMA journal_mode=WAL;")
	require.NoError(t, err)

	require.NoError(t, InitSchema(db))

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

// testEntity 构造测试实体
func testEntity(repoID, name, filePath, domain string) *knowledge.Entity {
	return &knowledge.Entity{
		ID:           knowledge.NewEntityID(repoID, filePath, name),
		RepositoryID: repoID,
		Name:         name,
		Kind:         "function",
		FilePath:     filePath,
		Domain:       domain,
	}
}

func TestEntityRepository_SaveBatchAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEntityRepository(db)
	ctx := context.Background()

	entity := testEntity("repo-1", "GoogleLoginHandler", "src/auth/login.ts", "auth")
	entity.Metadata = knowledge.EntityMetadata{
		Tags:     []string{"oauth"},
		Keywords: []string{"signin"},
		Snippet:  "handles the Google OAuth callback",
	}

	err := repo.SaveBatch(ctx, []*knowledge.Entity{entity})
	require.NoError(t, err)

	found, err := repo.GetByID(ctx, entity.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "GoogleLoginHandler", found.Name)
	assert.Equal(t, "auth", found.Domain)
	assert.Equal(t, []string{"oauth"}, found.Metadata.Tags)
	assert.Equal(t, "handles the Google OAuth callback", found.Metadata.Snippet)
	assert.False(t, found.CreatedAt.IsZero())
}

// TestEntityRepository_SaveBatchIdempotent 重复保存同一实体应原地更新而非新增
func TestEntityRepository_SaveBatchIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEntityRepository(db)
	ctx := context.Background()

	entity := testEntity("repo-1", "SessionStore", "src/auth/session.ts", "auth")
	require.NoError(t, repo.SaveBatch(ctx, []*knowledge.Entity{entity}))

	// 同一键重复保存，kind 变化
	updated := testEntity("repo-1", "SessionStore", "src/auth/session.ts", "auth")
	updated.Kind = "class"
	require.NoError(t, repo.SaveBatch(ctx, []*knowledge.Entity{updated}))

	count, err := repo.CountByRepository(ctx, "repo-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	found, err := repo.GetByID(ctx, entity.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "class", found.Kind)
}

func TestEntityRepository_GetByID_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEntityRepository(db)

	found, err := repo.GetByID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, found, "不存在的实体应返回 nil 而非错误")
}

func TestEntityRepository_SearchByKeyword(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEntityRepository(db)
	ctx := context.Background()

	entities := []*knowledge.Entity{
		testEntity("repo-1", "GoogleLoginHandler", "src/auth/login.ts", "auth"),
		testEntity("repo-1", "LoginForm", "src/ui/login_form.tsx", "auth"),
		testEntity("repo-1", "SearchService", "src/search/service.ts", "search"),
		testEntity("repo-2", "LoginButton", "src/ui/button.tsx", "auth"),
	}
	require.NoError(t, repo.SaveBatch(ctx, entities))

	// 大小写不敏感的子串匹配，且只命中指定仓库
	results, err := repo.SearchByKeyword(ctx, "repo-1", "login", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "GoogleLoginHandler", results[0].Name, "结果应按名称排序")
	assert.Equal(t, "LoginForm", results[1].Name)

	// LIMIT 生效
	results, err = repo.SearchByKeyword(ctx, "repo-1", "login", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// 文件路径也参与匹配：名称不含 auth 但路径含 src/auth/
	results, err = repo.SearchByKeyword(ctx, "repo-1", "auth", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "GoogleLoginHandler", results[0].Name)
}

func TestEntityRepository_GetByNames(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEntityRepository(db)
	ctx := context.Background()

	entities := []*knowledge.Entity{
		testEntity("repo-1", "A", "a.ts", ""),
		testEntity("repo-1", "B", "b.ts", ""),
		testEntity("repo-1", "C", "c.ts", ""),
	}
	require.NoError(t, repo.SaveBatch(ctx, entities))

	results, err := repo.GetByNames(ctx, "repo-1", []string{"C", "A", "missing"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Name)
	assert.Equal(t, "C", results[1].Name)

	// 空名称列表直接返回空
	results, err = repo.GetByNames(ctx, "repo-1", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEntityRepository_ListDomains(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEntityRepository(db)
	ctx := context.Background()

	entities := []*knowledge.Entity{
		testEntity("repo-1", "A", "a.ts", "auth"),
		testEntity("repo-1", "B", "b.ts", "search"),
		testEntity("repo-1", "C", "c.ts", "auth"),
		testEntity("repo-1", "D", "d.ts", ""),
	}
	require.NoError(t, repo.SaveBatch(ctx, entities))

	domains, err := repo.ListDomains(ctx, "repo-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "search"}, domains, "应去重、排除空值并排序")
}

func TestEntityRepository_ListByDomain(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEntityRepository(db)
	ctx := context.Background()

	entities := []*knowledge.Entity{
		testEntity("repo-1", "B", "b.ts", "auth"),
		testEntity("repo-1", "A", "a.ts", "auth"),
		testEntity("repo-1", "C", "c.ts", "search"),
	}
	require.NoError(t, repo.SaveBatch(ctx, entities))

	results, err := repo.ListByDomain(ctx, "repo-1", "auth", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Name)
	assert.Equal(t, "B", results[1].Name)
}

func TestEntityRepository_DeleteByRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEntityRepository(db)
	ctx := context.Background()

	entities := []*knowledge.Entity{
		testEntity("repo-1", "A", "a.ts", ""),
		testEntity("repo-2", "B", "b.ts", ""),
	}
	require.NoError(t, repo.SaveBatch(ctx, entities))

	require.NoError(t, repo.DeleteByRepository(ctx, "repo-1"))

	count, err := repo.CountByRepository(ctx, "repo-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// 其他仓库不受影响
	count, err = repo.CountByRepository(ctx, "repo-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
