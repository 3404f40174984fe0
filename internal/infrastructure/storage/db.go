package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/repolens/backend/internal/infrastructure/config"
	_ "modernc.org/sqlite"
)

// GetDBPath 获取 repolens 数据库路径
// Windows: %USERPROFILE%\.repolens\repolens.db
// macOS/Linux: ~/.repolens/repolens.db
func GetDBPath() (string, error) {
	return filepath.Join(config.GetDataDir(), "repolens.db"), nil
}

// OpenDB 打开数据库连接
func OpenDB(dbPath string) (*sql.DB, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ProvideDB 提供已初始化的数据库连接（wire provider）
func ProvideDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		p, err := GetDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get database path: %w", err)
		}
		dbPath = p
	}

	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init database schema: %w", err)
	}

	return db, nil
}

// InitSchema 初始化数据库表结构
func InitSchema(db *sql.DB) error {
	// 实体表：名称+文件路径在仓库内唯一，ID 为确定性 UUID
	createEntitiesSQL := `
	CREATE TABLE IF NOT EXISTS repo_entities (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		file_path TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(repository_id, name, file_path)
	);`

	if _, err := db.Exec(createEntitiesSQL); err != nil {
		return fmt.Errorf("failed to create repo_entities table: %w", err)
	}

	createEntityIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_entities_repo_name ON repo_entities(repository_id, name);
	CREATE INDEX IF NOT EXISTS idx_entities_repo_domain ON repo_entities(repository_id, domain);`

	if _, err := db.Exec(createEntityIndexSQL); err != nil {
		return fmt.Errorf("failed to create repo_entities indexes: %w", err)
	}

	// 关系表：边以实体名称为端点（快照的原生键）
	createRelationshipsSQL := `
	CREATE TABLE IF NOT EXISTS repo_relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repository_id TEXT NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		UNIQUE(repository_id, source, target, kind)
	);`

	if _, err := db.Exec(createRelationshipsSQL); err != nil {
		return fmt.Errorf("failed to create repo_relationships table: %w", err)
	}

	createRelationshipIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_relationships_repo_source ON repo_relationships(repository_id, source);
	CREATE INDEX IF NOT EXISTS idx_relationships_repo_target ON repo_relationships(repository_id, target);`

	if _, err := db.Exec(createRelationshipIndexSQL); err != nil {
		return fmt.Errorf("failed to create repo_relationships indexes: %w", err)
	}

	// 会话记忆表：同一轮次内重复使用实体时权重累加
	createSessionMemorySQL := `
	CREATE TABLE IF NOT EXISTS chat_session_memory (
		session_id TEXT NOT NULL,
		repository_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		weight INTEGER NOT NULL DEFAULT 1,
		last_used_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, repository_id, entity_id)
	);`

	if _, err := db.Exec(createSessionMemorySQL); err != nil {
		return fmt.Errorf("failed to create chat_session_memory table: %w", err)
	}

	createSessionMemoryIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_session_memory_recency ON chat_session_memory(session_id, repository_id, last_used_at);`

	if _, err := db.Exec(createSessionMemoryIndexSQL); err != nil {
		return fmt.Errorf("failed to create chat_session_memory index: %w", err)
	}

	// 向量回填队列表
	createBackfillQueueSQL := `
	CREATE TABLE IF NOT EXISTS embedding_backfill_queue (
		repository_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		created_at INTEGER NOT NULL,
		next_retry_at INTEGER,
		last_error TEXT,
		PRIMARY KEY (repository_id, entity_id)
	);`

	if _, err := db.Exec(createBackfillQueueSQL); err != nil {
		return fmt.Errorf("failed to create embedding_backfill_queue table: %w", err)
	}

	createBackfillIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_backfill_status ON embedding_backfill_queue(status, next_retry_at);`

	if _, err := db.Exec(createBackfillIndexSQL); err != nil {
		return fmt.Errorf("failed to create embedding_backfill_queue index: %w", err)
	}

	return nil
}
