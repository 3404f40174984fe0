package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/repolens/backend/internal/domain/chat"
)

// 确保 SessionMemoryRepositoryImpl 实现了 chat.SessionMemoryRepository 接口
var _ chat.SessionMemoryRepository = (*SessionMemoryRepositoryImpl)(nil)

// SessionMemoryRepositoryImpl 会话记忆仓库实现
type SessionMemoryRepositoryImpl struct {
	db *sql.DB
}

// NewSessionMemoryRepository 创建会话记忆仓库实例
func NewSessionMemoryRepository(db *sql.DB) chat.SessionMemoryRepository {
	return &SessionMemoryRepositoryImpl{db: db}
}

// Recall 取回会话最近使用的记忆条目（按 last_used_at 倒序，带上限）
func (r *SessionMemoryRepositoryImpl) Recall(_ context.Context, sessionID, repositoryID string, limit int) ([]*chat.SessionMemory, error) {
	query := `
		SELECT session_id, repository_id, entity_id, weight, last_used_at
		FROM chat_session_memory
		WHERE session_id = ? AND repository_id = ?
		ORDER BY last_used_at DESC, entity_id ASC
		LIMIT ?`

	rows, err := r.db.Query(query, sessionID, repositoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to recall session memory: %w", err)
	}
	defer rows.Close()

	var results []*chat.SessionMemory
	for rows.Next() {
		var m chat.SessionMemory
		err := rows.Scan(&m.SessionID, &m.RepositoryID, &m.EntityID, &m.Weight, &m.LastUsedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session memory: %w", err)
		}
		results = append(results, &m)
	}

	return results, rows.Err()
}

// Upsert 记录实体使用：不存在则以权重 1 插入，存在则权重 +1 并刷新时间
func (r *SessionMemoryRepositoryImpl) Upsert(_ context.Context, sessionID, repositoryID string, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO chat_session_memory (session_id, repository_id, entity_id, weight, last_used_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(session_id, repository_id, entity_id) DO UPDATE SET
			weight = weight + 1,
			last_used_at = excluded.last_used_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, entityID := range entityIDs {
		if _, err := stmt.Exec(sessionID, repositoryID, entityID, now); err != nil {
			return fmt.Errorf("failed to upsert session memory for entity %s: %w", entityID, err)
		}
	}

	return tx.Commit()
}

// DeleteByRepository 删除仓库的全部会话记忆
func (r *SessionMemoryRepositoryImpl) DeleteByRepository(_ context.Context, repositoryID string) error {
	_, err := r.db.Exec("DELETE FROM chat_session_memory WHERE repository_id = ?", repositoryID)
	if err != nil {
		return fmt.Errorf("failed to delete session memory: %w", err)
	}

	return nil
}
