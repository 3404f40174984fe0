package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/repolens/backend/internal/domain/knowledge"
)

// 确保 BackfillQueueRepositoryImpl 实现了 knowledge.BackfillQueueRepository 接口
var _ knowledge.BackfillQueueRepository = (*BackfillQueueRepositoryImpl)(nil)

// BackfillQueueRepositoryImpl 向量回填队列仓库实现
type BackfillQueueRepositoryImpl struct {
	db *sql.DB
}

// NewBackfillQueueRepository 创建向量回填队列仓库实例
func NewBackfillQueueRepository(db *sql.DB) knowledge.BackfillQueueRepository {
	return &BackfillQueueRepositoryImpl{db: db}
}

// Enqueue 入队任务；已存在的任务仅在 failed 状态下重置为 pending
// completed/processing/pending 的任务保持原状，避免重复回填
func (r *BackfillQueueRepositoryImpl) Enqueue(_ context.Context, task *knowledge.BackfillTask) error {
	query := `
		INSERT INTO embedding_backfill_queue (
			repository_id, entity_id, priority, status, retry_count, max_retries,
			created_at, next_retry_at, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repository_id, entity_id) DO UPDATE SET
			status = 'pending',
			retry_count = 0,
			next_retry_at = 0,
			last_error = ''
		WHERE embedding_backfill_queue.status = 'failed'`

	_, err := r.db.Exec(
		query,
		task.RepositoryID,
		task.EntityID,
		task.Priority,
		task.Status,
		task.RetryCount,
		task.MaxRetries,
		task.CreatedAt,
		task.NextRetryAt,
		task.LastError,
	)

	return err
}

// EnqueueBatch 批量入队
// reset 为 true 时无条件重置为 pending（快照重建后旧向量已过期）
func (r *BackfillQueueRepositoryImpl) EnqueueBatch(ctx context.Context, tasks []*knowledge.BackfillTask, reset bool) error {
	if len(tasks) == 0 {
		return nil
	}

	if !reset {
		for _, task := range tasks {
			if err := r.Enqueue(ctx, task); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO embedding_backfill_queue (
			repository_id, entity_id, priority, status, retry_count, max_retries,
			created_at, next_retry_at, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, task := range tasks {
		_, err := stmt.Exec(
			task.RepositoryID,
			task.EntityID,
			task.Priority,
			task.Status,
			task.RetryCount,
			task.MaxRetries,
			task.CreatedAt,
			task.NextRetryAt,
			task.LastError,
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue task for entity %s: %w", task.EntityID, err)
		}
	}

	return tx.Commit()
}

// DequeueTasks 取出待处理任务（按优先级和创建时间排序）
func (r *BackfillQueueRepositoryImpl) DequeueTasks(_ context.Context, limit int) ([]*knowledge.BackfillTask, error) {
	now := time.Now().Unix()

	// 状态为 pending 且重试时间为空或已到期
	query := `
		SELECT repository_id, entity_id, priority, status, retry_count, max_retries,
		       created_at, next_retry_at, last_error
		FROM embedding_backfill_queue
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT ?`

	rows, err := r.db.Query(query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*knowledge.BackfillTask
	for rows.Next() {
		var task knowledge.BackfillTask
		var nextRetryAt sql.NullInt64
		var lastError sql.NullString

		err := rows.Scan(
			&task.RepositoryID,
			&task.EntityID,
			&task.Priority,
			&task.Status,
			&task.RetryCount,
			&task.MaxRetries,
			&task.CreatedAt,
			&nextRetryAt,
			&lastError,
		)
		if err != nil {
			return nil, err
		}

		if nextRetryAt.Valid {
			task.NextRetryAt = nextRetryAt.Int64
		}
		if lastError.Valid {
			task.LastError = lastError.String
		}

		results = append(results, &task)
	}

	return results, rows.Err()
}

// UpdateTask 更新任务状态
func (r *BackfillQueueRepositoryImpl) UpdateTask(_ context.Context, task *knowledge.BackfillTask) error {
	query := `
		UPDATE embedding_backfill_queue
		SET priority = ?, status = ?, retry_count = ?, max_retries = ?,
		    next_retry_at = ?, last_error = ?
		WHERE repository_id = ? AND entity_id = ?`

	_, err := r.db.Exec(
		query,
		task.Priority,
		task.Status,
		task.RetryCount,
		task.MaxRetries,
		task.NextRetryAt,
		task.LastError,
		task.RepositoryID,
		task.EntityID,
	)

	return err
}

// GetStats 获取队列统计
func (r *BackfillQueueRepositoryImpl) GetStats(_ context.Context) (*knowledge.BackfillStats, error) {
	query := `
		SELECT
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) AS pending,
			SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END) AS processing,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS completed,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed
		FROM embedding_backfill_queue`

	var pending, processing, completed, failed sql.NullInt64
	err := r.db.QueryRow(query).Scan(&pending, &processing, &completed, &failed)
	if err != nil {
		return nil, fmt.Errorf("failed to get backfill stats: %w", err)
	}

	return &knowledge.BackfillStats{
		PendingCount:    int(pending.Int64),
		ProcessingCount: int(processing.Int64),
		CompletedCount:  int(completed.Int64),
		FailedCount:     int(failed.Int64),
	}, nil
}

// ResetFailed 将所有 failed 任务重置为 pending，返回重置数量
func (r *BackfillQueueRepositoryImpl) ResetFailed(_ context.Context) (int64, error) {
	result, err := r.db.Exec(`
		UPDATE embedding_backfill_queue
		SET status = 'pending', retry_count = 0, next_retry_at = 0, last_error = ''
		WHERE status = 'failed'`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed tasks: %w", err)
	}

	return result.RowsAffected()
}

// DeleteByRepository 删除仓库的全部任务
func (r *BackfillQueueRepositoryImpl) DeleteByRepository(_ context.Context, repositoryID string) error {
	_, err := r.db.Exec("DELETE FROM embedding_backfill_queue WHERE repository_id = ?", repositoryID)
	if err != nil {
		return fmt.Errorf("failed to delete backfill tasks: %w", err)
	}

	return nil
}
