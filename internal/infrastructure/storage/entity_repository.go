package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/repolens/backend/internal/domain/knowledge"
)

// 确保 EntityRepositoryImpl 实现了 knowledge.EntityRepository 接口
var _ knowledge.EntityRepository = (*EntityRepositoryImpl)(nil)

// EntityRepositoryImpl 实体仓库实现
type EntityRepositoryImpl struct {
	db *sql.DB
}

// NewEntityRepository 创建实体仓库实例
func NewEntityRepository(db *sql.DB) knowledge.EntityRepository {
	return &EntityRepositoryImpl{db: db}
}

// entityColumns SELECT 列顺序，与 scanEntity 保持一致
const entityColumns = "id, repository_id, name, kind, file_path, domain, metadata, created_at, updated_at"

// SaveBatch 批量保存实体（按 repository_id+name+file_path 幂等更新）
func (r *EntityRepositoryImpl) SaveBatch(_ context.Context, entities []*knowledge.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO repo_entities (
			id, repository_id, name, kind, file_path, domain, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repository_id, name, file_path) DO UPDATE SET
			kind = excluded.kind,
			domain = excluded.domain,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, entity := range entities {
		metadata, err := json.Marshal(entity.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for entity %s: %w", entity.Name, err)
		}

		createdAt := entity.CreatedAt.Unix()
		if entity.CreatedAt.IsZero() {
			createdAt = now
		}

		_, err = stmt.Exec(
			entity.ID,
			entity.RepositoryID,
			entity.Name,
			entity.Kind,
			entity.FilePath,
			entity.Domain,
			string(metadata),
			createdAt,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to save entity %s: %w", entity.Name, err)
		}
	}

	return tx.Commit()
}

// GetByID 根据 ID 获取实体
func (r *EntityRepositoryImpl) GetByID(_ context.Context, id string) (*knowledge.Entity, error) {
	query := fmt.Sprintf("SELECT %s FROM repo_entities WHERE id = ?", entityColumns)

	entity, err := scanEntityRow(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity by id: %w", err)
	}

	return entity, nil
}

// GetByIDs 批量获取实体
func (r *EntityRepositoryImpl) GetByIDs(_ context.Context, ids []string) ([]*knowledge.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		"SELECT %s FROM repo_entities WHERE id IN (%s) ORDER BY name ASC",
		entityColumns, strings.Join(placeholders, ","),
	)

	return r.queryEntities(query, args...)
}

// GetByNames 根据名称批量获取仓库内的实体
func (r *EntityRepositoryImpl) GetByNames(_ context.Context, repositoryID string, names []string) ([]*knowledge.Entity, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(names))
	args := make([]interface{}, 0, len(names)+1)
	args = append(args, repositoryID)
	for i, name := range names {
		placeholders[i] = "?"
		args = append(args, name)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM repo_entities WHERE repository_id = ? AND name IN (%s) ORDER BY name ASC",
		entityColumns, strings.Join(placeholders, ","),
	)

	return r.queryEntities(query, args...)
}

// ListByRepository 列出仓库内的实体（按名称排序，带上限）
func (r *EntityRepositoryImpl) ListByRepository(_ context.Context, repositoryID string, limit int) ([]*knowledge.Entity, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM repo_entities WHERE repository_id = ? ORDER BY name ASC LIMIT ?",
		entityColumns,
	)

	return r.queryEntities(query, repositoryID, limit)
}

// SearchByKeyword 名称或文件路径子串匹配检索（大小写不敏感）
func (r *EntityRepositoryImpl) SearchByKeyword(_ context.Context, repositoryID, keyword string, limit int) ([]*knowledge.Entity, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM repo_entities WHERE repository_id = ? AND (LOWER(name) LIKE LOWER(?) OR LOWER(file_path) LIKE LOWER(?)) ORDER BY name ASC LIMIT ?",
		entityColumns,
	)

	pattern := "%" + keyword + "%"
	return r.queryEntities(query, repositoryID, pattern, pattern, limit)
}

// ListByDomain 列出指定业务域的实体（按名称排序，带上限）
func (r *EntityRepositoryImpl) ListByDomain(_ context.Context, repositoryID, domain string, limit int) ([]*knowledge.Entity, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM repo_entities WHERE repository_id = ? AND domain = ? ORDER BY name ASC LIMIT ?",
		entityColumns,
	)

	return r.queryEntities(query, repositoryID, domain, limit)
}

// ListDomains 列出仓库内去重后的业务域
func (r *EntityRepositoryImpl) ListDomains(_ context.Context, repositoryID string) ([]string, error) {
	query := `
		SELECT DISTINCT domain FROM repo_entities
		WHERE repository_id = ? AND domain != ''
		ORDER BY domain ASC`

	rows, err := r.db.Query(query, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, domain)
	}

	return domains, rows.Err()
}

// CountByRepository 统计仓库内实体数量
func (r *EntityRepositoryImpl) CountByRepository(_ context.Context, repositoryID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM repo_entities WHERE repository_id = ?",
		repositoryID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}

	return count, nil
}

// DeleteByRepository 删除仓库的全部实体
func (r *EntityRepositoryImpl) DeleteByRepository(_ context.Context, repositoryID string) error {
	_, err := r.db.Exec("DELETE FROM repo_entities WHERE repository_id = ?", repositoryID)
	if err != nil {
		return fmt.Errorf("failed to delete entities: %w", err)
	}

	return nil
}

// queryEntities 执行查询并扫描实体列表
func (r *EntityRepositoryImpl) queryEntities(query string, args ...interface{}) ([]*knowledge.Entity, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var results []*knowledge.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, entity)
	}

	return results, rows.Err()
}

// rowScanner 兼容 *sql.Row 和 *sql.Rows 的扫描接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntity 从查询结果扫描单个实体
func scanEntity(rows *sql.Rows) (*knowledge.Entity, error) {
	entity, err := scanEntityRow(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	return entity, nil
}

// scanEntityRow 按 entityColumns 的顺序扫描一行
func scanEntityRow(row rowScanner) (*knowledge.Entity, error) {
	var entity knowledge.Entity
	var metadata string
	var createdAt, updatedAt int64

	err := row.Scan(
		&entity.ID,
		&entity.RepositoryID,
		&entity.Name,
		&entity.Kind,
		&entity.FilePath,
		&entity.Domain,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &entity.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for entity %s: %w", entity.Name, err)
		}
	}

	entity.CreatedAt = time.Unix(createdAt, 0)
	entity.UpdatedAt = time.Unix(updatedAt, 0)

	return &entity, nil
}
