package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/repolens/backend/internal/domain/knowledge"
)

// 确保 RelationshipRepositoryImpl 实现了 knowledge.RelationshipRepository 接口
var _ knowledge.RelationshipRepository = (*RelationshipRepositoryImpl)(nil)

// RelationshipRepositoryImpl 关系仓库实现
type RelationshipRepositoryImpl struct {
	db *sql.DB
}

// NewRelationshipRepository 创建关系仓库实例
func NewRelationshipRepository(db *sql.DB) knowledge.RelationshipRepository {
	return &RelationshipRepositoryImpl{db: db}
}

// SaveBatch 批量保存关系（重复边忽略）
func (r *RelationshipRepositoryImpl) SaveBatch(_ context.Context, relationships []*knowledge.Relationship) error {
	if len(relationships) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO repo_relationships (repository_id, source, target, kind)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rel := range relationships {
		_, err := stmt.Exec(rel.RepositoryID, rel.Source, rel.Target, rel.Kind)
		if err != nil {
			return fmt.Errorf("failed to save relationship %s -> %s: %w", rel.Source, rel.Target, err)
		}
	}

	return tx.Commit()
}

// GetBySourceNames 获取以指定名称为源的出边
func (r *RelationshipRepositoryImpl) GetBySourceNames(_ context.Context, repositoryID string, names []string, limit int) ([]*knowledge.Relationship, error) {
	return r.queryByNames(repositoryID, "source", names, limit)
}

// GetByTargetNames 获取以指定名称为目标的入边
func (r *RelationshipRepositoryImpl) GetByTargetNames(_ context.Context, repositoryID string, names []string, limit int) ([]*knowledge.Relationship, error) {
	return r.queryByNames(repositoryID, "target", names, limit)
}

// queryByNames 按端点名称列表查询边
func (r *RelationshipRepositoryImpl) queryByNames(repositoryID, column string, names []string, limit int) ([]*knowledge.Relationship, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(names))
	args := make([]interface{}, 0, len(names)+2)
	args = append(args, repositoryID)
	for i, name := range names {
		placeholders[i] = "?"
		args = append(args, name)
	}
	args = append(args, limit)

	// column 只会是 "source" 或 "target"，不存在注入风险
	query := fmt.Sprintf(`
		SELECT id, repository_id, source, target, kind
		FROM repo_relationships
		WHERE repository_id = ? AND %s IN (%s)
		ORDER BY source ASC, target ASC
		LIMIT ?`, column, strings.Join(placeholders, ","))

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var results []*knowledge.Relationship
	for rows.Next() {
		var rel knowledge.Relationship
		err := rows.Scan(&rel.ID, &rel.RepositoryID, &rel.Source, &rel.Target, &rel.Kind)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		results = append(results, &rel)
	}

	return results, rows.Err()
}

// CountByRepository 统计仓库内关系数量
func (r *RelationshipRepositoryImpl) CountByRepository(_ context.Context, repositoryID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM repo_relationships WHERE repository_id = ?",
		repositoryID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count relationships: %w", err)
	}

	return count, nil
}

// DeleteByRepository 删除仓库的全部关系
func (r *RelationshipRepositoryImpl) DeleteByRepository(_ context.Context, repositoryID string) error {
	_, err := r.db.Exec("DELETE FROM repo_relationships WHERE repository_id = ?", repositoryID)
	if err != nil {
		return fmt.Errorf("failed to delete relationships: %w", err)
	}

	return nil
}
