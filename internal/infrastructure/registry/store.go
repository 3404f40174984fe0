package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/config"
	"github.com/repolens/backend/internal/infrastructure/log"
)

// registryFileName 注册表文件名（位于数据目录下）
const registryFileName = "repositories.yaml"

// registryFile YAML 文件结构
type registryFile struct {
	Repositories []*knowledge.Repository `yaml:"repositories"`
}

// Store 基于 YAML 文件的仓库注册表
type Store struct {
	configPath   string
	logger       *slog.Logger
	mu           sync.RWMutex
	repositories map[string]*knowledge.Repository
}

// NewStore 创建仓库注册表（从指定路径加载）
func NewStore(configPath string) (*Store, error) {
	s := &Store{
		configPath:   configPath,
		logger:       log.NewModuleLogger("registry", "store"),
		repositories: make(map[string]*knowledge.Repository),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load repository registry: %w", err)
	}

	return s, nil
}

// ProvideStore 使用默认数据目录创建注册表
func ProvideStore() (*Store, error) {
	return NewStore(filepath.Join(config.GetDataDir(), registryFileName))
}

// load 从文件加载注册表
func (s *Store) load() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在时视为空注册表
			return nil
		}
		return fmt.Errorf("failed to read registry file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse registry file: %w", err)
	}

	for _, repo := range file.Repositories {
		s.repositories[repo.ID] = repo
	}

	s.logger.Debug("repository registry loaded", "count", len(s.repositories))
	return nil
}

// save 将注册表写回文件（调用方需持有写锁）
func (s *Store) save() error {
	file := registryFile{
		Repositories: make([]*knowledge.Repository, 0, len(s.repositories)),
	}
	for _, repo := range s.repositories {
		file.Repositories = append(file.Repositories, repo)
	}
	sort.Slice(file.Repositories, func(i, j int) bool {
		return file.Repositories[i].Name < file.Repositories[j].Name
	})

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	if err := os.WriteFile(s.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}

	return nil
}

// Register 注册或更新仓库
func (s *Store) Register(_ context.Context, repo *knowledge.Repository) error {
	if repo == nil {
		return fmt.Errorf("repository is nil")
	}
	if repo.RemoteURL == "" && repo.LocalPath == "" {
		return fmt.Errorf("repository remote URL or local path is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	repo.RemoteURL = normalizeRemoteURL(repo.RemoteURL)

	if repo.ID == "" {
		repo.ID = generateRepositoryID(repo)
	}
	if repo.Name == "" {
		repo.Name = deriveRepositoryName(repo)
	}

	now := time.Now()
	if existing, ok := s.repositories[repo.ID]; ok {
		repo.CreatedAt = existing.CreatedAt
		// 重新注册不丢失既有快照统计
		if repo.EntityCount == 0 && repo.RelationshipCount == 0 {
			repo.EntityCount = existing.EntityCount
			repo.RelationshipCount = existing.RelationshipCount
			repo.LastIngestedAt = existing.LastIngestedAt
		}
	} else {
		repo.CreatedAt = now
	}
	repo.UpdatedAt = now

	s.repositories[repo.ID] = repo

	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}

	s.logger.Info("repository registered", "repository_id", repo.ID, "name", repo.Name)
	return nil
}

// Get 根据 ID 获取仓库
func (s *Store) Get(_ context.Context, id string) (*knowledge.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repo, ok := s.repositories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", knowledge.ErrRepositoryNotFound, id)
	}
	return repo, nil
}

// List 获取全部仓库（按名称排序）
func (s *Store) List(_ context.Context) ([]*knowledge.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repos := make([]*knowledge.Repository, 0, len(s.repositories))
	for _, repo := range s.repositories {
		repos = append(repos, repo)
	}
	sort.Slice(repos, func(i, j int) bool {
		return repos[i].Name < repos[j].Name
	})
	return repos, nil
}

// Remove 移除仓库
func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.repositories[id]; !ok {
		return fmt.Errorf("%w: %s", knowledge.ErrRepositoryNotFound, id)
	}

	delete(s.repositories, id)

	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}

	s.logger.Info("repository removed", "repository_id", id)
	return nil
}

// UpdateSnapshotStats 更新快照统计并刷新摄取时间
func (s *Store) UpdateSnapshotStats(_ context.Context, id string, entityCount, relationshipCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repositories[id]
	if !ok {
		return fmt.Errorf("%w: %s", knowledge.ErrRepositoryNotFound, id)
	}

	now := time.Now()
	repo.EntityCount = entityCount
	repo.RelationshipCount = relationshipCount
	repo.LastIngestedAt = now
	repo.UpdatedAt = now

	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}

	return nil
}

// generateRepositoryID 根据规范化 URL（或本地路径）生成短 hash ID
func generateRepositoryID(repo *knowledge.Repository) string {
	source := repo.RemoteURL
	if source == "" {
		source = strings.ToLower(repo.LocalPath)
	}
	hash := sha256.Sum256([]byte(source))
	return hex.EncodeToString(hash[:])[:8]
}

// deriveRepositoryName 从 URL 或本地路径推导仓库名称
func deriveRepositoryName(repo *knowledge.Repository) string {
	if repo.RemoteURL != "" {
		parts := strings.Split(repo.RemoteURL, "/")
		return parts[len(parts)-1]
	}
	return filepath.Base(repo.LocalPath)
}

// normalizeRemoteURL 规范化远程 URL 以便同一仓库的不同写法映射到同一 ID
func normalizeRemoteURL(url string) string {
	if url == "" {
		return ""
	}

	url = strings.ToLower(strings.TrimSpace(url))
	url = strings.TrimSuffix(url, ".git")

	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "ssh://")

	// git@github.com:user/repo -> github.com/user/repo
	if strings.HasPrefix(url, "git@") {
		url = strings.TrimPrefix(url, "git@")
		url = strings.Replace(url, ":", "/", 1)
	}

	return url
}

var _ knowledge.RepositoryRegistry = (*Store)(nil)
