package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domainChat "github.com/repolens/backend/internal/domain/chat"
	"github.com/repolens/backend/internal/domain/knowledge"
)

// fakeEntityRepo 内存实现 knowledge.EntityRepository，带调用计数
type fakeEntityRepo struct {
	entities []*knowledge.Entity

	searchCalls  int
	domainCalls  int
	listCalls    int
	namesCalls   int
	searchErr    error
	listErr      error
	domainsErr   error
	listByDomErr error
}

func (f *fakeEntityRepo) SaveBatch(_ context.Context, entities []*knowledge.Entity) error {
	f.entities = append(f.entities, entities...)
	return nil
}

func (f *fakeEntityRepo) GetByID(_ context.Context, id string) (*knowledge.Entity, error) {
	for _, entity := range f.entities {
		if entity.ID == id {
			return entity, nil
		}
	}
	return nil, nil
}

func (f *fakeEntityRepo) GetByIDs(_ context.Context, ids []string) ([]*knowledge.Entity, error) {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	var result []*knowledge.Entity
	for _, entity := range f.entities {
		if idSet[entity.ID] {
			result = append(result, entity)
		}
	}
	return result, nil
}

func (f *fakeEntityRepo) GetByNames(_ context.Context, repositoryID string, names []string) ([]*knowledge.Entity, error) {
	f.namesCalls++
	nameSet := make(map[string]bool, len(names))
	for _, name := range names {
		nameSet[name] = true
	}
	var result []*knowledge.Entity
	for _, entity := range f.entities {
		if entity.RepositoryID == repositoryID && nameSet[entity.Name] {
			result = append(result, entity)
		}
	}
	return result, nil
}

func (f *fakeEntityRepo) ListByRepository(_ context.Context, repositoryID string, limit int) ([]*knowledge.Entity, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var result []*knowledge.Entity
	for _, entity := range f.entities {
		if entity.RepositoryID == repositoryID {
			result = append(result, entity)
		}
	}
	sortEntitiesByName(result)
	return capEntities(result, limit), nil
}

func (f *fakeEntityRepo) SearchByKeyword(_ context.Context, repositoryID, keyword string, limit int) ([]*knowledge.Entity, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	needle := strings.ToLower(keyword)
	var result []*knowledge.Entity
	for _, entity := range f.entities {
		if entity.RepositoryID != repositoryID {
			continue
		}
		if strings.Contains(strings.ToLower(entity.Name), needle) ||
			strings.Contains(strings.ToLower(entity.FilePath), needle) {
			result = append(result, entity)
		}
	}
	sortEntitiesByName(result)
	return capEntities(result, limit), nil
}

func (f *fakeEntityRepo) ListByDomain(_ context.Context, repositoryID, domain string, limit int) ([]*knowledge.Entity, error) {
	f.domainCalls++
	if f.listByDomErr != nil {
		return nil, f.listByDomErr
	}
	var result []*knowledge.Entity
	for _, entity := range f.entities {
		if entity.RepositoryID == repositoryID && entity.Domain == domain {
			result = append(result, entity)
		}
	}
	sortEntitiesByName(result)
	return capEntities(result, limit), nil
}

func (f *fakeEntityRepo) ListDomains(_ context.Context, repositoryID string) ([]string, error) {
	if f.domainsErr != nil {
		return nil, f.domainsErr
	}
	seen := make(map[string]bool)
	var domains []string
	for _, entity := range f.entities {
		if entity.RepositoryID != repositoryID || entity.Domain == "" || seen[entity.Domain] {
			continue
		}
		seen[entity.Domain] = true
		domains = append(domains, entity.Domain)
	}
	sort.Strings(domains)
	return domains, nil
}

func (f *fakeEntityRepo) CountByRepository(_ context.Context, repositoryID string) (int, error) {
	count := 0
	for _, entity := range f.entities {
		if entity.RepositoryID == repositoryID {
			count++
		}
	}
	return count, nil
}

func (f *fakeEntityRepo) DeleteByRepository(_ context.Context, repositoryID string) error {
	kept := f.entities[:0]
	for _, entity := range f.entities {
		if entity.RepositoryID != repositoryID {
			kept = append(kept, entity)
		}
	}
	f.entities = kept
	return nil
}

// totalReadCalls 实体读取类方法的累计调用次数
func (f *fakeEntityRepo) totalReadCalls() int {
	return f.searchCalls + f.domainCalls + f.listCalls + f.namesCalls
}

func sortEntitiesByName(entities []*knowledge.Entity) {
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
}

func capEntities(entities []*knowledge.Entity, limit int) []*knowledge.Entity {
	if limit > 0 && len(entities) > limit {
		return entities[:limit]
	}
	return entities
}

// fakeRelationshipRepo 内存实现 knowledge.RelationshipRepository，带调用计数
type fakeRelationshipRepo struct {
	relationships []*knowledge.Relationship

	sourceCalls int
	targetCalls int
	sourceErr   error
	targetErr   error
}

func (f *fakeRelationshipRepo) SaveBatch(_ context.Context, relationships []*knowledge.Relationship) error {
	f.relationships = append(f.relationships, relationships...)
	return nil
}

func (f *fakeRelationshipRepo) GetBySourceNames(_ context.Context, repositoryID string, names []string, limit int) ([]*knowledge.Relationship, error) {
	f.sourceCalls++
	if f.sourceErr != nil {
		return nil, f.sourceErr
	}
	return f.filterEdges(repositoryID, names, limit, func(edge *knowledge.Relationship) string { return edge.Source }), nil
}

func (f *fakeRelationshipRepo) GetByTargetNames(_ context.Context, repositoryID string, names []string, limit int) ([]*knowledge.Relationship, error) {
	f.targetCalls++
	if f.targetErr != nil {
		return nil, f.targetErr
	}
	return f.filterEdges(repositoryID, names, limit, func(edge *knowledge.Relationship) string { return edge.Target }), nil
}

func (f *fakeRelationshipRepo) filterEdges(repositoryID string, names []string, limit int, key func(*knowledge.Relationship) string) []*knowledge.Relationship {
	nameSet := make(map[string]bool, len(names))
	for _, name := range names {
		nameSet[name] = true
	}
	var result []*knowledge.Relationship
	for _, edge := range f.relationships {
		if edge.RepositoryID != repositoryID || !nameSet[key(edge)] {
			continue
		}
		result = append(result, edge)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

func (f *fakeRelationshipRepo) CountByRepository(_ context.Context, repositoryID string) (int, error) {
	count := 0
	for _, edge := range f.relationships {
		if edge.RepositoryID == repositoryID {
			count++
		}
	}
	return count, nil
}

func (f *fakeRelationshipRepo) DeleteByRepository(_ context.Context, repositoryID string) error {
	kept := f.relationships[:0]
	for _, edge := range f.relationships {
		if edge.RepositoryID != repositoryID {
			kept = append(kept, edge)
		}
	}
	f.relationships = kept
	return nil
}

// fakeMemoryRepo 内存实现 chat.SessionMemoryRepository
// Upsert 由服务在 goroutine 中调用，内部加锁
type fakeMemoryRepo struct {
	mu      sync.Mutex
	entries []*domainChat.SessionMemory

	recallCalls int
	recallErr   error
	upsertErr   error
}

func (f *fakeMemoryRepo) Recall(_ context.Context, sessionID, repositoryID string, limit int) ([]*domainChat.SessionMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recallCalls++
	if f.recallErr != nil {
		return nil, f.recallErr
	}
	var result []*domainChat.SessionMemory
	for _, entry := range f.entries {
		if entry.SessionID != sessionID || entry.RepositoryID != repositoryID {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (f *fakeMemoryRepo) Upsert(_ context.Context, sessionID, repositoryID string, entityIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	now := time.Now().Unix()
	for _, entityID := range entityIDs {
		found := false
		for _, entry := range f.entries {
			if entry.SessionID == sessionID && entry.RepositoryID == repositoryID && entry.EntityID == entityID {
				entry.Weight++
				entry.LastUsedAt = now
				found = true
				break
			}
		}
		if !found {
			f.entries = append(f.entries, &domainChat.SessionMemory{
				SessionID:    sessionID,
				RepositoryID: repositoryID,
				EntityID:     entityID,
				Weight:       1,
				LastUsedAt:   now,
			})
		}
	}
	return nil
}

func (f *fakeMemoryRepo) DeleteByRepository(_ context.Context, repositoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.entries[:0]
	for _, entry := range f.entries {
		if entry.RepositoryID != repositoryID {
			kept = append(kept, entry)
		}
	}
	f.entries = kept
	return nil
}

// entryCount 当前记忆条目数（加锁读取，供异步断言轮询）
func (f *fakeMemoryRepo) entryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// weightOf 指定实体的当前累计权重，不存在返回 0
func (f *fakeMemoryRepo) weightOf(entityID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.EntityID == entityID {
			return entry.Weight
		}
	}
	return 0
}

// fakeBackfillQueue 内存实现 knowledge.BackfillQueueRepository
// Enqueue 由服务在 goroutine 中调用，内部加锁
type fakeBackfillQueue struct {
	mu    sync.Mutex
	tasks []*knowledge.BackfillTask
}

func (f *fakeBackfillQueue) Enqueue(_ context.Context, task *knowledge.BackfillTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeBackfillQueue) EnqueueBatch(_ context.Context, tasks []*knowledge.BackfillTask, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, tasks...)
	return nil
}

func (f *fakeBackfillQueue) DequeueTasks(_ context.Context, limit int) ([]*knowledge.BackfillTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.tasks) {
		limit = len(f.tasks)
	}
	return f.tasks[:limit], nil
}

func (f *fakeBackfillQueue) UpdateTask(_ context.Context, _ *knowledge.BackfillTask) error {
	return nil
}

func (f *fakeBackfillQueue) GetStats(_ context.Context) (*knowledge.BackfillStats, error) {
	return &knowledge.BackfillStats{}, nil
}

func (f *fakeBackfillQueue) ResetFailed(_ context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeBackfillQueue) DeleteByRepository(_ context.Context, repositoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tasks[:0]
	for _, task := range f.tasks {
		if task.RepositoryID != repositoryID {
			kept = append(kept, task)
		}
	}
	f.tasks = kept
	return nil
}

// taskCount 当前队列任务数（加锁读取，供异步断言轮询）
func (f *fakeBackfillQueue) taskCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// fakeRegistry 内存实现 knowledge.RepositoryRegistry
type fakeRegistry struct {
	repos map[string]*knowledge.Repository
}

func newFakeRegistry(repos ...*knowledge.Repository) *fakeRegistry {
	registry := &fakeRegistry{repos: make(map[string]*knowledge.Repository)}
	for _, repo := range repos {
		registry.repos[repo.ID] = repo
	}
	return registry
}

func (f *fakeRegistry) Register(_ context.Context, repo *knowledge.Repository) error {
	f.repos[repo.ID] = repo
	return nil
}

func (f *fakeRegistry) Get(_ context.Context, id string) (*knowledge.Repository, error) {
	if repo, ok := f.repos[id]; ok {
		return repo, nil
	}
	return nil, knowledge.ErrRepositoryNotFound
}

func (f *fakeRegistry) List(_ context.Context) ([]*knowledge.Repository, error) {
	var result []*knowledge.Repository
	for _, repo := range f.repos {
		result = append(result, repo)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (f *fakeRegistry) Remove(_ context.Context, id string) error {
	delete(f.repos, id)
	return nil
}

func (f *fakeRegistry) UpdateSnapshotStats(_ context.Context, id string, entityCount, relationshipCount int) error {
	if repo, ok := f.repos[id]; ok {
		repo.EntityCount = entityCount
		repo.RelationshipCount = relationshipCount
		repo.LastIngestedAt = time.Now()
	}
	return nil
}
