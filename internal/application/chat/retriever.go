package chat

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/log"
)

const (
	// maxScanKeywords 实际下发扫描的检索词上限
	maxScanKeywords = 10
	// keywordScanLimit 单个检索词的扫描行数上限
	keywordScanLimit = 500
	// maxSeeds 种子实体上限
	maxSeeds = 80
	// maxDomainAnchors 业务域降级检索返回的锚点实体上限
	maxDomainAnchors = 18
)

// 种子来源标记
const (
	// SeedSourceKeyword 关键词子串检索命中
	SeedSourceKeyword = "keyword"
	// SeedSourceDomainFallback 业务域降级检索命中
	SeedSourceDomainFallback = "domain_fallback"
	// SeedSourceNone 两条路径都没有命中
	SeedSourceNone = "none"
)

// RetrievalResult 实体检索结果
type RetrievalResult struct {
	// Seeds 种子实体（按得分降序、名称升序）
	Seeds []*knowledge.Entity
	// Source 种子来源（keyword/domain_fallback/none）
	Source string
}

// EntityRetriever 实体检索器
// 对前若干个检索词做子串扫描，按 2*关键词得分+业务域得分+记忆加权 排序；
// 全部落空时退到业务域锚点检索
type EntityRetriever struct {
	entities knowledge.EntityRepository
	logger   *slog.Logger
}

// NewEntityRetriever 创建实体检索器
func NewEntityRetriever(entities knowledge.EntityRepository) *EntityRetriever {
	return &EntityRetriever{
		entities: entities,
		logger:   log.NewModuleLogger("chat", "retriever"),
	}
}

// Retrieve 检索种子实体
// keywords 为合并后的检索词；domains 参与业务域得分与降级检索；
// fallbackTerms 是业务域降级的最后兜底词表；memoryIDs 为会话记忆中的实体 ID
func (r *EntityRetriever) Retrieve(ctx context.Context, repositoryID string, keywords, domains, fallbackTerms []string, memoryIDs map[string]bool) (*RetrievalResult, error) {
	scanKeywords := keywords
	if len(scanKeywords) > maxScanKeywords {
		scanKeywords = scanKeywords[:maxScanKeywords]
	}

	candidates := make(map[string]*knowledge.Entity)
	for _, keyword := range scanKeywords {
		matched, err := r.entities.SearchByKeyword(ctx, repositoryID, keyword, keywordScanLimit)
		if err != nil {
			return nil, err
		}
		for _, entity := range matched {
			candidates[entity.ID] = entity
		}
	}

	if len(candidates) == 0 {
		return r.retrieveByDomain(ctx, repositoryID, domains, fallbackTerms)
	}

	seeds := rankCandidates(candidates, scanKeywords, domains, memoryIDs)
	if len(seeds) > maxSeeds {
		seeds = seeds[:maxSeeds]
	}
	return &RetrievalResult{Seeds: seeds, Source: SeedSourceKeyword}, nil
}

// retrieveByDomain 业务域降级检索
// 先按存储的 domain 列取锚点实体；仍为空时用兜底词表再扫一轮
func (r *EntityRetriever) retrieveByDomain(ctx context.Context, repositoryID string, domains, fallbackTerms []string) (*RetrievalResult, error) {
	anchors := make(map[string]*knowledge.Entity)
	for _, domain := range domains {
		matched, err := r.entities.ListByDomain(ctx, repositoryID, domain, maxDomainAnchors)
		if err != nil {
			return nil, err
		}
		for _, entity := range matched {
			anchors[entity.ID] = entity
		}
	}

	if len(anchors) == 0 {
		for _, term := range fallbackTerms {
			cleaned := SanitizeKeyword(term)
			if cleaned == "" {
				continue
			}
			matched, err := r.entities.SearchByKeyword(ctx, repositoryID, cleaned, maxDomainAnchors)
			if err != nil {
				return nil, err
			}
			for _, entity := range matched {
				anchors[entity.ID] = entity
			}
		}
	}

	if len(anchors) == 0 {
		return &RetrievalResult{Source: SeedSourceNone}, nil
	}

	seeds := make([]*knowledge.Entity, 0, len(anchors))
	for _, entity := range anchors {
		seeds = append(seeds, entity)
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].Name < seeds[j].Name })
	if len(seeds) > maxDomainAnchors {
		seeds = seeds[:maxDomainAnchors]
	}
	return &RetrievalResult{Seeds: seeds, Source: SeedSourceDomainFallback}, nil
}

// rankCandidates 对候选实体计分排序
// score = 2*kwScore + domScore + memoryBoost；
// kwScore 统计出现在实体干草堆中的去重关键词数，
// domScore 为实体业务域命中，memoryBoost 为会话记忆命中
func rankCandidates(candidates map[string]*knowledge.Entity, keywords, domains []string, memoryIDs map[string]bool) []*knowledge.Entity {
	domainSet := make(map[string]bool, len(domains))
	for _, domain := range domains {
		domainSet[strings.ToLower(strings.TrimSpace(domain))] = true
	}

	type scored struct {
		entity *knowledge.Entity
		score  int
	}
	ranked := make([]scored, 0, len(candidates))
	for _, entity := range candidates {
		haystack := entityHaystack(entity)

		kwScore := 0
		for _, keyword := range keywords {
			if strings.Contains(haystack, strings.ToLower(keyword)) {
				kwScore++
			}
		}

		domScore := 0
		if entity.Domain != "" && domainSet[strings.ToLower(entity.Domain)] {
			domScore = 1
		}

		memoryBoost := 0
		if memoryIDs[entity.ID] {
			memoryBoost = 1
		}

		ranked = append(ranked, scored{entity: entity, score: 2*kwScore + domScore + memoryBoost})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].entity.Name < ranked[j].entity.Name
	})

	seeds := make([]*knowledge.Entity, len(ranked))
	for i, item := range ranked {
		seeds[i] = item.entity
	}
	return seeds
}

// entityHaystack 组装实体的小写匹配文本：名称+类别+路径+标签+关键词
func entityHaystack(entity *knowledge.Entity) string {
	parts := []string{entity.Name, entity.Kind, entity.FilePath}
	parts = append(parts, entity.Metadata.Tags...)
	parts = append(parts, entity.Metadata.Keywords...)
	return strings.ToLower(strings.Join(parts, " "))
}
