package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/log"
)

const (
	// edgeQueryLimit 单方向边查询的行数上限
	edgeQueryLimit = 300
	// maxEdges 合并去重后的边总数上限
	maxEdges = 180
	// maxRelated 关联实体上限
	maxRelated = 40
)

// Evidence 证据集：种子实体、一跳关系边与关联实体
// 是重排、推理与确定性兜底回答共同消费的输入
type Evidence struct {
	// Seeds 种子实体
	Seeds []*knowledge.Entity
	// Edges 一跳关系边
	Edges []*knowledge.Relationship
	// Related 边端点中不属于种子的实体
	Related []*knowledge.Entity
}

// EmptyEvidence 无种子的空证据集
func EmptyEvidence() *Evidence {
	return &Evidence{}
}

// HasSeeds 证据集是否包含种子
func (e *Evidence) HasSeeds() bool {
	return e != nil && len(e.Seeds) > 0
}

// GraphExpander 图谱一跳扩展器
// 以种子实体名称为键查询出边与入边，端点回溯为关联实体
type GraphExpander struct {
	relationships knowledge.RelationshipRepository
	entities      knowledge.EntityRepository
	logger        *slog.Logger
}

// NewGraphExpander 创建图谱扩展器
func NewGraphExpander(relationships knowledge.RelationshipRepository, entities knowledge.EntityRepository) *GraphExpander {
	return &GraphExpander{
		relationships: relationships,
		entities:      entities,
		logger:        log.NewModuleLogger("chat", "graph"),
	}
}

// Expand 对种子集做单跳扩展
func (g *GraphExpander) Expand(ctx context.Context, repositoryID string, seeds []*knowledge.Entity) (*Evidence, error) {
	if len(seeds) == 0 {
		return EmptyEvidence(), nil
	}

	seedNames := make([]string, 0, len(seeds))
	seedNameSet := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		if seedNameSet[seed.Name] {
			continue
		}
		seedNameSet[seed.Name] = true
		seedNames = append(seedNames, seed.Name)
	}

	outgoing, err := g.relationships.GetBySourceNames(ctx, repositoryID, seedNames, edgeQueryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outgoing edges: %w", err)
	}
	incoming, err := g.relationships.GetByTargetNames(ctx, repositoryID, seedNames, edgeQueryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query incoming edges: %w", err)
	}

	edges := dedupeEdges(outgoing, incoming)
	if len(edges) > maxEdges {
		edges = edges[:maxEdges]
	}

	related, err := g.resolveRelated(ctx, repositoryID, edges, seedNameSet)
	if err != nil {
		return nil, err
	}

	return &Evidence{Seeds: seeds, Edges: edges, Related: related}, nil
}

// resolveRelated 把边端点中非种子的名称回溯为实体
func (g *GraphExpander) resolveRelated(ctx context.Context, repositoryID string, edges []*knowledge.Relationship, seedNameSet map[string]bool) ([]*knowledge.Entity, error) {
	nameSet := make(map[string]bool)
	var names []string
	for _, edge := range edges {
		for _, name := range []string{edge.Source, edge.Target} {
			if name == "" || seedNameSet[name] || nameSet[name] {
				continue
			}
			nameSet[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	related, err := g.entities.GetByNames(ctx, repositoryID, names)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve related entities: %w", err)
	}

	sort.Slice(related, func(i, j int) bool { return related[i].Name < related[j].Name })
	if len(related) > maxRelated {
		related = related[:maxRelated]
	}
	return related, nil
}

// dedupeEdges 合并出边与入边，按 (source, target, kind) 去重，保持出边优先顺序
func dedupeEdges(outgoing, incoming []*knowledge.Relationship) []*knowledge.Relationship {
	seen := make(map[string]bool, len(outgoing)+len(incoming))
	merged := make([]*knowledge.Relationship, 0, len(outgoing)+len(incoming))
	for _, edge := range append(append([]*knowledge.Relationship{}, outgoing...), incoming...) {
		key := edge.Source + "\x00" + edge.Target + "\x00" + edge.Kind
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, edge)
	}
	return merged
}
