package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	domainChat "github.com/repolens/backend/internal/domain/chat"
	"github.com/repolens/backend/internal/infrastructure/llm"
	"github.com/repolens/backend/internal/infrastructure/log"
)

// QueryExpander 检索词扩展器
// 同义扩展与锚点短语都优先走 LLM，失败时落回固定表/机械拼接，
// 两条降级路径都是纯本地计算
type QueryExpander struct {
	extractor *KeywordExtractor
	logger    *slog.Logger
}

// NewQueryExpander 创建检索词扩展器
func NewQueryExpander(extractor *KeywordExtractor) *QueryExpander {
	return &QueryExpander{
		extractor: extractor,
		logger:    log.NewModuleLogger("chat", "expander"),
	}
}

// Expand 扩展关键词
// 返回的 fromLLM 表示扩展词是否来自 LLM 路径
func (e *QueryExpander) Expand(ctx context.Context, completer ChatCompleter, keywords, domains []string) ([]string, bool) {
	if completer != nil {
		if expanded := e.expandWithLLM(ctx, completer, keywords, domains); len(expanded) > 0 {
			return expanded, true
		}
	}
	return e.extractor.ExpandWithTable(keywords, domains), false
}

// expandWithLLM 请求 LLM 给出相关检索词，任何异常返回 nil
func (e *QueryExpander) expandWithLLM(ctx context.Context, completer ChatCompleter, keywords, domains []string) []string {
	if len(keywords) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("Search keywords: ")
	sb.WriteString(strings.Join(keywords, ", "))
	sb.WriteString("\n")
	if len(domains) > 0 {
		sb.WriteString("Product areas: ")
		sb.WriteString(strings.Join(domains, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString(`
Suggest related terms that could also appear in source code entity names for the same features (synonyms, related concepts, common vendor names).

Return JSON with one field:

1. terms: up to 20 related terms (array of lowercase strings)

Return JSON.`)

	reply, err := completer.Complete(ctx, expandSystemPrompt, sb.String())
	if err != nil {
		e.logger.Warn("LLM keyword expansion failed", "error", err)
		return nil
	}

	var parsed struct {
		Terms []string `json:"terms"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(reply)), &parsed); err != nil {
		e.logger.Warn("failed to parse expansion reply", "error", err)
		return nil
	}

	return cleanTermList(parsed.Terms, e.extractor.MaxExpansion)
}

// expandSystemPrompt 同义扩展的系统指令
const expandSystemPrompt = `You expand search queries over a codebase knowledge graph. Respond with pure JSON only, no markdown, no extra text.`

// GenerateFlowAnchors 生成锚点短语，用于把检索引向业务流程
// 确定性降级：每个业务域追加 " flow" 后缀
func (e *QueryExpander) GenerateFlowAnchors(ctx context.Context, completer ChatCompleter, question string, intent domainChat.Intent, domains []string) ([]string, bool) {
	if completer != nil {
		if anchors := e.anchorsWithLLM(ctx, completer, question, intent, domains); len(anchors) > 0 {
			return anchors, true
		}
	}

	anchors := make([]string, 0, len(domains))
	for _, domain := range domains {
		trimmed := strings.TrimSpace(domain)
		if trimmed == "" {
			continue
		}
		anchors = append(anchors, trimmed+" flow")
	}
	return anchors, false
}

// anchorsWithLLM 请求 LLM 给出业务流程短语，任何异常返回 nil
func (e *QueryExpander) anchorsWithLLM(ctx context.Context, completer ChatCompleter, question string, intent domainChat.Intent, domains []string) []string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nQuestion type: ")
	sb.WriteString(string(intent))
	sb.WriteString("\n")
	if len(domains) > 0 {
		sb.WriteString("Product areas: ")
		sb.WriteString(strings.Join(domains, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString(`
Name the product flows this question is about, as short noun phrases like "payment lifecycle" or "user onboarding".

Return JSON with one field:

1. anchors: up to 5 short flow phrases (array of strings)

Return JSON.`)

	reply, err := completer.Complete(ctx, expandSystemPrompt, sb.String())
	if err != nil {
		e.logger.Warn("LLM anchor generation failed", "error", err)
		return nil
	}

	var parsed struct {
		Anchors []string `json:"anchors"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(reply)), &parsed); err != nil {
		e.logger.Warn("failed to parse anchor reply", "error", err)
		return nil
	}

	return cleanTermList(parsed.Anchors, e.extractor.MaxAnchorTerms)
}

// cleanTermList 清洗 LLM 给出的词表：去空白、去重、截断
func cleanTermList(terms []string, limit int) []string {
	seen := make(map[string]bool, len(terms))
	cleaned := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		lower := strings.ToLower(term)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		cleaned = append(cleaned, term)
		if len(cleaned) >= limit {
			break
		}
	}
	return cleaned
}
