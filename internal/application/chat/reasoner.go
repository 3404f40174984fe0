package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	domainChat "github.com/repolens/backend/internal/domain/chat"
	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/llm"
	"github.com/repolens/backend/internal/infrastructure/log"
	"github.com/repolens/backend/internal/infrastructure/tokenizer"
)

// Reasoner 证据推理器
// 把证据集裁剪进 token 预算后发起一次推理调用；
// 任何失败返回 nil，由编排器改用确定性兜底回答
type Reasoner struct {
	logger *slog.Logger
}

// NewReasoner 创建推理器
func NewReasoner() *Reasoner {
	return &Reasoner{
		logger: log.NewModuleLogger("chat", "reasoner"),
	}
}

// reasonSystemPrompt 推理阶段系统指令：只依据证据作答
const reasonSystemPrompt = `You are a product analyst. Answer the question using ONLY the evidence provided. Describe what the product does for its users; do not mention file names or programming vocabulary. If the evidence is insufficient, say what is missing in unknowns. Respond with pure JSON only, no markdown, no extra text.`

// Reason 基于证据推理回答
// 失败（未配置、超时、空回答）一律返回 nil
func (r *Reasoner) Reason(ctx context.Context, completer ChatCompleter, objective, question string, evidence *Evidence, tokenBudget int) *domainChat.ReasoningOutcome {
	if completer == nil || !evidence.HasSeeds() {
		return nil
	}

	payload := BuildEvidencePayload(evidence, tokenBudget)

	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n")
	if objective != "" && objective != question {
		sb.WriteString("Objective: ")
		sb.WriteString(objective)
		sb.WriteString("\n")
	}
	// 配置了回答语言偏好时显式下达；留空则跟随提问语言
	if language := completer.Language(); language != "" {
		sb.WriteString("Answer language: ")
		sb.WriteString(language)
		sb.WriteString("\n")
	}
	sb.WriteString("\nEvidence from the repository knowledge graph:\n")
	sb.WriteString(payload)
	sb.WriteString(`
Return JSON with these fields:

1. answer: the answer for a non-technical product audience
2. confidence: "high", "moderate" or "low"
3. findings: conclusions supported by the evidence (array)
4. unknowns: parts the evidence cannot answer (array)
5. constraints: limits or conditions the evidence reveals (array)

Return JSON.`)

	reply, err := completer.Complete(ctx, reasonSystemPrompt, sb.String())
	if err != nil {
		r.logger.Warn("LLM reasoning failed", "error", err)
		return nil
	}

	outcome := parseReasoningReply(reply)
	if !outcome.HasEvidence() {
		return nil
	}
	return outcome
}

// parseReasoningReply 宽容解析推理回包
// JSON 解析失败时，非空纯文本按 moderate 置信度的回答接受
func parseReasoningReply(reply string) *domainChat.ReasoningOutcome {
	payload := llm.ExtractJSON(reply)

	var outcome domainChat.ReasoningOutcome
	if err := json.Unmarshal([]byte(payload), &outcome); err == nil {
		outcome.Confidence = normalizeConfidence(outcome.Confidence)
		return &outcome
	}

	text := strings.TrimSpace(reply)
	if text == "" {
		return nil
	}
	return &domainChat.ReasoningOutcome{
		Answer:     text,
		Confidence: domainChat.ConfidenceModerate,
	}
}

// normalizeConfidence 把置信度收敛到 high/moderate/low，未知值按 moderate
func normalizeConfidence(confidence string) string {
	switch strings.ToLower(strings.TrimSpace(confidence)) {
	case domainChat.ConfidenceHigh:
		return domainChat.ConfidenceHigh
	case domainChat.ConfidenceLow:
		return domainChat.ConfidenceLow
	default:
		return domainChat.ConfidenceModerate
	}
}

// BuildEvidencePayload 组装推理证据文本并裁剪进 token 预算
// 裁剪顺序：先丢关联名称，再丢边，最后丢尾部实体；永不截断单行
func BuildEvidencePayload(evidence *Evidence, tokenBudget int) string {
	entityLines := make([]string, 0, len(evidence.Seeds))
	for _, seed := range evidence.Seeds {
		entityLines = append(entityLines, formatEntityLine(seed))
	}

	edgeLines := make([]string, 0, len(evidence.Edges))
	for _, edge := range evidence.Edges {
		edgeLines = append(edgeLines, fmt.Sprintf("- %s -[%s]-> %s", edge.Source, edge.Kind, edge.Target))
	}

	relatedNames := make([]string, 0, len(evidence.Related))
	for _, entity := range evidence.Related {
		relatedNames = append(relatedNames, entity.Name)
	}

	assemble := func() string {
		var sb strings.Builder
		if len(entityLines) > 0 {
			sb.WriteString("Entities:\n")
			sb.WriteString(strings.Join(entityLines, "\n"))
			sb.WriteString("\n")
		}
		if len(edgeLines) > 0 {
			sb.WriteString("Edges:\n")
			sb.WriteString(strings.Join(edgeLines, "\n"))
			sb.WriteString("\n")
		}
		if len(relatedNames) > 0 {
			sb.WriteString("Related: ")
			sb.WriteString(strings.Join(relatedNames, ", "))
			sb.WriteString("\n")
		}
		return sb.String()
	}

	payload := assemble()
	for tokenizer.EstimateTokens(payload) > tokenBudget {
		switch {
		case len(relatedNames) > 0:
			relatedNames = relatedNames[:len(relatedNames)-1]
		case len(edgeLines) > 0:
			edgeLines = edgeLines[:len(edgeLines)-1]
		case len(entityLines) > 1:
			entityLines = entityLines[:len(entityLines)-1]
		default:
			return payload
		}
		payload = assemble()
	}
	return payload
}

// maxSnippetRunes 证据行中摘要片段的最大长度
const maxSnippetRunes = 120

// formatEntityLine 单个实体的证据行：名称、类别、业务域与摘要片段
func formatEntityLine(entity *knowledge.Entity) string {
	var sb strings.Builder
	sb.WriteString("- ")
	sb.WriteString(entity.Name)

	var attrs []string
	if entity.Kind != "" {
		attrs = append(attrs, entity.Kind)
	}
	if entity.Domain != "" {
		attrs = append(attrs, entity.Domain)
	}
	if len(attrs) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(attrs, ", "))
		sb.WriteString(")")
	}

	if snippet := condenseSnippet(entity.Metadata.Snippet); snippet != "" {
		sb.WriteString(": ")
		sb.WriteString(snippet)
	}
	return sb.String()
}

// condenseSnippet 把摘要片段压成单行并截断
func condenseSnippet(snippet string) string {
	condensed := strings.Join(strings.Fields(snippet), " ")
	if runes := []rune(condensed); len(runes) > maxSnippetRunes {
		condensed = string(runes[:maxSnippetRunes])
	}
	return condensed
}
