package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChat "github.com/repolens/backend/internal/domain/chat"
	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/tokenizer"
)

func buildTestEvidence(entities, edges, related int) *Evidence {
	evidence := &Evidence{}
	for i := 0; i < entities; i++ {
		evidence.Seeds = append(evidence.Seeds, &knowledge.Entity{
			ID:     fmt.Sprintf("id-%d", i),
			Name:   fmt.Sprintf("CheckoutService%d", i),
			Kind:   "service",
			Domain: "payment",
			Metadata: knowledge.EntityMetadata{
				Snippet: "handles the checkout flow for carts and produces an invoice",
			},
		})
	}
	for i := 0; i < edges; i++ {
		evidence.Edges = append(evidence.Edges, &knowledge.Relationship{
			Source: fmt.Sprintf("CheckoutService%d", i),
			Target: fmt.Sprintf("InvoiceStore%d", i),
			Kind:   "writes",
		})
	}
	for i := 0; i < related; i++ {
		evidence.Related = append(evidence.Related, &knowledge.Entity{
			ID:   fmt.Sprintf("rel-%d", i),
			Name: fmt.Sprintf("RelatedEntity%d", i),
		})
	}
	return evidence
}

// TestBuildEvidencePayload_WithinBudget 裁剪后的 payload 永不超过 token 预算
func TestBuildEvidencePayload_WithinBudget(t *testing.T) {
	evidence := buildTestEvidence(60, 120, 40)

	for _, budget := range []int{2400, 800, 200, 60} {
		payload := BuildEvidencePayload(evidence, budget)
		assert.LessOrEqual(t, tokenizer.EstimateTokens(payload), budget, "budget: %d", budget)
		assert.NotEmpty(t, payload)
	}
}

// TestBuildEvidencePayload_NeverSplitsLines 裁剪按整行丢弃，不截断行内内容
func TestBuildEvidencePayload_NeverSplitsLines(t *testing.T) {
	evidence := buildTestEvidence(30, 50, 20)

	full := BuildEvidencePayload(evidence, 1<<20)
	fullLines := make(map[string]bool)
	for _, line := range strings.Split(full, "\n") {
		fullLines[line] = true
	}

	trimmed := BuildEvidencePayload(evidence, 300)
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.HasPrefix(line, "Related: ") {
			// 关联名称按个数裁剪，整体仍是完整名称列表
			for _, name := range strings.Split(strings.TrimPrefix(line, "Related: "), ", ") {
				assert.True(t, strings.HasPrefix(name, "RelatedEntity"), "name: %q", name)
			}
			continue
		}
		assert.True(t, fullLines[line], "line should appear verbatim in the untrimmed payload: %q", line)
	}
}

// TestBuildEvidencePayload_DropOrder 先丢关联名称，再丢边，最后丢尾部实体
func TestBuildEvidencePayload_DropOrder(t *testing.T) {
	evidence := buildTestEvidence(4, 4, 4)

	full := BuildEvidencePayload(evidence, 1<<20)
	require.Contains(t, full, "Related: ")
	require.Contains(t, full, "Edges:")

	// 逐步收紧预算：关联名称最先消失，实体最后保留
	fullTokens := tokenizer.EstimateTokens(full)
	withoutRelated := BuildEvidencePayload(evidence, fullTokens-1)
	assert.Contains(t, withoutRelated, "Entities:")

	minimal := BuildEvidencePayload(evidence, 20)
	assert.Contains(t, minimal, "Entities:")
	assert.NotContains(t, minimal, "Related: ")
}

func TestBuildEvidencePayload_Format(t *testing.T) {
	evidence := buildTestEvidence(1, 1, 1)
	payload := BuildEvidencePayload(evidence, 2400)

	assert.Contains(t, payload, "- CheckoutService0 (service, payment): handles the checkout flow")
	assert.Contains(t, payload, "- CheckoutService0 -[writes]-> InvoiceStore0")
	assert.Contains(t, payload, "Related: RelatedEntity0")
}

func TestParseReasoningReply(t *testing.T) {
	// 标准 JSON 回包
	outcome := parseReasoningReply(`{"answer":"Users can pay by card.","confidence":"high","findings":["checkout exists"]}`)
	require.NotNil(t, outcome)
	assert.Equal(t, "Users can pay by card.", outcome.Answer)
	assert.Equal(t, domainChat.ConfidenceHigh, outcome.Confidence)

	// markdown 围栏包裹
	outcome = parseReasoningReply("```json\n{\"answer\":\"Yes.\",\"confidence\":\"low\"}\n```")
	require.NotNil(t, outcome)
	assert.Equal(t, "Yes.", outcome.Answer)
	assert.Equal(t, domainChat.ConfidenceLow, outcome.Confidence)

	// 纯文本回包按 moderate 接受
	outcome = parseReasoningReply("Users can pay with a saved card.")
	require.NotNil(t, outcome)
	assert.Equal(t, "Users can pay with a saved card.", outcome.Answer)
	assert.Equal(t, domainChat.ConfidenceModerate, outcome.Confidence)

	// 未知置信度收敛到 moderate
	outcome = parseReasoningReply(`{"answer":"ok","confidence":"certain"}`)
	require.NotNil(t, outcome)
	assert.Equal(t, domainChat.ConfidenceModerate, outcome.Confidence)

	// 空回包视为失败
	assert.Nil(t, parseReasoningReply("   "))
}

func TestReasoner_Reason(t *testing.T) {
	reasoner := NewReasoner()
	evidence := buildTestEvidence(2, 1, 0)

	// 未配置 LLM 返回 nil
	assert.Nil(t, reasoner.Reason(context.Background(), nil, "", "q", evidence, 2400))

	// 正常回包
	completer := &fakeCompleter{reply: `{"answer":"Checkout produces an invoice.","confidence":"moderate"}`}
	outcome := reasoner.Reason(context.Background(), completer, "how checkout works", "how does checkout work", evidence, 2400)
	require.NotNil(t, outcome)
	assert.Equal(t, "Checkout produces an invoice.", outcome.Answer)
	assert.Contains(t, completer.lastUserPrompt, "CheckoutService0", "证据应进入提示词")

	// 空证据不发起调用
	assert.Nil(t, reasoner.Reason(context.Background(), completer, "", "q", EmptyEvidence(), 2400))

	// 空回答视为失败
	completer = &fakeCompleter{reply: `{"answer":"","confidence":"high"}`}
	assert.Nil(t, reasoner.Reason(context.Background(), completer, "", "q", evidence, 2400))
}

func TestReasoner_AnswerLanguagePreference(t *testing.T) {
	reasoner := NewReasoner()
	evidence := buildTestEvidence(2, 1, 0)

	// 配置了语言偏好时提示词显式下达
	completer := &fakeCompleter{reply: `{"answer":"ok","confidence":"moderate"}`, language: "zh"}
	outcome := reasoner.Reason(context.Background(), completer, "", "how does checkout work", evidence, 2400)
	require.NotNil(t, outcome)
	assert.Contains(t, completer.lastUserPrompt, "Answer language: zh")

	// 留空则不附加语言指令，跟随提问语言
	completer = &fakeCompleter{reply: `{"answer":"ok","confidence":"moderate"}`}
	outcome = reasoner.Reason(context.Background(), completer, "", "how does checkout work", evidence, 2400)
	require.NotNil(t, outcome)
	assert.NotContains(t, completer.lastUserPrompt, "Answer language:")
}
