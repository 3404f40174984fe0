package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	domainChat "github.com/repolens/backend/internal/domain/chat"
	"github.com/repolens/backend/internal/infrastructure/llm"
	"github.com/repolens/backend/internal/infrastructure/log"
)

const (
	// maxIntentKeywords 降级路径给出的关键词上限
	maxIntentKeywords = 8
	// maxObjectiveRunes 降级目标复述的最大长度
	maxObjectiveRunes = 160
	// maxHistoryTurns 进入意图提示词的历史轮次上限
	maxHistoryTurns = 4
	// minMeaningfulTokens 低于该数量的非停用词视为问题过短
	minMeaningfulTokens = 3
)

// overviewObjective 模糊纠偏后的固定检索目标
const overviewObjective = "explain major application flows"

// 降级分类的固定置信度
const (
	markerConfidence   = 0.75
	greetingConfidence = 0.9
	generalConfidence  = 0.4
)

// intentGreetingTable 分类器问候表：前台表之外再覆盖两个书面变体
var intentGreetingTable = map[string]bool{
	"greetings": true,
	"good day":  true,
}

// technicalMarkers 技术实现类问题的标记词（按词元精确匹配）
var technicalMarkers = map[string]bool{
	"implement": true, "implementation": true, "architecture": true,
	"code": true, "database": true, "schema": true,
	"api": true, "endpoint": true, "function": true, "class": true,
	"module": true, "dependency": true, "stack": true, "framework": true,
}

// productMarkers 产品能力类问题的标记词（按词元精确匹配）
var productMarkers = map[string]bool{
	"feature": true, "user": true, "login": true, "sign": true,
	"signup": true, "account": true, "profile": true, "search": true,
	"upload": true, "payment": true, "notification": true, "support": true,
}

// productPhrases 产品能力类问题的标记短语（按子串匹配）
var productPhrases = []string{"can i", "does it", "how do i"}

// IntentClassifier 意图分类器
// 优先走一次 LLM 调用；LLM 未配置、超时或回包不可解析时
// 降级为固定标记表分类，保证任何情况下都有结果
type IntentClassifier struct {
	extractor *KeywordExtractor
	logger    *slog.Logger
}

// NewIntentClassifier 创建意图分类器
func NewIntentClassifier(extractor *KeywordExtractor) *IntentClassifier {
	return &IntentClassifier{
		extractor: extractor,
		logger:    log.NewModuleLogger("chat", "intent"),
	}
}

// Classify 对问题分类
// 返回的 fromLLM 表示结果是否来自 LLM 路径
func (c *IntentClassifier) Classify(ctx context.Context, completer ChatCompleter, question string, domains []string, history []Turn) (*domainChat.IntentResult, bool) {
	if completer != nil {
		if result := c.classifyWithLLM(ctx, completer, question, domains, history); result != nil {
			return result, true
		}
	}
	return c.ClassifyFallback(question, domains), false
}

// classifyWithLLM 通过一次 LLM 调用分类，任何异常返回 nil
func (c *IntentClassifier) classifyWithLLM(ctx context.Context, completer ChatCompleter, question string, domains []string, history []Turn) *domainChat.IntentResult {
	reply, err := completer.Complete(ctx, intentSystemPrompt, c.buildIntentPrompt(question, domains, history))
	if err != nil {
		c.logger.Warn("LLM intent classification failed", "error", err)
		return nil
	}

	payload := llm.ExtractJSON(reply)
	var result domainChat.IntentResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		c.logger.Warn("failed to parse intent reply", "error", err)
		return nil
	}

	if !result.Intent.IsValid() || result.Confidence < 0 || result.Confidence > 1 {
		c.logger.Warn("LLM intent reply out of contract",
			"intent", result.Intent, "confidence", result.Confidence)
		return nil
	}

	if len(result.Keywords) > maxIntentKeywords {
		result.Keywords = result.Keywords[:maxIntentKeywords]
	}
	if result.Objective == "" {
		result.Objective = normalizeObjective(question)
	}
	result.Domains = keepKnownDomains(result.Domains, domains)
	return &result
}

// intentSystemPrompt 意图分类的系统指令
const intentSystemPrompt = `You are a product analyst triaging questions about a software repository. Respond with pure JSON only, no markdown, no extra text.`

// buildIntentPrompt 构建意图分类提示词
func (c *IntentClassifier) buildIntentPrompt(question string, domains []string, history []Turn) string {
	var sb strings.Builder

	sb.WriteString("Classify the question below.\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n")

	if len(domains) > 0 {
		sb.WriteString("\nKnown product areas of this repository: ")
		sb.WriteString(strings.Join(domains, ", "))
		sb.WriteString("\n")
	}

	if summary := summarizeHistory(history); summary != "" {
		sb.WriteString("\nRecent conversation:\n")
		sb.WriteString(summary)
	}

	sb.WriteString(`
Return JSON with these fields:

1. intent: one of "product_feature", "technical_detail", "general_question", "greeting"
2. confidence: number between 0 and 1
3. objective: one sentence restating what the user wants to know
4. keywords: up to 8 search terms drawn from the question (array)
5. domains: the known product areas this question touches (array, subset of the list above)

Return JSON.`)
	return sb.String()
}

// summarizeHistory 将最近几轮对话压缩为提示词片段
func summarizeHistory(history []Turn) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	var sb strings.Builder
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		if runes := []rune(content); len(runes) > maxObjectiveRunes {
			content = string(runes[:maxObjectiveRunes])
		}
		fmt.Fprintf(&sb, "%s: %s\n", turn.Role, content)
	}
	return sb.String()
}

// ClassifyFallback 确定性降级分类：固定查找表，无模糊匹配
func (c *IntentClassifier) ClassifyFallback(question string, domains []string) *domainChat.IntentResult {
	normalized := normalizeGreeting(question)
	result := &domainChat.IntentResult{
		Objective: normalizeObjective(question),
		Keywords:  capKeywords(c.extractor.ExtractKeywords(question), maxIntentKeywords),
		Domains:   matchDomainsInQuestion(question, domains),
	}

	if greetingTable[normalized] || intentGreetingTable[normalized] {
		result.Intent = domainChat.IntentGreeting
		result.Confidence = greetingConfidence
		return result
	}

	lowerQuestion := strings.ToLower(question)
	tokens := Tokenize(question, 1)

	if hasAnyToken(tokens, technicalMarkers) {
		result.Intent = domainChat.IntentTechnicalDetail
		result.Confidence = markerConfidence
		return result
	}
	if hasAnyToken(tokens, productMarkers) || hasAnyPhrase(lowerQuestion, productPhrases) {
		result.Intent = domainChat.IntentProductFeature
		result.Confidence = markerConfidence
		return result
	}

	result.Intent = domainChat.IntentGeneralQuestion
	result.Confidence = generalConfidence
	return result
}

// IsVague 判断问题是否过于模糊：非停用词过少且没有任何标记/业务域信号
func (c *IntentClassifier) IsVague(question string, result *domainChat.IntentResult) bool {
	if result.Intent == domainChat.IntentGreeting {
		return false
	}
	if result.Confidence > generalConfidence || len(result.Domains) > 0 {
		return false
	}
	return len(c.extractor.ExtractKeywords(question)) < minMeaningfulTokens
}

// CorrectVague 模糊纠偏：把弱分类改写为仓库总览检索
// 意图改为 repository_overview，目标改为固定总览目标，
// 关键词按（原关键词 ∪ 问题词元 ∪ 主导业务域）重新播种，
// 保证空关键词不会饿死后续检索
func (c *IntentClassifier) CorrectVague(result *domainChat.IntentResult, question string, dominantDomains []string) {
	result.Intent = domainChat.IntentRepositoryOverview
	result.Objective = overviewObjective
	result.Keywords = c.extractor.MergeSearchTerms(
		result.Keywords,
		c.extractor.ExtractKeywords(question),
		dominantDomains,
	)
	c.logger.Info("vague question corrected to repository overview",
		"keyword_count", len(result.Keywords))
}

// normalizeObjective 降级目标复述：压缩空白并截断
func normalizeObjective(question string) string {
	objective := strings.Join(strings.Fields(question), " ")
	if runes := []rune(objective); len(runes) > maxObjectiveRunes {
		objective = string(runes[:maxObjectiveRunes])
	}
	return objective
}

// capKeywords 截断关键词列表
func capKeywords(keywords []string, limit int) []string {
	if len(keywords) > limit {
		return keywords[:limit]
	}
	return keywords
}

// matchDomainsInQuestion 找出问题文本中出现的已知业务域
func matchDomainsInQuestion(question string, domains []string) []string {
	lowerQuestion := strings.ToLower(question)
	var matched []string
	for _, domain := range domains {
		trimmed := strings.ToLower(strings.TrimSpace(domain))
		if trimmed == "" {
			continue
		}
		if strings.Contains(lowerQuestion, trimmed) {
			matched = append(matched, domain)
		}
	}
	return matched
}

// keepKnownDomains 过滤 LLM 给出的业务域，只保留仓库已知的
func keepKnownDomains(candidates, known []string) []string {
	if len(candidates) == 0 || len(known) == 0 {
		return nil
	}
	knownSet := make(map[string]string, len(known))
	for _, domain := range known {
		knownSet[strings.ToLower(strings.TrimSpace(domain))] = domain
	}
	var kept []string
	for _, candidate := range candidates {
		if original, ok := knownSet[strings.ToLower(strings.TrimSpace(candidate))]; ok {
			kept = append(kept, original)
		}
	}
	return kept
}

// hasAnyToken 词元集合是否命中标记表
func hasAnyToken(tokens []string, markers map[string]bool) bool {
	for _, token := range tokens {
		if markers[token] {
			return true
		}
	}
	return false
}

// hasAnyPhrase 文本是否包含任一标记短语
func hasAnyPhrase(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
