package chat

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	domainChat "github.com/repolens/backend/internal/domain/chat"
	"github.com/repolens/backend/internal/infrastructure/log"
)

// Translator 产品化翻译器
// 把推理回答改写成面向非技术受众的表述；翻译失败时调用方直接
// 对未翻译的推理回答做消毒检查
type Translator struct {
	logger *slog.Logger
}

// NewTranslator 创建产品化翻译器
func NewTranslator() *Translator {
	return &Translator{
		logger: log.NewModuleLogger("chat", "translator"),
	}
}

// translateSystemPrompt 翻译阶段系统指令
const translateSystemPrompt = `You rewrite answers about a software product for a non-technical audience. Never mention file names, paths, or programming vocabulary. Keep it short and concrete. Respond with the rewritten answer as plain text only.`

// Translate 将推理结果翻译为产品语言
func (t *Translator) Translate(ctx context.Context, completer ChatCompleter, objective string, outcome *domainChat.ReasoningOutcome) (string, error) {
	if completer == nil {
		return "", fmt.Errorf("no LLM configured")
	}

	var sb strings.Builder
	if objective != "" {
		sb.WriteString("The user wants to know: ")
		sb.WriteString(objective)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Draft answer:\n")
	sb.WriteString(RawReasoningText(outcome))
	if len(outcome.Constraints) > 0 {
		sb.WriteString("\n\nConditions to mention:\n")
		for _, constraint := range outcome.Constraints {
			sb.WriteString("- ")
			sb.WriteString(constraint)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nRewrite the draft for the user.")

	translated, err := completer.Complete(ctx, translateSystemPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("failed to translate answer: %w", err)
	}

	translated = strings.TrimSpace(translated)
	if translated == "" {
		return "", fmt.Errorf("translator returned empty answer")
	}
	return translated, nil
}

// RawReasoningText 未翻译的推理文本：优先 Answer，为空时拼接 Findings
func RawReasoningText(outcome *domainChat.ReasoningOutcome) string {
	if outcome == nil {
		return ""
	}
	if strings.TrimSpace(outcome.Answer) != "" {
		return strings.TrimSpace(outcome.Answer)
	}
	return strings.Join(outcome.Findings, " ")
}

// minPathTokenRunes 路径判定的最小词长：更短的词即使含 / 也放行（如 "a/b"）
const minPathTokenRunes = 3

// fileExtensionPattern 源码文件扩展名
var fileExtensionPattern = regexp.MustCompile(`\.(ts|js|tsx|jsx|go|py|java|rb|php|cs)\b`)

// technicalVocabularyPattern 技术词汇黑名单（词边界匹配，profile 不会因 file 误伤）
var technicalVocabularyPattern = regexp.MustCompile(`(?i)\b(` +
	`controller|repository|middleware|schema|sql|database|endpoint|` +
	`backend|frontend|refactor|dependency|deploy|runtime|compile|` +
	`exception|stack trace|null|boolean|struct|goroutine|` +
	`import|module|file|path|entity|graph|relationship|function|class|snippet` +
	`)\b`)

// SanitizeProductAnswer 面向用户回答的最终防火墙
// 含路径样式词、源码扩展名或技术词汇的回答一律拒绝（ok=false），
// 调用方改用确定性兜底回答
func SanitizeProductAnswer(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	for _, token := range strings.Fields(trimmed) {
		if len([]rune(token)) > minPathTokenRunes && strings.Contains(token, "/") {
			return "", false
		}
	}

	if fileExtensionPattern.MatchString(trimmed) {
		return "", false
	}

	if technicalVocabularyPattern.MatchString(trimmed) {
		return "", false
	}

	return trimmed, true
}
