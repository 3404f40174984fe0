package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChat "github.com/repolens/backend/internal/domain/chat"
)

// fakeCompleter 测试替身：按预设回包或错误响应补全请求
type fakeCompleter struct {
	reply    string
	err      error
	calls    int
	language string
	// lastUserPrompt 记录最近一次 user 提示词，供断言
	lastUserPrompt string
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, userPrompt string) (string, error) {
	f.calls++
	f.lastUserPrompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) Language() string { return f.language }

func TestSanitizeProductAnswer(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"干净的产品回答", "Users can sign in with Google and stay logged in.", true},
		{"路径样式词", "See src/auth/login for details.", false},
		{"短词中的斜杠放行", "Choose a/b testing options.", true},
		{"源码扩展名", "The controller.ts file handles this.", false},
		{"技术词汇", "The repository pattern stores data.", false},
		{"词边界保护 profile", "Users can edit their profile.", true},
		{"词边界保护 classic", "A classic sign-in flow.", true},
		{"大小写不敏感", "The Database keeps records.", false},
		{"stack trace 两词短语", "A stack trace is printed.", false},
		{"空文本", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sanitized, ok := SanitizeProductAnswer(tt.text)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.NotEmpty(t, sanitized)
			}
		})
	}
}

// TestSanitizeProductAnswer_SupplementedVocabulary 追加的技术词同样被拦截
func TestSanitizeProductAnswer_SupplementedVocabulary(t *testing.T) {
	for _, word := range []string{"import", "module", "file", "path", "entity", "graph", "relationship", "function", "class", "snippet"} {
		_, ok := SanitizeProductAnswer(fmt.Sprintf("This mentions the %s here.", word))
		assert.False(t, ok, "word: %s", word)
	}
}

func TestTranslator_Translate(t *testing.T) {
	translator := NewTranslator()
	outcome := &domainChat.ReasoningOutcome{
		Answer:      "Login is handled via Google.",
		Constraints: []string{"only for registered users"},
	}

	completer := &fakeCompleter{reply: "Users sign in with their Google account."}
	translated, err := translator.Translate(context.Background(), completer, "find out how sign-in works", outcome)
	require.NoError(t, err)
	assert.Equal(t, "Users sign in with their Google account.", translated)
	assert.Contains(t, completer.lastUserPrompt, "only for registered users", "约束应进入提示词")

	// 未配置 LLM 时直接报错，由调用方降级
	_, err = translator.Translate(context.Background(), nil, "", outcome)
	assert.Error(t, err)

	// 空回包同样视为失败
	completer = &fakeCompleter{reply: "   "}
	_, err = translator.Translate(context.Background(), completer, "", outcome)
	assert.Error(t, err)
}

func TestRawReasoningText(t *testing.T) {
	assert.Equal(t, "", RawReasoningText(nil))
	assert.Equal(t, "direct answer", RawReasoningText(&domainChat.ReasoningOutcome{Answer: " direct answer "}))
	assert.Equal(t, "found a found b", RawReasoningText(&domainChat.ReasoningOutcome{
		Findings: []string{"found a", "found b"},
	}))
}
