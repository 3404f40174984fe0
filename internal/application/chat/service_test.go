package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChat "github.com/repolens/backend/internal/domain/chat"
	"github.com/repolens/backend/internal/domain/events"
	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/aiconfig"
	"github.com/repolens/backend/internal/infrastructure/telemetry"
)

// chatTestEnv 问答服务及其全部测试替身
type chatTestEnv struct {
	svc      *ChatService
	provider *AIProvider
	manager  *aiconfig.Manager
	bus      events.EventBus
	entities *fakeEntityRepo
	rels     *fakeRelationshipRepo
	memory   *fakeMemoryRepo
	queue    *fakeBackfillQueue
}

// newChatTestEnv 组装问答服务，AI 服务默认全部未配置
func newChatTestEnv(t *testing.T) *chatTestEnv {
	t.Setenv("REPOLENS_DATA_DIR", t.TempDir())
	manager, err := aiconfig.NewManager()
	require.NoError(t, err)

	bus := telemetry.NewEventBus()
	t.Cleanup(bus.Close)
	provider := NewAIProvider(manager, bus)
	t.Cleanup(provider.Close)

	env := &chatTestEnv{
		provider: provider,
		manager:  manager,
		bus:      bus,
		entities: &fakeEntityRepo{},
		rels:     &fakeRelationshipRepo{},
		memory:   &fakeMemoryRepo{},
		queue:    &fakeBackfillQueue{},
	}
	registry := newFakeRegistry(&knowledge.Repository{ID: "repo-1", Name: "shopfront"})
	env.svc = NewChatService(env.entities, env.rels, env.memory, env.queue, registry, provider, bus)
	return env
}

// configureLLM 把 LLM 配置指向给定地址并立即重载客户端
func (env *chatTestEnv) configureLLM(t *testing.T, baseURL string) {
	require.NoError(t, env.manager.WriteConfig(&aiconfig.AIConfig{
		LLM: aiconfig.LLMSection{BaseURL: baseURL, Model: "test-model"},
	}))
	env.provider.Reload()
}

// seedCheckoutKnowledge 放入一组测试实体与关系
func (env *chatTestEnv) seedCheckoutKnowledge() {
	env.entities.entities = []*knowledge.Entity{
		{ID: "e1", RepositoryID: "repo-1", Name: "checkout_handler", Kind: "function", FilePath: "src/billing/checkout.ts", Domain: "billing"},
		{ID: "e2", RepositoryID: "repo-1", Name: "checkout_store", Kind: "class", FilePath: "src/billing/store.ts", Domain: "billing"},
		{ID: "e3", RepositoryID: "repo-1", Name: "checkout_validator", Kind: "function", FilePath: "src/billing/validate.ts", Domain: "billing"},
	}
	env.rels.relationships = []*knowledge.Relationship{
		{RepositoryID: "repo-1", Source: "checkout_handler", Target: "checkout_store", Kind: "calls"},
	}
}

// scriptedLLMServer 按调用顺序回放脚本回复的 OpenAI 兼容服务
// 脚本用尽后重复最后一条
func scriptedLLMServer(t *testing.T, replies ...string) *httptest.Server {
	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		reply := replies[len(replies)-1]
		if calls < len(replies) {
			reply = replies[calls]
		}
		calls++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, reply)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestChatService_GreetingShortCircuit(t *testing.T) {
	env := newChatTestEnv(t)
	env.seedCheckoutKnowledge()

	completed := make(chan *events.PipelineCompletedEvent, 1)
	unsubscribe := env.bus.Subscribe(events.PipelineCompleted, events.HandlerFunc(func(event events.Event) error {
		if e, ok := event.(*events.PipelineCompletedEvent); ok {
			completed <- e
		}
		return nil
	}))
	defer unsubscribe()

	resp, err := env.svc.AskQuestion(context.Background(), &AskRequest{
		RepositoryID: "repo-1",
		Question:     "hi",
		Debug:        true,
	})
	require.NoError(t, err)

	assert.Equal(t, string(domainChat.IntentGreeting), resp.Intent)
	assert.Equal(t, domainChat.ConfidenceHigh, resp.Confidence)
	assert.Contains(t, resp.Answer, "shopfront")
	assert.NotEmpty(t, resp.SessionID, "服务端生成会话 ID")

	// 寒暄不触发任何存储读取
	assert.Zero(t, env.entities.totalReadCalls())
	assert.Zero(t, env.rels.sourceCalls+env.rels.targetCalls)
	assert.Zero(t, env.memory.recallCalls)

	require.NotNil(t, resp.Debug)
	assert.Equal(t, events.StageStatusOK, resp.Debug.StageStatus(events.StageFrontdesk))
	assert.Empty(t, resp.Debug.StageStatus(events.StageRetrieve), "检索阶段未执行")

	select {
	case event := <-completed:
		assert.Equal(t, string(domainChat.IntentGreeting), event.Intent)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline completed event not published")
	}
}

func TestChatService_EmptyQuestion(t *testing.T) {
	env := newChatTestEnv(t)

	_, err := env.svc.AskQuestion(context.Background(), &AskRequest{
		RepositoryID: "repo-1",
		Question:     "   ",
	})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestChatService_UnknownRepository(t *testing.T) {
	env := newChatTestEnv(t)

	_, err := env.svc.AskQuestion(context.Background(), &AskRequest{
		RepositoryID: "ghost",
		Question:     "how does checkout work",
	})
	assert.ErrorIs(t, err, knowledge.ErrRepositoryNotFound)
}

func TestChatService_NoEvidenceFallback(t *testing.T) {
	env := newChatTestEnv(t)

	resp, err := env.svc.AskQuestion(context.Background(), &AskRequest{
		RepositoryID: "repo-1",
		Question:     "how does the export pipeline work",
		Debug:        true,
	})
	require.NoError(t, err)

	assert.Equal(t, domainChat.ConfidenceLow, resp.Confidence)
	assert.Contains(t, resp.Answer, `"how does the export pipeline work"`, "低证据回答引用原问题")
	assert.Contains(t, resp.Answer, "could not find enough information")

	require.NotNil(t, resp.Debug)
	assert.Equal(t, SeedSourceNone, resp.Debug.SeedSource)
	assert.Equal(t, events.StageStatusSkipped, resp.Debug.StageStatus(events.StageGraph))
	assert.Equal(t, events.StageStatusSkipped, resp.Debug.StageStatus(events.StageTranslate))

	// 没有种子就没有事后写操作
	assert.Zero(t, env.queue.taskCount())
	assert.Zero(t, env.memory.entryCount())
}

func TestChatService_DeterministicAnswerWithoutLLM(t *testing.T) {
	env := newChatTestEnv(t)
	env.seedCheckoutKnowledge()

	resp, err := env.svc.AskQuestion(context.Background(), &AskRequest{
		SessionID:    "sess-1",
		RepositoryID: "repo-1",
		Question:     "how do customers pay at checkout",
		Debug:        true,
	})
	require.NoError(t, err)

	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Contains(t, resp.Answer, "Here is how this part of the product works:")
	assert.Contains(t, resp.Answer, "1. The product receives the request.")
	assert.Contains(t, resp.Answer, "Confidence is moderate.")
	assert.Equal(t, domainChat.ConfidenceModerate, resp.Confidence)

	require.NotNil(t, resp.Debug)
	assert.Equal(t, events.StageStatusFallback, resp.Debug.StageStatus(events.StageIntent), "未配置 LLM 走确定性分类")
	assert.Equal(t, events.StageStatusOK, resp.Debug.StageStatus(events.StageRetrieve))
	assert.Equal(t, SeedSourceKeyword, resp.Debug.SeedSource)
	assert.Equal(t, events.StageStatusSkipped, resp.Debug.StageStatus(events.StageRerank))
	assert.Equal(t, events.StageStatusFallback, resp.Debug.StageStatus(events.StageReason))
	assert.Equal(t, events.StageStatusSkipped, resp.Debug.StageStatus(events.StageTranslate))

	// 种子实体异步写入会话记忆与回填队列
	require.Eventually(t, func() bool { return env.memory.entryCount() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return env.queue.taskCount() == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestChatService_MemoryWeightGrowsAcrossTurns(t *testing.T) {
	env := newChatTestEnv(t)
	env.seedCheckoutKnowledge()

	ask := func() {
		_, err := env.svc.AskQuestion(context.Background(), &AskRequest{
			SessionID:    "sess-1",
			RepositoryID: "repo-1",
			Question:     "how do customers pay at checkout",
		})
		require.NoError(t, err)
	}

	ask()
	require.Eventually(t, func() bool { return env.memory.weightOf("e1") == 1 }, 2*time.Second, 10*time.Millisecond)

	ask()
	require.Eventually(t, func() bool { return env.memory.weightOf("e1") == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestChatService_FullPipelineWithLLM(t *testing.T) {
	env := newChatTestEnv(t)
	env.seedCheckoutKnowledge()

	server := scriptedLLMServer(t,
		`{"intent":"product_feature","confidence":0.9,"objective":"how checkout works","keywords":["checkout"],"domains":["billing"]}`,
		`{"terms":["payment"]}`,
		`{"anchors":["checkout flow"]}`,
		`{"answer":"Customers pay through a checkout that saves their order.","confidence":"high","findings":["orders are saved at checkout"]}`,
		`Customers pay through a checkout screen, and their order is saved right away.`,
	)
	env.configureLLM(t, server.URL)

	resp, err := env.svc.AskQuestion(context.Background(), &AskRequest{
		RepositoryID: "repo-1",
		Question:     "how does checkout work",
		Debug:        true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Customers pay through a checkout screen, and their order is saved right away.", resp.Answer)
	assert.Equal(t, domainChat.ConfidenceHigh, resp.Confidence)
	assert.Equal(t, string(domainChat.IntentProductFeature), resp.Intent)

	require.NotNil(t, resp.Debug)
	assert.Equal(t, events.StageStatusOK, resp.Debug.StageStatus(events.StageIntent))
	assert.Equal(t, events.StageStatusOK, resp.Debug.StageStatus(events.StageExpand))
	assert.Equal(t, events.StageStatusOK, resp.Debug.StageStatus(events.StageReason))
	assert.Equal(t, events.StageStatusOK, resp.Debug.StageStatus(events.StageTranslate))
}

func TestChatService_SanitizerRejectionFallsBack(t *testing.T) {
	env := newChatTestEnv(t)
	env.seedCheckoutKnowledge()

	// 翻译结果泄漏了文件名，消毒带拦截后退回确定性叙事
	server := scriptedLLMServer(t,
		`{"intent":"product_feature","confidence":0.9,"objective":"how checkout works","keywords":["checkout"],"domains":["billing"]}`,
		`{"terms":["payment"]}`,
		`{"anchors":["checkout flow"]}`,
		`{"answer":"Customers pay through a checkout that saves their order.","confidence":"high","findings":["orders are saved at checkout"]}`,
		`The checkout controller.ts file handles this.`,
	)
	env.configureLLM(t, server.URL)

	resp, err := env.svc.AskQuestion(context.Background(), &AskRequest{
		RepositoryID: "repo-1",
		Question:     "how does checkout work",
		Debug:        true,
	})
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "Here is how this part of the product works:")
	assert.NotContains(t, resp.Answer, "controller.ts")
	assert.Equal(t, domainChat.ConfidenceModerate, resp.Confidence)

	require.NotNil(t, resp.Debug)
	assert.Equal(t, events.StageStatusFallback, resp.Debug.StageStatus(events.StageTranslate))
}

func TestChatService_LLMFailureFallsBackEverywhere(t *testing.T) {
	env := newChatTestEnv(t)
	env.seedCheckoutKnowledge()

	// 服务返回 500，所有 LLM 阶段都应落回确定性路径
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	env.configureLLM(t, server.URL)

	resp, err := env.svc.AskQuestion(context.Background(), &AskRequest{
		RepositoryID: "repo-1",
		Question:     "how do customers pay at checkout",
		Debug:        true,
	})
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "Here is how this part of the product works:")
	assert.Equal(t, domainChat.ConfidenceModerate, resp.Confidence)

	require.NotNil(t, resp.Debug)
	assert.Equal(t, events.StageStatusFallback, resp.Debug.StageStatus(events.StageIntent))
	assert.Equal(t, events.StageStatusFallback, resp.Debug.StageStatus(events.StageExpand))
	assert.Equal(t, events.StageStatusFallback, resp.Debug.StageStatus(events.StageReason))
}

func TestChatService_VagueQuestionStillRetrieves(t *testing.T) {
	env := newChatTestEnv(t)
	env.seedCheckoutKnowledge()

	resp, err := env.svc.AskQuestion(context.Background(), &AskRequest{
		RepositoryID: "repo-1",
		Question:     "the thing",
	})
	require.NoError(t, err)

	// 模糊问题被纠偏为仓库总览检索，而不是短路返回澄清
	assert.Equal(t, string(domainChat.IntentRepositoryOverview), resp.Intent)
	assert.NotEmpty(t, resp.Answer)
	assert.Positive(t, env.entities.searchCalls, "corrected question must reach entity retrieval")
}

func TestChatService_PanicRecovery(t *testing.T) {
	env := newChatTestEnv(t)
	// 注入崩溃源：候选加载阶段对 nil 接口调用会 panic
	env.svc.entities = nil

	resp, err := env.svc.AskQuestion(context.Background(), &AskRequest{
		RepositoryID: "repo-1",
		Question:     "how does checkout work",
	})
	require.NoError(t, err, "panic 不得外泄为错误")

	assert.Equal(t, domainChat.ConfidenceLow, resp.Confidence)
	assert.Contains(t, resp.Answer, "Something went wrong")
	assert.NotEmpty(t, resp.SessionID)
}
