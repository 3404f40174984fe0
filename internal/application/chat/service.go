package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainChat "github.com/repolens/backend/internal/domain/chat"
	"github.com/repolens/backend/internal/domain/events"
	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/log"
)

// ErrEmptyQuestion 问题为空
var ErrEmptyQuestion = errors.New("question must not be empty")

const (
	// candidateScanLimit 候选实体扫描上限
	candidateScanLimit = 500
	// memoryRecallLimit 会话记忆取回上限
	memoryRecallLimit = 30
	// dominantDomainLimit 主导业务域提取上限
	dominantDomainLimit = 8
)

// Turn 一轮历史对话
type Turn struct {
	// Role 角色（user/assistant）
	Role string `json:"role"`
	// Content 内容
	Content string `json:"content"`
}

// AskRequest 问答请求
type AskRequest struct {
	// SessionID 会话 ID，为空时自动生成
	SessionID string `json:"session_id"`
	// RepositoryID 仓库 ID
	RepositoryID string `json:"repository_id"`
	// Question 自然语言问题
	Question string `json:"question"`
	// History 最近的历史对话（可选）
	History []Turn `json:"history,omitempty"`
	// Debug 为 true 时响应携带流水线轨迹
	Debug bool `json:"debug,omitempty"`
}

// AskResponse 问答响应
type AskResponse struct {
	// SessionID 本轮使用的会话 ID，客户端续聊时回传
	SessionID string `json:"session_id"`
	// Answer 回答文本
	Answer string `json:"answer"`
	// Confidence 回答置信度（high/moderate/low）
	Confidence string `json:"confidence"`
	// Intent 识别出的问题意图
	Intent string `json:"intent"`
	// Debug 流水线轨迹（仅 Debug 请求返回）
	Debug *PipelineTrace `json:"debug,omitempty"`
}

// ChatService 问答编排服务
// 串起整条流水线：前台短路 → 意图识别 → 检索词扩展 → 实体检索 →
// 图谱扩展 → 向量重排 → 推理 → 产品化翻译，每一步都有确定性降级；
// 校验通过后的任何内部失败（包括 panic）都被转换为兜底回答
type ChatService struct {
	entities      knowledge.EntityRepository
	relationships knowledge.RelationshipRepository
	memory        domainChat.SessionMemoryRepository
	backfillQueue knowledge.BackfillQueueRepository
	registry      knowledge.RepositoryRegistry

	provider   *AIProvider
	frontdesk  *Frontdesk
	classifier *IntentClassifier
	extractor  *KeywordExtractor
	expander   *QueryExpander
	retriever  *EntityRetriever
	graph      *GraphExpander
	reranker   *Reranker
	reasoner   *Reasoner
	translator *Translator

	bus    events.EventBus
	logger *slog.Logger
}

// NewChatService 创建问答编排服务
func NewChatService(
	entities knowledge.EntityRepository,
	relationships knowledge.RelationshipRepository,
	memory domainChat.SessionMemoryRepository,
	backfillQueue knowledge.BackfillQueueRepository,
	registry knowledge.RepositoryRegistry,
	provider *AIProvider,
	bus events.EventBus,
) *ChatService {
	extractor := NewKeywordExtractor()
	return &ChatService{
		entities:      entities,
		relationships: relationships,
		memory:        memory,
		backfillQueue: backfillQueue,
		registry:      registry,
		provider:      provider,
		frontdesk:     NewFrontdesk(),
		classifier:    NewIntentClassifier(extractor),
		extractor:     extractor,
		expander:      NewQueryExpander(extractor),
		retriever:     NewEntityRetriever(entities),
		graph:         NewGraphExpander(relationships, entities),
		reranker:      NewReranker(),
		reasoner:      NewReasoner(),
		translator:    NewTranslator(),
		bus:           bus,
		logger:        log.NewModuleLogger("chat", "service"),
	}
}

// AskQuestion 回答一个关于仓库的问题
// 仅空问题与未注册仓库返回错误；之后的所有失败都落到兜底回答
func (s *ChatService) AskQuestion(ctx context.Context, req *AskRequest) (resp *AskResponse, err error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	repo, err := s.registry.Get(ctx, req.RepositoryID)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	budgets := s.provider.Pipeline()
	trace := newPipelineTrace(int64(budgets.TotalSoftMS))

	// 永不抛出边界：panic 转换为通用安全回答
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("chat pipeline panicked", "panic", r, "repository_id", repo.ID)
			answer, confidence := BuildSafeAnswer()
			resp = s.finish(trace, sessionID, repo.ID, &AskResponse{
				SessionID:  sessionID,
				Answer:     answer,
				Confidence: confidence,
				Intent:     string(domainChat.IntentGeneralQuestion),
			}, req.Debug)
			err = nil
		}
	}()

	// 阶段一：前台问候短路，寒暄不触发任何检索
	start := time.Now()
	if s.frontdesk.Match(question) {
		s.emitStage(trace, sessionID, repo.ID, events.StageFrontdesk, events.StageStatusOK, start, "greeting short-circuit")
		return s.finish(trace, sessionID, repo.ID, &AskResponse{
			SessionID:  sessionID,
			Answer:     s.frontdesk.Answer(repo.Name),
			Confidence: domainChat.ConfidenceHigh,
			Intent:     string(domainChat.IntentGreeting),
		}, req.Debug), nil
	}
	s.emitStage(trace, sessionID, repo.ID, events.StageFrontdesk, events.StageStatusOK, start, "pass")

	// 阶段二：加载候选实体与业务域；失败按空集处理，流水线继续
	candidates, candErr := s.entities.ListByRepository(ctx, repo.ID, candidateScanLimit)
	if candErr != nil {
		s.logger.Warn("failed to load candidate entities", "error", candErr)
	}
	domains, domErr := s.entities.ListDomains(ctx, repo.ID)
	if domErr != nil {
		s.logger.Warn("failed to load domain list", "error", domErr)
	}
	if len(domains) == 0 {
		domains = s.extractor.ExtractDominantDomains(candidates, dominantDomainLimit)
	}
	fallbackTerms := s.extractor.ExtractDominantDomains(candidates, dominantDomainLimit)

	// 阶段三：会话记忆召回
	start = time.Now()
	memoryIDs := s.recallMemory(ctx, sessionID, repo.ID)
	s.emitStage(trace, sessionID, repo.ID, events.StageMemory, events.StageStatusOK, start, fmt.Sprintf("recalled %d", len(memoryIDs)))

	completer := s.provider.Completer()

	// 阶段四：意图识别
	start = time.Now()
	intentCtx, cancel := stageContext(ctx, budgets.IntentMS)
	intent, intentFromLLM := s.classifier.Classify(intentCtx, completer, question, domains, req.History)
	intentTimedOut := intentCtx.Err() != nil
	cancel()
	s.emitStage(trace, sessionID, repo.ID, events.StageIntent,
		llmStageStatus(intentFromLLM, completer != nil, intentTimedOut),
		start, string(intent.Intent))

	if intent.Intent == domainChat.IntentGreeting {
		return s.finish(trace, sessionID, repo.ID, &AskResponse{
			SessionID:  sessionID,
			Answer:     s.frontdesk.Answer(repo.Name),
			Confidence: domainChat.ConfidenceHigh,
			Intent:     string(domainChat.IntentGreeting),
		}, req.Debug), nil
	}

	// 过于模糊的问题不中断流程：纠偏为仓库总览意图并重播关键词后继续检索
	if s.classifier.IsVague(question, intent) {
		s.classifier.CorrectVague(intent, question, fallbackTerms)
	}

	// 阶段五：检索词扩展与锚点生成
	start = time.Now()
	questionKeywords := s.extractor.ExtractKeywords(question)
	expandCtx, cancel := stageContext(ctx, budgets.ExpandMS)
	expanded, expandFromLLM := s.expander.Expand(expandCtx, completer, questionKeywords, intent.Domains)
	cancel()
	anchorCtx, cancel := stageContext(ctx, budgets.AnchorsMS)
	anchors, _ := s.expander.GenerateFlowAnchors(anchorCtx, completer, question, intent.Intent, intent.Domains)
	cancel()
	anchorTerms := s.extractor.ExtractAnchorTerms(anchors)
	searchTerms := s.extractor.MergeSearchTerms(questionKeywords, intent.Keywords, expanded, anchorTerms, intent.Domains)
	s.emitStage(trace, sessionID, repo.ID, events.StageExpand,
		llmStageStatus(expandFromLLM, completer != nil, false),
		start, fmt.Sprintf("%d terms", len(searchTerms)))

	// 阶段六：实体检索
	start = time.Now()
	retrieval, retrErr := s.retriever.Retrieve(ctx, repo.ID, searchTerms, intent.Domains, fallbackTerms, memoryIDs)
	if retrErr != nil {
		s.logger.Warn("entity retrieval failed", "error", retrErr)
		retrieval = &RetrievalResult{Source: SeedSourceNone}
	}
	trace.SeedCount = len(retrieval.Seeds)
	trace.SeedSource = retrieval.Source
	retrieveStatus := events.StageStatusOK
	if retrieval.Source == SeedSourceDomainFallback {
		retrieveStatus = events.StageStatusFallback
	}
	s.emitStage(trace, sessionID, repo.ID, events.StageRetrieve, retrieveStatus,
		start, fmt.Sprintf("%d seeds (%s)", len(retrieval.Seeds), retrieval.Source))

	// 两条检索路径都落空：跳过后续阶段，低证据兜底回答
	if len(retrieval.Seeds) == 0 {
		for _, stage := range []string{events.StageGraph, events.StageRerank, events.StageReason, events.StageTranslate} {
			s.skipStage(trace, sessionID, repo.ID, stage, "no seeds")
		}
		answer, confidence := BuildFallbackAnswer(question, EmptyEvidence())
		return s.finish(trace, sessionID, repo.ID, &AskResponse{
			SessionID:  sessionID,
			Answer:     answer,
			Confidence: confidence,
			Intent:     string(intent.Intent),
		}, req.Debug), nil
	}

	// 阶段七：图谱一跳扩展
	start = time.Now()
	evidence, graphErr := s.graph.Expand(ctx, repo.ID, retrieval.Seeds)
	if graphErr != nil {
		s.logger.Warn("graph expansion failed", "error", graphErr)
		evidence = &Evidence{Seeds: retrieval.Seeds}
	}
	trace.EdgeCount = len(evidence.Edges)
	trace.RelatedCount = len(evidence.Related)
	s.emitStage(trace, sessionID, repo.ID, events.StageGraph, events.StageStatusOK,
		start, fmt.Sprintf("%d edges, %d related", len(evidence.Edges), len(evidence.Related)))

	// 阶段八：向量重排（可选），任何失败保持原有顺序
	start = time.Now()
	missingVectors := entityIDs(evidence.Seeds)
	embedder, vectors := s.provider.Embedder(), s.provider.Vectors()
	if embedder == nil || vectors == nil {
		s.skipStage(trace, sessionID, repo.ID, events.StageRerank, "embedding not configured")
	} else {
		rerankCtx, cancel := stageContext(ctx, budgets.RerankMS)
		rerank := s.reranker.Rerank(rerankCtx, embedder, vectors, question, evidence.Seeds)
		cancel()
		if rerank.Applied {
			evidence.Seeds = rerank.Seeds
			missingVectors = rerank.MissingVectors
			s.emitStage(trace, sessionID, repo.ID, events.StageRerank, events.StageStatusOK, start, "cosine + positional prior")
		} else {
			s.emitStage(trace, sessionID, repo.ID, events.StageRerank, events.StageStatusFallback, start, "passthrough")
		}
	}

	// 阶段九：LLM 推理
	start = time.Now()
	reasonCtx, cancel := stageContext(ctx, budgets.ReasoningMS)
	outcome := s.reasoner.Reason(reasonCtx, completer, intent.Objective, question, evidence, budgets.ReasoningTokenBudget)
	reasonTimedOut := reasonCtx.Err() != nil
	cancel()
	s.emitStage(trace, sessionID, repo.ID, events.StageReason,
		llmStageStatus(outcome.HasEvidence(), completer != nil, reasonTimedOut),
		start, reasonDetail(outcome))

	// 兜底回答总是先构建好：推理失败时它是回答，翻译被拒时它是安全网
	fallbackAnswer, fallbackConfidence := BuildFallbackAnswer(question, evidence)
	answer, confidence := fallbackAnswer, fallbackConfidence

	// 阶段十：产品化翻译与消毒
	if outcome.HasEvidence() {
		start = time.Now()
		translateCtx, cancel := stageContext(ctx, budgets.TranslateMS)
		candidate, translateErr := s.translator.Translate(translateCtx, completer, intent.Objective, outcome)
		cancel()
		if translateErr != nil {
			s.logger.Warn("product translation failed, sanitizing raw answer", "error", translateErr)
			candidate = RawReasoningText(outcome)
		}
		if sanitized, ok := SanitizeProductAnswer(candidate); ok {
			answer = sanitized
			confidence = normalizeConfidence(outcome.Confidence)
			s.emitStage(trace, sessionID, repo.ID, events.StageTranslate, events.StageStatusOK, start, "")
		} else {
			s.emitStage(trace, sessionID, repo.ID, events.StageTranslate, events.StageStatusFallback, start, "sanitizer rejected")
		}
	} else {
		s.skipStage(trace, sessionID, repo.ID, events.StageTranslate, "no reasoning outcome")
	}

	// 事后写操作均为 fire-and-forget：失败只记日志，不影响回答
	s.persistMemoryAsync(sessionID, repo.ID, evidence.Seeds)
	s.enqueueBackfillAsync(repo.ID, missingVectors)

	return s.finish(trace, sessionID, repo.ID, &AskResponse{
		SessionID:  sessionID,
		Answer:     answer,
		Confidence: confidence,
		Intent:     string(intent.Intent),
	}, req.Debug), nil
}

// recallMemory 召回会话记忆，失败按空集处理
func (s *ChatService) recallMemory(ctx context.Context, sessionID, repositoryID string) map[string]bool {
	memories, err := s.memory.Recall(ctx, sessionID, repositoryID, memoryRecallLimit)
	if err != nil {
		s.logger.Warn("failed to recall session memory", "error", err)
		return nil
	}
	memoryIDs := make(map[string]bool, len(memories))
	for _, memory := range memories {
		memoryIDs[memory.EntityID] = true
	}
	return memoryIDs
}

// persistMemoryAsync 异步记录本轮回答引用的种子实体
func (s *ChatService) persistMemoryAsync(sessionID, repositoryID string, seeds []*knowledge.Entity) {
	ids := entityIDs(seeds)
	if len(ids) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.memory.Upsert(ctx, sessionID, repositoryID, ids); err != nil {
			s.logger.Warn("failed to persist session memory", "error", err)
		}
	}()
}

// enqueueBackfillAsync 异步为缺少向量的实体补录回填任务
func (s *ChatService) enqueueBackfillAsync(repositoryID string, entityIDs []string) {
	if len(entityIDs) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, entityID := range entityIDs {
			task := knowledge.NewBackfillTask(repositoryID, entityID)
			if err := s.backfillQueue.Enqueue(ctx, task); err != nil {
				s.logger.Warn("failed to enqueue backfill task", "entity_id", entityID, "error", err)
				return
			}
		}
	}()
}

// finish 结算轨迹、发布整体完成事件并按需在响应中附带轨迹
func (s *ChatService) finish(trace *PipelineTrace, sessionID, repositoryID string, resp *AskResponse, debug bool) *AskResponse {
	trace.Finish()
	s.bus.Publish(&events.PipelineCompletedEvent{
		SessionID:      sessionID,
		RepositoryID:   repositoryID,
		Intent:         resp.Intent,
		Confidence:     resp.Confidence,
		SeedCount:      trace.SeedCount,
		EdgeCount:      trace.EdgeCount,
		RelatedCount:   trace.RelatedCount,
		TotalElapsedMS: trace.TotalElapsedMS,
		BudgetMS:       trace.BudgetMS,
		OverBudget:     trace.OverBudget,
		EventTime:      time.Now(),
	})
	if debug {
		resp.Debug = trace
	}
	return resp
}

// emitStage 记录阶段轨迹并发布阶段事件
func (s *ChatService) emitStage(trace *PipelineTrace, sessionID, repositoryID, stage, status string, start time.Time, detail string) {
	elapsed := time.Since(start)
	trace.Record(stage, status, elapsed, detail)
	s.bus.Publish(&events.PipelineStageEvent{
		SessionID:    sessionID,
		RepositoryID: repositoryID,
		Stage:        stage,
		Status:       status,
		ElapsedMS:    elapsed.Milliseconds(),
		Detail:       detail,
		EventTime:    time.Now(),
	})
}

// skipStage 记录一个被跳过的阶段
func (s *ChatService) skipStage(trace *PipelineTrace, sessionID, repositoryID, stage, reason string) {
	trace.Record(stage, events.StageStatusSkipped, 0, reason)
	s.bus.Publish(&events.PipelineStageEvent{
		SessionID:    sessionID,
		RepositoryID: repositoryID,
		Stage:        stage,
		Status:       events.StageStatusSkipped,
		Detail:       reason,
		EventTime:    time.Now(),
	})
}

// stageContext 按毫秒预算派生阶段超时
func stageContext(ctx context.Context, budgetMS int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(budgetMS)*time.Millisecond)
}

// llmStageStatus 推断 LLM 相关阶段的事件状态
func llmStageStatus(fromLLM, configured, timedOut bool) string {
	if fromLLM {
		return events.StageStatusOK
	}
	if configured && timedOut {
		return events.StageStatusTimeout
	}
	return events.StageStatusFallback
}

// reasonDetail 推理阶段的事件说明
func reasonDetail(outcome *domainChat.ReasoningOutcome) string {
	if outcome.HasEvidence() {
		return fmt.Sprintf("%d findings", len(outcome.Findings))
	}
	return "no usable outcome"
}

// entityIDs 提取实体 ID 列表
func entityIDs(entities []*knowledge.Entity) []string {
	ids := make([]string, len(entities))
	for i, entity := range entities {
		ids[i] = entity.ID
	}
	return ids
}
