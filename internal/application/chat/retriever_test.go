package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repolens/backend/internal/domain/knowledge"
)

func TestEntityRetriever_KeywordHit(t *testing.T) {
	repo := &fakeEntityRepo{entities: []*knowledge.Entity{
		{ID: "e1", RepositoryID: "repo-1", Name: "login_handler", Kind: "function", FilePath: "src/auth/login.ts", Domain: "auth"},
		{ID: "e2", RepositoryID: "repo-1", Name: "session_store", Kind: "class", FilePath: "src/auth/session.ts", Domain: "auth"},
		{ID: "e3", RepositoryID: "repo-1", Name: "invoice_builder", Kind: "function", FilePath: "src/billing/invoice.ts", Domain: "billing"},
	}}
	retriever := NewEntityRetriever(repo)

	result, err := retriever.Retrieve(context.Background(), "repo-1",
		[]string{"login", "session"}, []string{"auth"}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, SeedSourceKeyword, result.Source)
	require.Len(t, result.Seeds, 2)
	assert.Equal(t, "login_handler", result.Seeds[0].Name)
	assert.Equal(t, "session_store", result.Seeds[1].Name)
}

func TestEntityRetriever_RankingOrder(t *testing.T) {
	// e1 命中两个关键词，e2 命中一个关键词加业务域，e3 仅命中业务域
	repo := &fakeEntityRepo{entities: []*knowledge.Entity{
		{ID: "e1", RepositoryID: "repo-1", Name: "login_session_guard", FilePath: "src/misc/guard.ts"},
		{ID: "e2", RepositoryID: "repo-1", Name: "login_page", FilePath: "src/auth/page.ts", Domain: "auth"},
		{ID: "e3", RepositoryID: "repo-1", Name: "auth_login_redirect", FilePath: "src/auth/redirect.ts", Domain: "auth"},
	}}
	retriever := NewEntityRetriever(repo)

	result, err := retriever.Retrieve(context.Background(), "repo-1",
		[]string{"login", "session"}, []string{"auth"}, nil, nil)
	require.NoError(t, err)

	// e1: 2*2=4；e2: 2*1+1=3；e3: 2*1+1=3，同分按名称升序
	require.Len(t, result.Seeds, 3)
	assert.Equal(t, "login_session_guard", result.Seeds[0].Name)
	assert.Equal(t, "auth_login_redirect", result.Seeds[1].Name)
	assert.Equal(t, "login_page", result.Seeds[2].Name)
}

func TestEntityRetriever_MemoryBoostBreaksTie(t *testing.T) {
	repo := &fakeEntityRepo{entities: []*knowledge.Entity{
		{ID: "e1", RepositoryID: "repo-1", Name: "checkout_cart", FilePath: "src/billing/cart.ts"},
		{ID: "e2", RepositoryID: "repo-1", Name: "checkout_total", FilePath: "src/billing/total.ts"},
	}}
	retriever := NewEntityRetriever(repo)

	// 无记忆时按名称排序 e1 在前；e2 带记忆加权后反超
	result, err := retriever.Retrieve(context.Background(), "repo-1",
		[]string{"checkout"}, nil, nil, map[string]bool{"e2": true})
	require.NoError(t, err)

	require.Len(t, result.Seeds, 2)
	assert.Equal(t, "checkout_total", result.Seeds[0].Name)
}

func TestEntityRetriever_ScanKeywordCap(t *testing.T) {
	repo := &fakeEntityRepo{entities: []*knowledge.Entity{
		{ID: "e1", RepositoryID: "repo-1", Name: "alpha", FilePath: "src/a.ts"},
	}}
	retriever := NewEntityRetriever(repo)

	keywords := make([]string, 0, maxScanKeywords+5)
	for i := 0; i < maxScanKeywords+5; i++ {
		keywords = append(keywords, fmt.Sprintf("term%02d", i))
	}
	_, err := retriever.Retrieve(context.Background(), "repo-1", keywords, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, maxScanKeywords, repo.searchCalls, "只下发前 10 个检索词")
}

func TestEntityRetriever_SeedCap(t *testing.T) {
	repo := &fakeEntityRepo{}
	for i := 0; i < maxSeeds+20; i++ {
		repo.entities = append(repo.entities, &knowledge.Entity{
			ID:           fmt.Sprintf("e%03d", i),
			RepositoryID: "repo-1",
			Name:         fmt.Sprintf("payment_worker_%03d", i),
			FilePath:     "src/billing/worker.ts",
		})
	}
	retriever := NewEntityRetriever(repo)

	result, err := retriever.Retrieve(context.Background(), "repo-1", []string{"payment"}, nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, result.Seeds, maxSeeds)
}

func TestEntityRetriever_DomainFallback(t *testing.T) {
	repo := &fakeEntityRepo{entities: []*knowledge.Entity{
		{ID: "e1", RepositoryID: "repo-1", Name: "invoice_builder", FilePath: "src/billing/invoice.ts", Domain: "billing"},
		{ID: "e2", RepositoryID: "repo-1", Name: "checkout_flow", FilePath: "src/billing/checkout.ts", Domain: "billing"},
	}}
	retriever := NewEntityRetriever(repo)

	// 关键词全部落空，业务域锚点接住
	result, err := retriever.Retrieve(context.Background(), "repo-1",
		[]string{"zzz"}, []string{"billing"}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, SeedSourceDomainFallback, result.Source)
	require.Len(t, result.Seeds, 2)
	assert.Equal(t, "checkout_flow", result.Seeds[0].Name, "降级结果按名称排序")
	assert.Equal(t, 1, repo.domainCalls)
}

func TestEntityRetriever_FallbackTermScan(t *testing.T) {
	repo := &fakeEntityRepo{entities: []*knowledge.Entity{
		{ID: "e1", RepositoryID: "repo-1", Name: "report_export", FilePath: "src/report/export.ts"},
	}}
	retriever := NewEntityRetriever(repo)

	// 关键词与业务域都落空，兜底词表再扫一轮
	result, err := retriever.Retrieve(context.Background(), "repo-1",
		[]string{"zzz"}, []string{"nonexistent"}, []string{"  report%  "}, nil)
	require.NoError(t, err)

	assert.Equal(t, SeedSourceDomainFallback, result.Source)
	require.Len(t, result.Seeds, 1)
	assert.Equal(t, "report_export", result.Seeds[0].Name)
}

func TestEntityRetriever_NoMatch(t *testing.T) {
	retriever := NewEntityRetriever(&fakeEntityRepo{})

	result, err := retriever.Retrieve(context.Background(), "repo-1",
		[]string{"zzz"}, []string{"ghost"}, []string{"phantom"}, nil)
	require.NoError(t, err)

	assert.Equal(t, SeedSourceNone, result.Source)
	assert.Empty(t, result.Seeds)
}

func TestEntityRetriever_SearchError(t *testing.T) {
	repo := &fakeEntityRepo{searchErr: errors.New("disk exploded")}
	retriever := NewEntityRetriever(repo)

	_, err := retriever.Retrieve(context.Background(), "repo-1", []string{"login"}, nil, nil, nil)
	assert.Error(t, err)
}
