package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfillHandler_StatsEmpty(t *testing.T) {
	env := newHandlerTestEnv(t)
	router := env.newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/backfill/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"running":false`)
}

func TestBackfillHandler_StatsAfterSnapshot(t *testing.T) {
	env := newHandlerTestEnv(t)
	router := env.newTestRouter()
	ingestTestSnapshot(t, router, "repo-1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/backfill/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	// 快照摄取为每个实体排入一个待处理任务
	assert.Contains(t, w.Body.String(), `"pending_count":2`)
}

func TestBackfillHandler_RetryEmpty(t *testing.T) {
	env := newHandlerTestEnv(t)
	router := env.newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backfill/retry", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reset_count":0`)
}
