package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ingestTestSnapshot 为指定仓库摄取一份小型知识快照
func ingestTestSnapshot(t *testing.T, router http.Handler, repositoryID string) {
	t.Helper()
	body := `{
		"repository": {"name": "shopfront", "remote_url": "https://github.com/Acme/Shop.git"},
		"entities": [
			{"name": "checkout_handler", "kind": "function", "file_path": "src/billing/checkout.ts", "domain": "billing"},
			{"name": "cart_store", "kind": "class", "file_path": "src/cart/store.ts", "domain": "cart"}
		],
		"relationships": [
			{"source": "checkout_handler", "target": "cart_store", "kind": "calls"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/repositories/"+repositoryID+"/snapshot", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestChatHandler_Ask_MissingFields(t *testing.T) {
	env := newHandlerTestEnv(t)
	router := env.newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/ask", bytes.NewBufferString(`{"question": "where is checkout"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_Ask_RepositoryNotFound(t *testing.T) {
	env := newHandlerTestEnv(t)
	router := env.newTestRouter()

	body := `{"repository_id": "no-such-repo", "question": "where is checkout"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/ask", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatHandler_Ask_DeterministicAnswer(t *testing.T) {
	env := newHandlerTestEnv(t)
	router := env.newTestRouter()
	ingestTestSnapshot(t, router, "repo-1")

	body := `{"repository_id": "repo-1", "question": "哪里处理 checkout？"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/ask", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			SessionID  string `json:"session_id"`
			Answer     string `json:"answer"`
			Confidence string `json:"confidence"`
			Intent     string `json:"intent"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.SessionID)
	assert.NotEmpty(t, resp.Data.Answer)
	assert.NotEmpty(t, resp.Data.Confidence)
}

func TestChatHandler_Ask_SessionIDReused(t *testing.T) {
	env := newHandlerTestEnv(t)
	router := env.newTestRouter()
	ingestTestSnapshot(t, router, "repo-1")

	body := `{"repository_id": "repo-1", "question": "what handles checkout", "session_id": "session-42"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/ask", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			SessionID string `json:"session_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "session-42", resp.Data.SessionID)
}
