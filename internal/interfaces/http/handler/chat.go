package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/repolens/backend/internal/application/chat"
	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/interfaces/http/response"
)

// ChatHandler 问答接口处理器
type ChatHandler struct {
	svc *chat.ChatService
}

// NewChatHandler 创建问答处理器
func NewChatHandler(svc *chat.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// askRequest 问答请求体
type askRequest struct {
	RepositoryID string      `json:"repository_id" binding:"required"`
	Question     string      `json:"question" binding:"required"`
	SessionID    string      `json:"session_id"`
	History      []chat.Turn `json:"history"`
	Debug        bool        `json:"debug"`
}

// Ask 回答一个关于仓库的问题
// @Summary 仓库问答
// @Description 基于仓库知识图谱回答自然语言问题，LLM 不可用时走确定性降级
// @Tags chat
// @Accept json
// @Produce json
// @Param request body askRequest true "问答请求"
// @Success 200 {object} response.Response{data=chat.AskResponse}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /chat/ask [post]
func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}

	resp, err := h.svc.AskQuestion(c.Request.Context(), &chat.AskRequest{
		SessionID:    req.SessionID,
		RepositoryID: req.RepositoryID,
		Question:     req.Question,
		History:      req.History,
		Debug:        req.Debug,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyQuestion):
			response.Error(c, http.StatusBadRequest, 400, err.Error())
		case errors.Is(err, knowledge.ErrRepositoryNotFound):
			response.Error(c, http.StatusNotFound, 404, "repository not found: "+req.RepositoryID)
		default:
			response.ErrorWithDetail(c, http.StatusInternalServerError, 500, "failed to answer question", err.Error())
		}
		return
	}

	response.Success(c, resp)
}
