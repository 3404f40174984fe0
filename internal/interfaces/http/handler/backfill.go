package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/repolens/backend/internal/application/backfill"
	"github.com/repolens/backend/internal/interfaces/http/response"
)

// BackfillHandler 向量回填队列接口处理器
type BackfillHandler struct {
	pool *backfill.Pool
}

// NewBackfillHandler 创建回填处理器
func NewBackfillHandler(pool *backfill.Pool) *BackfillHandler {
	return &BackfillHandler{pool: pool}
}

// Stats 获取回填队列统计
// @Summary 回填队列统计
// @Tags backfill
// @Produce json
// @Success 200 {object} response.Response{data=knowledge.BackfillStats}
// @Router /backfill/stats [get]
func (h *BackfillHandler) Stats(c *gin.Context) {
	stats, err := h.pool.Stats(c.Request.Context())
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 500, "failed to get backfill stats", err.Error())
		return
	}
	response.Success(c, gin.H{
		"running": h.pool.IsRunning(),
		"stats":   stats,
	})
}

// Retry 重置全部失败任务
// @Summary 重试失败的回填任务
// @Tags backfill
// @Produce json
// @Success 200 {object} response.Response
// @Router /backfill/retry [post]
func (h *BackfillHandler) Retry(c *gin.Context) {
	count, err := h.pool.RetryFailed(c.Request.Context())
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 500, "failed to reset backfill tasks", err.Error())
		return
	}
	response.Success(c, gin.H{"reset_count": count})
}
