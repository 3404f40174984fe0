package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/repolens/backend/internal/application/ingest"
	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/interfaces/http/response"
)

// RepositoryHandler 仓库与知识快照接口处理器
type RepositoryHandler struct {
	snapshots *ingest.SnapshotService
}

// NewRepositoryHandler 创建仓库处理器
func NewRepositoryHandler(snapshots *ingest.SnapshotService) *RepositoryHandler {
	return &RepositoryHandler{snapshots: snapshots}
}

// List 列出已注册仓库
// @Summary 仓库列表
// @Tags repository
// @Produce json
// @Success 200 {object} response.Response{data=[]knowledge.Repository}
// @Router /repositories [get]
func (h *RepositoryHandler) List(c *gin.Context) {
	repos, err := h.snapshots.ListRepositories(c.Request.Context())
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 500, "failed to list repositories", err.Error())
		return
	}
	response.Success(c, repos)
}

// Get 获取单个仓库
// @Summary 仓库详情
// @Tags repository
// @Produce json
// @Param id path string true "仓库 ID"
// @Success 200 {object} response.Response{data=knowledge.Repository}
// @Failure 404 {object} response.ErrorResponse
// @Router /repositories/{id} [get]
func (h *RepositoryHandler) Get(c *gin.Context) {
	repo, err := h.snapshots.GetRepository(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to get repository")
		return
	}
	response.Success(c, repo)
}

// Remove 移除仓库并级联清理关联数据
// @Summary 移除仓库
// @Tags repository
// @Produce json
// @Param id path string true "仓库 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /repositories/{id} [delete]
func (h *RepositoryHandler) Remove(c *gin.Context) {
	if err := h.snapshots.RemoveRepository(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err, "failed to remove repository")
		return
	}
	response.Success(c, nil)
}

// IngestSnapshot 摄取仓库知识快照
// @Summary 摄取知识快照
// @Description 整体替换仓库的实体与关系，并重建向量回填队列
// @Tags repository
// @Accept json
// @Produce json
// @Param id path string true "仓库 ID"
// @Param request body ingest.SnapshotInput true "知识快照"
// @Success 200 {object} response.Response{data=knowledge.SnapshotStats}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /repositories/{id}/snapshot [post]
func (h *RepositoryHandler) IngestSnapshot(c *gin.Context) {
	var input ingest.SnapshotInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}

	stats, err := h.snapshots.IngestSnapshot(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		h.writeError(c, err, "failed to ingest snapshot")
		return
	}
	response.Success(c, stats)
}

// Stats 获取仓库知识快照统计
// @Summary 快照统计
// @Tags repository
// @Produce json
// @Param id path string true "仓库 ID"
// @Success 200 {object} response.Response{data=knowledge.SnapshotStats}
// @Failure 404 {object} response.ErrorResponse
// @Router /repositories/{id}/stats [get]
func (h *RepositoryHandler) Stats(c *gin.Context) {
	stats, err := h.snapshots.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to get snapshot stats")
		return
	}
	response.Success(c, stats)
}

// writeError 按错误类型映射 HTTP 状态码
func (h *RepositoryHandler) writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, knowledge.ErrRepositoryNotFound):
		response.Error(c, http.StatusNotFound, 404, "repository not found")
	case errors.Is(err, ingest.ErrInvalidSnapshot):
		response.Error(c, http.StatusBadRequest, 400, err.Error())
	default:
		response.ErrorWithDetail(c, http.StatusInternalServerError, 500, message, err.Error())
	}
}
