package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/repolens/backend/internal/domain/events"
	"github.com/repolens/backend/internal/infrastructure/aiconfig"
	"github.com/repolens/backend/internal/infrastructure/embedding"
	"github.com/repolens/backend/internal/infrastructure/llm"
	"github.com/repolens/backend/internal/infrastructure/vector"
	"github.com/repolens/backend/internal/interfaces/http/response"
)

// connectivityProbeTimeout 连通性测试总超时
const connectivityProbeTimeout = 15 * time.Second

// SettingsHandler AI 配置接口处理器
type SettingsHandler struct {
	manager *aiconfig.Manager
	bus     events.EventBus
}

// NewSettingsHandler 创建配置处理器
func NewSettingsHandler(manager *aiconfig.Manager, bus events.EventBus) *SettingsHandler {
	return &SettingsHandler{manager: manager, bus: bus}
}

// GetAIConfig 获取 AI 配置（密钥遮蔽）
// @Summary 获取 AI 配置
// @Tags settings
// @Produce json
// @Success 200 {object} response.Response{data=aiconfig.AIConfig}
// @Router /settings/ai [get]
func (h *SettingsHandler) GetAIConfig(c *gin.Context) {
	cfg, err := h.manager.ReadConfig()
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 500, "failed to read AI config", err.Error())
		return
	}

	masked := *cfg
	masked.LLM.APIKey = aiconfig.MaskAPIKey(cfg.LLM.APIKey)
	masked.Embedding.APIKey = aiconfig.MaskAPIKey(cfg.Embedding.APIKey)
	masked.Vector.APIKey = aiconfig.MaskAPIKey(cfg.Vector.APIKey)
	response.Success(c, masked)
}

// UpdateAIConfig 更新 AI 配置并发布配置更新事件
// @Summary 更新 AI 配置
// @Description 空密钥或遮蔽回显字段保留已存储的密钥，便于客户端原样回传 GET 的配置
// @Tags settings
// @Accept json
// @Produce json
// @Param request body aiconfig.AIConfig true "AI 配置"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /settings/ai [put]
func (h *SettingsHandler) UpdateAIConfig(c *gin.Context) {
	var incoming aiconfig.AIConfig
	if err := c.ShouldBindJSON(&incoming); err != nil {
		response.Error(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}

	current, err := h.manager.ReadConfig()
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 500, "failed to read AI config", err.Error())
		return
	}

	// 空密钥或回传的遮蔽值均视为"保持不变"，客户端原样回传 GET 结果不会抹掉真实密钥
	incoming.LLM.APIKey = resolveAPIKey(incoming.LLM.APIKey, current.LLM.APIKey)
	incoming.Embedding.APIKey = resolveAPIKey(incoming.Embedding.APIKey, current.Embedding.APIKey)
	incoming.Vector.APIKey = resolveAPIKey(incoming.Vector.APIKey, current.Vector.APIKey)

	if err := h.manager.WriteConfig(&incoming); err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 500, "failed to write AI config", err.Error())
		return
	}

	// 文件监听器也会发同一事件，订阅方容忍重复触发
	h.bus.Publish(&events.ConfigUpdatedEvent{
		Source:              "api",
		LLMConfigured:       incoming.LLMConfigured(),
		EmbeddingConfigured: incoming.EmbeddingConfigured(),
		VectorConfigured:    incoming.VectorConfigured(),
		EventTime:           time.Now(),
	})

	response.Success(c, nil)
}

// resolveAPIKey 归一化提交的密钥：空值或遮蔽回显保留已存储密钥
func resolveAPIKey(submitted, stored string) string {
	if submitted == "" || submitted == aiconfig.MaskAPIKey(stored) {
		return stored
	}
	return submitted
}

// probeResult 单项连通性测试结果
type probeResult struct {
	// Configured 是否已配置
	Configured bool `json:"configured"`
	// OK 测试是否通过（未配置时为 false）
	OK bool `json:"ok"`
	// Detail 维度探测结果或错误信息
	Detail string `json:"detail,omitempty"`
}

// connectivityReport 连通性测试汇总
type connectivityReport struct {
	LLM       probeResult `json:"llm"`
	Embedding probeResult `json:"embedding"`
	Vector    probeResult `json:"vector"`
}

// TestAIConfig 对当前配置做连通性测试
// @Summary 测试 AI 配置连通性
// @Description 用临时客户端分别探测 LLM、Embedding 与向量库
// @Tags settings
// @Produce json
// @Success 200 {object} response.Response{data=connectivityReport}
// @Router /settings/ai/test [post]
func (h *SettingsHandler) TestAIConfig(c *gin.Context) {
	cfg, err := h.manager.ReadConfig()
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 500, "failed to read AI config", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), connectivityProbeTimeout)
	defer cancel()

	var report connectivityReport

	if cfg.LLMConfigured() {
		report.LLM.Configured = true
		client := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Language)
		if err := client.TestConnection(ctx); err != nil {
			report.LLM.Detail = err.Error()
		} else {
			report.LLM.OK = true
		}
	}

	if cfg.EmbeddingConfigured() {
		report.Embedding.Configured = true
		client := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model)
		if dim, err := client.GetVectorDimension(ctx); err != nil {
			report.Embedding.Detail = err.Error()
		} else {
			report.Embedding.OK = true
			report.Embedding.Detail = "dimension " + strconv.Itoa(dim)
		}
	}

	if cfg.VectorConfigured() {
		report.Vector.Configured = true
		manager := vector.NewManager(cfg.Vector.Endpoint, cfg.Vector.APIKey)
		defer manager.Close()
		if err := manager.TestConnection(ctx); err != nil {
			report.Vector.Detail = err.Error()
		} else {
			report.Vector.OK = true
		}
	}

	response.Success(c, report)
}
