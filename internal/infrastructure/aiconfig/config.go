package aiconfig

// 流水线各阶段默认预算（毫秒）
const (
	// DefaultFrontdeskBudgetMS 前台短路阶段预算
	DefaultFrontdeskBudgetMS = 400
	// DefaultIntentBudgetMS 意图识别阶段预算
	DefaultIntentBudgetMS = 600
	// DefaultExpandBudgetMS 关键词扩展阶段预算
	DefaultExpandBudgetMS = 500
	// DefaultAnchorsBudgetMS 锚点检索阶段预算
	DefaultAnchorsBudgetMS = 500
	// DefaultRerankBudgetMS 向量重排阶段预算
	DefaultRerankBudgetMS = 600
	// DefaultReasoningBudgetMS 推理阶段预算
	DefaultReasoningBudgetMS = 900
	// DefaultTranslateBudgetMS 产品化翻译阶段预算
	DefaultTranslateBudgetMS = 700
	// DefaultTotalSoftBudgetMS 整条流水线软预算（仅记录，不强制中断）
	DefaultTotalSoftBudgetMS = 1900
	// DefaultReasoningTokenBudget 推理 payload 的 token 预算（cl100k_base）
	DefaultReasoningTokenBudget = 2400
)

// LLMSection LLM 服务配置
type LLMSection struct {
	// BaseURL 服务地址（OpenAI 兼容）
	BaseURL string `json:"base_url"`
	// APIKey API 密钥（落盘时加密）
	APIKey string `json:"api_key"`
	// Model 模型名称
	Model string `json:"model"`
	// Language 回答语言偏好（如 en/zh，空则跟随提问）
	Language string `json:"language"`
}

// EmbeddingSection Embedding 服务配置
type EmbeddingSection struct {
	// BaseURL 服务地址（OpenAI 兼容）
	BaseURL string `json:"base_url"`
	// APIKey API 密钥（落盘时加密）
	APIKey string `json:"api_key"`
	// Model 模型名称
	Model string `json:"model"`
	// Dimension 向量维度（0 表示由连通性测试探测）
	Dimension int `json:"dimension"`
}

// VectorSection 向量库配置
type VectorSection struct {
	// Endpoint qdrant gRPC 地址（host:port），为空表示禁用向量库
	Endpoint string `json:"endpoint"`
	// APIKey 访问密钥（可选，落盘时加密）
	APIKey string `json:"api_key"`
}

// PipelineSection 流水线预算配置（零值字段使用默认值）
type PipelineSection struct {
	FrontdeskMS          int `json:"frontdesk_ms"`
	IntentMS             int `json:"intent_ms"`
	ExpandMS             int `json:"expand_ms"`
	AnchorsMS            int `json:"anchors_ms"`
	RerankMS             int `json:"rerank_ms"`
	ReasoningMS          int `json:"reasoning_ms"`
	TranslateMS          int `json:"translate_ms"`
	TotalSoftMS          int `json:"total_soft_ms"`
	ReasoningTokenBudget int `json:"reasoning_token_budget"`
}

// AIConfig AI 配置结构
type AIConfig struct {
	LLM       LLMSection       `json:"llm"`
	Embedding EmbeddingSection `json:"embedding"`
	Vector    VectorSection    `json:"vector"`
	Pipeline  PipelineSection  `json:"pipeline"`
}

// LLMConfigured LLM 服务是否已配置
func (c *AIConfig) LLMConfigured() bool {
	return c.LLM.BaseURL != "" && c.LLM.Model != ""
}

// EmbeddingConfigured Embedding 服务是否已配置
func (c *AIConfig) EmbeddingConfigured() bool {
	return c.Embedding.BaseURL != "" && c.Embedding.Model != ""
}

// VectorConfigured 向量库是否已配置
func (c *AIConfig) VectorConfigured() bool {
	return c.Vector.Endpoint != ""
}

// applyDefaults 为零值的流水线字段填入默认预算
func (c *AIConfig) applyDefaults() {
	p := &c.Pipeline
	if p.FrontdeskMS <= 0 {
		p.FrontdeskMS = DefaultFrontdeskBudgetMS
	}
	if p.IntentMS <= 0 {
		p.IntentMS = DefaultIntentBudgetMS
	}
	if p.ExpandMS <= 0 {
		p.ExpandMS = DefaultExpandBudgetMS
	}
	if p.AnchorsMS <= 0 {
		p.AnchorsMS = DefaultAnchorsBudgetMS
	}
	if p.RerankMS <= 0 {
		p.RerankMS = DefaultRerankBudgetMS
	}
	if p.ReasoningMS <= 0 {
		p.ReasoningMS = DefaultReasoningBudgetMS
	}
	if p.TranslateMS <= 0 {
		p.TranslateMS = DefaultTranslateBudgetMS
	}
	if p.TotalSoftMS <= 0 {
		p.TotalSoftMS = DefaultTotalSoftBudgetMS
	}
	if p.ReasoningTokenBudget <= 0 {
		p.ReasoningTokenBudget = DefaultReasoningTokenBudget
	}
}

// MaskAPIKey 遮蔽 API 密钥用于展示（保留首尾各 4 位）
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
}
