package chat

// Intent 问题意图分类
type Intent string

const (
	// IntentProductFeature 产品能力类问题（“能不能登录”“支持搜索吗”）
	IntentProductFeature Intent = "product_feature"
	// IntentTechnicalDetail 技术实现类问题（“架构是什么”“用了什么数据库”）
	IntentTechnicalDetail Intent = "technical_detail"
	// IntentGeneralQuestion 无明确归类的一般问题
	IntentGeneralQuestion Intent = "general_question"
	// IntentGreeting 寒暄问候
	IntentGreeting Intent = "greeting"
	// IntentRepositoryOverview 仓库总览
	// 不属于分类器的输出契约，由模糊纠偏改写弱分类时赋值
	IntentRepositoryOverview Intent = "repository_overview"
)

// IsValid 检查意图是否为已知值
func (i Intent) IsValid() bool {
	switch i {
	case IntentProductFeature, IntentTechnicalDetail, IntentGeneralQuestion, IntentGreeting:
		return true
	}
	return false
}

// IntentResult 意图分类结果
type IntentResult struct {
	// Intent 意图类别
	Intent Intent `json:"intent"`
	// Confidence 置信度（0~1）
	Confidence float64 `json:"confidence"`
	// Objective 提问目标的精炼复述（降级时为规整后的原问题）
	Objective string `json:"objective,omitempty"`
	// Keywords 分类器给出的检索关键词
	Keywords []string `json:"keywords"`
	// Domains 问题涉及的业务域（来自仓库已有域列表）
	Domains []string `json:"domains,omitempty"`
}

// 回答置信度等级
const (
	ConfidenceHigh     = "high"
	ConfidenceModerate = "moderate"
	ConfidenceLow      = "low"
)

// ReasoningOutcome LLM 推理结果
// Findings 为空且 Answer 为空视为推理失败，走确定性降级回答
type ReasoningOutcome struct {
	// Answer 推理得到的回答
	Answer string `json:"answer"`
	// Confidence 推理置信度（high/moderate/low）
	Confidence string `json:"confidence"`
	// Findings 基于证据得出的结论列表
	Findings []string `json:"findings,omitempty"`
	// Unknowns 证据不足以回答的部分
	Unknowns []string `json:"unknowns,omitempty"`
	// Constraints 证据揭示的约束条件
	Constraints []string `json:"constraints,omitempty"`
	// Insights 附加洞察（可选）
	Insights []string `json:"insights,omitempty"`
}

// HasEvidence 推理结果是否携带可用内容
func (o *ReasoningOutcome) HasEvidence() bool {
	return o != nil && (o.Answer != "" || len(o.Findings) > 0)
}
