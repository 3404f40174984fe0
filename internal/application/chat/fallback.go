package chat

import (
	"fmt"
	"strings"

	domainChat "github.com/repolens/backend/internal/domain/chat"
	"github.com/repolens/backend/internal/domain/knowledge"
)

// highConfidenceEdgeCount 边数达到该值时兜底回答给出 high 置信度
const highConfidenceEdgeCount = 20

// authMarkers 证据或问题中出现即触发登录能力模板的标记
var authMarkers = []string{"auth", "login", "signin", "oauth", "google", "session", "token", "signout", "logout"}

// authCapability 登录能力句模板：任一标记命中证据即包含该句
type authCapability struct {
	markers  []string
	sentence string
}

// authCapabilities 按固定顺序输出的能力句
var authCapabilities = []authCapability{
	{[]string{"google", "oauth"}, "Google sign-in is supported."},
	{[]string{"valid"}, "Credentials are validated before access is granted."},
	{[]string{"session", "token"}, "A signed-in session is kept so users stay logged in."},
	{[]string{"redirect", "callback"}, "After signing in, users are taken back to where they started."},
	{[]string{"signout", "logout"}, "Users can sign out at any time."},
}

// pipelineStage 流程叙事的单个阶段：名称标记与产品化动词短语
type pipelineStage struct {
	markers []string
	verb    string
}

// pipelineStages 六个流程阶段，按业务发生顺序排列
var pipelineStages = []pipelineStage{
	{[]string{"handler", "route", "endpoint", "controller", "request"}, "receives the request"},
	{[]string{"valid", "check", "verify", "guard"}, "checks the input"},
	{[]string{"service", "process", "compute", "transform", "parse"}, "does the main work"},
	{[]string{"store", "repo", "save", "update", "write", "db"}, "saves the changes"},
	{[]string{"client", "api", "webhook", "external", "notify"}, "talks to outside services"},
	{[]string{"response", "result", "render", "view", "output"}, "returns the result"},
}

// BuildFallbackAnswer 构建确定性兜底回答
// 纯函数：只依赖问题文本与证据集合，无 I/O、无随机性，永远返回非空回答。
// 推理失败时它就是最终回答；翻译被拒时它是安全网
func BuildFallbackAnswer(question string, evidence *Evidence) (string, string) {
	if !evidence.HasSeeds() {
		answer := fmt.Sprintf("I could not find enough information in this repository to answer %q. Try asking about one of its main features.", question)
		return answer, domainChat.ConfidenceLow
	}

	evidenceText := combinedEvidenceText(evidence)

	var sentences []string
	if containsAnyMarker(strings.ToLower(question), authMarkers) || containsAnyMarker(evidenceText, authMarkers) {
		sentences = buildAuthSentences(evidenceText)
	} else {
		sentences = buildPipelineNarrative(evidence)
	}

	confidence := domainChat.ConfidenceModerate
	confidenceSentence := "Confidence is moderate."
	if len(evidence.Edges) >= highConfidenceEdgeCount {
		confidence = domainChat.ConfidenceHigh
		confidenceSentence = "Confidence is high."
	}
	sentences = append(sentences, confidenceSentence)

	return strings.Join(sentences, " "), confidence
}

// BuildSafeAnswer 兜底中的兜底：流水线被 panic 边界拦截时的通用安全回答
func BuildSafeAnswer() (string, string) {
	return "Something went wrong while answering that. Please try asking again in a moment.", domainChat.ConfidenceLow
}

// buildAuthSentences 登录能力模板回答
// 首句固定，其余能力句按各自标记组是否命中证据决定
func buildAuthSentences(evidenceText string) []string {
	sentences := []string{"This product supports user sign-in."}
	for _, capability := range authCapabilities {
		if containsAnyMarker(evidenceText, capability.markers) {
			sentences = append(sentences, capability.sentence)
		}
	}
	return sentences
}

// buildPipelineNarrative 流程叙事回答
// 把种子与关联实体按名称标记归入六个阶段，每个非空阶段产出一条编号句
func buildPipelineNarrative(evidence *Evidence) []string {
	matched := make([]bool, len(pipelineStages))
	classify := func(entity *knowledge.Entity) {
		name := strings.ToLower(entity.Name)
		for i, stage := range pipelineStages {
			if containsAnyMarker(name, stage.markers) {
				matched[i] = true
				return
			}
		}
	}
	for _, seed := range evidence.Seeds {
		classify(seed)
	}
	for _, entity := range evidence.Related {
		classify(entity)
	}

	var sentences []string
	step := 0
	for i, stage := range pipelineStages {
		if !matched[i] {
			continue
		}
		step++
		sentences = append(sentences, fmt.Sprintf("%d. The product %s.", step, stage.verb))
	}

	if len(sentences) == 0 {
		return []string{describeEvidenceAreas(evidence)}
	}
	return append([]string{"Here is how this part of the product works:"}, sentences...)
}

// describeEvidenceAreas 没有任何阶段命中时，退而描述证据覆盖的功能点
func describeEvidenceAreas(evidence *Evidence) string {
	names := make([]string, 0, 3)
	for _, seed := range evidence.Seeds {
		if seed.Name == "" {
			continue
		}
		names = append(names, seed.Name)
		if len(names) == 3 {
			break
		}
	}
	if len(names) == 0 {
		return "This repository covers the area you asked about."
	}
	return fmt.Sprintf("The closest things I found in this product are: %s.", strings.Join(names, ", "))
}

// combinedEvidenceText 组合全部证据的匹配文本
// 覆盖种子与关联实体的名称、路径、标签、关键词、摘要，以及边端点名称
func combinedEvidenceText(evidence *Evidence) string {
	var sb strings.Builder
	appendEntity := func(entity *knowledge.Entity) {
		sb.WriteString(entity.Name)
		sb.WriteString(" ")
		sb.WriteString(entity.FilePath)
		sb.WriteString(" ")
		sb.WriteString(strings.Join(entity.Metadata.Tags, " "))
		sb.WriteString(" ")
		sb.WriteString(strings.Join(entity.Metadata.Keywords, " "))
		sb.WriteString(" ")
		sb.WriteString(entity.Metadata.Snippet)
		sb.WriteString(" ")
	}
	for _, seed := range evidence.Seeds {
		appendEntity(seed)
	}
	for _, entity := range evidence.Related {
		appendEntity(entity)
	}
	for _, edge := range evidence.Edges {
		sb.WriteString(edge.Source)
		sb.WriteString(" ")
		sb.WriteString(edge.Target)
		sb.WriteString(" ")
	}
	return strings.ToLower(sb.String())
}

// containsAnyMarker 小写文本是否包含任一标记子串
func containsAnyMarker(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
