// Package chat 实现问答流水线：意图识别、检索词扩展、实体检索、
// 图谱扩展、向量重排、推理与产品化翻译，以及全程兜底的确定性回答
package chat

import (
	"sort"
	"strings"
	"unicode"

	"github.com/repolens/backend/internal/domain/knowledge"
)

// questionStopwords 问题分词停用词（完全匹配）
var questionStopwords = map[string]bool{
	"the": true, "a": true, "an": true,
	"is": true, "are": true, "was": true, "were": true,
	"do": true, "does": true, "did": true,
	"how": true, "what": true, "why": true, "when": true, "where": true, "who": true, "which": true,
	"can": true, "could": true, "should": true, "would": true,
	"i": true, "you": true, "it": true, "this": true, "that": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true, "with": true, "about": true,
}

// genericQueryWords 泛指查询词：出现在任何问题里都不具备检索区分度
var genericQueryWords = map[string]bool{
	"flow": true, "flows": true, "lifecycle": true,
	"system": true, "systems": true,
	"work": true, "works": true, "working": true,
	"feature": true, "features": true,
	"app": true, "application": true, "product": true, "project": true,
	"code": true, "repo": true, "overview": true,
	"explain": true, "tell": true, "show": true, "describe": true,
	"use": true, "used": true, "using": true,
	"thing": true, "things": true, "stuff": true,
}

// domainStopwords 实体名称/路径中的通用技术词，不能作为业务域候选
var domainStopwords = map[string]bool{
	"src": true, "lib": true, "libs": true, "app": true, "apps": true,
	"index": true, "main": true, "test": true, "tests": true, "spec": true, "specs": true,
	"mock": true, "mocks": true, "util": true, "utils": true, "helper": true, "helpers": true,
	"common": true, "core": true, "shared": true, "internal": true, "pkg": true, "cmd": true,
	"dist": true, "build": true, "public": true, "assets": true, "static": true,
	"config": true, "configs": true, "types": true, "type": true,
	"component": true, "components": true, "controller": true, "controllers": true,
	"service": true, "services": true, "handler": true, "handlers": true,
	"module": true, "modules": true, "model": true, "models": true,
	"route": true, "routes": true, "router": true,
	"view": true, "views": true, "page": true, "pages": true,
	"tsx": true, "jsx": true, "json": true, "yaml": true, "yml": true, "toml": true,
	"css": true, "scss": true, "html": true, "txt": true,
}

// expansionGroup 同义词扩展组：触发词命中后追加同义词
type expansionGroup struct {
	triggers []string
	synonyms []string
}

// expansionTable 固定同义词表，按声明顺序匹配，首个命中组生效
var expansionTable = []expansionGroup{
	{[]string{"auth", "login", "signin", "sign"}, []string{"login", "sign in", "oauth", "session", "authentication", "google"}},
	{[]string{"signup", "register"}, []string{"registration", "account creation", "onboarding"}},
	{[]string{"search"}, []string{"query", "lookup", "filter", "index"}},
	{[]string{"upload"}, []string{"file", "attachment", "storage", "import"}},
	{[]string{"payment", "billing"}, []string{"checkout", "invoice", "subscription", "stripe"}},
	{[]string{"notify", "notification"}, []string{"alert", "email", "webhook", "push"}},
	{[]string{"user", "profile", "account"}, []string{"member", "identity", "settings"}},
	{[]string{"api"}, []string{"endpoint", "route", "rest", "handler"}},
	{[]string{"deploy", "release"}, []string{"build", "pipeline", "ci", "publish"}},
	{[]string{"error", "bug"}, []string{"failure", "exception", "crash", "log"}},
}

const (
	// maxKeywordRunes 单个检索词的最大长度
	maxKeywordRunes = 40
	// minKeywordRunes 问题关键词的最小长度
	minKeywordRunes = 2
	// minDomainTokenRunes 业务域候选词的最小长度
	minDomainTokenRunes = 3
)

// KeywordExtractor 关键词与业务域提取器
// 纯本地计算，不依赖任何外部服务
type KeywordExtractor struct {
	// MaxSearchTerms 最终检索词集合上限
	MaxSearchTerms int
	// MaxExpansion 同义扩展词上限
	MaxExpansion int
	// MaxAnchorTerms 锚点词上限
	MaxAnchorTerms int
}

// NewKeywordExtractor 创建关键词提取器
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{
		MaxSearchTerms: 28,
		MaxExpansion:   20,
		MaxAnchorTerms: 20,
	}
}

// Tokenize 将文本切分为小写词元
// 任何非字母数字字符都是边界，长度小于 minLen 的词被丢弃
func Tokenize(text string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len([]rune(field)) < minLen {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

// ExtractKeywords 从问题中提取关键词
// 小写分词后去除停用词与过短词，保序去重
func (e *KeywordExtractor) ExtractKeywords(question string) []string {
	tokens := Tokenize(question, minKeywordRunes)

	seen := make(map[string]bool, len(tokens))
	keywords := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if questionStopwords[token] || seen[token] {
			continue
		}
		seen[token] = true
		keywords = append(keywords, token)
	}
	return keywords
}

// ExpandWithTable 用固定同义词表扩展关键词
// 每个词只套用首个命中的扩展组；domains 同样参与查表
// 这是 LLM 扩展不可用时的确定性降级路径
func (e *KeywordExtractor) ExpandWithTable(keywords, domains []string) []string {
	seen := make(map[string]bool)
	expanded := make([]string, 0, e.MaxExpansion)

	appendSynonyms := func(term string) {
		for _, group := range expansionTable {
			for _, trigger := range group.triggers {
				if term != trigger {
					continue
				}
				for _, synonym := range group.synonyms {
					if len(expanded) >= e.MaxExpansion {
						return
					}
					if seen[synonym] {
						continue
					}
					seen[synonym] = true
					expanded = append(expanded, synonym)
				}
				return
			}
		}
	}

	for _, kw := range keywords {
		appendSynonyms(strings.ToLower(kw))
	}
	for _, domain := range domains {
		appendSynonyms(strings.ToLower(domain))
	}
	return expanded
}

// ExtractDominantDomains 从候选实体的名称与路径中统计主导业务域
// 频次最高的词胜出，同频按首次出现顺序，返回至多 limit 个
func (e *KeywordExtractor) ExtractDominantDomains(entities []*knowledge.Entity, limit int) []string {
	if limit <= 0 || len(entities) == 0 {
		return nil
	}

	counts := make(map[string]int)
	var order []string
	for _, entity := range entities {
		tokens := Tokenize(entity.Name+" "+entity.FilePath, minDomainTokenRunes)
		for _, token := range tokens {
			if domainStopwords[token] || genericQueryWords[token] || questionStopwords[token] {
				continue
			}
			if isSourceFileExtension(token) {
				continue
			}
			if counts[token] == 0 {
				order = append(order, token)
			}
			counts[token]++
		}
	}

	// 稳定排序：频次降序，同频保持首次出现顺序
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

// ExtractAnchorTerms 将锚点短语还原为可检索的单词
// 丢弃过短词、泛指词以及机械追加的 flow/lifecycle
func (e *KeywordExtractor) ExtractAnchorTerms(anchors []string) []string {
	seen := make(map[string]bool)
	terms := make([]string, 0, e.MaxAnchorTerms)
	for _, anchor := range anchors {
		for _, token := range Tokenize(anchor, minDomainTokenRunes) {
			if genericQueryWords[token] || questionStopwords[token] || seen[token] {
				continue
			}
			seen[token] = true
			terms = append(terms, token)
			if len(terms) >= e.MaxAnchorTerms {
				return terms
			}
		}
	}
	return terms
}

// MergeSearchTerms 合并各来源的检索词
// 顺序：问题关键词 → 意图关键词 → 扩展词 → 锚点词 → 业务域；
// 清洗、去泛指词、保序去重后截断到上限
func (e *KeywordExtractor) MergeSearchTerms(groups ...[]string) []string {
	seen := make(map[string]bool)
	merged := make([]string, 0, e.MaxSearchTerms)
	for _, group := range groups {
		for _, term := range group {
			cleaned := SanitizeKeyword(strings.ToLower(term))
			if cleaned == "" || genericQueryWords[cleaned] || seen[cleaned] {
				continue
			}
			seen[cleaned] = true
			merged = append(merged, cleaned)
			if len(merged) >= e.MaxSearchTerms {
				return merged
			}
		}
	}
	return merged
}

// keywordSanitizer 去除会破坏模式匹配的字符
var keywordSanitizer = strings.NewReplacer("%", "", "_", "", "'", "", `"`, "", ",", "")

// SanitizeKeyword 清洗单个检索词：截断到 40 字符并去除通配/引号类字符
// 清洗后为空的词应被调用方丢弃
func SanitizeKeyword(term string) string {
	term = strings.TrimSpace(term)
	if runes := []rune(term); len(runes) > maxKeywordRunes {
		term = string(runes[:maxKeywordRunes])
	}
	return strings.TrimSpace(keywordSanitizer.Replace(term))
}

// sourceFileExtensions 常见源码文件扩展名
var sourceFileExtensions = map[string]bool{
	"ts": true, "js": true, "go": true, "py": true, "rb": true,
	"php": true, "cs": true, "java": true, "vue": true, "svelte": true,
}

// isSourceFileExtension 词元是否为源码扩展名
func isSourceFileExtension(token string) bool {
	return sourceFileExtensions[token]
}
