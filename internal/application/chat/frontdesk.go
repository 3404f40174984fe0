package chat

import (
	"fmt"
	"strings"
)

// maxGreetingRunes 超过该长度的问题不再短路，即使包含问候语
const maxGreetingRunes = 24

// greetingTable 前台问候语精确匹配表（小写、去首尾空白、去尾部标点后比较）
var greetingTable = map[string]bool{
	"hi":             true,
	"hello":          true,
	"hey":            true,
	"yo":             true,
	"hiya":           true,
	"howdy":          true,
	"good morning":   true,
	"good afternoon": true,
	"good evening":   true,
	"thanks":         true,
	"thank you":      true,
}

// Frontdesk 问候前台
// 在整条流水线之前拦截纯问候，避免为寒暄执行任何检索
type Frontdesk struct{}

// NewFrontdesk 创建问候前台
func NewFrontdesk() *Frontdesk {
	return &Frontdesk{}
}

// normalizeGreeting 问候匹配前的规整：小写、去空白、剥掉尾部的 ! . ?
func normalizeGreeting(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	normalized = strings.TrimRight(normalized, "!.?")
	return strings.TrimSpace(normalized)
}

// Match 判断问题是否为纯问候
func (f *Frontdesk) Match(question string) bool {
	if len([]rune(strings.TrimSpace(question))) > maxGreetingRunes {
		return false
	}
	return greetingTable[normalizeGreeting(question)]
}

// Answer 生成问候回答：自报身份并引导提出产品问题
func (f *Frontdesk) Answer(repositoryName string) string {
	subject := "this repository"
	if repositoryName != "" {
		subject = repositoryName
	}
	return fmt.Sprintf("Hi! I'm RepoLens. Ask me anything about what %s does — for example, one of its main features.", subject)
}
