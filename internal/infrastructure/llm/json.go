package llm

import "strings"

// ExtractJSON 从 LLM 回复中宽松提取 JSON 文本
// 模型可能包裹 markdown 代码围栏或附带说明文字：
// 去掉围栏后截取第一个 '{' 到最后一个 '}'（无对象时退回数组边界）
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)

	// 去掉 ```json ... ``` 围栏
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	if extracted := sliceBetween(content, '{', '}'); extracted != "" {
		return extracted
	}
	return sliceBetween(content, '[', ']')
}

// sliceBetween 截取首个 open 到最后一个 close 之间的内容（含边界）
func sliceBetween(content string, open, close byte) string {
	start := strings.IndexByte(content, open)
	end := strings.LastIndexByte(content, close)
	if start < 0 || end < start {
		return ""
	}
	return content[start : end+1]
}
