// Package jsonutil 处理来自外部打分服务的宽松 JSON。
// 模型代理常把 JSON 包进 markdown 围栏或夹带说明文字，
// 这里负责剥离噪声取出第一个完整的 JSON 块。
package jsonutil

import (
	"encoding/json"
	"strings"
)

const codeFence = "```"

// ExtractJSON 从原始文本中取出第一个完整的 JSON 对象或数组。
// 优先扫描 markdown 围栏内部，围栏缺失时退回全文扫描。
func ExtractJSON(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if block, ok := extractFromFence(raw); ok {
		return block, true
	}
	return extractBalanced(raw)
}

func extractFromFence(raw string) (string, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	// 围栏首行可能是语言标记（```json），不含括号就整行丢弃。
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return "", false
	}
	if inner, ok := extractBalanced(block); ok {
		return inner, true
	}
	return block, true
}

// extractBalanced 找到首个括号并向后配平，字符串字面量内的括号不计数。
func extractBalanced(raw string) (string, bool) {
	start := strings.IndexAny(raw, "[{")
	if start == -1 {
		return "", false
	}
	opener := raw[start]
	closer := byte('}')
	if opener == '[' {
		closer = ']'
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			switch ch {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return strings.TrimSpace(raw[start : i+1]), true
			}
		}
	}
	return "", false
}

// Pretty 把 JSON 文本缩进成两空格排版，解析失败原样返回。
func Pretty(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw
	}
	return string(buf)
}
