package llm

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// StripCodeFence 去除围栏代码块包装（```json ... ```）
func StripCodeFence(s string) string {
	raw := strings.TrimSpace(s)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	// 去掉语言标记行（json 等）
	if idx := strings.Index(raw, "\n"); idx >= 0 {
		head := strings.TrimSpace(raw[:idx])
		if head == "" || head == "json" || head == "JSON" {
			raw = raw[idx+1:]
		}
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

// ExtractJSONValue 从模型输出中截取第一个完整 JSON 对象/数组。
// 模型可能在 JSON 前后夹杂多余文本或代码围栏，这里做容错截取。
func ExtractJSONValue(s string) string {
	raw := StripCodeFence(s)
	if raw == "" {
		return raw
	}

	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")
	start := -1
	end := -1
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		start = objStart
		end = strings.LastIndex(raw, "}")
	case arrStart >= 0:
		start = arrStart
		end = strings.LastIndex(raw, "]")
	}
	if start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	// 确保至少能被 Decoder 消费到一个 JSON 起始
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err == nil {
		if d, ok := tok.(json.Delim); ok && (d == '{' || d == '[') {
			return raw
		}
	}

	// 兜底：读取到 EOF 为止，避免调用方误用
	dec = json.NewDecoder(strings.NewReader(raw))
	for {
		_, e := dec.Token()
		if e != nil {
			if errors.Is(e, io.EOF) {
				break
			}
			return strings.TrimSpace(s)
		}
	}
	return raw
}
