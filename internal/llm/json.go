package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON 取出模型输出中第一个 '{' 到最后一个 '}' 之间的内容，
// 可以容忍 ```json 代码块与前后说明文字。
func ExtractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodeJSON 从模型输出中提取 JSON 对象并解码到 v。
func DecodeJSON(s string, v any) error {
	raw, ok := ExtractJSON(s)
	if !ok {
		return fmt.Errorf("no json object in model output")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}
