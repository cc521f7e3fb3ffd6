package mongodb

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
)

// FromJSONMap 将 LLM 产生的 JSON 对象按 relaxed Extended JSON 解码为 bson.M，
// 因此 {"$oid": "..."}、{"$date": "..."} 等写法可以直接使用。
func FromJSONMap(m map[string]any) (bson.M, error) {
	if len(m) == 0 {
		return bson.M{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	var out bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &out); err != nil {
		return nil, fmt.Errorf("decode extended json: %w", err)
	}
	return out, nil
}

// SortSpec 将 {"field": 1|-1} 转为 bson.D；JSON 对象无序，多键时按字段名排序。
func SortSpec(m map[string]any) (bson.D, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir, err := direction(m[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out = append(out, bson.E{Key: k, Value: dir})
	}
	return out, nil
}

// IndexKeys 与 SortSpec 相同，但额外允许 "text"、"2dsphere" 等字符串索引类型。
func IndexKeys(m map[string]any) (bson.D, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("index spec must name at least one field")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			out = append(out, bson.E{Key: k, Value: s})
			continue
		}
		dir, err := direction(m[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out = append(out, bson.E{Key: k, Value: dir})
	}
	return out, nil
}

func direction(v any) (int32, error) {
	switch n := v.(type) {
	case float64:
		if n == 1 || n == -1 {
			return int32(n), nil
		}
	case int:
		if n == 1 || n == -1 {
			return int32(n), nil
		}
	case int32:
		if n == 1 || n == -1 {
			return n, nil
		}
	case int64:
		if n == 1 || n == -1 {
			return int32(n), nil
		}
	}
	return 0, fmt.Errorf("direction must be 1 or -1, got %v", v)
}

// ToJSONDocs 将驱动返回的文档转为普通 JSON 结构（relaxed Extended JSON），便于序列化与格式化。
func ToJSONDocs(docs []bson.M) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		raw, err := bson.MarshalExtJSON(d, false, false)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
