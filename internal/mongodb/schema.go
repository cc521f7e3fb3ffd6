package mongodb

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FieldSchema struct {
	Field      string        `json:"field"`
	Type       string        `json:"type"`
	IsRequired bool          `json:"isRequired"`
	SubFields  []FieldSchema `json:"subFields,omitempty"`
}

type CollectionSchema struct {
	Collection string           `json:"collection"`
	Fields     []FieldSchema    `json:"fields"`
	Count      int64            `json:"count"`
	SampleSize int              `json:"sampleSize"`
	Indexes    []map[string]any `json:"indexes,omitempty"`
}

// InferCollectionSchema 从样本文档推断字段结构：
// 嵌套对象以 "a.b" 表示，对象数组以 "a[]" 表示；
// 字段在所有样本中出现才视为必填，多种类型以 "|" 连接。
func InferCollectionSchema(collection string, docs []bson.M) *CollectionSchema {
	maps := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		maps = append(maps, map[string]any(d))
	}
	return &CollectionSchema{
		Collection: collection,
		Fields:     inferFields(maps, ""),
		SampleSize: len(docs),
	}
}

type fieldStats struct {
	types    map[string]struct{}
	present  int
	children []map[string]any
}

func inferFields(docs []map[string]any, parent string) []FieldSchema {
	if len(docs) == 0 {
		return nil
	}

	stats := map[string]*fieldStats{}
	for _, doc := range docs {
		for key, value := range doc {
			st, ok := stats[key]
			if !ok {
				st = &fieldStats{types: map[string]struct{}{}}
				stats[key] = st
			}
			st.present++
			st.types[TypeName(value)] = struct{}{}

			if child, ok := asDocument(value); ok {
				st.children = append(st.children, child)
				continue
			}
			if arr, ok := asArray(value); ok {
				for _, item := range arr {
					if child, ok := asDocument(item); ok {
						st.children = append(st.children, child)
					}
				}
			}
		}
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]FieldSchema, 0, len(keys))
	for _, key := range keys {
		st := stats[key]
		path := key
		if parent != "" {
			path = parent + "." + key
		}

		types := make([]string, 0, len(st.types))
		for t := range st.types {
			types = append(types, t)
		}
		sort.Strings(types)

		f := FieldSchema{
			Field:      path,
			Type:       strings.Join(types, "|"),
			IsRequired: st.present == len(docs),
		}
		if len(st.children) > 0 {
			childPath := path
			if _, isArray := st.types["array"]; isArray {
				childPath = path + "[]"
			}
			f.SubFields = inferFields(st.children, childPath)
		}
		out = append(out, f)
	}
	return out
}

// TypeName 返回 BSON 值的类型名。
func TypeName(v any) string {
	switch v.(type) {
	case nil, primitive.Null:
		return "null"
	case primitive.A, []any:
		return "array"
	case primitive.DateTime, time.Time:
		return "date"
	case bson.M, primitive.D, map[string]any:
		return "object"
	case string:
		return "string"
	case bool:
		return "bool"
	case int32:
		return "int32"
	case int64, int:
		return "int64"
	case float64, float32:
		return "double"
	case primitive.ObjectID:
		return "objectId"
	case primitive.Decimal128:
		return "decimal"
	case primitive.Binary:
		return "binary"
	case primitive.Timestamp:
		return "timestamp"
	case primitive.Regex:
		return "regex"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func asDocument(v any) (map[string]any, bool) {
	switch d := v.(type) {
	case bson.M:
		return map[string]any(d), true
	case map[string]any:
		return d, true
	case primitive.D:
		return map[string]any(d.Map()), true
	}
	return nil, false
}

func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case primitive.A:
		return []any(a), true
	case []any:
		return a, true
	}
	return nil, false
}
