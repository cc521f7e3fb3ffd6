package tools

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/wwwzy/MongoAgent/internal/errx"
)

// nonBlank 要求字符串至少含一个非空白字符。
const nonBlank = `\S`

// ParamSchema 把操作的参数声明转换为 OpenAPI schema：顶层不允许未声明字段。
func ParamSchema(spec map[string]*schema.ParameterInfo) *openapi3.Schema {
	s := paramObject(spec)
	noExtra := false
	s.AdditionalProperties = openapi3.AdditionalProperties{Has: &noExtra}
	return s
}

func paramObject(spec map[string]*schema.ParameterInfo) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	names := make([]string, 0, len(spec))
	for name := range spec {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := spec[name]
		s.WithProperty(name, paramSchema(p))
		if p.Required {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func paramSchema(p *schema.ParameterInfo) *openapi3.Schema {
	switch p.Type {
	case schema.String:
		s := openapi3.NewStringSchema().WithPattern(nonBlank)
		for _, v := range p.Enum {
			s.Enum = append(s.Enum, v)
		}
		return s
	case schema.Integer:
		return openapi3.NewIntegerSchema()
	case schema.Number:
		return openapi3.NewFloat64Schema()
	case schema.Boolean:
		return openapi3.NewBoolSchema()
	case schema.Array:
		s := openapi3.NewArraySchema()
		if p.ElemInfo != nil {
			s.WithItems(paramSchema(p.ElemInfo))
		}
		return s
	case schema.Object:
		if len(p.SubParams) > 0 {
			return paramObject(p.SubParams)
		}
		return openapi3.NewObjectSchema()
	default:
		return openapi3.NewSchema()
	}
}

// ValidateParams 按参数 schema 校验 LLM 给出的参数；值为 nil 的字段视为未提供。
// LLM 输出被视为不可信输入，任何不符都返回 SCHEMA_VIOLATION，消息列出全部问题。
func ValidateParams(s *openapi3.Schema, params map[string]any) error {
	present := make(map[string]any, len(params))
	for k, v := range params {
		if v != nil {
			present[k] = v
		}
	}

	err := s.VisitJSON(present, openapi3.MultiErrors())
	if err == nil {
		return nil
	}

	var problems []string
	for _, e := range flatten(err) {
		problems = append(problems, describe(e))
	}
	sort.Strings(problems)
	return errx.New(errx.KindSchemaViolation, err, strings.Join(problems, "; "))
}

func flatten(err error) []error {
	var me openapi3.MultiError
	if !errors.As(err, &me) {
		return []error{err}
	}
	var out []error
	for _, e := range me {
		out = append(out, flatten(e)...)
	}
	return out
}

// describe 把 SchemaError 转成面向用户的一句话。
func describe(err error) string {
	var se *openapi3.SchemaError
	if !errors.As(err, &se) {
		return err.Error()
	}

	switch se.SchemaField {
	case "required":
		return fmt.Sprintf("missing required parameter %q", quotedName(se.Reason))
	case "properties":
		return fmt.Sprintf("unknown parameter %q", quotedName(se.Reason))
	}

	name := strings.Join(se.JSONPointer(), ".")
	if name == "" {
		return se.Reason
	}
	if se.SchemaField == "enum" {
		allowed := make([]string, 0, len(se.Schema.Enum))
		for _, v := range se.Schema.Enum {
			allowed = append(allowed, fmt.Sprint(v))
		}
		return fmt.Sprintf("parameter %q must be one of %s", name, strings.Join(allowed, ", "))
	}
	return fmt.Sprintf("parameter %q must be %s", name, typeLabel(se.Schema.Type))
}

// quotedName 取出形如 `property "x" is missing` 中的字段名。
func quotedName(reason string) string {
	i := strings.IndexByte(reason, '"')
	if i < 0 {
		return reason
	}
	q, err := strconv.QuotedPrefix(reason[i:])
	if err != nil {
		return reason
	}
	name, _ := strconv.Unquote(q)
	return name
}

func typeLabel(t string) string {
	switch t {
	case openapi3.TypeObject:
		return "an object"
	case openapi3.TypeArray:
		return "an array"
	case openapi3.TypeInteger:
		return "an integer"
	case openapi3.TypeBoolean:
		return "a boolean"
	case openapi3.TypeNumber:
		return "a number"
	default:
		return "a non-empty string"
	}
}
