package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/tools/toolstest"
)

func echoOp(name string) *Operation {
	return &Operation{
		Name: name,
		Desc: "echo params back",
		Params: map[string]*schema.ParameterInfo{
			"collection": {Type: schema.String, Desc: "collection", Required: true},
			"limit":      {Type: schema.Integer, Desc: "limit"},
			"mode":       {Type: schema.String, Desc: "mode", Enum: []string{"fast", "slow"}},
		},
		Execute: func(_ context.Context, p map[string]any) (any, error) {
			return p, nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoOp("echo")))

	assert.Error(t, reg.Register(echoOp("echo")), "duplicate name must be rejected")
	assert.Error(t, reg.Register(&Operation{Name: "noexec"}))
	assert.Error(t, reg.Register(nil))
	assert.Equal(t, []string{"echo"}, reg.Names())
}

func TestRegistry_MiddlewareOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoOp("echo")))

	var trace []string
	mark := func(tag string) Middleware {
		return func(_ *Operation, next Executor) Executor {
			return func(ctx context.Context, p map[string]any) (any, error) {
				trace = append(trace, tag)
				return next(ctx, p)
			}
		}
	}
	reg.Use(mark("outer"), mark("inner"))

	op, ok := reg.Lookup("echo")
	require.True(t, ok)
	_, err := op.Execute(context.Background(), map[string]any{"collection": "users"})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, trace)
}

func TestRegistry_Validate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoOp("echo")))

	tests := []struct {
		name   string
		op     string
		params map[string]any
		kind   errx.Kind
	}{
		{name: "ok", op: "echo", params: map[string]any{"collection": "users", "limit": float64(5)}},
		{name: "unknown operation", op: "drop_database", params: map[string]any{}, kind: errx.KindOperationNotFound},
		{name: "missing required", op: "echo", params: map[string]any{}, kind: errx.KindSchemaViolation},
		{name: "empty collection", op: "echo", params: map[string]any{"collection": "  "}, kind: errx.KindSchemaViolation},
		{name: "fractional integer", op: "echo", params: map[string]any{"collection": "users", "limit": 1.5}, kind: errx.KindSchemaViolation},
		{name: "unknown param", op: "echo", params: map[string]any{"collection": "users", "extra": true}, kind: errx.KindSchemaViolation},
		{name: "enum mismatch", op: "echo", params: map[string]any{"collection": "users", "mode": "medium"}, kind: errx.KindSchemaViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := reg.Validate(tt.op, tt.params)
			if tt.kind == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.op, op.Name)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, errx.KindOf(err))
		})
	}
}

func TestRegistry_ValidateReportsEveryProblem(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoOp("echo")))

	_, err := reg.Validate("echo", map[string]any{"limit": "ten", "extra": 1})
	require.Error(t, err)
	msg := errx.MessageOf(err)
	assert.Contains(t, msg, `missing required parameter "collection"`)
	assert.Contains(t, msg, `unknown parameter "extra"`)
	assert.Contains(t, msg, `parameter "limit" must be an integer`)
}

func TestValidateParams_SchemaShapes(t *testing.T) {
	spec := map[string]*schema.ParameterInfo{
		"collection": {Type: schema.String, Required: true},
		"pipeline": {
			Type:     schema.Array,
			Required: true,
			ElemInfo: &schema.ParameterInfo{Type: schema.Object},
		},
		"upsert": {Type: schema.Boolean},
	}

	ok := map[string]any{
		"collection": "orders",
		"pipeline":   []any{map[string]any{"$match": map[string]any{"status": "paid"}}},
		"upsert":     nil,
	}
	require.NoError(t, ValidateParams(ParamSchema(spec), ok), "nil optional values count as absent")

	err := ValidateParams(ParamSchema(spec), map[string]any{
		"collection": nil,
		"pipeline":   []any{"$match"},
		"upsert":     "yes",
	})
	require.Error(t, err)
	assert.Equal(t, errx.KindSchemaViolation, errx.KindOf(err))
	msg := errx.MessageOf(err)
	assert.Contains(t, msg, `missing required parameter "collection"`)
	assert.Contains(t, msg, `parameter "pipeline.0" must be an object`)
	assert.Contains(t, msg, `parameter "upsert" must be a boolean`)
}

func TestRegistry_RestrictCollections(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoOp("echo")))
	reg.RestrictCollections("users", "orders")

	_, err := reg.Validate("echo", map[string]any{"collection": "users"})
	require.NoError(t, err)

	_, err = reg.Validate("echo", map[string]any{"collection": "secrets"})
	require.Error(t, err)
	assert.Equal(t, errx.KindNotFound, errx.KindOf(err))

	reg.RestrictCollections()
	_, err = reg.Validate("echo", map[string]any{"collection": "secrets"})
	assert.NoError(t, err)
}

func TestRegistry_Catalog(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterMongoTools(reg, toolstest.NewFakeDatabase()))

	catalog := reg.Catalog()
	for _, name := range []string{"list_collections", "find", "count", "aggregate", "insert_one", "update_one", "delete_one", "create_index", "drop_index", "list_indexes", "infer_schema"} {
		assert.Contains(t, catalog, "- "+name+":")
	}
	assert.Contains(t, catalog, "collection (string, required)")
	assert.True(t, strings.Index(catalog, "- count:") < strings.Index(catalog, "- find:"), "catalog is sorted by name")
	assert.Len(t, reg.ToolInfos(), 11)
}
