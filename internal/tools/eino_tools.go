package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/MongoAgent/internal/errx"
)

// InvokableOperation 将 Registry 中的操作暴露为 eino tool.InvokableTool。
type InvokableOperation struct {
	reg  *Registry
	name string
}

var _ tool.InvokableTool = (*InvokableOperation)(nil)

func (t *InvokableOperation) Info(_ context.Context) (*schema.ToolInfo, error) {
	op, ok := t.reg.Lookup(t.name)
	if !ok {
		return nil, fmt.Errorf("operation %q not registered", t.name)
	}
	return op.Info(), nil
}

func (t *InvokableOperation) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	args := strings.TrimSpace(argumentsInJSON)
	if args == "" || args == "{" {
		args = "{}"
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return "", errx.New(errx.KindSchemaViolation, err, "arguments must be a JSON object")
	}
	if params == nil {
		params = map[string]any{}
	}

	op, err := t.reg.Validate(t.name, params)
	if err != nil {
		return "", err
	}
	result, err := op.Execute(ctx, params)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}

// Tools 返回全部操作的 eino 工具形式。
func (r *Registry) Tools() []tool.BaseTool {
	names := r.Names()
	out := make([]tool.BaseTool, 0, len(names))
	for _, name := range names {
		out = append(out, &InvokableOperation{reg: r, name: name})
	}
	return out
}

// Tool 返回单个操作的 eino 工具形式。
func (r *Registry) Tool(name string) (tool.InvokableTool, bool) {
	if _, ok := r.Lookup(name); !ok {
		return nil, false
	}
	return &InvokableOperation{reg: r, name: name}, true
}
