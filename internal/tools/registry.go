package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/MongoAgent/internal/errx"
)

// Executor 执行一个已通过校验的操作，返回可 JSON 序列化的结果。
type Executor func(ctx context.Context, params map[string]any) (any, error)

// Middleware 包装 Executor（例如审计）。
type Middleware func(op *Operation, next Executor) Executor

// Operation 是 Tool Registry 中登记的一个数据库操作。
type Operation struct {
	Name string
	Desc string
	// Params 为参数 schema；同时用于生成 eino ToolInfo 与执行前校验。
	Params map[string]*schema.ParameterInfo
	// Mutating 标记写操作，写操作不做任何自动重试。
	Mutating bool
	Execute  Executor
}

func (op *Operation) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        op.Name,
		Desc:        op.Desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(op.Params),
	}
}

type Registry struct {
	mu          sync.RWMutex
	ops         map[string]*Operation
	middlewares []Middleware
	collections map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{ops: map[string]*Operation{}}
}

func (r *Registry) Register(op *Operation) error {
	if op == nil || op.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	if op.Execute == nil {
		return fmt.Errorf("operation %q has no executor", op.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Name]; exists {
		return fmt.Errorf("operation %q already registered", op.Name)
	}
	r.ops[op.Name] = op
	return nil
}

// Use 追加中间件，对之后的 Lookup 生效。
func (r *Registry) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw...)
}

// RestrictCollections 设置集合白名单；为空表示不限制。
func (r *Registry) RestrictCollections(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(names) == 0 {
		r.collections = nil
		return
	}
	r.collections = make(map[string]struct{}, len(names))
	for _, n := range names {
		r.collections[n] = struct{}{}
	}
}

// Lookup 返回操作副本，其 Execute 已套上中间件。
func (r *Registry) Lookup(name string) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[name]
	if !ok {
		return nil, false
	}
	wrapped := *op
	exec := op.Execute
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		exec = r.middlewares[i](op, exec)
	}
	wrapped.Execute = exec
	return &wrapped, true
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Operations() []*Operation {
	names := r.Names()
	out := make([]*Operation, 0, len(names))
	for _, name := range names {
		if op, ok := r.Lookup(name); ok {
			out = append(out, op)
		}
	}
	return out
}

// Validate 校验操作名、集合白名单与参数 schema；失败时返回带 errx.Kind 的错误。
func (r *Registry) Validate(name string, params map[string]any) (*Operation, error) {
	op, ok := r.Lookup(name)
	if !ok {
		return nil, errx.Newf(errx.KindOperationNotFound, "the operation %q is not available", name)
	}
	// schema 在校验时会缓存编译后的正则，每次新建以免并发共享
	if err := ValidateParams(ParamSchema(op.Params), params); err != nil {
		return nil, err
	}

	r.mu.RLock()
	allow := r.collections
	r.mu.RUnlock()
	if allow != nil {
		if coll, ok := params["collection"].(string); ok {
			if _, known := allow[coll]; !known {
				return nil, errx.Newf(errx.KindNotFound, "the collection %q is not available", coll)
			}
		}
	}
	return op, nil
}

// Catalog 渲染给 LLM 的操作清单。
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, op := range r.Operations() {
		fmt.Fprintf(&b, "- %s: %s\n", op.Name, op.Desc)

		names := make([]string, 0, len(op.Params))
		for n := range op.Params {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			p := op.Params[n]
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    - %s (%s, %s): %s\n", n, p.Type, req, p.Desc)
		}
	}
	return b.String()
}

func (r *Registry) ToolInfos() []*schema.ToolInfo {
	ops := r.Operations()
	out := make([]*schema.ToolInfo, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Info())
	}
	return out
}
