package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"

	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/llm"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

const (
	unparseableMessage = "the request could not be turned into a database operation"
	// readMaxTries 只读操作在连接失败时最多执行两次。
	readMaxTries = 2
)

type understandStage struct {
	deps Dependencies
	tpl  prompt.ChatTemplate
}

func newUnderstandStage(deps Dependencies) *understandStage {
	return &understandStage{deps: deps, tpl: newUnderstandTemplate()}
}

func (s *understandStage) Name() string { return NodeQueryUnderstand }
func (s *understandStage) Describe() string {
	return "turn the request into an {operation, parameters} descriptor and validate it"
}

func (s *understandStage) Run(ctx context.Context, state AgentState) (AgentState, error) {
	raw, err := generate(ctx, s.deps, s.tpl, map[string]any{
		"query":       state.PivotQuery,
		"history":     historyWindow(state, s.deps.Config.HistoryWindow),
		"catalog":     s.deps.Registry.Catalog(),
		"collections": strings.Join(s.deps.Config.Collections, ", "),
	}, model.WithTemperature(0))
	if err != nil {
		if errx.KindOf(err) == errx.KindInternal {
			return state, err
		}
		logx.Warn().Err(err).Str("trace_id", state.TraceID).Str("stage", s.Name()).Msg("query understanding failed")
		state.QueryResult = failureFromError("", err)
		return state, nil
	}

	desc, err := ParseDescriptor(raw)
	if err != nil {
		logx.Warn().Err(err).Str("trace_id", state.TraceID).Str("stage", s.Name()).Str("output", raw).Msg("unparseable query descriptor")
		state.QueryResult = failureResult("", errx.KindSchemaViolation, unparseableMessage)
		return state, nil
	}
	state.QueryDescriptor = desc

	if _, err := s.deps.Registry.Validate(desc.Operation, desc.Parameters); err != nil {
		logx.Info().Str("trace_id", state.TraceID).Str("stage", s.Name()).Str("operation", desc.Operation).
			Str("kind", string(errx.KindOf(err))).Msg("query descriptor rejected")
		state.QueryResult = failureFromError(desc.Operation, err)
		return state, nil
	}

	logx.Debug().Str("trace_id", state.TraceID).Str("stage", s.Name()).Str("operation", desc.Operation).Msg("query descriptor accepted")
	return state, nil
}

// ParseDescriptor 解析 {"operation": ..., "parameters": {...}}；
// 缺少 parameters 时其余顶层字段视为参数。
func ParseDescriptor(raw string) (*QueryDescriptor, error) {
	var m map[string]any
	if err := llm.DecodeJSON(raw, &m); err != nil {
		return nil, err
	}

	op, _ := m["operation"].(string)
	op = strings.TrimSpace(op)
	if op == "" {
		return nil, errors.New("descriptor has no operation")
	}

	desc := &QueryDescriptor{Operation: op, Parameters: map[string]any{}}
	if params, ok := m["parameters"]; ok {
		obj, isObj := params.(map[string]any)
		if !isObj && params != nil {
			return nil, errors.New("descriptor parameters must be an object")
		}
		for k, v := range obj {
			desc.Parameters[k] = v
		}
		return desc, nil
	}
	for k, v := range m {
		if k != "operation" {
			desc.Parameters[k] = v
		}
	}
	return desc, nil
}

type executeStage struct {
	deps Dependencies
}

func (s *executeStage) Name() string { return NodeExecute }
func (s *executeStage) Describe() string {
	return "run the operation; reads retry once on a connection failure"
}

func (s *executeStage) Run(ctx context.Context, state AgentState) (AgentState, error) {
	desc := state.QueryDescriptor
	if desc == nil {
		state.QueryResult = failureResult("", errx.KindSchemaViolation, unparseableMessage)
		return state, nil
	}

	op, err := s.deps.Registry.Validate(desc.Operation, desc.Parameters)
	if err != nil {
		state.QueryResult = failureFromError(desc.Operation, err)
		return state, nil
	}

	attempts := 0
	run := func() (any, error) {
		attempts++
		res, err := op.Execute(ctx, desc.Parameters)
		if err == nil {
			return res, nil
		}
		if op.Mutating || errx.KindOf(err) != errx.KindConnection {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var data any
	if op.Mutating {
		data, err = op.Execute(ctx, desc.Parameters)
		attempts = 1
	} else {
		data, err = backoff.Retry(ctx, run,
			backoff.WithMaxTries(readMaxTries),
			backoff.WithBackOff(backoff.NewConstantBackOff(s.deps.Config.ReadRetryDelay)),
		)
	}

	if err != nil {
		kind := errx.KindOf(err)
		operationsTotal.WithLabelValues(op.Name, string(kind)).Inc()
		logx.Warn().Err(err).Str("trace_id", state.TraceID).Str("stage", s.Name()).
			Str("operation", op.Name).Int("attempts", attempts).Str("kind", string(kind)).
			Msg("operation failed")
		state.QueryResult = failureFromError(op.Name, err)
		return state, nil
	}

	operationsTotal.WithLabelValues(op.Name, "success").Inc()
	if e := logx.Debug(); e.Enabled() {
		payload, _ := json.Marshal(data)
		e.Str("trace_id", state.TraceID).Str("stage", s.Name()).Str("operation", op.Name).
			Int("attempts", attempts).Int("payload_bytes", len(payload)).Msg("operation succeeded")
	}
	state.QueryResult = successResult(op.Name, data)
	return state, nil
}
