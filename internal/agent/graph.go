package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/wwwzy/MongoAgent/internal/errx"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

const graphName = "mongoagent"

// BuildGraph 按固定拓扑把 StageSet 中的节点编排成 eino Graph。
func BuildGraph(ctx context.Context, set *StageSet, cfg Config) (compose.Runnable[AgentState, AgentState], error) {
	cfg = cfg.withDefaults()
	for _, name := range graphNodes {
		if _, ok := set.Get(name); !ok {
			return nil, fmt.Errorf("stage %s is not registered", name)
		}
	}

	// 初始化 Graph，输入输出都是 AgentState
	g := compose.NewGraph[AgentState, AgentState]()

	// 1. 添加节点
	for _, name := range graphNodes {
		st, _ := set.Get(name)
		if err := g.AddLambdaNode(name, compose.InvokableLambda(stageLambda(st))); err != nil {
			return nil, fmt.Errorf("add node %s: %w", name, err)
		}
	}

	// 2. 添加边
	edges := [][2]string{
		{compose.START, NodeInput},
		{NodeInput, NodeLanguageDetect},
		{NodeTranslateIn, NodeClassifyIntent},
		{NodeExecute, NodeFormat},
		{NodeTranslateOut, NodeOutput},
		{NodeOutput, compose.END},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("add edge %s -> %s: %w", e[0], e[1], err)
		}
	}

	// 3. 添加分支
	branches := []struct {
		from    string
		route   func(AgentState) string
		targets []string
	}{
		{NodeLanguageDetect, RouteAfterDetect, []string{NodeTranslateIn, NodeClassifyIntent}},
		{NodeClassifyIntent, RouteIntent, []string{NodeConversationReply, NodeQueryUnderstand}},
		{NodeQueryUnderstand, RouteAfterUnderstand, []string{NodeExecute, NodeFormat}},
		{NodeConversationReply, RouteAfterAnswer, []string{NodeTranslateOut, NodeOutput}},
		{NodeFormat, RouteAfterAnswer, []string{NodeTranslateOut, NodeOutput}},
	}
	for _, b := range branches {
		ends := make(map[string]bool, len(b.targets))
		for _, t := range b.targets {
			ends[t] = true
		}
		route := b.route
		branch := compose.NewGraphBranch(func(_ context.Context, state AgentState) (string, error) {
			return route(state), nil
		}, ends)
		if err := g.AddBranch(b.from, branch); err != nil {
			return nil, fmt.Errorf("add branch from %s: %w", b.from, err)
		}
	}

	// 4. 编译 Graph
	runnable, err := g.Compile(ctx,
		compose.WithGraphName(graphName),
		compose.WithMaxRunSteps(cfg.MaxRunSteps),
	)
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}
	return runnable, nil
}

// stageLambda 记录节点路径与耗时；Stage 返回的 error 会终止整个轮次。
func stageLambda(st Stage) func(ctx context.Context, state AgentState) (AgentState, error) {
	name := st.Name()
	return func(ctx context.Context, state AgentState) (AgentState, error) {
		start := time.Now()
		out, err := st.Run(ctx, state)
		stageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			logx.Error().Err(err).Str("trace_id", state.TraceID).Str("stage", name).Msg("stage failed")
			return state, errx.Wrap(errx.KindInternal, err, fmt.Sprintf("stage %s failed", name))
		}
		out.Visited = append(out.Visited, name)
		logx.Debug().Str("trace_id", out.TraceID).Str("stage", name).
			Dur("elapsed", time.Since(start)).Msg("stage done")
		return out, nil
	}
}
