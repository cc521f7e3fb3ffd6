package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/tools"
	"github.com/wwwzy/MongoAgent/internal/translate"
)

// 节点名即 Stage.Name()。
const (
	NodeInput             = "INPUT"
	NodeLanguageDetect    = "LANGUAGE_DETECT"
	NodeTranslateIn       = "TRANSLATE_IN"
	NodeClassifyIntent    = "CLASSIFY_INTENT"
	NodeConversationReply = "CONVERSATION_REPLY"
	NodeQueryUnderstand   = "QUERY_UNDERSTAND"
	NodeExecute           = "EXECUTE"
	NodeFormat            = "FORMAT"
	NodeTranslateOut      = "TRANSLATE_OUT"
	NodeOutput            = "OUTPUT"
)

// graphNodes 为图中全部节点，BuildGraph 要求每个节点都有对应 Stage。
var graphNodes = []string{
	NodeInput, NodeLanguageDetect, NodeTranslateIn, NodeClassifyIntent,
	NodeConversationReply, NodeQueryUnderstand, NodeExecute, NodeFormat,
	NodeTranslateOut, NodeOutput,
}

// Stage 是图中一个节点的能力实现。
// 领域内失败（LLM、翻译、数据库）必须转换为状态中的降级结果，
// 只有无法继续的内部错误才通过 error 返回。
type Stage interface {
	Name() string
	Describe() string
	Run(ctx context.Context, state AgentState) (AgentState, error)
}

// Dependencies 为各 Stage 的外部协作者。
type Dependencies struct {
	Model      model.BaseChatModel
	Translator translate.Translator
	Registry   *tools.Registry
	Config     Config
}

func (d Dependencies) validate() error {
	if d.Model == nil {
		return fmt.Errorf("chat model is required")
	}
	if d.Translator == nil {
		return fmt.Errorf("translator is required")
	}
	if d.Registry == nil {
		return fmt.Errorf("tool registry is required")
	}
	return nil
}

type StageSet struct {
	stages map[string]Stage
}

func NewStageSet() *StageSet {
	return &StageSet{stages: map[string]Stage{}}
}

// DefaultStages 按依赖构建全部默认节点。
func DefaultStages(deps Dependencies) (*StageSet, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	deps.Config = deps.Config.withDefaults()

	set := NewStageSet()
	for _, st := range []Stage{
		inputStage{},
		&detectStage{deps: deps},
		&translateInStage{deps: deps},
		newClassifyStage(deps),
		newConversationStage(deps),
		newUnderstandStage(deps),
		&executeStage{deps: deps},
		newFormatStage(deps),
		&translateOutStage{deps: deps},
		outputStage{},
	} {
		if err := set.Register(st); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (s *StageSet) Register(st Stage) error {
	if st == nil || st.Name() == "" {
		return fmt.Errorf("stage name is required")
	}
	if _, exists := s.stages[st.Name()]; exists {
		return fmt.Errorf("stage %q already registered", st.Name())
	}
	s.stages[st.Name()] = st
	return nil
}

// Replace 覆盖同名节点（用于测试或定制）。
func (s *StageSet) Replace(st Stage) {
	s.stages[st.Name()] = st
}

func (s *StageSet) Get(name string) (Stage, bool) {
	st, ok := s.stages[name]
	return st, ok
}

func (s *StageSet) Names() []string {
	names := make([]string, 0, len(s.stages))
	for n := range s.stages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe 按图中顺序列出各节点说明。
func (s *StageSet) Describe() string {
	var b strings.Builder
	for _, n := range graphNodes {
		if st, ok := s.stages[n]; ok {
			fmt.Fprintf(&b, "%-20s %s\n", n, st.Describe())
		}
	}
	return b.String()
}

// historyWindow 返回本轮用户消息之前的最近 n 条消息。
// INPUT 总会把本轮消息放在末尾，模板会单独渲染它。
func historyWindow(state AgentState, n int) []*schema.Message {
	msgs := state.Messages
	if k := len(msgs); k > 0 && msgs[k-1].Role == schema.User {
		msgs = msgs[:k-1]
	}
	if n <= 0 {
		return nil
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// generate 渲染模板并在 LLMTimeout 内调用模型，返回去除首尾空白的文本。
func generate(ctx context.Context, deps Dependencies, tpl prompt.ChatTemplate, vars map[string]any, opts ...model.Option) (string, error) {
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", errx.New(errx.KindInternal, err, "failed to render prompt")
	}

	ctx, cancel := context.WithTimeout(ctx, deps.Config.LLMTimeout)
	defer cancel()

	out, err := deps.Model.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", errx.New(errx.KindLLMService, err, "the language model is unavailable")
	}
	return strings.TrimSpace(out.Content), nil
}
