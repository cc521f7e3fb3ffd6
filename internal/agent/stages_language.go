package agent

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/MongoAgent/internal/translate"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

// inputStage 重置轮次字段并追加用户消息。
type inputStage struct{}

func (inputStage) Name() string     { return NodeInput }
func (inputStage) Describe() string { return "reset turn fields and append the user message" }

func (inputStage) Run(_ context.Context, state AgentState) (AgentState, error) {
	if state.Messages == nil {
		state.Messages = make([]*schema.Message, 0)
	}

	state.Intent = IntentUnclassified
	state.QueryDescriptor = nil
	state.QueryResult = nil
	state.FinalResponse = ""
	state.Response = ""
	state.Visited = nil
	state.OriginalLanguage = ""
	state.LanguageName = ""
	state.LanguageConfidence = 0
	state.PivotQuery = state.UserQuery

	// 调用方可能已经把本轮输入放进了 Messages
	if state.UserQuery != "" {
		isLastUser := false
		if n := len(state.Messages); n > 0 {
			last := state.Messages[n-1]
			isLastUser = last.Role == schema.User && last.Content == state.UserQuery
		}
		if !isLastUser {
			state.Messages = append(state.Messages, schema.UserMessage(state.UserQuery))
		}
	}
	return state, nil
}

type detectStage struct {
	deps Dependencies
}

func (s *detectStage) Name() string { return NodeLanguageDetect }
func (s *detectStage) Describe() string {
	return "detect the user's language; fall back to English when unsure"
}

func (s *detectStage) Run(ctx context.Context, state AgentState) (AgentState, error) {
	pivot := translate.PivotLanguage()
	state.OriginalLanguage = pivot.Code
	state.LanguageName = pivot.Name
	state.LanguageConfidence = pivot.Confidence

	dctx, cancel := context.WithTimeout(ctx, s.deps.Config.LLMTimeout)
	defer cancel()

	lang, err := s.deps.Translator.Detect(dctx, state.UserQuery)
	if err != nil {
		translationFallbackTotal.WithLabelValues("detect").Inc()
		logx.Warn().Err(err).Str("trace_id", state.TraceID).Str("stage", s.Name()).Msg("language detection failed, using pivot language")
		return state, nil
	}
	if lang.Confidence < s.deps.Config.MinLanguageConfidence {
		logx.Warn().Str("trace_id", state.TraceID).Str("stage", s.Name()).
			Str("language", lang.Code).Float64("confidence", lang.Confidence).
			Msg("language confidence below threshold, using pivot language")
		return state, nil
	}
	if translate.IsPivot(lang.Code) {
		state.LanguageConfidence = lang.Confidence
		return state, nil
	}

	state.OriginalLanguage = lang.Code
	state.LanguageName = lang.Name
	state.LanguageConfidence = lang.Confidence
	logx.Debug().Str("trace_id", state.TraceID).Str("stage", s.Name()).Str("language", lang.Code).Msg("non-pivot language detected")
	return state, nil
}

type translateInStage struct {
	deps Dependencies
}

func (s *translateInStage) Name() string     { return NodeTranslateIn }
func (s *translateInStage) Describe() string { return "translate the message into English" }

func (s *translateInStage) Run(ctx context.Context, state AgentState) (AgentState, error) {
	tctx, cancel := context.WithTimeout(ctx, s.deps.Config.LLMTimeout)
	defer cancel()

	text, err := s.deps.Translator.Translate(tctx, state.UserQuery, state.OriginalLanguage, translate.Pivot)
	if err != nil {
		translationFallbackTotal.WithLabelValues("in").Inc()
		logx.Warn().Err(err).Str("trace_id", state.TraceID).Str("stage", s.Name()).Msg("translate-in failed, using original text")
		state.PivotQuery = state.UserQuery
		return state, nil
	}
	state.PivotQuery = text
	state.Messages = replaceCurrentUserMessage(state.Messages, text)
	return state, nil
}

// replaceCurrentUserMessage 用译文替换本轮用户消息，不修改共享的底层数组。
func replaceCurrentUserMessage(msgs []*schema.Message, text string) []*schema.Message {
	n := len(msgs)
	if n == 0 || msgs[n-1].Role != schema.User {
		return append(msgs, schema.UserMessage(text))
	}
	out := make([]*schema.Message, n)
	copy(out, msgs[:n-1])
	out[n-1] = schema.UserMessage(text)
	return out
}

type translateOutStage struct {
	deps Dependencies
}

func (s *translateOutStage) Name() string { return NodeTranslateOut }
func (s *translateOutStage) Describe() string {
	return "translate the answer back into the user's language"
}

func (s *translateOutStage) Run(ctx context.Context, state AgentState) (AgentState, error) {
	tctx, cancel := context.WithTimeout(ctx, s.deps.Config.LLMTimeout)
	defer cancel()

	text, err := s.deps.Translator.Translate(tctx, state.FinalResponse, translate.Pivot, state.OriginalLanguage)
	if err != nil {
		translationFallbackTotal.WithLabelValues("out").Inc()
		logx.Warn().Err(err).Str("trace_id", state.TraceID).Str("stage", s.Name()).
			Str("language", state.OriginalLanguage).Msg("translate-out failed, returning English response")
		state.Response = state.FinalResponse
		return state, nil
	}
	state.Response = text
	return state, nil
}

// outputStage 确定用户可见回答，并把枢轴语言的回答追加到历史。
type outputStage struct{}

func (outputStage) Name() string     { return NodeOutput }
func (outputStage) Describe() string { return "append the assistant message" }

func (outputStage) Run(_ context.Context, state AgentState) (AgentState, error) {
	if state.Response == "" {
		state.Response = state.FinalResponse
	}
	state.Messages = append(state.Messages, schema.AssistantMessage(state.FinalResponse, nil))
	return state, nil
}
