package agent

import (
	"context"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"

	"github.com/wwwzy/MongoAgent/internal/errx"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

const conversationApology = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

type classifyStage struct {
	deps Dependencies
	tpl  prompt.ChatTemplate
}

func newClassifyStage(deps Dependencies) *classifyStage {
	return &classifyStage{deps: deps, tpl: newClassifyTemplate()}
}

func (s *classifyStage) Name() string { return NodeClassifyIntent }
func (s *classifyStage) Describe() string {
	return "classify the message as GENERAL_CONVERSATION or BUSINESS_INQUIRY"
}

// Run 在输出无法解析或 LLM 失败时默认走业务分支。
func (s *classifyStage) Run(ctx context.Context, state AgentState) (AgentState, error) {
	raw, err := generate(ctx, s.deps, s.tpl, map[string]any{
		"query":   state.PivotQuery,
		"history": historyWindow(state, s.deps.Config.HistoryWindow),
	}, model.WithTemperature(0))
	if err != nil {
		if errx.KindOf(err) == errx.KindInternal {
			return state, err
		}
		classificationFallbackTotal.WithLabelValues("llm_error").Inc()
		logx.Warn().Err(err).Str("trace_id", state.TraceID).Str("stage", s.Name()).
			Str("kind", string(errx.KindClassificationAmbiguous)).
			Msg("intent classification failed, defaulting to BUSINESS_INQUIRY")
		state.Intent = IntentBusinessInquiry
		return state, nil
	}

	intent, ok := ParseIntent(raw)
	if !ok {
		classificationFallbackTotal.WithLabelValues("unparseable").Inc()
		logx.Warn().Str("trace_id", state.TraceID).Str("stage", s.Name()).
			Str("kind", string(errx.KindClassificationAmbiguous)).Str("label", raw).
			Msg("ambiguous intent label, defaulting to BUSINESS_INQUIRY")
		state.Intent = IntentBusinessInquiry
		return state, nil
	}

	state.Intent = intent
	logx.Debug().Str("trace_id", state.TraceID).Str("stage", s.Name()).Str("intent", string(intent)).Msg("intent classified")
	return state, nil
}

// ParseIntent 接受精确标签，或仅提及其中一个标签的输出。
func ParseIntent(raw string) (Intent, bool) {
	cleaned := normalizeLabel(raw)
	switch Intent(cleaned) {
	case IntentGeneralConversation, IntentBusinessInquiry:
		return Intent(cleaned), true
	}

	general := strings.Contains(cleaned, string(IntentGeneralConversation))
	business := strings.Contains(cleaned, string(IntentBusinessInquiry))
	switch {
	case general && !business:
		return IntentGeneralConversation, true
	case business && !general:
		return IntentBusinessInquiry, true
	}
	return IntentUnclassified, false
}

// normalizeLabel 大写并把引号、标点、空白折叠成单个下划线。
func normalizeLabel(raw string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSep = false
			continue
		}
		if !lastSep {
			b.WriteRune('_')
			lastSep = true
		}
	}
	return strings.Trim(b.String(), "_")
}

type conversationStage struct {
	deps Dependencies
	tpl  prompt.ChatTemplate
}

func newConversationStage(deps Dependencies) *conversationStage {
	return &conversationStage{deps: deps, tpl: newConversationTemplate()}
}

func (s *conversationStage) Name() string     { return NodeConversationReply }
func (s *conversationStage) Describe() string { return "reply directly to general conversation" }

func (s *conversationStage) Run(ctx context.Context, state AgentState) (AgentState, error) {
	reply, err := generate(ctx, s.deps, s.tpl, map[string]any{
		"query":   state.PivotQuery,
		"history": historyWindow(state, s.deps.Config.HistoryWindow),
	})
	if err != nil {
		if errx.KindOf(err) == errx.KindInternal {
			return state, err
		}
		logx.Warn().Err(err).Str("trace_id", state.TraceID).Str("stage", s.Name()).Msg("conversation reply failed")
		state.FinalResponse = conversationApology
		return state, nil
	}
	if reply == "" {
		reply = conversationApology
	}
	state.FinalResponse = reply
	return state, nil
}
