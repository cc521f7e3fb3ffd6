package agent

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/MongoAgent/internal/core"
	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/history"
	"github.com/wwwzy/MongoAgent/internal/storage"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

const emptyMessageReply = "Please type a message so I can help you."

// TurnRecorder 持久化轮次记录，由 *storage.Storage 实现。
type TurnRecorder interface {
	InsertTurnRecord(ctx context.Context, rec *storage.TurnRecord) error
}

type Request struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message" binding:"required" validate:"required"`
	TraceID        string `json:"trace_id,omitempty"`
}

type Reply struct {
	ConversationID string       `json:"conversation_id"`
	TraceID        string       `json:"trace_id"`
	Response       string       `json:"response"`
	Language       string       `json:"language"`
	Intent         Intent       `json:"intent"`
	Operation      string       `json:"operation,omitempty"`
	Outcome        string       `json:"outcome"`
	Path           []string     `json:"path"`
	Result         *QueryResult `json:"result,omitempty"`
}

// Service 驱动一次完整的对话轮次：加载历史、运行图、持久化。
type Service struct {
	runnable compose.Runnable[AgentState, AgentState]
	stages   *StageSet
	cfg      Config
	history  history.Repository
	turns    TurnRecorder
}

// NewService 编译图；hist 为空时使用内存历史，turns 可为空。
func NewService(ctx context.Context, stages *StageSet, cfg Config, hist history.Repository, turns TurnRecorder) (*Service, error) {
	cfg = cfg.withDefaults()
	runnable, err := BuildGraph(ctx, stages, cfg)
	if err != nil {
		return nil, err
	}
	if hist == nil {
		hist = history.NewMemoryRepository(0)
	}
	return &Service{runnable: runnable, stages: stages, cfg: cfg, history: hist, turns: turns}, nil
}

func (s *Service) Stages() *StageSet { return s.stages }

func (s *Service) History() history.Repository { return s.history }

// Invoke 总是返回一个可展示的回答；图执行失败时返回通用致歉。
func (s *Service) Invoke(ctx context.Context, req Request) Reply {
	start := time.Now()
	req.ConversationID = core.OrNewID(req.ConversationID)
	req.TraceID = core.OrNewID(req.TraceID)
	ctx = core.WithTraceID(ctx, req.TraceID)

	if strings.TrimSpace(req.Message) == "" {
		return Reply{
			ConversationID: req.ConversationID,
			TraceID:        req.TraceID,
			Response:       emptyMessageReply,
			Intent:         IntentUnclassified,
			Outcome:        "success",
		}
	}

	past, err := s.history.LoadHistory(ctx, req.ConversationID, s.cfg.HistoryWindow)
	if err != nil {
		logx.Warn().Err(err).Str("trace_id", req.TraceID).Str("conversation_id", req.ConversationID).Msg("load history failed, continuing without it")
		past = nil
	}

	in := AgentState{
		ConversationID: req.ConversationID,
		TraceID:        req.TraceID,
		Messages:       past,
		UserQuery:      req.Message,
	}

	logx.Info().Str("trace_id", req.TraceID).Str("conversation_id", req.ConversationID).Msg("turn started")
	out, err := s.runnable.Invoke(ctx, in)
	outcome := out.Outcome()
	if err != nil {
		logx.Error().Err(err).Str("trace_id", req.TraceID).Str("kind", string(errx.KindOf(err))).Msg("turn aborted")
		// 未分类的轮次不携带 QueryResult，中断只体现在 Outcome 上
		out = in
		out.Intent = IntentUnclassified
		out.Response = genericApology
		out.FinalResponse = genericApology
		outcome = string(errx.KindInternal)
	}

	reply := Reply{
		ConversationID: req.ConversationID,
		TraceID:        req.TraceID,
		Response:       out.Response,
		Language:       out.OriginalLanguage,
		Intent:         out.Intent,
		Operation:      out.Operation(),
		Outcome:        outcome,
		Path:           out.Visited,
		Result:         out.QueryResult,
	}

	elapsed := time.Since(start)
	turnsTotal.WithLabelValues(string(reply.Intent), reply.Outcome).Inc()
	turnDuration.Observe(elapsed.Seconds())
	s.persist(ctx, req, out, reply, elapsed)

	logx.Info().Str("trace_id", req.TraceID).Str("intent", string(reply.Intent)).
		Str("operation", reply.Operation).Str("outcome", reply.Outcome).
		Dur("elapsed", elapsed).Msg("turn finished")
	return reply
}

// persist 写历史与轮次记录；调用方取消不影响写入，失败仅记录日志。
// 历史保存枢轴语言文本供后续 LLM 阶段使用，轮次记录保存用户可见的原文。
// 图执行中断的轮次没有可靠的枢轴文本，不写入历史。
func (s *Service) persist(ctx context.Context, req Request, out AgentState, reply Reply, elapsed time.Duration) {
	ctx = context.WithoutCancel(ctx)

	if out.PivotQuery != "" && out.FinalResponse != "" {
		if err := s.history.AddMessages(ctx, req.ConversationID,
			schema.UserMessage(out.PivotQuery),
			schema.AssistantMessage(out.FinalResponse, nil),
		); err != nil {
			logx.Warn().Err(err).Str("trace_id", req.TraceID).Msg("save history failed")
		}
	}

	if s.turns == nil {
		return
	}
	rec := &storage.TurnRecord{
		TraceID:        req.TraceID,
		ConversationID: req.ConversationID,
		Language:       reply.Language,
		Intent:         string(reply.Intent),
		Operation:      reply.Operation,
		Outcome:        reply.Outcome,
		UserMessage:    req.Message,
		Response:       reply.Response,
		Path:           strings.Join(reply.Path, ","),
		DurationMS:     elapsed.Milliseconds(),
	}
	if err := s.turns.InsertTurnRecord(ctx, rec); err != nil {
		logx.Warn().Err(err).Str("trace_id", req.TraceID).Msg("save turn record failed")
	}
}
