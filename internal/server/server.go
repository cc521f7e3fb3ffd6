// Package server 提供 HTTP 接口：对话、工具清单、健康检查与指标。
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wwwzy/MongoAgent/internal/agent"
	"github.com/wwwzy/MongoAgent/internal/core"
	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/tools"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

const (
	traceHeader = "X-Trace-ID"
	maxToolBody = 1 << 20
)

type Config struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"`
	// Mode 为 gin 运行模式：debug / release / test。
	Mode            string        `mapstructure:"mode" yaml:"mode" validate:"omitempty,oneof=debug release test"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// EnableToolAPI 开启 POST /v1/tools/:name，绕过对话直接执行操作，仅供运维使用。
	EnableToolAPI bool `mapstructure:"enable_tool_api" yaml:"enable_tool_api"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		Mode:            gin.ReleaseMode,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    2 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Chatter 处理一轮对话，由 *agent.Service 实现。
type Chatter interface {
	Invoke(ctx context.Context, req agent.Request) agent.Reply
}

// Pinger 用于健康检查，由 *mongodb.Client 实现。
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg      Config
	chat     Chatter
	registry *tools.Registry
	db       Pinger
	engine   *gin.Engine
}

func New(cfg Config, chat Chatter, registry *tools.Registry, db Pinger) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	s := &Server{cfg: cfg, chat: chat, registry: registry, db: db}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/chat", s.handleChat)
	v1.GET("/tools", s.handleTools)
	if cfg.EnableToolAPI {
		v1.POST("/tools/:name", s.handleToolRun)
	}

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听直到 ctx 取消，然后在 ShutdownTimeout 内优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logx.Info().Msg("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message" binding:"required"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: message is required"})
		return
	}

	reply := s.chat.Invoke(c.Request.Context(), agent.Request{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		TraceID:        c.GetHeader(traceHeader),
	})
	c.Header(traceHeader, reply.TraceID)
	c.JSON(http.StatusOK, reply)
}

type toolParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

type toolView struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Mutating    bool        `json:"mutating"`
	Parameters  []toolParam `json:"parameters"`
}

func (s *Server) handleTools(c *gin.Context) {
	ops := s.registry.Operations()
	out := make([]toolView, 0, len(ops))
	for _, op := range ops {
		out = append(out, toolView{
			Name:        op.Name,
			Description: op.Desc,
			Mutating:    op.Mutating,
			Parameters:  paramsOf(op),
		})
	}
	c.JSON(http.StatusOK, gin.H{"tools": out})
}

// handleToolRun 以请求体为参数直接执行一个操作，同样经过校验、白名单与审计。
func (s *Server) handleToolRun(c *gin.Context) {
	traceID := core.OrNewID(c.GetHeader(traceHeader))
	c.Header(traceHeader, traceID)

	name := c.Param("name")
	tl, ok := s.registry.Tool(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errx.KindOperationNotFound, "message": fmt.Sprintf("the operation %q is not available", name)})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxToolBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errx.KindSchemaViolation, "message": "could not read request body"})
		return
	}

	out, err := tl.InvokableRun(core.WithTraceID(c.Request.Context(), traceID), string(body))
	if err != nil {
		kind := errx.KindOf(err)
		c.JSON(errx.StatusFor(kind), gin.H{"error": kind, "message": errx.MessageOf(err)})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(out))
}

func paramsOf(op *tools.Operation) []toolParam {
	names := make([]string, 0, len(op.Params))
	for n := range op.Params {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]toolParam, 0, len(names))
	for _, n := range names {
		p := op.Params[n]
		out = append(out, toolParam{Name: n, Type: string(p.Type), Description: p.Desc, Required: p.Required})
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			logx.Warn().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "mongo": "down"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mongo": "up"})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logx.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Str("trace_id", c.Writer.Header().Get(traceHeader)).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
