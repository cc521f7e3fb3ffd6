package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/MongoAgent/internal/agent"
	"github.com/wwwzy/MongoAgent/internal/tools"
	"github.com/wwwzy/MongoAgent/internal/tools/toolstest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChatter struct {
	got []agent.Request
}

func (f *fakeChatter) Invoke(_ context.Context, req agent.Request) agent.Reply {
	f.got = append(f.got, req)
	trace := req.TraceID
	if trace == "" {
		trace = "generated-trace"
	}
	return agent.Reply{
		ConversationID: req.ConversationID,
		TraceID:        trace,
		Response:       "There are 3 users.",
		Language:       "en",
		Intent:         agent.IntentBusinessInquiry,
		Operation:      "count",
		Outcome:        "success",
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, db Pinger, opts ...func(*Config)) (*Server, *fakeChatter) {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterMongoTools(reg, toolstest.NewFakeDatabase()))
	reg.RestrictCollections("users")
	chat := &fakeChatter{}
	cfg := DefaultConfig()
	cfg.Mode = gin.TestMode
	for _, o := range opts {
		o(&cfg)
	}
	return New(cfg, chat, reg, db), chat
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestChat_ReturnsReply(t *testing.T) {
	srv, chat := newTestServer(t, fakePinger{})

	w := do(t, srv.Handler(), http.MethodPost, "/v1/chat",
		`{"conversation_id": "c1", "message": "How many users are there?"}`,
		map[string]string{traceHeader: "trace-123"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trace-123", w.Header().Get(traceHeader))

	var reply agent.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "There are 3 users.", reply.Response)
	assert.Equal(t, agent.IntentBusinessInquiry, reply.Intent)
	assert.Equal(t, "c1", reply.ConversationID)

	require.Len(t, chat.got, 1)
	assert.Equal(t, "How many users are there?", chat.got[0].Message)
	assert.Equal(t, "trace-123", chat.got[0].TraceID)
}

func TestChat_RejectsMissingMessage(t *testing.T) {
	srv, chat := newTestServer(t, fakePinger{})

	for _, body := range []string{`{}`, `{"message": ""}`, `not json`} {
		w := do(t, srv.Handler(), http.MethodPost, "/v1/chat", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), "message is required")
	}
	assert.Empty(t, chat.got)
}

func TestTools_ListsCatalog(t *testing.T) {
	srv, _ := newTestServer(t, fakePinger{})

	w := do(t, srv.Handler(), http.MethodGet, "/v1/tools", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tools []toolView `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tools, 11)

	byName := map[string]toolView{}
	for _, tv := range body.Tools {
		byName[tv.Name] = tv
	}
	assert.True(t, byName["insert_one"].Mutating)
	assert.False(t, byName["find"].Mutating)

	params := byName["count"].Parameters
	require.NotEmpty(t, params)
	assert.Equal(t, "collection", params[0].Name)
	assert.True(t, params[0].Required)
}

func TestToolRun(t *testing.T) {
	disabled, _ := newTestServer(t, fakePinger{})
	w := do(t, disabled.Handler(), http.MethodPost, "/v1/tools/count", `{"collection":"users"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "tool api is off by default")

	srv, chat := newTestServer(t, fakePinger{}, func(c *Config) { c.EnableToolAPI = true })
	h := srv.Handler()

	w = do(t, h, http.MethodPost, "/v1/tools/count", `{"collection":"users"}`, map[string]string{traceHeader: "t-7"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"collection":"users","count":0}`, w.Body.String())
	assert.Equal(t, "t-7", w.Header().Get(traceHeader))

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   string
	}{
		{"unknown operation", "/v1/tools/drop_database", `{}`, http.StatusNotFound, "OPERATION_NOT_FOUND"},
		{"missing parameter", "/v1/tools/count", `{}`, http.StatusBadRequest, "SCHEMA_VIOLATION"},
		{"bad json", "/v1/tools/count", `[1,2]`, http.StatusBadRequest, "SCHEMA_VIOLATION"},
		{"outside allowlist", "/v1/tools/count", `{"collection":"secrets"}`, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.kind)
			assert.NotEmpty(t, w.Header().Get(traceHeader))
		})
	}
	assert.Empty(t, chat.got, "tool calls bypass the conversation")
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, fakePinger{})
	w := do(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	down, _ := newTestServer(t, fakePinger{err: errors.New("no reachable servers")})
	w = do(t, down.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "no reachable servers")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, fakePinger{})
	w := do(t, srv.Handler(), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, fakePinger{})
	srv.cfg.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
