package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/wwwzy/MongoAgent/internal/agent"
	"github.com/wwwzy/MongoAgent/internal/core"
)

// ChatBackend 处理一轮对话，由 *agent.Service 实现。
type ChatBackend interface {
	Invoke(ctx context.Context, req agent.Request) agent.Reply
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error
}

type ChatOptions struct {
	// ConversationID 为空时每次会话生成新的 ID；指定已有 ID 可继续之前的对话。
	ConversationID string
	// ShowTrace 在每条回答后打印意图、操作与路径。
	ShowTrace bool
}

// Session 返回本次会话使用的对话 ID。
func (o ChatOptions) Session() string {
	return core.OrNewID(o.ConversationID)
}

// TraceLine 把一轮回答的执行摘要格式化为一行。
func TraceLine(r agent.Reply) string {
	parts := []string{"intent=" + string(r.Intent)}
	if r.Language != "" {
		parts = append(parts, "lang="+r.Language)
	}
	if r.Operation != "" {
		parts = append(parts, "op="+r.Operation)
	}
	parts = append(parts, "outcome="+r.Outcome)
	if len(r.Path) > 0 {
		parts = append(parts, "path="+strings.Join(r.Path, ">"))
	}
	return fmt.Sprintf("[%s] trace=%s", strings.Join(parts, " "), r.TraceID)
}

// IsExit 判断输入是否为退出指令。
func IsExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit":
		return true
	}
	return false
}

// NewRequest 为一条用户输入构造请求；TraceID 由 Service 生成。
func NewRequest(session, message string) agent.Request {
	return agent.Request{ConversationID: session, Message: message}
}
