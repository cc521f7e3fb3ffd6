package core

import (
	"context"

	"github.com/google/uuid"
)

type traceIDKey struct{}

// WithTraceID 把一次对话轮次的 trace id 放入 ctx，审计记录与日志据此串联。
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey{}).(string)
	return traceID
}

// OrNewID 原样返回非空 id，否则生成一个新的 uuid。
func OrNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
