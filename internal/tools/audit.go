package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wwwzy/MongoAgent/internal/core"
	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/storage"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

const (
	auditTruncateLimit = 2048
)

type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec *storage.AuditRecord) error
	UpdateAuditRecord(ctx context.Context, id uint64, up storage.AuditUpdate) error
}

var _ AuditStore = (*storage.Storage)(nil)

// WithAudit 在操作执行前后写审计记录；审计失败只记日志，不阻断操作。
func WithAudit(store AuditStore) Middleware {
	return func(op *Operation, next Executor) Executor {
		if store == nil {
			return next
		}
		return func(ctx context.Context, params map[string]any) (any, error) {
			paramsJSON, _ := json.Marshal(params)
			record := &storage.AuditRecord{
				TraceID:    core.GetTraceID(ctx),
				Action:     op.Name,
				Mutating:   op.Mutating,
				ParamsJSON: truncate(string(paramsJSON), auditTruncateLimit),
				Status:     storage.AuditStatusRunning,
				StartedAt:  time.Now().UTC(),
			}
			if err := store.InsertAuditRecord(ctx, record); err != nil {
				logx.Warn().Err(err).Str("action", op.Name).Msg("failed to insert audit record")
			}

			result, runErr := next(ctx, params)

			// 只有在 Insert 成功且有了 ID 后，才能 Update
			if record.ID == 0 {
				return result, runErr
			}

			finishedAt := time.Now().UTC()
			update := storage.AuditUpdate{FinishedAt: &finishedAt}
			if runErr != nil {
				status := storage.AuditStatusFailed
				kind := string(errx.KindOf(runErr))
				msg := truncate(runErr.Error(), auditTruncateLimit)
				update.Status = &status
				update.ErrorKind = &kind
				update.ErrorMessage = &msg
			} else {
				status := storage.AuditStatusSuccess
				data, _ := json.Marshal(result)
				r := truncate(string(data), auditTruncateLimit)
				update.Status = &status
				update.ResultJSON = &r
			}
			// 轮次 ctx 可能已超时，审计更新不应因此丢失。
			if err := store.UpdateAuditRecord(context.WithoutCancel(ctx), record.ID, update); err != nil {
				logx.Warn().Err(err).Uint64("audit_id", record.ID).Msg("failed to update audit record")
			}
			return result, runErr
		}
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return core.CutUTF8(s, limit) + "...(truncated)"
}
