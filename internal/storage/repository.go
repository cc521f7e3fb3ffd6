package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	defaultLimit = 200
	maxLimit     = 5000

	defaultDeleteLimit = 500
	// SQLite 单条语句的变量上限为 999
	maxDeleteLimit = 900
)

var errNotInitialized = errors.New("storage not initialized")

// AuditQuery 用于查询审计记录的过滤条件；零值字段不参与过滤。
type AuditQuery struct {
	TraceID string
	Action  string
	Status  string
	// From/To 过滤 CreatedAt 区间：[From, To]（两端包含）。
	From *time.Time
	To   *time.Time
	// Limit <=0 使用默认值。
	Limit int
	Desc  bool
}

// AuditUpdate 中为 nil 的字段保持不变。
type AuditUpdate struct {
	Status       *string
	ResultJSON   *string
	ErrorKind    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// TurnQuery 用于查询对话轮次记录。
type TurnQuery struct {
	ConversationID string
	TraceID        string
	Intent         string
	From           *time.Time
	Limit          int
	Desc           bool
}

func (s *Storage) ready() error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	return nil
}

func (s *Storage) InsertAuditRecord(ctx context.Context, rec *AuditRecord) error {
	if rec == nil {
		return errors.New("audit record is nil")
	}
	stampCreated(&rec.CreatedAt)
	return s.create(ctx, "audit record", rec)
}

func (s *Storage) QueryAuditRecords(ctx context.Context, q AuditQuery) ([]AuditRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var out []AuditRecord
	err := s.db.WithContext(ctx).Model(&AuditRecord{}).
		Scopes(
			equal("trace_id", q.TraceID),
			equal("action", q.Action),
			equal("status", q.Status),
			createdBetween(q.From, q.To),
			newestFirst(q.Desc),
		).
		Limit(normalizeLimit(q.Limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	return out, nil
}

func (s *Storage) UpdateAuditRecord(ctx context.Context, id uint64, up AuditUpdate) error {
	if err := s.ready(); err != nil {
		return err
	}

	cols := map[string]any{}
	setIf(cols, "status", up.Status)
	setIf(cols, "result_json", up.ResultJSON)
	setIf(cols, "error_kind", up.ErrorKind)
	setIf(cols, "error_message", up.ErrorMessage)
	if up.FinishedAt != nil {
		cols["finished_at"] = *up.FinishedAt
	}
	if len(cols) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&AuditRecord{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update audit record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundError{Entity: "audit record", ID: id}
	}
	return nil
}

// DeleteAuditRecordsBeforeLimited 删除 CreatedAt 早于 before 的审计记录，单次最多 limit 条。
func (s *Storage) DeleteAuditRecordsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	return s.deleteBefore(ctx, &AuditRecord{}, "audit records", before, limit)
}

func (s *Storage) InsertTurnRecord(ctx context.Context, rec *TurnRecord) error {
	if rec == nil {
		return errors.New("turn record is nil")
	}
	stampCreated(&rec.CreatedAt)
	return s.create(ctx, "turn record", rec)
}

func (s *Storage) QueryTurnRecords(ctx context.Context, q TurnQuery) ([]TurnRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var out []TurnRecord
	err := s.db.WithContext(ctx).Model(&TurnRecord{}).
		Scopes(
			equal("conversation_id", q.ConversationID),
			equal("trace_id", q.TraceID),
			equal("intent", q.Intent),
			createdBetween(q.From, nil),
			newestFirst(q.Desc),
		).
		Limit(normalizeLimit(q.Limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query turn records: %w", err)
	}
	return out, nil
}

func (s *Storage) DeleteTurnRecordsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	return s.deleteBefore(ctx, &TurnRecord{}, "turn records", before, limit)
}

func (s *Storage) create(ctx context.Context, what string, rec any) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert %s: %w", what, err)
	}
	return nil
}

// deleteBefore 先选出最旧的一批 id 再按 id 删除，避免长时间持有写锁。
func (s *Storage) deleteBefore(ctx context.Context, model any, what string, before time.Time, limit int) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	var ids []uint64
	err := s.db.WithContext(ctx).Model(model).
		Where("created_at < ?", before).
		Order("id ASC").
		Limit(normalizeDeleteLimit(limit)).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("select %s ids: %w", what, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(model)
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", what, res.Error)
	}
	return res.RowsAffected, nil
}

func equal(column, value string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if value == "" {
			return db
		}
		return db.Where(column+" = ?", value)
	}
}

func createdBetween(from, to *time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if from != nil {
			db = db.Where("created_at >= ?", *from)
		}
		if to != nil {
			db = db.Where("created_at <= ?", *to)
		}
		return db
	}
}

func newestFirst(desc bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if desc {
			return db.Order("created_at DESC, id DESC")
		}
		return db.Order("created_at ASC, id ASC")
	}
}

func setIf(cols map[string]any, column string, v *string) {
	if v != nil {
		cols[column] = *v
	}
}

func stampCreated(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}

func normalizeLimit(v int) int {
	if v <= 0 {
		return defaultLimit
	}
	return min(v, maxLimit)
}

func normalizeDeleteLimit(v int) int {
	if v <= 0 {
		return defaultDeleteLimit
	}
	return min(v, maxDeleteLimit)
}

type notFoundError struct {
	Entity string
	ID     uint64
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Entity, e.ID)
}

// IsNotFound reports whether err came from an update against a missing row.
func IsNotFound(err error) bool {
	var nf notFoundError
	return errors.As(err, &nf)
}
