package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "mongoagent.db")
	s, err := Open(ctx, Config{
		Path:      dbPath,
		EnableWAL: true,
	})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAuditInsertQueryUpdate(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	rec := AuditRecord{
		TraceID:    "trace-1",
		Action:     "count",
		ParamsJSON: `{"collection":"users"}`,
		Status:     AuditStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.InsertAuditRecord(ctx, &rec); err != nil {
		t.Fatalf("insert audit: %v", err)
	}
	if rec.ID == 0 {
		t.Fatalf("expected audit id to be assigned")
	}

	got, err := s.QueryAuditRecords(ctx, AuditQuery{TraceID: "trace-1", Limit: 10})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(got) != 1 || got[0].Status != AuditStatusRunning {
		t.Fatalf("unexpected audit rows: %+v", got)
	}

	status := AuditStatusFailed
	kind := "DATABASE_CONNECTION_ERROR"
	msg := "server selection timeout"
	finished := time.Now().UTC()
	if err := s.UpdateAuditRecord(ctx, rec.ID, AuditUpdate{
		Status:       &status,
		ErrorKind:    &kind,
		ErrorMessage: &msg,
		FinishedAt:   &finished,
	}); err != nil {
		t.Fatalf("update audit: %v", err)
	}

	got2, err := s.QueryAuditRecords(ctx, AuditQuery{TraceID: "trace-1", Status: AuditStatusFailed, Limit: 10})
	if err != nil {
		t.Fatalf("query audit after update: %v", err)
	}
	if len(got2) != 1 || got2[0].ErrorKind != kind || got2[0].ErrorMessage != msg {
		t.Fatalf("unexpected audit rows after update: %+v", got2)
	}
}

func TestUpdateAuditRecordNotFound(t *testing.T) {
	s := openTestStorage(t)

	status := AuditStatusSuccess
	err := s.UpdateAuditRecord(context.Background(), 4242, AuditUpdate{Status: &status})
	if err == nil {
		t.Fatalf("expected not found error")
	}
	if !IsNotFound(err) {
		t.Fatalf("expected notFoundError, got %v", err)
	}
}

func TestTurnRecordsQueryAndPrune(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := TurnRecord{
		TraceID:        "t-old",
		ConversationID: "c-1",
		Intent:         "GENERAL_CONVERSATION",
		Outcome:        "success",
		CreatedAt:      now.Add(-48 * time.Hour),
	}
	recent := TurnRecord{
		TraceID:        "t-new",
		ConversationID: "c-1",
		Intent:         "BUSINESS_INQUIRY",
		Operation:      "count",
		Outcome:        "success",
		CreatedAt:      now,
	}
	for _, rec := range []*TurnRecord{&old, &recent} {
		if err := s.InsertTurnRecord(ctx, rec); err != nil {
			t.Fatalf("insert turn: %v", err)
		}
	}

	got, err := s.QueryTurnRecords(ctx, TurnQuery{ConversationID: "c-1", Desc: true})
	if err != nil {
		t.Fatalf("query turns: %v", err)
	}
	if len(got) != 2 || got[0].TraceID != "t-new" {
		t.Fatalf("unexpected turn order: %+v", got)
	}

	deleted, err := s.DeleteTurnRecordsBeforeLimited(ctx, now.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("prune turns: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted turn, got %d", deleted)
	}

	info, err := s.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.TurnRecords != 1 || info.OldestTurn == nil {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestDeleteAuditRecordsBeforeLimited(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := AuditRecord{Action: "find", Status: AuditStatusSuccess, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.InsertAuditRecord(ctx, &rec); err != nil {
			t.Fatalf("insert audit %d: %v", i, err)
		}
	}

	deleted, err := s.DeleteAuditRecordsBeforeLimited(ctx, time.Now().UTC(), 2)
	if err != nil {
		t.Fatalf("delete audit: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected batch of 2, got %d", deleted)
	}

	rest, err := s.QueryAuditRecords(ctx, AuditQuery{})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("expected 3 remaining audit rows, got %d", len(rest))
	}
}

func TestInfo(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	info, err := s.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.AuditRecords != 0 || info.TurnRecords != 0 || info.OldestTurn != nil {
		t.Fatalf("unexpected info on empty db: %+v", info)
	}

	first := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for _, at := range []time.Time{first, first.Add(30 * time.Minute)} {
		if err := s.InsertTurnRecord(ctx, &TurnRecord{Intent: "GENERAL_CONVERSATION", CreatedAt: at}); err != nil {
			t.Fatalf("insert turn: %v", err)
		}
	}
	if err := s.InsertAuditRecord(ctx, &AuditRecord{Action: "count", Status: AuditStatusSuccess}); err != nil {
		t.Fatalf("insert audit: %v", err)
	}

	info, err = s.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.AuditRecords != 1 || info.TurnRecords != 2 {
		t.Fatalf("counts = %d/%d, want 1/2", info.AuditRecords, info.TurnRecords)
	}
	if info.OldestTurn == nil || !info.OldestTurn.Equal(first) {
		t.Fatalf("oldest = %v, want %v", info.OldestTurn, first)
	}
}

func TestNilStorage(t *testing.T) {
	var s *Storage
	ctx := context.Background()
	if err := s.InsertTurnRecord(ctx, &TurnRecord{}); err == nil {
		t.Fatal("expected error from nil storage")
	}
	if _, err := s.QueryAuditRecords(ctx, AuditQuery{}); err == nil {
		t.Fatal("expected error from nil storage")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close nil storage: %v", err)
	}
}

func TestDSNFromConfig(t *testing.T) {
	if _, err := dsnFromConfig(Config{}); err == nil {
		t.Fatal("expected error without path")
	}
	dsn, err := dsnFromConfig(Config{Path: "/tmp/a.db", BusyTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if want := "file:/tmp/a.db?_pragma=busy_timeout(2000)"; dsn != want {
		t.Fatalf("dsn = %q, want %q", dsn, want)
	}
}
