package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"smartloan/internal/infra/persistence/postgres/testutil"
	"smartloan/pkg/domain"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func state(id string, enabled bool) domain.SessionState {
	return domain.SessionState{
		SessionID:   id,
		Values:      domain.NewSnapshot(map[string]domain.Value{"a": domain.Bool(enabled)}),
		NextAuditID: 1,
		UpdatedAt:   time.Unix(0, 42).UTC(),
	}
}

func TestNewStoreCreatesTable(t *testing.T) {
	_, conn := openStub(t)
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS session_state") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected session_state DDL, got %v", conn.Execs)
	}
}

func TestSaveLoadListDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := openStub(t)

	if _, ok, err := store.Load(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing session, ok=%v err=%v", ok, err)
	}
	if err := store.Save(ctx, state("s2", true)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, state("s1", true)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, state("s1", false)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, ok, err := store.Load(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if v, _ := got.Values.Get("a"); v.Truthy() {
		t.Fatalf("expected upserted value")
	}
	if got.UpdatedAt.UnixNano() != 42 {
		t.Fatalf("unexpected updated_at %v", got.UpdatedAt)
	}
	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Load(ctx, "s1"); ok {
		t.Fatalf("expected s1 deleted")
	}
	if store.DB() == nil {
		t.Fatalf("expected db handle")
	}
}

func TestSaveErrors(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)

	conn.FailBegin = true
	if err := store.Save(ctx, state("s", true)); err == nil || !strings.Contains(err.Error(), "begin tx") {
		t.Fatalf("expected begin error, got %v", err)
	}
	conn.FailBegin = false
	conn.FailTables = map[string]bool{"session_state": true}
	if err := store.Save(ctx, state("s", true)); err == nil || !strings.Contains(err.Error(), "upsert session s") {
		t.Fatalf("expected upsert error, got %v", err)
	}
	conn.FailTables = nil
	conn.FailCommit = true
	if err := store.Save(ctx, state("s", true)); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestNewStoreErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("boom") })
	if _, err := NewStore(context.Background(), "dsn"); err == nil {
		t.Fatalf("expected open error")
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "dsn"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestLoadDecodeError(t *testing.T) {
	store, conn := openStub(t)
	conn.Tables["session_state"] = []map[string]any{{
		"session_id":    "bad",
		"parameters":    []byte("{"),
		"audit":         []byte("[]"),
		"next_audit_id": int64(1),
		"updated_at":    int64(0),
	}}
	if _, _, err := store.Load(context.Background(), "bad"); err == nil {
		t.Fatalf("expected decode error")
	}
}
