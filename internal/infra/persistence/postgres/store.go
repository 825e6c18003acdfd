// Package postgres provides a Postgres-backed SessionStore using the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"smartloan/internal/infra/persistence/codec"
	"smartloan/pkg/domain"
)

var _ domain.SessionStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/smartloan?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store keeps one row per session in the session_state table.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens the database at dsn (falls back to defaultDSN), verifies the
// connection and ensures the table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS session_state (
		session_id TEXT PRIMARY KEY,
		parameters JSONB NOT NULL,
		audit JSONB NOT NULL,
		next_audit_id BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure session_state table: %w", err)
	}
	return nil
}

// Load implements domain.SessionStore.
func (s *Store) Load(ctx context.Context, sessionID string) (domain.SessionState, bool, error) {
	var row codec.Row
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, parameters, audit, next_audit_id, updated_at FROM session_state WHERE session_id = $1`,
		sessionID,
	).Scan(&row.SessionID, &row.Parameters, &row.Audit, &row.NextAuditID, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionState{}, false, nil
	}
	if err != nil {
		return domain.SessionState{}, false, fmt.Errorf("select session %s: %w", sessionID, err)
	}
	state, err := codec.Decode(row)
	if err != nil {
		return domain.SessionState{}, false, err
	}
	return state, true, nil
}

// Save implements domain.SessionStore. The upsert runs in its own transaction.
func (s *Store) Save(ctx context.Context, state domain.SessionState) error {
	row, err := codec.Encode(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_state(session_id,parameters,audit,next_audit_id,updated_at) VALUES($1,$2,$3,$4,$5) ON CONFLICT(session_id) DO UPDATE SET parameters=EXCLUDED.parameters, audit=EXCLUDED.audit, next_audit_id=EXCLUDED.next_audit_id, updated_at=EXCLUDED.updated_at`,
		row.SessionID, row.Parameters, row.Audit, row.NextAuditID, row.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert session %s: %w", row.SessionID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Delete implements domain.SessionStore.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// List implements domain.SessionStore.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM session_state ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// Close implements domain.SessionStore.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
