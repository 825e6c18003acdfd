// Package sqlite persists session state in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"smartloan/internal/infra/persistence/codec"
	"smartloan/pkg/domain"
)

var _ domain.SessionStore = (*Store)(nil)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "smartloan.db"

// Store keeps one row per session in the session_state table.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating when needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS session_state (
		session_id TEXT PRIMARY KEY,
		parameters BLOB NOT NULL,
		audit BLOB NOT NULL,
		next_audit_id INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session_state table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Load implements domain.SessionStore.
func (s *Store) Load(ctx context.Context, sessionID string) (domain.SessionState, bool, error) {
	var row codec.Row
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, parameters, audit, next_audit_id, updated_at FROM session_state WHERE session_id = ?`,
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

// Save implements domain.SessionStore.
func (s *Store) Save(ctx context.Context, state domain.SessionState) error {
	row, err := codec.Encode(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO session_state(session_id,parameters,audit,next_audit_id,updated_at) VALUES(?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET parameters=excluded.parameters, audit=excluded.audit,
		next_audit_id=excluded.next_audit_id, updated_at=excluded.updated_at`,
		row.SessionID, row.Parameters, row.Audit, row.NextAuditID, row.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert session %s: %w", row.SessionID, err)
	}
	return nil
}

// Delete implements domain.SessionStore.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE session_id = ?`, sessionID); err != nil {
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
	return ids, rows.Err()
}

// Close implements domain.SessionStore.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
