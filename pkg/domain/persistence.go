package domain

import (
	"context"
	"time"
)

// SessionState is the durable form of a configuration session: current
// parameter values plus the retained audit history.
type SessionState struct {
	SessionID   string       `json:"session_id"`
	Values      Snapshot     `json:"values"`
	Audit       []AuditEntry `json:"audit"`
	NextAuditID uint64       `json:"next_audit_id"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Clone returns a deep copy.
func (s SessionState) Clone() SessionState {
	cp := s
	cp.Values = NewSnapshot(s.Values.Map())
	if s.Audit != nil {
		cp.Audit = make([]AuditEntry, len(s.Audit))
		for i, e := range s.Audit {
			cp.Audit[i] = e.Clone()
		}
	}
	return cp
}

// SessionStore is a minimal abstraction over durable backends that hold
// session state between process lifetimes. Implementations snapshot the full
// state on every Save.
type SessionStore interface {
	// Load returns the stored state and false when the session was never saved.
	Load(ctx context.Context, sessionID string) (SessionState, bool, error)
	Save(ctx context.Context, state SessionState) error
	Delete(ctx context.Context, sessionID string) error
	// List returns stored session ids in ascending order.
	List(ctx context.Context) ([]string, error)
	Close() error
}
