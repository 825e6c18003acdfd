package core

import (
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"smartloan/pkg/domain"
)

// Session is one configuration session: the parameter store and audit log it
// exclusively owns, plus the shared, immutable rule set. A Session is not safe
// for concurrent use; Service serialises access per session.
type Session struct {
	id      string
	catalog domain.Catalog
	rules   *domain.RuleSet
	params  *ParameterStore
	log     *AuditLog
	now     func() time.Time
	newID   func() string
}

// SessionOption customises a session.
type SessionOption func(*Session)

// WithSessionClock overrides the audit timestamp source.
func WithSessionClock(clock Clock) SessionOption {
	return func(s *Session) {
		if clock != nil {
			s.now = clock.Now
		}
	}
}

// WithCascadeIDs overrides the cascade identifier generator.
func WithCascadeIDs(fn func() string) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewSession creates a session initialised with the catalog defaults.
func NewSession(id string, catalog domain.Catalog, opts ...SessionOption) (*Session, error) {
	params, err := NewParameterStore(catalog.Parameters)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	rules := catalog.Rules
	if rules == nil {
		rules = domain.NewRuleSet()
	}
	s := &Session{
		id:      id,
		catalog: catalog,
		rules:   rules,
		params:  params,
		log:     NewAuditLog(),
		now:     ClockFunc(nil).Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RestoreSession rebuilds a session from persisted state. Stored values are
// validated against the catalog and the rule invariants before use.
func RestoreSession(catalog domain.Catalog, state domain.SessionState, opts ...SessionOption) (*Session, error) {
	s, err := NewSession(state.SessionID, catalog, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.params.load(state.Values); err != nil {
		return nil, fmt.Errorf("restore session %s: %w", state.SessionID, err)
	}
	if violated := s.rules.GroupViolations(s.params.Snapshot()); len(violated) > 0 {
		return nil, fmt.Errorf("restore session %s: groups %v have no active member", state.SessionID, violated)
	}
	s.log = restoreAuditLog(state.Audit, state.NextAuditID)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Catalog returns the catalog the session was created from.
func (s *Session) Catalog() domain.Catalog { return s.catalog }

// Get returns the current declaration and value of key.
func (s *Session) Get(key string) (domain.Parameter, error) { return s.params.Get(key) }

// Parameters returns every parameter in declaration order.
func (s *Session) Parameters() []domain.Parameter { return s.params.Parameters() }

// Snapshot returns the current values.
func (s *Session) Snapshot() domain.Snapshot { return s.params.Snapshot() }

// Recent returns up to n audit entries, newest first.
func (s *Session) Recent(n int) []domain.AuditEntry { return s.log.Recent(n) }

// Audit yields the retained audit history in insertion order.
func (s *Session) Audit() iter.Seq[domain.AuditEntry] { return s.log.All() }

// AuditLen returns the number of retained audit entries.
func (s *Session) AuditLen() int { return s.log.Len() }

// EvictOlderThan drops audit entries with an ID below id.
func (s *Session) EvictOlderThan(id uint64) int { return s.log.EvictOlderThan(id) }

// State captures the session for persistence.
func (s *Session) State() domain.SessionState {
	entries, next := s.log.snapshot()
	return domain.SessionState{
		SessionID:   s.id,
		Values:      s.params.Snapshot(),
		Audit:       entries,
		NextAuditID: next,
		UpdatedAt:   s.now(),
	}
}

// restore rolls the session back to a previously captured state.
func (s *Session) restore(state domain.SessionState) {
	s.params.commit(state.Values)
	s.log = restoreAuditLog(state.Audit, state.NextAuditID)
}
