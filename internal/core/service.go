package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"smartloan/pkg/domain"
)

// AuditExporter archives the audit history of a session and returns the
// location it was written to.
type AuditExporter interface {
	ExportAudit(ctx context.Context, sessionID string, entries []domain.AuditEntry) (string, error)
}

// ErrExportNotConfigured is returned by ExportAudit when no exporter is set.
var ErrExportNotConfigured = errors.New("audit export is not configured")

// Service hosts many independent configuration sessions over one catalog.
// Every operation on a session runs under that session's own lock, so an
// Apply always completes before the next one on the same session starts.
// Sessions share no mutable state.
type Service struct {
	catalog   domain.Catalog
	store     domain.SessionStore
	exporter  AuditExporter
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	clock     Clock
	retention int
	newID     func() string

	mu       sync.Mutex
	sessions map[string]*sessionSlot
}

type sessionSlot struct {
	mu      sync.Mutex
	session *Session
	// deleted is set under mu once DeleteSession has taken the slot.
	deleted bool
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	store     domain.SessionStore
	exporter  AuditExporter
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	clock     Clock
	retention int
	newID     func() string
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if rec != nil {
			o.metrics = rec
		}
	}
}

// WithTracer sets the span factory.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock sets the audit timestamp source.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithSessionStore persists every committed mutation. Without one, sessions
// live only in memory.
func WithSessionStore(store domain.SessionStore) ServiceOption {
	return func(o *serviceOptions) { o.store = store }
}

// WithExporter enables ExportAudit.
func WithExporter(exp AuditExporter) ServiceOption {
	return func(o *serviceOptions) { o.exporter = exp }
}

// WithAuditRetention keeps at most n audit entries per session. Zero keeps
// everything.
func WithAuditRetention(n int) ServiceOption {
	return func(o *serviceOptions) {
		if n >= 0 {
			o.retention = n
		}
	}
}

// WithIDGenerator overrides cascade identifier generation.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(o *serviceOptions) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// NewService validates the catalog and constructs a service.
func NewService(catalog domain.Catalog, opts ...ServiceOption) (*Service, error) {
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", catalog.Name, err)
	}
	o := serviceOptions{
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		clock:   ClockFunc(nil),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		catalog:   catalog,
		store:     o.store,
		exporter:  o.exporter,
		logger:    o.logger,
		metrics:   o.metrics,
		tracer:    o.tracer,
		clock:     o.clock,
		retention: o.retention,
		newID:     o.newID,
		sessions:  make(map[string]*sessionSlot),
	}, nil
}

// Catalog returns the catalog every session is created from.
func (s *Service) Catalog() domain.Catalog { return s.catalog }

// Apply sets key to value in the session on behalf of actor.
func (s *Service) Apply(ctx context.Context, sessionID, key string, value domain.Value, actor string) (domain.AuditEntry, error) {
	var entry domain.AuditEntry
	err := s.run(ctx, "apply", func(ctx context.Context) error {
		return s.mutate(ctx, sessionID, func(sess *Session) (domain.AuditEntry, error) {
			var err error
			entry, err = sess.Apply(key, value, actor)
			return entry, err
		})
	})
	if err != nil {
		s.logger.Warn("mutation rejected", "session", sessionID, "key", key, "actor", actor, "kind", string(domain.KindOf(err)), "error", err)
		return domain.AuditEntry{}, err
	}
	s.logCommit(sessionID, actor, entry)
	return entry, nil
}

// ApplyString parses raw with the parameter's type and applies it.
func (s *Service) ApplyString(ctx context.Context, sessionID, key, raw, actor string) (domain.AuditEntry, error) {
	p, ok := s.catalog.Parameter(key)
	if !ok {
		return domain.AuditEntry{}, domain.UnknownKeyError(key)
	}
	v, err := p.Type.Parse(raw)
	if err != nil {
		return domain.AuditEntry{}, domain.InvalidValueError(key, err)
	}
	return s.Apply(ctx, sessionID, key, v, actor)
}

// ResetToDefaults restores the catalog defaults in one audited step.
func (s *Service) ResetToDefaults(ctx context.Context, sessionID, actor string) (domain.AuditEntry, error) {
	var entry domain.AuditEntry
	defaults := s.catalog.Defaults()
	err := s.run(ctx, "reset", func(ctx context.Context) error {
		return s.mutate(ctx, sessionID, func(sess *Session) (domain.AuditEntry, error) {
			var err error
			entry, err = sess.ResetToDefaults(defaults, actor)
			return entry, err
		})
	})
	if err != nil {
		s.logger.Warn("reset rejected", "session", sessionID, "actor", actor, "error", err)
		return domain.AuditEntry{}, err
	}
	s.logCommit(sessionID, actor, entry)
	return entry, nil
}

// Snapshot returns the current values of the session.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.withSession(ctx, sessionID, func(sess *Session) error {
		snap = sess.Snapshot()
		return nil
	})
	return snap, err
}

// Parameters returns the parameters of the session in declaration order.
func (s *Service) Parameters(ctx context.Context, sessionID string) ([]domain.Parameter, error) {
	var params []domain.Parameter
	err := s.withSession(ctx, sessionID, func(sess *Session) error {
		params = sess.Parameters()
		return nil
	})
	return params, err
}

// Recent returns up to n audit entries, newest first.
func (s *Service) Recent(ctx context.Context, sessionID string, n int) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	err := s.withSession(ctx, sessionID, func(sess *Session) error {
		entries = sess.Recent(n)
		return nil
	})
	return entries, err
}

// Audit returns the retained history in insertion order.
func (s *Service) Audit(ctx context.Context, sessionID string) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	err := s.withSession(ctx, sessionID, func(sess *Session) error {
		entries = slices.Collect(sess.Audit())
		return nil
	})
	return entries, err
}

// ExportAudit archives the retained history through the configured exporter.
func (s *Service) ExportAudit(ctx context.Context, sessionID string) (string, error) {
	if s.exporter == nil {
		return "", ErrExportNotConfigured
	}
	var location string
	err := s.run(ctx, "export_audit", func(ctx context.Context) error {
		entries, err := s.Audit(ctx, sessionID)
		if err != nil {
			return err
		}
		location, err = s.exporter.ExportAudit(ctx, sessionID, entries)
		return err
	})
	if err != nil {
		s.logger.Error("audit export failed", "session", sessionID, "error", err)
		return "", err
	}
	s.logger.Info("audit exported", "session", sessionID, "location", location)
	return location, nil
}

// Sessions lists every known session id, loaded or persisted.
func (s *Service) Sessions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	ids := slices.Collect(maps.Keys(s.sessions))
	s.mu.Unlock()
	if s.store != nil {
		stored, err := s.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		ids = append(ids, stored...)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// DeleteSession forgets the session and removes its persisted state. It waits
// for any operation in flight on the session to finish first.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id required")
	}
	slot := s.slot(sessionID)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	slot.deleted = true
	slot.session = nil
	s.mu.Lock()
	if s.sessions[sessionID] == slot {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// Flush saves every loaded session concurrently.
func (s *Service) Flush(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	slots := slices.Collect(maps.Values(s.sessions))
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, slot := range slots {
		g.Go(func() error {
			slot.mu.Lock()
			defer slot.mu.Unlock()
			if slot.deleted || slot.session == nil {
				return nil
			}
			return s.store.Save(gctx, slot.session.State())
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("flush sessions: %w", err)
	}
	return nil
}

// Close flushes and releases the session store.
func (s *Service) Close(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	flushErr := s.Flush(ctx)
	if err := s.store.Close(); err != nil {
		return err
	}
	return flushErr
}

func (s *Service) mutate(ctx context.Context, sessionID string, fn func(*Session) (domain.AuditEntry, error)) error {
	return s.withSession(ctx, sessionID, func(sess *Session) error {
		prev := sess.State()
		entry, err := fn(sess)
		if err != nil || entry.Empty() {
			return err
		}
		if s.retention > 0 && sess.AuditLen() > s.retention {
			evicted := sess.EvictOlderThan(entry.ID - uint64(s.retention) + 1)
			s.logger.Debug("audit retention applied", "session", sessionID, "evicted", evicted)
		}
		if s.store == nil {
			return nil
		}
		if err := s.store.Save(ctx, sess.State()); err != nil {
			sess.restore(prev)
			return fmt.Errorf("persist session %s: %w", sessionID, err)
		}
		return nil
	})
}

func (s *Service) withSession(ctx context.Context, sessionID string, fn func(*Session) error) error {
	if sessionID == "" {
		return fmt.Errorf("session id required")
	}
	for {
		slot := s.slot(sessionID)
		slot.mu.Lock()
		if slot.deleted {
			// Deleted while we waited; the next lookup yields a fresh slot.
			slot.mu.Unlock()
			continue
		}
		err := s.useSlot(ctx, slot, sessionID, fn)
		slot.mu.Unlock()
		return err
	}
}

func (s *Service) slot(sessionID string) *sessionSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.sessions[sessionID]
	if !ok {
		slot = &sessionSlot{}
		s.sessions[sessionID] = slot
	}
	return slot
}

func (s *Service) useSlot(ctx context.Context, slot *sessionSlot, sessionID string, fn func(*Session) error) error {
	if slot.session == nil {
		sess, err := s.openSession(ctx, sessionID)
		if err != nil {
			return err
		}
		slot.session = sess
	}
	return fn(slot.session)
}

func (s *Service) openSession(ctx context.Context, sessionID string) (*Session, error) {
	opts := []SessionOption{WithSessionClock(s.clock), WithCascadeIDs(s.newID)}
	if s.store != nil {
		state, found, err := s.store.Load(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
		if found {
			s.logger.Debug("session restored", "session", sessionID, "audit_entries", len(state.Audit))
			return RestoreSession(s.catalog, state, opts...)
		}
	}
	s.logger.Debug("session created", "session", sessionID)
	return NewSession(sessionID, s.catalog, opts...)
}

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	return err
}

func (s *Service) logCommit(sessionID, actor string, entry domain.AuditEntry) {
	if entry.Empty() {
		s.logger.Debug("mutation was a no-op", "session", sessionID, "actor", actor)
		return
	}
	s.logger.Info("mutation committed",
		"session", sessionID,
		"actor", actor,
		"audit_id", entry.ID,
		"cascade_id", entry.CascadeID,
		"summary", string(entry.SummaryAction),
		"effects", len(entry.Effects),
	)
}
