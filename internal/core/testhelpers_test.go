package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"smartloan/internal/catalog"
	"smartloan/pkg/domain"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() ClockFunc {
	return func() time.Time { return fixedNow }
}

// sequentialIDs returns a generator yielding cascade-1, cascade-2, ...
func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("cascade-%d", n)
	}
}

func boolParam(key string, value, mutable bool) domain.Parameter {
	return domain.Parameter{
		Key:      key,
		Label:    key,
		Category: domain.CategoryBusiness,
		Type:     domain.BooleanType(),
		Value:    domain.Bool(value),
		Mutable:  mutable,
	}
}

func testCatalog(params []domain.Parameter, rules ...domain.DependencyRule) domain.Catalog {
	return domain.Catalog{Name: "test", Parameters: params, Rules: domain.NewRuleSet(rules...)}
}

func newTestSession(t testing.TB, c domain.Catalog) *Session {
	t.Helper()
	s, err := NewSession("s1", c, WithSessionClock(fixedClock()), WithCascadeIDs(sequentialIDs()))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func smartLoanSession(t testing.TB) *Session {
	t.Helper()
	return newTestSession(t, catalog.MustDefault())
}

func mustValue(t testing.TB, s *Session, key string) domain.Value {
	t.Helper()
	p, err := s.Get(key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	return p.Value
}

func requireKind(t testing.TB, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

// failingStore wraps a SessionStore and fails Save while failSave is set.
type failingStore struct {
	domain.SessionStore
	mu       sync.Mutex
	failSave bool
	saves    int
}

var errSaveFailed = errors.New("save failed")

func (f *failingStore) Save(ctx context.Context, state domain.SessionState) error {
	f.mu.Lock()
	f.saves++
	fail := f.failSave
	f.mu.Unlock()
	if fail {
		return errSaveFailed
	}
	return f.SessionStore.Save(ctx, state)
}

func (f *failingStore) setFail(v bool) {
	f.mu.Lock()
	f.failSave = v
	f.mu.Unlock()
}

// blockingStore parks every Save until release is closed and reports the
// first one on entered.
type blockingStore struct {
	domain.SessionStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore(inner domain.SessionStore) *blockingStore {
	return &blockingStore{SessionStore: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingStore) Save(ctx context.Context, state domain.SessionState) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.SessionStore.Save(ctx, state)
}
