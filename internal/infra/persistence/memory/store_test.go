package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"smartloan/pkg/domain"
)

func sampleState(id string) domain.SessionState {
	return domain.SessionState{
		SessionID: id,
		Values:    domain.NewSnapshot(map[string]domain.Value{"a": domain.Bool(true)}),
		Audit: []domain.AuditEntry{{
			ID:            1,
			Actor:         "alice",
			CascadeID:     "c-1",
			SummaryAction: domain.SummaryEnabled,
			Effects: []domain.ChangeEffect{{
				Key: "a", OldValue: domain.Bool(false), NewValue: domain.Bool(true), Cause: domain.UserRequested(),
			}},
		}},
		NextAuditID: 2,
		UpdatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStoreRoundTripIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	state := sampleState("s1")
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	state.Audit[0].Effects[0].Key = "mutated"

	got, ok, err := store.Load(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Audit[0].Effects[0].Key != "a" {
		t.Fatalf("store must keep its own copy, got %q", got.Audit[0].Effects[0].Key)
	}
	got.Audit[0].Actor = "mallory"
	again, _, _ := store.Load(ctx, "s1")
	if again.Audit[0].Actor != "alice" {
		t.Fatalf("load must return a copy")
	}
}

func TestStoreListDeleteClose(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	for _, id := range []string{"b", "a", "c"} {
		if err := store.Save(ctx, sampleState(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if _, ok, _ := store.Load(ctx, "b"); ok {
		t.Fatalf("expected b to be deleted")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Save(ctx, sampleState("d")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
