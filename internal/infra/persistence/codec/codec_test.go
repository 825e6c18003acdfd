package codec

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"smartloan/pkg/domain"
)

func TestEncodeDecodePreservesState(t *testing.T) {
	state := domain.SessionState{
		SessionID: "desk-1",
		Values: domain.NewSnapshot(map[string]domain.Value{
			"regulatory_deficits": domain.Bool(true),
			"reduction_method":    domain.Enum("pro_rata"),
			"max_recall_pct":      domain.Number(25),
		}),
		Audit: []domain.AuditEntry{{
			ID:            3,
			Timestamp:     time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
			Actor:         "carol",
			CascadeID:     "c-3",
			SummaryAction: domain.SummaryDisabled,
			Effects: []domain.ChangeEffect{
				{Key: "b", OldValue: domain.Bool(true), NewValue: domain.Bool(false), Cause: domain.UserRequested()},
				{Key: "a", OldValue: domain.Bool(true), NewValue: domain.Bool(false), Cause: domain.CascadedFrom("b")},
			},
		}},
		NextAuditID: 4,
		UpdatedAt:   time.Date(2025, 3, 4, 5, 6, 7, 8, time.UTC),
	}
	row, err := Encode(state)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(row)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(state, got); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}

	doc, err := Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again, err := Unmarshal(doc)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(state, again); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRequiresSessionID(t *testing.T) {
	if _, err := Encode(domain.SessionState{}); err == nil {
		t.Fatalf("expected error for empty session id")
	}
	if _, err := Decode(Row{SessionID: "x", Parameters: []byte("{")}); err == nil {
		t.Fatalf("expected decode error for malformed parameters")
	}
}
