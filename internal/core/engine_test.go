package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"smartloan/pkg/domain"
)

func TestApplyRequiresCascadeDisablesDependent(t *testing.T) {
	s := newTestSession(t, testCatalog(
		[]domain.Parameter{boolParam("A", true, true), boolParam("B", true, true)},
		domain.Requires{Dependent: "A", Prerequisite: "B"},
	))

	entry, err := s.Apply("B", domain.Bool(false), "alice")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := domain.AuditEntry{
		ID:            1,
		Timestamp:     fixedNow,
		Actor:         "alice",
		CascadeID:     "cascade-1",
		SummaryAction: domain.SummaryDisabled,
		Effects: []domain.ChangeEffect{
			{Key: "B", OldValue: domain.Bool(true), NewValue: domain.Bool(false), Cause: domain.UserRequested()},
			{Key: "A", OldValue: domain.Bool(true), NewValue: domain.Bool(false), Cause: domain.CascadedFrom("B")},
		},
	}
	if diff := cmp.Diff(want, entry); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
	if mustValue(t, s, "A").Truthy() || mustValue(t, s, "B").Truthy() {
		t.Fatalf("expected both parameters disabled, got %v", s.Snapshot().Map())
	}
	if s.AuditLen() != 1 {
		t.Fatalf("expected one audit entry, got %d", s.AuditLen())
	}
}

func TestApplyEnablingDependentPullsPrerequisiteOn(t *testing.T) {
	s := newTestSession(t, testCatalog(
		[]domain.Parameter{boolParam("A", false, true), boolParam("B", false, true)},
		domain.Requires{Dependent: "A", Prerequisite: "B"},
	))
	entry, err := s.Apply("A", domain.Bool(true), "dana")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(entry.Effects) != 2 || entry.Effects[1].Key != "B" || entry.Effects[1].Cause != domain.CascadedFrom("A") {
		t.Fatalf("expected B to be pulled on by A, got %+v", entry.Effects)
	}
	if entry.SummaryAction != domain.SummaryEnabled {
		t.Fatalf("expected Enabled summary, got %s", entry.SummaryAction)
	}
}

func TestApplyRejectsEmptyingGroup(t *testing.T) {
	s := newTestSession(t, testCatalog(
		[]domain.Parameter{boolParam("X", true, true), boolParam("Y", false, true)},
		domain.AtLeastOneOf{Group: "xy", Members: []string{"X", "Y"}},
	))

	_, err := s.Apply("X", domain.Bool(false), "bob")
	requireKind(t, err, domain.KindViolatesGroupInvariant)
	var me *domain.MutationError
	if !errors.As(err, &me) || me.Group != "xy" || me.Key != "X" {
		t.Fatalf("expected group xy violation for X, got %#v", err)
	}
	if !mustValue(t, s, "X").Truthy() {
		t.Fatalf("X must remain true after rejection")
	}
	if s.AuditLen() != 0 {
		t.Fatalf("rejected mutation must not be audited")
	}
}

func TestApplyExcludesWithoutConflictLeavesPeerAlone(t *testing.T) {
	s := newTestSession(t, testCatalog(
		[]domain.Parameter{boolParam("P", false, true), boolParam("Q", false, true)},
		domain.Excludes{A: "P", B: "Q"},
	))

	entry, err := s.Apply("P", domain.Bool(true), "carol")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(entry.Effects) != 1 || entry.Effects[0].Key != "P" {
		t.Fatalf("expected a single effect on P, got %+v", entry.Effects)
	}
	if !mustValue(t, s, "P").Truthy() || mustValue(t, s, "Q").Truthy() {
		t.Fatalf("expected P=true Q=false, got %v", s.Snapshot().Map())
	}
}

func TestApplyExcludesKeepsMostRecentSide(t *testing.T) {
	s := newTestSession(t, testCatalog(
		[]domain.Parameter{boolParam("P", true, true), boolParam("Q", false, true)},
		domain.Excludes{A: "P", B: "Q"},
	))
	entry, err := s.Apply("Q", domain.Bool(true), "carol")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := []domain.ChangeEffect{
		{Key: "Q", OldValue: domain.Bool(false), NewValue: domain.Bool(true), Cause: domain.UserRequested()},
		{Key: "P", OldValue: domain.Bool(true), NewValue: domain.Bool(false), Cause: domain.CascadedFrom("Q")},
	}
	if diff := cmp.Diff(want, entry.Effects); diff != "" {
		t.Fatalf("effects mismatch (-want +got):\n%s", diff)
	}
}

func TestResetToDefaultsRecordsSingleEntry(t *testing.T) {
	var params []domain.Parameter
	for i := range 10 {
		params = append(params, boolParam(fmt.Sprintf("p%02d", i), false, true))
	}
	s := newTestSession(t, testCatalog(params))
	for _, key := range []string{"p01", "p03", "p05", "p07"} {
		if _, err := s.Apply(key, domain.Bool(true), "erin"); err != nil {
			t.Fatalf("apply %s: %v", key, err)
		}
	}

	entry, err := s.ResetToDefaults(s.Catalog().Defaults(), "erin")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if entry.SummaryAction != domain.SummaryReset {
		t.Fatalf("expected Reset summary, got %s", entry.SummaryAction)
	}
	if entry.ID != 5 || s.AuditLen() != 5 {
		t.Fatalf("expected reset to be the fifth entry, got id %d len %d", entry.ID, s.AuditLen())
	}
	var keys []string
	for _, eff := range entry.Effects {
		keys = append(keys, eff.Key)
		if eff.Cause != domain.UserRequested() || !eff.OldValue.Truthy() || eff.NewValue.Truthy() {
			t.Fatalf("unexpected reset effect %+v", eff)
		}
	}
	if diff := cmp.Diff([]string{"p01", "p03", "p05", "p07"}, keys); diff != "" {
		t.Fatalf("reset effects mismatch (-want +got):\n%s", diff)
	}
	if !s.Snapshot().Equal(s.Catalog().Defaults()) {
		t.Fatalf("expected defaults restored")
	}
}

func TestResetToDefaultsAtDefaultsIsNoop(t *testing.T) {
	s := smartLoanSession(t)
	entry, err := s.ResetToDefaults(s.Catalog().Defaults(), "erin")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !entry.Empty() || s.AuditLen() != 0 {
		t.Fatalf("expected no-op reset, got %+v", entry)
	}
}

func TestResetToDefaultsRejections(t *testing.T) {
	c := testCatalog([]domain.Parameter{boolParam("a", false, true), boolParam("locked", false, false)})
	cases := map[string]struct {
		defaults map[string]domain.Value
		kind     domain.ErrorKind
	}{
		"unknown key":    {map[string]domain.Value{"ghost": domain.Bool(true)}, domain.KindUnknownKey},
		"wrong type":     {map[string]domain.Value{"a": domain.Enum("x")}, domain.KindInvalidValue},
		"read-only diff": {map[string]domain.Value{"a": domain.Bool(true), "locked": domain.Bool(true)}, domain.KindImmutable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestSession(t, c)
			before := s.Snapshot()
			_, err := s.ResetToDefaults(domain.NewSnapshot(tc.defaults), "erin")
			requireKind(t, err, tc.kind)
			if !s.Snapshot().Equal(before) || s.AuditLen() != 0 {
				t.Fatalf("rejected reset changed state")
			}
		})
	}
}

func TestApplyIsAtomicForEveryErrorKind(t *testing.T) {
	c := testCatalog(
		[]domain.Parameter{
			boolParam("a", false, true),
			boolParam("b", false, true),
			boolParam("needs_locked", false, true),
			boolParam("locked", false, false),
			boolParam("x", true, true),
		},
		domain.Implies{Label: "on", Trigger: "a", When: domain.Bool(true), Effects: []domain.Assignment{{Key: "b", Value: domain.Bool(true)}}},
		domain.Implies{Label: "off", Trigger: "a", When: domain.Bool(true), Effects: []domain.Assignment{{Key: "b", Value: domain.Bool(false)}}},
		domain.Requires{Dependent: "needs_locked", Prerequisite: "locked"},
		domain.AtLeastOneOf{Group: "only_x", Members: []string{"x"}},
	)
	cases := []struct {
		name  string
		key   string
		value domain.Value
		kind  domain.ErrorKind
	}{
		{"unknown key", "ghost", domain.Bool(true), domain.KindUnknownKey},
		{"read-only", "locked", domain.Bool(true), domain.KindImmutable},
		{"cascade hits read-only", "needs_locked", domain.Bool(true), domain.KindImmutable},
		{"wrong type", "a", domain.Number(1), domain.KindInvalidValue},
		{"group emptied", "x", domain.Bool(false), domain.KindViolatesGroupInvariant},
		{"oscillation", "a", domain.Bool(true), domain.KindCascadeDidNotConverge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewSession("atomic", c)
			if err != nil {
				t.Fatalf("new session: %v", err)
			}
			before := s.Snapshot()
			entry, err := s.Apply(tc.key, tc.value, "mallory")
			requireKind(t, err, tc.kind)
			if !entry.Empty() {
				t.Fatalf("rejected mutation returned entry %+v", entry)
			}
			if diff := s.Snapshot().Diff(before); len(diff) > 0 {
				t.Fatalf("rejected mutation changed %v", diff)
			}
			if s.AuditLen() != 0 {
				t.Fatalf("rejected mutation appended audit entries")
			}
		})
	}
}

func TestApplyNoopIsIdempotent(t *testing.T) {
	s := smartLoanSession(t)
	for range 3 {
		entry, err := s.Apply("customer_shorts", domain.Bool(true), "frank")
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if !entry.Empty() {
			t.Fatalf("expected empty entry for no-op, got %+v", entry)
		}
	}
	if s.AuditLen() != 0 {
		t.Fatalf("no-op must not be audited, got %d entries", s.AuditLen())
	}
}

func TestApplyInvalidValueCarriesDetail(t *testing.T) {
	s := smartLoanSession(t)
	_, err := s.Apply("max_recall_pct", domain.Number(150), "gina")
	requireKind(t, err, domain.KindInvalidValue)
	if !errors.Is(err, domain.ErrInvalidValue) {
		t.Fatalf("expected errors.Is ErrInvalidValue, got %v", err)
	}
	entry, err := s.Apply("max_recall_pct", domain.Number(40), "gina")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if entry.SummaryAction != domain.SummaryValueChanged {
		t.Fatalf("expected ValueChanged, got %s", entry.SummaryAction)
	}
}

func TestSmartLoanDeficitOverride(t *testing.T) {
	s := smartLoanSession(t)

	entry, err := s.Apply("borrow_for_deficit_with_delivery", domain.Bool(true), "henry")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := []domain.ChangeEffect{
		{Key: "borrow_for_deficit_with_delivery", OldValue: domain.Bool(false), NewValue: domain.Bool(true), Cause: domain.UserRequested()},
		{Key: "regulatory_deficits", OldValue: domain.Bool(true), NewValue: domain.Bool(false), Cause: domain.CascadedFrom("borrow_for_deficit_with_delivery")},
		{Key: "threshold_securities", OldValue: domain.Bool(true), NewValue: domain.Bool(false), Cause: domain.CascadedFrom("regulatory_deficits")},
	}
	if diff := cmp.Diff(want, entry.Effects); diff != "" {
		t.Fatalf("effects mismatch (-want +got):\n%s", diff)
	}

	entry, err = s.Apply("regulatory_deficits", domain.Bool(true), "henry")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want = []domain.ChangeEffect{
		{Key: "regulatory_deficits", OldValue: domain.Bool(false), NewValue: domain.Bool(true), Cause: domain.UserRequested()},
		{Key: "borrow_for_deficit_with_delivery", OldValue: domain.Bool(true), NewValue: domain.Bool(false), Cause: domain.CascadedFrom("regulatory_deficits")},
	}
	if diff := cmp.Diff(want, entry.Effects); diff != "" {
		t.Fatalf("effects mismatch (-want +got):\n%s", diff)
	}
	if mustValue(t, s, "threshold_securities").Truthy() {
		t.Fatalf("re-enabling the prerequisite must not re-enable its dependent")
	}
}

func TestSmartLoanReductionRules(t *testing.T) {
	s := smartLoanSession(t)

	entry, err := s.Apply("reduction_enabled", domain.Bool(false), "ivan")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if eff, ok := entry.Effect("reduction_method"); !ok || !eff.NewValue.Equal(domain.Enum("none")) {
		t.Fatalf("expected reduction_method forced to none, got %+v", entry.Effects)
	}
	if entry.SummaryAction != domain.SummaryDisabled {
		t.Fatalf("expected Disabled summary, got %s", entry.SummaryAction)
	}
	if _, err := s.Apply("reduction_enabled", domain.Bool(true), "ivan"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := mustValue(t, s, "reduction_method"); !got.Equal(domain.Enum("pro_rata")) {
		t.Fatalf("expected pro_rata restored, got %s", got)
	}

	_, err = s.Apply("reduction_return_loans", domain.Bool(false), "ivan")
	requireKind(t, err, domain.KindViolatesGroupInvariant)

	entry, err = s.Apply("hold_for_recall", domain.Bool(true), "ivan")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if eff, ok := entry.Effect("reduction_recall_loans"); !ok || eff.Cause != domain.CascadedFrom("hold_for_recall") {
		t.Fatalf("expected recall loans pulled on, got %+v", entry.Effects)
	}
	if _, err := s.Apply("reduction_return_loans", domain.Bool(false), "ivan"); err != nil {
		t.Fatalf("return loans may be disabled once recall is on: %v", err)
	}

	_, err = s.Apply("reg_sho_close_out", domain.Bool(false), "ivan")
	requireKind(t, err, domain.KindImmutable)
}

func TestSmartLoanResetAfterChanges(t *testing.T) {
	s := smartLoanSession(t)
	steps := []struct {
		key   string
		value domain.Value
	}{
		{"borrow_for_deficit_with_delivery", domain.Bool(true)},
		{"reduction_enabled", domain.Bool(false)},
		{"max_recall_pct", domain.Number(80)},
		{"borrow_priority", domain.Enum("preferred_lender")},
	}
	for _, st := range steps {
		if _, err := s.Apply(st.key, st.value, "judy"); err != nil {
			t.Fatalf("apply %s: %v", st.key, err)
		}
	}
	changed := s.Snapshot().Diff(s.Catalog().Defaults())

	entry, err := s.ResetToDefaults(s.Catalog().Defaults(), "judy")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(entry.Effects) != len(changed) {
		t.Fatalf("expected %d reset effects for %v, got %+v", len(changed), changed, entry.Effects)
	}
	if !s.Snapshot().Equal(s.Catalog().Defaults()) {
		t.Fatalf("expected defaults, diff %v", s.Snapshot().Diff(s.Catalog().Defaults()))
	}
	if got := s.Recent(1); len(got) != 1 || got[0].SummaryAction != domain.SummaryReset {
		t.Fatalf("expected Reset as most recent entry, got %+v", got)
	}
}
