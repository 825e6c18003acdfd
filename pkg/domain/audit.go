package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CauseKind distinguishes requested changes from rule-forced ones.
type CauseKind string

// Cause kinds recorded on every change effect.
const (
	CauseUserRequested CauseKind = "UserRequested"
	CauseCascadedFrom  CauseKind = "CascadedFrom"
)

// Cause explains why a parameter changed.
type Cause struct {
	Kind    CauseKind
	Trigger string
}

// UserRequested is the cause of the change the caller asked for.
func UserRequested() Cause { return Cause{Kind: CauseUserRequested} }

// CascadedFrom is the cause of a change forced by a rule reacting to trigger.
func CascadedFrom(trigger string) Cause {
	return Cause{Kind: CauseCascadedFrom, Trigger: trigger}
}

func (c Cause) String() string {
	if c.Kind == CauseCascadedFrom {
		return fmt.Sprintf("CascadedFrom(%s)", c.Trigger)
	}
	return string(c.Kind)
}

// MarshalJSON encodes the cause as "UserRequested" or "CascadedFrom(<key>)".
func (c Cause) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses the export representation.
func (c *Cause) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseCause(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCause parses the string form produced by Cause.String.
func ParseCause(raw string) (Cause, error) {
	if raw == string(CauseUserRequested) {
		return UserRequested(), nil
	}
	prefix := string(CauseCascadedFrom) + "("
	if strings.HasPrefix(raw, prefix) && strings.HasSuffix(raw, ")") {
		trigger := strings.TrimSuffix(strings.TrimPrefix(raw, prefix), ")")
		if trigger == "" {
			return Cause{}, fmt.Errorf("cause %q has empty trigger", raw)
		}
		return CascadedFrom(trigger), nil
	}
	return Cause{}, fmt.Errorf("unknown cause %q", raw)
}

// ChangeEffect records one parameter transition inside a cascade.
type ChangeEffect struct {
	Key      string `json:"key"`
	OldValue Value  `json:"oldValue"`
	NewValue Value  `json:"newValue"`
	Cause    Cause  `json:"cause"`
}

// SummaryAction classifies an audit entry by its primary effect.
type SummaryAction string

// Summary actions.
const (
	SummaryEnabled      SummaryAction = "Enabled"
	SummaryDisabled     SummaryAction = "Disabled"
	SummaryValueChanged SummaryAction = "ValueChanged"
	SummaryReset        SummaryAction = "Reset"
)

// SummarizeEffect derives the summary action from the primary effect.
func SummarizeEffect(primary ChangeEffect) SummaryAction {
	if b, ok := primary.NewValue.BoolValue(); ok {
		if b {
			return SummaryEnabled
		}
		return SummaryDisabled
	}
	return SummaryValueChanged
}

// AuditEntry is the immutable record of one committed mutation.
type AuditEntry struct {
	ID            uint64         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Actor         string         `json:"actor"`
	CascadeID     string         `json:"cascadeId"`
	SummaryAction SummaryAction  `json:"summaryAction"`
	Effects       []ChangeEffect `json:"effects"`
}

// Empty reports whether the entry represents a no-op that was never appended.
func (e AuditEntry) Empty() bool {
	return e.ID == 0 && len(e.Effects) == 0
}

// Clone returns a copy that shares no slices with e.
func (e AuditEntry) Clone() AuditEntry {
	cp := e
	if e.Effects != nil {
		cp.Effects = append([]ChangeEffect(nil), e.Effects...)
	}
	return cp
}

// Effect returns the effect recorded for key, if any.
func (e AuditEntry) Effect(key string) (ChangeEffect, bool) {
	for _, eff := range e.Effects {
		if eff.Key == key {
			return eff, true
		}
	}
	return ChangeEffect{}, false
}
