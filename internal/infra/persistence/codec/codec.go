// Package codec converts session state to and from the column layout shared
// by the SQL-backed session stores.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"smartloan/pkg/domain"
)

// Row is the persisted layout of one session.
type Row struct {
	SessionID   string
	Parameters  []byte
	Audit       []byte
	NextAuditID int64
	UpdatedAt   int64
}

// Encode serialises state. UpdatedAt is stored as Unix nanoseconds.
func Encode(state domain.SessionState) (Row, error) {
	if state.SessionID == "" {
		return Row{}, fmt.Errorf("session id required")
	}
	params, err := json.Marshal(state.Values)
	if err != nil {
		return Row{}, fmt.Errorf("encode parameters: %w", err)
	}
	audit := state.Audit
	if audit == nil {
		audit = []domain.AuditEntry{}
	}
	entries, err := json.Marshal(audit)
	if err != nil {
		return Row{}, fmt.Errorf("encode audit: %w", err)
	}
	return Row{
		SessionID:   state.SessionID,
		Parameters:  params,
		Audit:       entries,
		NextAuditID: int64(state.NextAuditID),
		UpdatedAt:   state.UpdatedAt.UnixNano(),
	}, nil
}

// Decode reverses Encode.
func Decode(row Row) (domain.SessionState, error) {
	state := domain.SessionState{
		SessionID:   row.SessionID,
		NextAuditID: uint64(row.NextAuditID),
		UpdatedAt:   time.Unix(0, row.UpdatedAt).UTC(),
	}
	if err := json.Unmarshal(row.Parameters, &state.Values); err != nil {
		return domain.SessionState{}, fmt.Errorf("decode parameters of %s: %w", row.SessionID, err)
	}
	if len(row.Audit) > 0 {
		if err := json.Unmarshal(row.Audit, &state.Audit); err != nil {
			return domain.SessionState{}, fmt.Errorf("decode audit of %s: %w", row.SessionID, err)
		}
	}
	return state, nil
}

// Marshal encodes the complete state as one JSON document for key/value
// backends.
func Marshal(state domain.SessionState) ([]byte, error) {
	if state.SessionID == "" {
		return nil, fmt.Errorf("session id required")
	}
	return json.Marshal(state)
}

// Unmarshal decodes a document produced by Marshal.
func Unmarshal(data []byte) (domain.SessionState, error) {
	var state domain.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.SessionState{}, fmt.Errorf("decode session state: %w", err)
	}
	return state, nil
}
