// Package export reads and writes the canonical audit export: a JSON array of
// audit entries in insertion order, and archives it to a blob store.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"smartloan/pkg/domain"
)

// ContentType is the media type of the canonical audit export.
const ContentType = "application/json"

// Write encodes entries as the canonical JSON array. A nil or empty history
// encodes as [].
func Write(w io.Writer, entries []domain.AuditEntry) error {
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode audit export: %w", err)
	}
	return nil
}

// Read decodes a canonical audit export and checks that ids are positive and
// strictly increasing.
func Read(r io.Reader) ([]domain.AuditEntry, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var entries []domain.AuditEntry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode audit export: %w", err)
	}
	if entries == nil {
		return nil, fmt.Errorf("decode audit export: expected a JSON array")
	}
	var prev uint64
	for i, e := range entries {
		if e.ID == 0 || e.ID <= prev {
			return nil, fmt.Errorf("audit export entry %d: id %d does not follow %d", i, e.ID, prev)
		}
		if len(e.Effects) == 0 {
			return nil, fmt.Errorf("audit export entry %d: no effects", e.ID)
		}
		prev = e.ID
	}
	return entries, nil
}
