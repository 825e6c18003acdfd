package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Parameter categories used by the bundled Smart Loan catalog. Categories
// group parameters for display and audit; rules never read them.
const (
	CategoryRegulatory        = "Regulatory"
	CategoryBusiness          = "Business"
	CategorySpecialConditions = "Special Conditions"
	CategoryReductionMethods  = "Reduction Methods"
)

// Parameter is a named, typed configuration value governed by the rule engine.
type Parameter struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Category string    `json:"category"`
	Type     ValueType `json:"type"`
	Value    Value     `json:"value"`
	// Mutable is false for system-mandatory parameters users cannot change directly.
	Mutable bool `json:"mutable"`
}

// Validate checks the declaration and that Value is legal for Type.
func (p Parameter) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("parameter key required")
	}
	if err := p.Type.Check(); err != nil {
		return fmt.Errorf("parameter %s: %w", p.Key, err)
	}
	if err := p.Type.Validate(p.Value); err != nil {
		return fmt.Errorf("parameter %s: %w", p.Key, err)
	}
	return nil
}

// Clone returns a deep copy.
func (p Parameter) Clone() Parameter {
	cp := p
	cp.Type.Allowed = slices.Clone(p.Type.Allowed)
	if p.Type.Min != nil {
		min := *p.Type.Min
		cp.Type.Min = &min
	}
	if p.Type.Max != nil {
		max := *p.Type.Max
		cp.Type.Max = &max
	}
	return cp
}

// Snapshot is an immutable key to value view of every parameter.
type Snapshot struct {
	values map[string]Value
}

// NewSnapshot copies values into a snapshot.
func NewSnapshot(values map[string]Value) Snapshot {
	return Snapshot{values: maps.Clone(values)}
}

// SnapshotOf extracts the current values of params.
func SnapshotOf(params []Parameter) Snapshot {
	values := make(map[string]Value, len(params))
	for _, p := range params {
		values[p.Key] = p.Value
	}
	return Snapshot{values: values}
}

// Get returns the value stored for key.
func (s Snapshot) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of keys.
func (s Snapshot) Len() int { return len(s.values) }

// Keys returns the keys in ascending order.
func (s Snapshot) Keys() []string {
	return slices.Sorted(maps.Keys(s.values))
}

// Map returns a mutable copy of the underlying values.
func (s Snapshot) Map() map[string]Value {
	out := make(map[string]Value, len(s.values))
	maps.Copy(out, s.values)
	return out
}

// Equal reports whether both snapshots hold identical keys and values.
func (s Snapshot) Equal(other Snapshot) bool {
	return maps.EqualFunc(s.values, other.values, Value.Equal)
}

// Diff returns the sorted keys whose values differ between s and other,
// including keys present on only one side.
func (s Snapshot) Diff(other Snapshot) []string {
	var keys []string
	for k, v := range s.values {
		if ov, ok := other.values[k]; !ok || !ov.Equal(v) {
			keys = append(keys, k)
		}
	}
	for k := range other.values {
		if _, ok := s.values[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// MarshalJSON encodes the snapshot as a JSON object keyed by parameter key.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.values)
}

// UnmarshalJSON decodes a JSON object of parameter values.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	values := map[string]Value{}
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	s.values = values
	return nil
}
