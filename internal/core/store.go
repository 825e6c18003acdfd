package core

import (
	"fmt"

	"smartloan/pkg/domain"
)

// ParameterStore holds the current value of every parameter of one session.
// It validates every write but never evaluates dependencies; the mutation
// engine is the only caller allowed to commit cascades.
type ParameterStore struct {
	order  []string
	params map[string]domain.Parameter
}

// NewParameterStore copies and validates the declarations.
func NewParameterStore(params []domain.Parameter) (*ParameterStore, error) {
	s := &ParameterStore{
		order:  make([]string, 0, len(params)),
		params: make(map[string]domain.Parameter, len(params)),
	}
	for _, p := range params {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.params[p.Key]; dup {
			return nil, fmt.Errorf("duplicate parameter key %s", p.Key)
		}
		s.order = append(s.order, p.Key)
		s.params[p.Key] = p.Clone()
	}
	return s, nil
}

// Get returns a copy of the parameter stored under key.
func (s *ParameterStore) Get(key string) (domain.Parameter, error) {
	p, ok := s.params[key]
	if !ok {
		return domain.Parameter{}, domain.UnknownKeyError(key)
	}
	return p.Clone(), nil
}

// TrySet validates value and stores it for key. Either the single field is
// set or nothing changes. Mutability is not checked here; that is a property
// of user requests, not of storage.
func (s *ParameterStore) TrySet(key string, value domain.Value) error {
	p, ok := s.params[key]
	if !ok {
		return domain.UnknownKeyError(key)
	}
	if err := p.Type.Validate(value); err != nil {
		return domain.InvalidValueError(key, err)
	}
	p.Value = value
	s.params[key] = p
	return nil
}

// Snapshot returns an immutable copy of every current value.
func (s *ParameterStore) Snapshot() domain.Snapshot {
	values := make(map[string]domain.Value, len(s.params))
	for k, p := range s.params {
		values[k] = p.Value
	}
	return domain.NewSnapshot(values)
}

// Parameters returns copies of every parameter in declaration order.
func (s *ParameterStore) Parameters() []domain.Parameter {
	out := make([]domain.Parameter, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.params[k].Clone())
	}
	return out
}

// Len returns the number of parameters.
func (s *ParameterStore) Len() int { return len(s.order) }

// commit replaces every value present in snap in one step. The caller has
// already validated the snapshot.
func (s *ParameterStore) commit(snap domain.Snapshot) {
	for _, k := range snap.Keys() {
		p, ok := s.params[k]
		if !ok {
			continue
		}
		p.Value, _ = snap.Get(k)
		s.params[k] = p
	}
}

// load validates a persisted snapshot against the declarations before
// committing it. Keys missing from snap keep their current value; unknown keys
// are ignored so catalogs can drop parameters between releases.
func (s *ParameterStore) load(snap domain.Snapshot) error {
	for _, k := range snap.Keys() {
		p, ok := s.params[k]
		if !ok {
			continue
		}
		v, _ := snap.Get(k)
		if err := p.Type.Validate(v); err != nil {
			return domain.InvalidValueError(k, err)
		}
	}
	s.commit(snap)
	return nil
}
