package core

import (
	"smartloan/pkg/domain"
)

// Apply is the single entry point for user-requested changes. The requested
// value and every change the rule set forces in response are resolved on a
// scratch copy; the store and the audit log change only when the whole
// cascade is valid. Setting a parameter to its current value is a no-op that
// returns an empty entry and appends nothing.
func (s *Session) Apply(key string, value domain.Value, actor string) (domain.AuditEntry, error) {
	p, err := s.params.Get(key)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	if !p.Mutable {
		return domain.AuditEntry{}, domain.ImmutableError(key, "parameter is read-only")
	}
	if err := p.Type.Validate(value); err != nil {
		return domain.AuditEntry{}, domain.InvalidValueError(key, err)
	}
	if p.Value.Equal(value) {
		return domain.AuditEntry{}, nil
	}
	cascade, err := s.resolve([]domain.Assignment{{Key: key, Value: value}}, key)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return s.commit(cascade, actor, ""), nil
}

// ResetToDefaults restores every key in defaults. It has the same atomicity
// as Apply and records one Reset entry covering every changed parameter.
// Defaults may not change read-only parameters.
func (s *Session) ResetToDefaults(defaults domain.Snapshot, actor string) (domain.AuditEntry, error) {
	var requested []domain.Assignment
	for _, key := range defaults.Keys() {
		p, err := s.params.Get(key)
		if err != nil {
			return domain.AuditEntry{}, err
		}
		v, _ := defaults.Get(key)
		if err := p.Type.Validate(v); err != nil {
			return domain.AuditEntry{}, domain.InvalidValueError(key, err)
		}
		if p.Value.Equal(v) {
			continue
		}
		if !p.Mutable {
			return domain.AuditEntry{}, domain.ImmutableError(key, "defaults cannot change a read-only parameter")
		}
		requested = append(requested, domain.Assignment{Key: key, Value: v})
	}
	if len(requested) == 0 {
		return domain.AuditEntry{}, nil
	}
	cascade, err := s.resolve(s.declarationOrder(requested), requested[0].Key)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return s.commit(cascade, actor, domain.SummaryReset), nil
}

func (s *Session) resolve(requested []domain.Assignment, trigger string) (domain.Cascade, error) {
	cascade, err := domain.ResolveCascade(s.rules, s.params.Parameters(), s.params.Snapshot(), requested)
	if err != nil {
		return domain.Cascade{}, err
	}
	if violated := s.rules.GroupViolations(cascade.After); len(violated) > 0 {
		return domain.Cascade{}, domain.GroupInvariantError(trigger, violated[0])
	}
	return cascade, nil
}

// commit writes the cascade to the store and appends its audit entry in one
// step. A cascade without net effects is a no-op.
func (s *Session) commit(c domain.Cascade, actor string, summary domain.SummaryAction) domain.AuditEntry {
	if len(c.Effects) == 0 {
		return domain.AuditEntry{}
	}
	s.params.commit(c.After)
	if summary == "" {
		summary = domain.SummarizeEffect(c.Effects[0])
	}
	return s.log.Append(domain.AuditEntry{
		Timestamp:     s.now(),
		Actor:         actor,
		CascadeID:     s.newID(),
		SummaryAction: summary,
		Effects:       c.Effects,
	})
}

func (s *Session) declarationOrder(requested []domain.Assignment) []domain.Assignment {
	byKey := make(map[string]domain.Assignment, len(requested))
	for _, a := range requested {
		byKey[a.Key] = a
	}
	out := make([]domain.Assignment, 0, len(requested))
	for _, p := range s.params.Parameters() {
		if a, ok := byKey[p.Key]; ok {
			out = append(out, a)
		}
	}
	return out
}
