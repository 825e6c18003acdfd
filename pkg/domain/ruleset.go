package domain

import (
	"errors"
	"fmt"
	"slices"
)

// RuleSet is the declarative constraint table. It is immutable after
// construction and safe to share between sessions.
type RuleSet struct {
	rules  []DependencyRule
	byKey  map[string][]int
	groups []AtLeastOneOf
}

// NewRuleSet indexes rules by every key they reference. Declaration order is
// the firing order.
func NewRuleSet(rules ...DependencyRule) *RuleSet {
	s := &RuleSet{byKey: make(map[string][]int)}
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		idx := len(s.rules)
		s.rules = append(s.rules, rule)
		for _, key := range rule.References() {
			if ids := s.byKey[key]; len(ids) > 0 && ids[len(ids)-1] == idx {
				continue
			}
			s.byKey[key] = append(s.byKey[key], idx)
		}
		if g, ok := rule.(AtLeastOneOf); ok {
			s.groups = append(s.groups, g)
		}
	}
	return s
}

// Rules returns the rules in declaration order.
func (s *RuleSet) Rules() []DependencyRule {
	return slices.Clone(s.rules)
}

// Len returns the number of rules.
func (s *RuleSet) Len() int { return len(s.rules) }

// RulesTriggeredBy returns every rule that references key as trigger,
// dependent, prerequisite or group member.
func (s *RuleSet) RulesTriggeredBy(key string) []DependencyRule {
	ids := s.byKey[key]
	out := make([]DependencyRule, 0, len(ids))
	for _, i := range ids {
		out = append(out, s.rules[i])
	}
	return out
}

// Evaluate runs one pass of every rule and returns the forced changes in
// firing order. Only the first forced change per key is kept; conflicting
// writers are re-evaluated on the next pass.
func (s *RuleSet) Evaluate(view RuleView) []ChangeEffect {
	return s.evaluate(view, func(int) bool { return true })
}

// EvaluateFor runs one pass restricted to rules referencing any of keys.
func (s *RuleSet) EvaluateFor(view RuleView, keys []string) []ChangeEffect {
	relevant := make(map[int]struct{})
	for _, k := range keys {
		for _, i := range s.byKey[k] {
			relevant[i] = struct{}{}
		}
	}
	if len(relevant) == 0 {
		return nil
	}
	return s.evaluate(view, func(i int) bool {
		_, ok := relevant[i]
		return ok
	})
}

func (s *RuleSet) evaluate(view RuleView, include func(int) bool) []ChangeEffect {
	var out []ChangeEffect
	claimed := make(map[string]struct{})
	for i, rule := range s.rules {
		if !include(i) {
			continue
		}
		for _, eff := range rule.Evaluate(view) {
			if _, taken := claimed[eff.Key]; taken {
				continue
			}
			claimed[eff.Key] = struct{}{}
			out = append(out, eff)
		}
	}
	return out
}

// Groups returns the AtLeastOneOf groups in declaration order.
func (s *RuleSet) Groups() []AtLeastOneOf {
	return slices.Clone(s.groups)
}

// GroupViolations names every group without a true member in snap.
func (s *RuleSet) GroupViolations(snap Snapshot) []string {
	var out []string
	for _, g := range s.groups {
		if !g.Satisfied(snap) {
			out = append(out, g.Name())
		}
	}
	return out
}

// Check validates every rule against the parameter declarations and returns
// all problems joined.
func (s *RuleSet) Check(params []Parameter) error {
	index := make(map[string]Parameter, len(params))
	for _, p := range params {
		index[p.Key] = p
	}
	var errs []error
	names := make(map[string]struct{}, len(s.rules))
	for _, rule := range s.rules {
		if err := rule.Check(index); err != nil {
			errs = append(errs, err)
		}
		if _, dup := names[rule.Name()]; dup {
			errs = append(errs, fmt.Errorf("duplicate rule name %s", rule.Name()))
		}
		names[rule.Name()] = struct{}{}
	}
	return errors.Join(errs...)
}

// Validate runs Check, verifies the baseline is a fixed point that satisfies
// every group, and probes convergence by flipping every mutable boolean
// parameter from the baseline.
func (s *RuleSet) Validate(params []Parameter, baseline Snapshot) error {
	if err := s.Check(params); err != nil {
		return err
	}
	if err := CheckFixedPoint(s, baseline); err != nil {
		return err
	}
	if violated := s.GroupViolations(baseline); len(violated) > 0 {
		return fmt.Errorf("baseline violates groups %v", violated)
	}
	var errs []error
	for _, p := range params {
		if !p.Mutable || p.Type.Kind != KindBoolean {
			continue
		}
		cur, _ := baseline.Get(p.Key)
		flipped := Bool(!cur.Truthy())
		_, err := ResolveCascade(s, params, baseline, []Assignment{{Key: p.Key, Value: flipped}})
		if errors.Is(err, ErrCascadeDidNotConverge) {
			errs = append(errs, fmt.Errorf("setting %s=%s: %w", p.Key, flipped, err))
		}
	}
	return errors.Join(errs...)
}

// CheckFixedPoint reports an error when a full evaluation of snap would force
// further changes.
func CheckFixedPoint(s *RuleSet, snap Snapshot) error {
	view := staticView{snap: snap}
	if effects := s.Evaluate(view); len(effects) > 0 {
		keys := make([]string, 0, len(effects))
		for _, eff := range effects {
			keys = append(keys, eff.Key)
		}
		return fmt.Errorf("snapshot is not a fixed point: rules would change %v", keys)
	}
	return nil
}

// staticView presents a snapshot with no cascade history.
type staticView struct{ snap Snapshot }

func (v staticView) Get(key string) (Value, bool)  { return v.snap.Get(key) }
func (v staticView) Base(key string) (Value, bool) { return v.snap.Get(key) }
func (staticView) Recency(string) int              { return 0 }
