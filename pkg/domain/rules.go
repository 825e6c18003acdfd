package domain

import (
	"fmt"
	"slices"
	"strings"
)

// RuleKind identifies one of the four dependency rule families.
type RuleKind string

// Dependency rule kinds.
const (
	RuleRequires     RuleKind = "requires"
	RuleExcludes     RuleKind = "excludes"
	RuleAtLeastOneOf RuleKind = "at_least_one_of"
	RuleImplies      RuleKind = "implies"
)

// RuleView gives rules read-only access to the scratch snapshot of a cascade.
type RuleView interface {
	// Get returns the current scratch value.
	Get(key string) (Value, bool)
	// Base returns the value the key held before the cascade started.
	Base(key string) (Value, bool)
	// Recency ranks when key last changed within the cascade. Zero means it
	// has not changed; larger is more recent.
	Recency(key string) int
}

// DependencyRule is a declarative constraint between parameters. Evaluate is a
// pure function of the view and returns the changes the rule forces; it never
// mutates anything.
type DependencyRule interface {
	Name() string
	Kind() RuleKind
	// References lists every key the rule reads or writes.
	References() []string
	Evaluate(view RuleView) []ChangeEffect
	// Check validates the rule against the parameter declarations.
	Check(params map[string]Parameter) error
}

// Requires keeps Prerequisite true whenever Dependent is true.
type Requires struct {
	Label        string
	Dependent    string
	Prerequisite string
}

// Name implements DependencyRule.
func (r Requires) Name() string {
	return ruleName(r.Label, "requires(%s,%s)", r.Dependent, r.Prerequisite)
}

// Kind implements DependencyRule.
func (Requires) Kind() RuleKind { return RuleRequires }

// References implements DependencyRule.
func (r Requires) References() []string { return []string{r.Dependent, r.Prerequisite} }

// Evaluate turns the dependent off when the prerequisite was switched off more
// recently; otherwise the freshly enabled dependent pulls the prerequisite on.
func (r Requires) Evaluate(view RuleView) []ChangeEffect {
	d, _ := view.Get(r.Dependent)
	p, _ := view.Get(r.Prerequisite)
	if !d.Truthy() || p.Truthy() {
		return nil
	}
	if view.Recency(r.Dependent) > view.Recency(r.Prerequisite) {
		return []ChangeEffect{forced(r.Prerequisite, p, Bool(true), r.Dependent)}
	}
	return []ChangeEffect{forced(r.Dependent, d, Bool(false), r.Prerequisite)}
}

// Check implements DependencyRule.
func (r Requires) Check(params map[string]Parameter) error {
	if r.Dependent == r.Prerequisite {
		return fmt.Errorf("%s: parameter cannot require itself", r.Name())
	}
	return requireBooleans(r.Name(), params, r.Dependent, r.Prerequisite)
}

// Excludes forbids A and B from being true together.
type Excludes struct {
	Label string
	A     string
	B     string
}

// Name implements DependencyRule.
func (r Excludes) Name() string { return ruleName(r.Label, "excludes(%s,%s)", r.A, r.B) }

// Kind implements DependencyRule.
func (Excludes) Kind() RuleKind { return RuleExcludes }

// References implements DependencyRule.
func (r Excludes) References() []string { return []string{r.A, r.B} }

// Evaluate keeps the most recently enabled side and switches the other off.
// Without recency information B yields to A.
func (r Excludes) Evaluate(view RuleView) []ChangeEffect {
	a, _ := view.Get(r.A)
	b, _ := view.Get(r.B)
	if !a.Truthy() || !b.Truthy() {
		return nil
	}
	if view.Recency(r.B) > view.Recency(r.A) {
		return []ChangeEffect{forced(r.A, a, Bool(false), r.B)}
	}
	return []ChangeEffect{forced(r.B, b, Bool(false), r.A)}
}

// Check implements DependencyRule.
func (r Excludes) Check(params map[string]Parameter) error {
	if r.A == r.B {
		return fmt.Errorf("%s: parameter cannot exclude itself", r.Name())
	}
	return requireBooleans(r.Name(), params, r.A, r.B)
}

// AtLeastOneOf requires at least one member of Group to stay true. It never
// forces changes; the mutation engine rejects commits that would empty it.
type AtLeastOneOf struct {
	Group   string
	Members []string
}

// Name implements DependencyRule.
func (r AtLeastOneOf) Name() string {
	return ruleName(r.Group, "at_least_one_of(%s)", strings.Join(r.Members, ","))
}

// Kind implements DependencyRule.
func (AtLeastOneOf) Kind() RuleKind { return RuleAtLeastOneOf }

// References implements DependencyRule.
func (r AtLeastOneOf) References() []string { return slices.Clone(r.Members) }

// Evaluate implements DependencyRule and always returns nil.
func (AtLeastOneOf) Evaluate(RuleView) []ChangeEffect { return nil }

// Satisfied reports whether at least one member is true in s.
func (r AtLeastOneOf) Satisfied(s Snapshot) bool {
	for _, m := range r.Members {
		if v, ok := s.Get(m); ok && v.Truthy() {
			return true
		}
	}
	return false
}

// Check implements DependencyRule.
func (r AtLeastOneOf) Check(params map[string]Parameter) error {
	if len(r.Members) == 0 {
		return fmt.Errorf("%s: group has no members", r.Name())
	}
	seen := make(map[string]struct{}, len(r.Members))
	for _, m := range r.Members {
		if _, dup := seen[m]; dup {
			return fmt.Errorf("%s: duplicate member %s", r.Name(), m)
		}
		seen[m] = struct{}{}
	}
	return requireBooleans(r.Name(), params, r.Members...)
}

// Assignment is a forced key/value pair.
type Assignment struct {
	Key   string
	Value Value
}

// Implies forces Effects when Trigger transitions to When within a cascade.
type Implies struct {
	Label   string
	Trigger string
	When    Value
	Effects []Assignment
}

// Name implements DependencyRule.
func (r Implies) Name() string {
	return ruleName(r.Label, "implies(%s=%s)", r.Trigger, r.When.String())
}

// Kind implements DependencyRule.
func (Implies) Kind() RuleKind { return RuleImplies }

// References implements DependencyRule.
func (r Implies) References() []string {
	refs := make([]string, 0, len(r.Effects)+1)
	refs = append(refs, r.Trigger)
	for _, eff := range r.Effects {
		refs = append(refs, eff.Key)
	}
	return refs
}

// Evaluate implements DependencyRule.
func (r Implies) Evaluate(view RuleView) []ChangeEffect {
	cur, _ := view.Get(r.Trigger)
	if !cur.Equal(r.When) {
		return nil
	}
	if base, ok := view.Base(r.Trigger); ok && base.Equal(r.When) {
		return nil
	}
	var out []ChangeEffect
	for _, eff := range r.Effects {
		old, _ := view.Get(eff.Key)
		if old.Equal(eff.Value) {
			continue
		}
		out = append(out, forced(eff.Key, old, eff.Value, r.Trigger))
	}
	return out
}

// Check implements DependencyRule.
func (r Implies) Check(params map[string]Parameter) error {
	trigger, ok := params[r.Trigger]
	if !ok {
		return fmt.Errorf("%s: unknown trigger %s", r.Name(), r.Trigger)
	}
	if err := trigger.Type.Validate(r.When); err != nil {
		return fmt.Errorf("%s: trigger value: %w", r.Name(), err)
	}
	if len(r.Effects) == 0 {
		return fmt.Errorf("%s: no effects", r.Name())
	}
	for _, eff := range r.Effects {
		if eff.Key == r.Trigger {
			return fmt.Errorf("%s: effect cannot target its own trigger", r.Name())
		}
		p, ok := params[eff.Key]
		if !ok {
			return fmt.Errorf("%s: unknown effect key %s", r.Name(), eff.Key)
		}
		if err := p.Type.Validate(eff.Value); err != nil {
			return fmt.Errorf("%s: effect %s: %w", r.Name(), eff.Key, err)
		}
	}
	return nil
}

func forced(key string, old, next Value, trigger string) ChangeEffect {
	return ChangeEffect{Key: key, OldValue: old, NewValue: next, Cause: CascadedFrom(trigger)}
}

func ruleName(label, format string, args ...any) string {
	if label != "" {
		return label
	}
	return fmt.Sprintf(format, args...)
}

func requireBooleans(rule string, params map[string]Parameter, keys ...string) error {
	for _, k := range keys {
		p, ok := params[k]
		if !ok {
			return fmt.Errorf("%s: unknown parameter %s", rule, k)
		}
		if p.Type.Kind != KindBoolean {
			return fmt.Errorf("%s: parameter %s must be boolean, is %s", rule, k, p.Type.Kind)
		}
	}
	return nil
}
