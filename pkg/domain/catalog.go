package domain

import (
	"errors"
	"fmt"
	"slices"
)

// Catalog declares the parameters of a configuration screen, their default
// values and the rules governing them.
type Catalog struct {
	Name       string
	Parameters []Parameter
	Rules      *RuleSet
}

// Parameter returns the declaration for key.
func (c Catalog) Parameter(key string) (Parameter, bool) {
	for _, p := range c.Parameters {
		if p.Key == key {
			return p.Clone(), true
		}
	}
	return Parameter{}, false
}

// Defaults returns the default value of every parameter.
func (c Catalog) Defaults() Snapshot {
	return SnapshotOf(c.Parameters)
}

// Categories returns the distinct categories in declaration order.
func (c Catalog) Categories() []string {
	var out []string
	for _, p := range c.Parameters {
		if !slices.Contains(out, p.Category) {
			out = append(out, p.Category)
		}
	}
	return out
}

// Validate checks every declaration, rejects duplicate keys and validates the
// rule set against the defaults.
func (c Catalog) Validate() error {
	if len(c.Parameters) == 0 {
		return fmt.Errorf("catalog %s declares no parameters", c.Name)
	}
	var errs []error
	seen := make(map[string]struct{}, len(c.Parameters))
	for _, p := range c.Parameters {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
		if _, dup := seen[p.Key]; dup {
			errs = append(errs, fmt.Errorf("duplicate parameter key %s", p.Key))
		}
		seen[p.Key] = struct{}{}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	rules := c.Rules
	if rules == nil {
		rules = NewRuleSet()
	}
	return rules.Validate(c.Parameters, c.Defaults())
}
