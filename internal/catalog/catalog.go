// Package catalog loads parameter catalogs and their rule tables from YAML.
// The Smart Loan catalog is embedded and returned by Default.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"smartloan/pkg/domain"
)

//go:embed smartloan.yaml
var smartLoanYAML []byte

type document struct {
	Name       string          `yaml:"name" validate:"required"`
	Parameters []parameterSpec `yaml:"parameters" validate:"required,min=1,dive"`
	Rules      []ruleSpec      `yaml:"rules" validate:"dive"`
}

type parameterSpec struct {
	Key      string           `yaml:"key" validate:"required"`
	Label    string           `yaml:"label" validate:"required"`
	Category string           `yaml:"category" validate:"required"`
	Type     domain.ValueType `yaml:"type"`
	Default  scalar           `yaml:"default"`
	Mutable  *bool            `yaml:"mutable"`
}

type ruleSpec struct {
	Kind         string           `yaml:"kind" validate:"required,oneof=requires excludes at_least_one_of implies"`
	Name         string           `yaml:"name"`
	Dependent    string           `yaml:"dependent" validate:"required_if=Kind requires"`
	Prerequisite string           `yaml:"prerequisite" validate:"required_if=Kind requires"`
	A            string           `yaml:"a" validate:"required_if=Kind excludes"`
	B            string           `yaml:"b" validate:"required_if=Kind excludes"`
	Members      []string         `yaml:"members" validate:"required_if=Kind at_least_one_of"`
	Trigger      string           `yaml:"trigger" validate:"required_if=Kind implies"`
	When         scalar           `yaml:"when"`
	Effects      []assignmentSpec `yaml:"effects" validate:"required_if=Kind implies,dive"`
}

type assignmentSpec struct {
	Key   string       `yaml:"key" validate:"required"`
	Value scalar `yaml:"value"`
}

// scalar keeps the raw YAML node so a value is read with the declared type of
// its parameter. An enum option written as 1 or true stays an enum.
type scalar struct {
	node *yaml.Node
}

func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: value must be a scalar", node.Line)
	}
	s.node = node
	return nil
}

func (s scalar) set() bool {
	return s.node != nil && s.node.ShortTag() != "!!null"
}

func (s scalar) value(t domain.ValueType) (domain.Value, error) {
	if !s.set() {
		return domain.Value{}, nil
	}
	if t.Kind == domain.KindEnum {
		return domain.Enum(s.node.Value), nil
	}
	var v domain.Value
	if err := s.node.Decode(&v); err != nil {
		return domain.Value{}, err
	}
	return v, nil
}

var (
	validate     = validator.New(validator.WithRequiredStructEnabled())
	defaultOnce  sync.Once
	defaultCat   domain.Catalog
	defaultError error
)

// Default returns the embedded Smart Loan catalog. It is parsed once; callers
// share the rule set, which is immutable.
func Default() (domain.Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultError = Parse(smartLoanYAML)
	})
	return defaultCat, defaultError
}

// MustDefault is Default for call sites where the embedded catalog is known
// good, such as tests and command wiring.
func MustDefault() domain.Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Embedded returns a copy of the embedded YAML document.
func Embedded() []byte {
	return bytes.Clone(smartLoanYAML)
}

// Load reads and parses a catalog file.
func Load(path string) (domain.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML catalog document, builds its rule set and validates the
// result, including the convergence probe.
func Parse(data []byte) (domain.Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return domain.Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return domain.Catalog{}, fmt.Errorf("invalid catalog document: %w", describe(err))
	}
	c, err := doc.build()
	if err != nil {
		return domain.Catalog{}, err
	}
	if err := c.Validate(); err != nil {
		return domain.Catalog{}, err
	}
	return c, nil
}

func (d document) build() (domain.Catalog, error) {
	params := make([]domain.Parameter, 0, len(d.Parameters))
	types := make(map[string]domain.ValueType, len(d.Parameters))
	for _, p := range d.Parameters {
		mutable := true
		if p.Mutable != nil {
			mutable = *p.Mutable
		}
		def, err := p.Default.value(p.Type)
		if err != nil {
			return domain.Catalog{}, fmt.Errorf("parameter %s default: %w", p.Key, err)
		}
		types[p.Key] = p.Type
		params = append(params, domain.Parameter{
			Key:      p.Key,
			Label:    p.Label,
			Category: p.Category,
			Type:     p.Type,
			Value:    def,
			Mutable:  mutable,
		})
	}
	rules := make([]domain.DependencyRule, 0, len(d.Rules))
	for i, r := range d.Rules {
		rule, err := r.build(types)
		if err != nil {
			return domain.Catalog{}, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return domain.Catalog{Name: d.Name, Parameters: params, Rules: domain.NewRuleSet(rules...)}, nil
}

// build turns the rule into its domain form. Values of keys missing from types
// fall back to their YAML tag; catalog validation reports the unknown key.
func (r ruleSpec) build(types map[string]domain.ValueType) (domain.DependencyRule, error) {
	switch domain.RuleKind(r.Kind) {
	case domain.RuleRequires:
		return domain.Requires{Label: r.Name, Dependent: r.Dependent, Prerequisite: r.Prerequisite}, nil
	case domain.RuleExcludes:
		return domain.Excludes{Label: r.Name, A: r.A, B: r.B}, nil
	case domain.RuleAtLeastOneOf:
		return domain.AtLeastOneOf{Group: r.Name, Members: r.Members}, nil
	case domain.RuleImplies:
		if !r.When.set() {
			return nil, fmt.Errorf("implies %s: when value required", r.Trigger)
		}
		when, err := r.When.value(types[r.Trigger])
		if err != nil {
			return nil, fmt.Errorf("implies %s: when: %w", r.Trigger, err)
		}
		effects := make([]domain.Assignment, 0, len(r.Effects))
		for _, e := range r.Effects {
			v, err := e.Value.value(types[e.Key])
			if err != nil {
				return nil, fmt.Errorf("implies %s: effect %s: %w", r.Trigger, e.Key, err)
			}
			effects = append(effects, domain.Assignment{Key: e.Key, Value: v})
		}
		return domain.Implies{Label: r.Name, Trigger: r.Trigger, When: when, Effects: effects}, nil
	default:
		return nil, fmt.Errorf("unsupported rule kind %q", r.Kind)
	}
}

// describe flattens validator field errors into one readable message.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
