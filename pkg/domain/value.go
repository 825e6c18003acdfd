package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueKind identifies the type family of a parameter value.
type ValueKind string

// Supported value kinds.
const (
	KindBoolean ValueKind = "boolean"
	KindEnum    ValueKind = "enum"
	KindNumber  ValueKind = "number"
)

// Value is a tagged parameter value. The zero Value is invalid for every type.
type Value struct {
	kind ValueKind
	b    bool
	s    string
	n    float64
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Enum returns an enum value.
func Enum(s string) Value { return Value{kind: KindEnum, s: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Kind reports the value family. Empty for the zero Value.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether the value was never assigned.
func (v Value) IsZero() bool { return v.kind == "" }

// Truthy reports whether v is the boolean true. Dependency rules only treat
// booleans as active.
func (v Value) Truthy() bool { return v.kind == KindBoolean && v.b }

// BoolValue returns the boolean payload and whether v is a boolean.
func (v Value) BoolValue() (bool, bool) { return v.b, v.kind == KindBoolean }

// EnumValue returns the enum payload and whether v is an enum.
func (v Value) EnumValue() (string, bool) { return v.s, v.kind == KindEnum }

// NumberValue returns the numeric payload and whether v is a number.
func (v Value) NumberValue() (float64, bool) { return v.n, v.kind == KindNumber }

// Equal compares kind and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBoolean:
		return v.b == other.b
	case KindEnum:
		return v.s == other.s
	case KindNumber:
		return v.n == other.n
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindEnum:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	default:
		return "<unset>"
	}
}

// MarshalJSON encodes the payload as a bare JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBoolean:
		return json.Marshal(v.b)
	case KindEnum:
		return json.Marshal(v.s)
	case KindNumber:
		return json.Marshal(v.n)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON infers the kind from the JSON token: bool, string or number.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Enum(s)
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("decode value %s: %w", trimmed, err)
		}
		*v = Number(n)
	}
	return nil
}

// UnmarshalYAML decodes scalars using their resolved YAML tag.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: value must be a scalar", node.Line)
	}
	switch node.ShortTag() {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	case "!!int", "!!float":
		var n float64
		if err := node.Decode(&n); err != nil {
			return err
		}
		*v = Number(n)
	case "!!null":
		*v = Value{}
	default:
		*v = Enum(node.Value)
	}
	return nil
}

// ValueType constrains the legal values of a parameter.
type ValueType struct {
	Kind    ValueKind `json:"kind" yaml:"kind"`
	Allowed []string  `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Min     *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64  `json:"max,omitempty" yaml:"max,omitempty"`
}

// BooleanType accepts true and false.
func BooleanType() ValueType { return ValueType{Kind: KindBoolean} }

// EnumType accepts exactly the listed values.
func EnumType(allowed ...string) ValueType {
	return ValueType{Kind: KindEnum, Allowed: append([]string(nil), allowed...)}
}

// NumberType accepts finite numbers within [min, max].
func NumberType(min, max float64) ValueType {
	return ValueType{Kind: KindNumber, Min: &min, Max: &max}
}

// Validate reports an error when v is not a legal value for t.
func (t ValueType) Validate(v Value) error {
	if v.kind != t.Kind {
		return fmt.Errorf("expected %s value, got %s", t.Kind, kindLabel(v.kind))
	}
	switch t.Kind {
	case KindBoolean:
		return nil
	case KindEnum:
		if !slices.Contains(t.Allowed, v.s) {
			return fmt.Errorf("%q is not one of [%s]", v.s, strings.Join(t.Allowed, ", "))
		}
		return nil
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("number must be finite")
		}
		if t.Min != nil && v.n < *t.Min {
			return fmt.Errorf("%s is below minimum %s", v, Number(*t.Min))
		}
		if t.Max != nil && v.n > *t.Max {
			return fmt.Errorf("%s is above maximum %s", v, Number(*t.Max))
		}
		return nil
	default:
		return fmt.Errorf("unsupported value kind %q", t.Kind)
	}
}

// Check validates the type declaration itself.
func (t ValueType) Check() error {
	switch t.Kind {
	case KindBoolean:
		return nil
	case KindEnum:
		if len(t.Allowed) == 0 {
			return fmt.Errorf("enum type requires at least one allowed value")
		}
		return nil
	case KindNumber:
		if t.Min != nil && t.Max != nil && *t.Min > *t.Max {
			return fmt.Errorf("number range min %v exceeds max %v", *t.Min, *t.Max)
		}
		return nil
	default:
		return fmt.Errorf("unsupported value kind %q", t.Kind)
	}
}

// Parse converts user input (CLI flags, form fields) into a typed value and
// validates it.
func (t ValueType) Parse(raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	var v Value
	switch t.Kind {
	case KindBoolean:
		switch strings.ToLower(raw) {
		case "true", "on", "yes", "1", "enabled":
			v = Bool(true)
		case "false", "off", "no", "0", "disabled":
			v = Bool(false)
		default:
			return Value{}, fmt.Errorf("%q is not a boolean", raw)
		}
	case KindEnum:
		v = Enum(raw)
	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a number", raw)
		}
		v = Number(n)
	default:
		return Value{}, fmt.Errorf("unsupported value kind %q", t.Kind)
	}
	if err := t.Validate(v); err != nil {
		return Value{}, err
	}
	return v, nil
}

func kindLabel(k ValueKind) string {
	if k == "" {
		return "unset"
	}
	return string(k)
}
