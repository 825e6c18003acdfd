package domain

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the mutation error taxonomy.
type ErrorKind string

// Mutation error kinds. All are recoverable except CascadeDidNotConverge,
// which signals a malformed rule set.
const (
	KindUnknownKey             ErrorKind = "UnknownKey"
	KindImmutable              ErrorKind = "Immutable"
	KindInvalidValue           ErrorKind = "InvalidValue"
	KindViolatesGroupInvariant ErrorKind = "ViolatesGroupInvariant"
	KindCascadeDidNotConverge  ErrorKind = "CascadeDidNotConverge"
)

// Sentinels for errors.Is matching against *MutationError.
var (
	ErrUnknownKey             = errors.New("unknown parameter key")
	ErrImmutable              = errors.New("parameter is immutable")
	ErrInvalidValue           = errors.New("invalid parameter value")
	ErrViolatesGroupInvariant = errors.New("at-least-one-of group would be empty")
	ErrCascadeDidNotConverge  = errors.New("cascade did not converge")
)

var sentinels = map[ErrorKind]error{
	KindUnknownKey:             ErrUnknownKey,
	KindImmutable:              ErrImmutable,
	KindInvalidValue:           ErrInvalidValue,
	KindViolatesGroupInvariant: ErrViolatesGroupInvariant,
	KindCascadeDidNotConverge:  ErrCascadeDidNotConverge,
}

// MutationError is returned by every rejected mutation. The parameter store and
// audit log are unchanged whenever one is returned.
type MutationError struct {
	Kind ErrorKind
	Key  string
	// Group names the AtLeastOneOf group for ViolatesGroupInvariant.
	Group  string
	Detail string
}

func (e *MutationError) Error() string {
	msg := sentinels[e.Kind].Error()
	if e.Key != "" {
		msg = fmt.Sprintf("%s: %s", e.Key, msg)
	}
	if e.Group != "" {
		msg = fmt.Sprintf("%s (group %s)", msg, e.Group)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

// Unwrap exposes the sentinel for errors.Is.
func (e *MutationError) Unwrap() error { return sentinels[e.Kind] }

// UnknownKeyError reports a reference to a parameter that does not exist.
func UnknownKeyError(key string) *MutationError {
	return &MutationError{Kind: KindUnknownKey, Key: key}
}

// ImmutableError reports an attempt to change a read-only parameter.
func ImmutableError(key, detail string) *MutationError {
	return &MutationError{Kind: KindImmutable, Key: key, Detail: detail}
}

// InvalidValueError wraps a type or range validation failure.
func InvalidValueError(key string, cause error) *MutationError {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &MutationError{Kind: KindInvalidValue, Key: key, Detail: detail}
}

// GroupInvariantError reports that committing would empty group.
func GroupInvariantError(key, group string) *MutationError {
	return &MutationError{Kind: KindViolatesGroupInvariant, Key: key, Group: group}
}

// NonConvergenceError reports a cascade that exceeded its pass budget.
func NonConvergenceError(key string, passes int) *MutationError {
	return &MutationError{Kind: KindCascadeDidNotConverge, Key: key, Detail: fmt.Sprintf("no fixed point after %d passes", passes)}
}

// KindOf extracts the error kind, or "" when err is not a MutationError.
func KindOf(err error) ErrorKind {
	var me *MutationError
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}
