// Package domain defines the parameter, rule and audit primitives of the
// smartloan configuration engine. Everything here is pure: rules evaluate
// snapshots and return forced changes, they never mutate state.
package domain
