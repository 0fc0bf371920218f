package apdumatch

import (
	"errors"
	"fmt"
)

// ErrUndefinedParameter is returned when reading the value of a parameter
// that carries no requirement.
var ErrUndefinedParameter = errors.New("apdumatch: parameter undefined")

// Requirement tells how a specification constrains one command field.
type Requirement int

const (
	// DontCare accepts any value. It is the zero value.
	DontCare Requirement = iota
	// MustMatch accepts only the declared value.
	MustMatch
	// MustNotMatch accepts every value but the declared one.
	MustNotMatch
)

func (r Requirement) String() string {
	switch r {
	case DontCare:
		return "dont-care"
	case MustMatch:
		return "must-match"
	case MustNotMatch:
		return "must-not-match"
	default:
		return fmt.Sprintf("Requirement(%d)", int(r))
	}
}

// Param is a field constraint: a value together with its requirement.
// The zero Param is DontCare.
type Param[T comparable] struct {
	req   Requirement
	value T
}

// Is returns a parameter that must match v.
func Is[T comparable](v T) Param[T] {
	return Param[T]{req: MustMatch, value: v}
}

// Not returns a parameter that must not match v.
func Not[T comparable](v T) Param[T] {
	return Param[T]{req: MustNotMatch, value: v}
}

// Requirement returns the requirement of the parameter.
func (p Param[T]) Requirement() Requirement {
	return p.req
}

// IsSet reports whether the parameter constrains the field.
func (p Param[T]) IsSet() bool {
	return p.req != DontCare
}

// Value returns the declared value. It fails with ErrUndefinedParameter when
// the parameter is DontCare.
func (p Param[T]) Value() (T, error) {
	if p.req == DontCare {
		var zero T
		return zero, ErrUndefinedParameter
	}
	return p.value, nil
}

// Accepts reports whether actual satisfies the parameter.
func (p Param[T]) Accepts(actual T) bool {
	switch p.req {
	case MustMatch:
		return actual == p.value
	case MustNotMatch:
		return actual != p.value
	default:
		return true
	}
}

func (p Param[T]) String() string {
	switch p.req {
	case MustMatch:
		return fmt.Sprintf("%v", p.value)
	case MustNotMatch:
		return fmt.Sprintf("!%v", p.value)
	default:
		return "*"
	}
}
