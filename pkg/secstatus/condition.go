package secstatus

import (
	"fmt"
	"strings"
)

// Condition is an access rule evaluated against the mechanisms of a context.
type Condition interface {
	// Required lists the kinds the rule looks at.
	Required() []Kind
	// Check evaluates the rule over the installed mechanisms of those kinds.
	Check(mechs []Mechanism) bool
	String() string
}

// Satisfied reports whether any of conds holds in ctx. Conditions are tried
// in order and the first satisfied one grants access. An empty list denies.
func Satisfied(r Reader, ctx Context, conds []Condition) bool {
	_, ok := FirstSatisfied(r, ctx, conds)
	return ok
}

// FirstSatisfied returns the condition that granted access.
func FirstSatisfied(r Reader, ctx Context, conds []Condition) (Condition, bool) {
	for _, c := range conds {
		if c.Check(r.Current(ctx, c.Required()...)) {
			return c, true
		}
	}
	return nil, false
}

type constant bool

func (c constant) Required() []Kind { return nil }
func (c constant) Check(_ []Mechanism) bool { return bool(c) }

func (c constant) String() string {
	if c {
		return "always"
	}
	return "never"
}

// Always and Never are the unconditional rules.
var (
	Always Condition = constant(true)
	Never  Condition = constant(false)
)

type requireAll []Kind

// Require holds when a mechanism of every listed kind is installed.
func Require(kinds ...Kind) Condition {
	return requireAll(kinds)
}

func (r requireAll) Required() []Kind {
	return r
}

func (r requireAll) Check(mechs []Mechanism) bool {
	for _, k := range r {
		found := false
		for _, m := range mechs {
			if m.Kind() == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r requireAll) String() string {
	kinds := make([]string, len(r))
	for i, k := range r {
		kinds[i] = string(k)
	}
	return "require(" + strings.Join(kinds, ",") + ")"
}

type funcCondition struct {
	name  string
	kinds []Kind
	fn    func([]Mechanism) bool
}

// ConditionFunc adapts fn to a Condition over kinds. name is used for display.
func ConditionFunc(name string, fn func(mechs []Mechanism) bool, kinds ...Kind) Condition {
	return &funcCondition{name: name, kinds: kinds, fn: fn}
}

func (f *funcCondition) Required() []Kind {
	return f.kinds
}

func (f *funcCondition) Check(mechs []Mechanism) bool {
	return f.fn(mechs)
}

func (f *funcCondition) String() string {
	return fmt.Sprintf("%s%v", f.name, f.kinds)
}
