// Package secstatus holds the security state of the card: the security
// mechanisms established by protocols (terminal authentication, file
// selection, ...) grouped by the context they are valid in.
//
// A Status is owned by one card session and is not safe for concurrent use.
package secstatus

import (
	"fmt"
	"sort"
	"strings"
)

// Context is the scope a mechanism is installed in.
type Context int

const (
	Global Context = iota
	Application
	File
	Command
)

// Contexts lists every context in declaration order.
var Contexts = []Context{Global, Application, File, Command}

func (c Context) String() string {
	switch c {
	case Global:
		return "GLOBAL"
	case Application:
		return "APPLICATION"
	case File:
		return "FILE"
	case Command:
		return "COMMAND"
	default:
		return fmt.Sprintf("Context(%d)", int(c))
	}
}

// Kind identifies a family of mechanisms. A context holds at most one
// mechanism per kind.
type Kind string

// Event is raised by protocols and may invalidate installed mechanisms.
type Event string

// Events raised by the protocols of this module.
const (
	EventApplicationSelected Event = "application-selected"
	EventFileSelected        Event = "file-selected"
	EventAuthenticationReset Event = "authentication-reset"
)

// Mechanism is an established piece of security state.
type Mechanism interface {
	Kind() Kind
	// InvalidatedBy reports whether the mechanism must be removed when ev
	// is raised.
	InvalidatedBy(ev Event) bool
}

// Install places a mechanism into a context.
type Install struct {
	Context   Context
	Mechanism Mechanism
}

// Update is the set of state changes produced by one command.
type Update struct {
	Events   []Event
	Installs []Install
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return len(u.Events) == 0 && len(u.Installs) == 0
}

// Merge appends the changes of other to u.
func (u *Update) Merge(other Update) {
	u.Events = append(u.Events, other.Events...)
	u.Installs = append(u.Installs, other.Installs...)
}

// Reader is the read-only view of a Status used by access checks.
type Reader interface {
	Current(ctx Context, kinds ...Kind) []Mechanism
}

// Status maps every context to its installed mechanisms.
type Status struct {
	contexts map[Context]map[Kind]Mechanism
}

// New returns an empty status.
func New() *Status {
	s := &Status{}
	s.Reset()
	return s
}

// Reset empties every context.
func (s *Status) Reset() {
	s.contexts = make(map[Context]map[Kind]Mechanism, len(Contexts))
	for _, c := range Contexts {
		s.contexts[c] = make(map[Kind]Mechanism)
	}
}

// Clear empties a single context. Unknown contexts are ignored.
func (s *Status) Clear(ctx Context) {
	if _, ok := s.contexts[ctx]; ok {
		s.contexts[ctx] = make(map[Kind]Mechanism)
	}
}

// Apply commits an update. Every event is propagated to every context before
// any mechanism is installed, so an install always survives the events raised
// by the same command. Installs into an unknown context are dropped.
func (s *Status) Apply(u Update) {
	for _, ev := range u.Events {
		s.propagate(ev)
	}
	for _, in := range u.Installs {
		mechs, ok := s.contexts[in.Context]
		if !ok || in.Mechanism == nil {
			continue
		}
		mechs[in.Mechanism.Kind()] = in.Mechanism
	}
}

func (s *Status) propagate(ev Event) {
	for _, mechs := range s.contexts {
		for kind, m := range mechs {
			if m.InvalidatedBy(ev) {
				delete(mechs, kind)
			}
		}
	}
}

// Current returns the mechanisms of ctx whose kind is listed, in the order
// of kinds. Kinds without an installed mechanism are omitted.
func (s *Status) Current(ctx Context, kinds ...Kind) []Mechanism {
	mechs := s.contexts[ctx]

	var out []Mechanism
	seen := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		if seen[k] {
			continue
		}
		seen[k] = true
		if m, ok := mechs[k]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Lookup returns the mechanism of kind installed in ctx, or nil.
func (s *Status) Lookup(ctx Context, kind Kind) Mechanism {
	return s.contexts[ctx][kind]
}

// String lists the installed kinds per context, e.g.
// "GLOBAL[] APPLICATION[ta] FILE[current-file] COMMAND[]".
func (s *Status) String() string {
	parts := make([]string, 0, len(Contexts))
	for _, c := range Contexts {
		kinds := make([]string, 0, len(s.contexts[c]))
		for k := range s.contexts[c] {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		parts = append(parts, fmt.Sprintf("%s[%s]", c, strings.Join(kinds, ",")))
	}
	return strings.Join(parts, " ")
}
