package apdumatch

import "github.com/gregLibert/eid-sim/pkg/iso7816"

// Set is an ordered collection of specifications offered by one protocol.
type Set []*Specification

// Match returns the first specification of the set accepting cmd.
func (set Set) Match(cmd *iso7816.CommandAPDU) (*Specification, bool) {
	for _, s := range set {
		if s.Matches(cmd) {
			return s, true
		}
	}
	return nil, false
}

// Matches reports whether any specification of the set accepts cmd.
func (set Set) Matches(cmd *iso7816.CommandAPDU) bool {
	_, ok := set.Match(cmd)
	return ok
}

// Initial returns the specifications able to start the protocol.
func (set Set) Initial() Set {
	var out Set
	for _, s := range set {
		if s.Initial {
			out = append(out, s)
		}
	}
	return out
}
