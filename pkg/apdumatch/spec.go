// Package apdumatch decides whether a command APDU falls into the
// capabilities declared by a protocol.
//
// A Specification constrains the structural properties of a command (CLA
// coding, chaining, secure messaging, channel, INS, P1, P2, ISO case,
// extended length) and the TLV objects its data field must contain. Each
// field carries a tri-state requirement, see Param.
package apdumatch

import (
	"errors"
	"fmt"

	"github.com/google/logger"

	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/tlv"
)

// ErrMismatch wraps every reason returned by Check.
var ErrMismatch = errors.New("apdumatch: no match")

// Specification describes a family of commands accepted by a protocol.
type Specification struct {
	// ID names the specification in logs.
	ID string
	// Initial marks commands that can start the protocol.
	Initial bool

	Format          Param[iso7816.Format]
	Chaining        Param[bool]
	SecureMessaging Param[iso7816.SecureMessaging]
	Channel         Param[uint8]
	INS             Param[iso7816.InsCode]
	P1              Param[byte]
	P2              Param[byte]
	Case            Param[iso7816.ISOCase]
	ExtendedLength  Param[bool]

	// Tags lists the objects the data field must contain. All of them are
	// required.
	Tags []tlv.Path
}

// RequireTag appends a required tag path.
func (s *Specification) RequireTag(path ...string) *Specification {
	s.Tags = append(s.Tags, tlv.NewPath(path...))
	return s
}

// Matches reports whether cmd satisfies every requirement of s. Mismatch
// reasons are logged at verbosity 2.
func (s *Specification) Matches(cmd *iso7816.CommandAPDU) bool {
	if err := s.Check(cmd); err != nil {
		logger.V(2).Infof("apdumatch: %s: %v", s.ID, err)
		return false
	}
	return true
}

// Matches reports whether cmd satisfies spec.
func Matches(spec *Specification, cmd *iso7816.CommandAPDU) bool {
	return spec.Matches(cmd)
}

// Check returns nil when cmd satisfies s, or the first unsatisfied
// requirement wrapped in ErrMismatch. Fields are checked in a fixed order and
// the check stops at the first failure.
func (s *Specification) Check(cmd *iso7816.CommandAPDU) error {
	if cmd == nil {
		return fmt.Errorf("%w: no command", ErrMismatch)
	}

	if !s.Format.Accepts(cmd.Format()) {
		return mismatch("format", s.Format, cmd.Format())
	}

	if s.Chaining.IsSet() {
		if !cmd.IsInterindustry() {
			return fmt.Errorf("%w: chaining: proprietary class %02X", ErrMismatch, cmd.Class.Raw)
		}
		if !s.Chaining.Accepts(cmd.Class.IsChained) {
			return mismatch("chaining", s.Chaining, cmd.Class.IsChained)
		}
	}

	if s.SecureMessaging.IsSet() {
		if !cmd.IsInterindustry() {
			return fmt.Errorf("%w: secure messaging: proprietary class %02X", ErrMismatch, cmd.Class.Raw)
		}
		if err := s.checkSecureMessaging(cmd); err != nil {
			return err
		}
	}

	if s.Channel.IsSet() {
		if !cmd.IsInterindustry() {
			return fmt.Errorf("%w: channel: proprietary class %02X", ErrMismatch, cmd.Class.Raw)
		}
		if !s.Channel.Accepts(cmd.Class.Channel) {
			return mismatch("channel", s.Channel, cmd.Class.Channel)
		}
	}

	if !s.INS.Accepts(cmd.Instruction.Raw) {
		return mismatch("INS", s.INS, cmd.Instruction.Raw)
	}
	if !s.P1.Accepts(cmd.P1) {
		return mismatch("P1", s.P1, fmt.Sprintf("%02X", cmd.P1))
	}
	if !s.P2.Accepts(cmd.P2) {
		return mismatch("P2", s.P2, fmt.Sprintf("%02X", cmd.P2))
	}
	if !s.Case.Accepts(cmd.Case()) {
		return mismatch("case", s.Case, cmd.Case())
	}

	if s.ExtendedLength.IsSet() {
		// Case 1 has no length field to be extended.
		if cmd.Case() == iso7816.Case1 {
			return fmt.Errorf("%w: extended length: case 1 command", ErrMismatch)
		}
		if !s.ExtendedLength.Accepts(cmd.IsExtendedLength()) {
			return mismatch("extended length", s.ExtendedLength, cmd.IsExtendedLength())
		}
	}

	return s.checkTags(cmd)
}

// checkSecureMessaging walks the command and its predecessors. MustMatch is
// satisfied by the first link using the declared mode, MustNotMatch fails on
// it.
func (s *Specification) checkSecureMessaging(cmd *iso7816.CommandAPDU) error {
	mode, _ := s.SecureMessaging.Value()

	for i, link := range cmd.Chain() {
		if !link.IsInterindustry() || link.Class.SecureMessaging != mode {
			continue
		}
		if s.SecureMessaging.Requirement() == MustMatch {
			return nil
		}
		return fmt.Errorf("%w: secure messaging: link %d uses excluded mode %s", ErrMismatch, i, mode)
	}

	if s.SecureMessaging.Requirement() == MustMatch {
		return fmt.Errorf("%w: secure messaging: no link of the chain uses %s", ErrMismatch, mode)
	}
	return nil
}

func (s *Specification) checkTags(cmd *iso7816.CommandAPDU) error {
	if len(s.Tags) == 0 {
		return nil
	}

	nodes, err := tlv.DecodeBytes(cmd.Data)
	if err != nil {
		return fmt.Errorf("%w: data field: %v", ErrMismatch, err)
	}
	for _, path := range s.Tags {
		if !tlv.Contains(nodes, path) {
			return fmt.Errorf("%w: data field lacks %s", ErrMismatch, path)
		}
	}
	return nil
}

func mismatch[T comparable](field string, want Param[T], got any) error {
	return fmt.Errorf("%w: %s is %v, want %s", ErrMismatch, field, got, want)
}

func (s *Specification) String() string {
	return s.ID
}
