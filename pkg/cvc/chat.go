package cvc

import (
	"encoding/asn1"
	"fmt"

	"github.com/gregLibert/eid-sim/pkg/bits"
	"github.com/gregLibert/eid-sim/pkg/tlv"
)

// TerminalType is selected by the object identifier of the CHAT.
type TerminalType int

const (
	InspectionSystem TerminalType = iota + 1
	AuthenticationTerminal
	SignatureTerminal
)

// Terminal type object identifiers (id-roles, 0.4.0.127.0.7.3.1.2).
var (
	OIDInspectionSystem       = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 3, 1, 2, 1}
	OIDAuthenticationTerminal = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 3, 1, 2, 2}
	OIDSignatureTerminal      = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 3, 1, 2, 3}
)

func terminalTypeOf(oid asn1.ObjectIdentifier) (TerminalType, bool) {
	switch {
	case oid.Equal(OIDInspectionSystem):
		return InspectionSystem, true
	case oid.Equal(OIDAuthenticationTerminal):
		return AuthenticationTerminal, true
	case oid.Equal(OIDSignatureTerminal):
		return SignatureTerminal, true
	}
	return 0, false
}

// AuthorizationBits is the size of the relative authorization (role bits
// included) required for the terminal type.
func (t TerminalType) AuthorizationBits() int {
	if t == AuthenticationTerminal {
		return 40
	}
	return 8
}

func (t TerminalType) String() string {
	switch t {
	case InspectionSystem:
		return "IS"
	case AuthenticationTerminal:
		return "AT"
	case SignatureTerminal:
		return "ST"
	default:
		return fmt.Sprintf("TerminalType(%d)", int(t))
	}
}

// Role is coded by the two most significant bits of the relative
// authorization.
type Role byte

const (
	RoleTerminal Role = iota
	RoleDVNonOfficial
	RoleDVOfficial
	RoleCVCA
)

func (r Role) String() string {
	switch r {
	case RoleCVCA:
		return "CVCA"
	case RoleDVOfficial:
		return "DV (official domestic)"
	case RoleDVNonOfficial:
		return "DV (non-official / foreign)"
	default:
		return "Terminal"
	}
}

// CHAT is the certificate holder authorization template ('7F4C').
type CHAT struct {
	OID  asn1.ObjectIdentifier
	Type TerminalType
	Role Role
	// Authorization holds the access rights: 8×n−2 bits for a relative
	// authorization of n bytes, bit 0 being the least significant.
	Authorization bits.Field
}

// Allows reports whether access right bit is granted.
func (c CHAT) Allows(bit int) bool {
	return c.Authorization.Get(bit)
}

// Intersect returns the effective authorization of a certificate chain: the
// role of c and the rights granted by both c and other.
func (c CHAT) Intersect(other CHAT) CHAT {
	mine, theirs := c.Authorization.Bytes(), other.Authorization.Bytes()
	if len(mine) != len(theirs) {
		mine = make([]byte, len(mine))
	}
	for i := range mine {
		mine[i] &= theirs[i]
	}

	f, _ := bits.NewField(c.Authorization.Len(), mine)
	c.Authorization = f
	return c
}

func (c CHAT) String() string {
	return fmt.Sprintf("%s %s %s", c.Type, c.Role, c.Authorization)
}

func parseCHAT(n *tlv.Node) (CHAT, error) {
	oid, err := parseOID(n.Child(TagOID))
	if err != nil {
		return CHAT{}, fmt.Errorf("%w: CHAT: %w", ErrNotParseable, err)
	}
	typ, ok := terminalTypeOf(oid)
	if !ok {
		return CHAT{}, fmt.Errorf("%w: CHAT: unknown terminal type %s", ErrNotParseable, oid)
	}

	rel := n.Child(TagDiscretionaryData)
	if rel == nil || len(rel.Value) == 0 {
		return CHAT{}, fmt.Errorf("%w: CHAT: relative authorization missing", ErrNotParseable)
	}

	auth, err := bits.NewField(8*len(rel.Value)-2, rel.Value)
	if err != nil {
		return CHAT{}, fmt.Errorf("%w: CHAT: %w", ErrNotParseable, err)
	}
	if got, want := auth.Len()+2, typ.AuthorizationBits(); got != want {
		return CHAT{}, fmt.Errorf("%w: CHAT: %s needs %d authorization bits, got %d", ErrNotParseable, typ, want, got)
	}

	return CHAT{
		OID:           oid,
		Type:          typ,
		Role:          Role(rel.Value[0] >> 6),
		Authorization: auth,
	}, nil
}
