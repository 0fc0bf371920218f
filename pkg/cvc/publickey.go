package cvc

import (
	"encoding/asn1"
	"fmt"

	"github.com/gregLibert/eid-sim/pkg/tlv"
)

// Algorithm families of id-TA (0.4.0.127.0.7.2.2.2).
var (
	OIDTARSA   = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 2, 1}
	OIDTAECDSA = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 2, 2}
)

// Key element tags inside '7F49'. RSA uses 81 (modulus) and 82 (exponent).
// ECDSA uses 81 to 85 and 87 for the domain parameters and 86 for the
// public point.
const (
	tagModulus  byte = 0x81
	tagExponent byte = 0x82
	tagPoint    byte = 0x86
	tagCofactor byte = 0x87
)

var (
	ecDomainTags    = []byte{0x81, 0x82, 0x83, 0x84, 0x85}
	ecInheritedTags = []byte{0x81, 0x82, 0x83, 0x84, 0x85, tagCofactor}
)

// PublicKey is the public key of a certificate. Key material is kept as the
// raw '7F49' elements.
type PublicKey struct {
	oid      asn1.ObjectIdentifier
	elements map[byte][]byte
}

// OID returns the algorithm identifier.
func (k *PublicKey) OID() asn1.ObjectIdentifier {
	return append(asn1.ObjectIdentifier(nil), k.oid...)
}

func (k *PublicKey) IsRSA() bool { return hasPrefix(k.oid, OIDTARSA) }
func (k *PublicKey) IsEC() bool { return hasPrefix(k.oid, OIDTAECDSA) }

// Element returns the value of the key element with the given context tag.
func (k *PublicKey) Element(tag byte) ([]byte, bool) {
	v, ok := k.elements[tag]
	return append([]byte(nil), v...), ok
}

// Point returns the public point of an EC key.
func (k *PublicKey) Point() []byte {
	v, _ := k.Element(tagPoint)
	return v
}

// HasDomainParameters reports whether the key carries the full curve
// description.
func (k *PublicKey) HasDomainParameters() bool {
	for _, t := range ecDomainTags {
		if _, ok := k.elements[t]; !ok {
			return false
		}
	}
	return true
}

func (k *PublicKey) String() string {
	return fmt.Sprintf("PublicKey(%s, %d elements)", k.oid, len(k.elements))
}

func parsePublicKey(n *tlv.Node, inherited *PublicKey) (*PublicKey, error) {
	oid, err := parseOID(n.Child(TagOID))
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %w", ErrNotParseable, err)
	}

	key := &PublicKey{oid: oid, elements: make(map[byte][]byte)}
	for _, c := range n.Children {
		if c.Tag == TagOID {
			continue
		}
		if c.Tag > 0xFF || c.IsConstructed() {
			return nil, fmt.Errorf("%w: public key: unexpected element %s", ErrNotParseable, c.Tag)
		}
		key.elements[byte(c.Tag)] = append([]byte(nil), c.Value...)
	}

	switch {
	case key.IsRSA():
		if !key.has(tagModulus) || !key.has(tagExponent) {
			return nil, fmt.Errorf("%w: RSA key without modulus or exponent", ErrNotParseable)
		}
	case key.IsEC():
		if err := key.completeDomainParameters(inherited); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported public key algorithm %s", ErrNotParseable, oid)
	}
	return key, nil
}

func (k *PublicKey) has(tag byte) bool {
	_, ok := k.elements[tag]
	return ok
}

// completeDomainParameters accepts either a full key or a bare public point,
// in which case the curve is copied from inherited.
func (k *PublicKey) completeDomainParameters(inherited *PublicKey) error {
	if !k.has(tagPoint) {
		return fmt.Errorf("%w: EC key without public point", ErrNotParseable)
	}
	if k.HasDomainParameters() {
		return nil
	}
	for _, t := range ecDomainTags {
		if k.has(t) {
			return fmt.Errorf("%w: incomplete EC domain parameters", ErrNotParseable)
		}
	}

	if inherited == nil {
		return fmt.Errorf("%w: EC key without domain parameters and no key to inherit from", ErrNotParseable)
	}
	if !inherited.IsEC() || !inherited.HasDomainParameters() {
		return fmt.Errorf("%w: cannot inherit domain parameters from %s", ErrNotParseable, inherited)
	}

	for _, t := range ecInheritedTags {
		if v, ok := inherited.elements[t]; ok {
			k.elements[t] = append([]byte(nil), v...)
		}
	}
	return nil
}

func hasPrefix(oid, prefix asn1.ObjectIdentifier) bool {
	return len(oid) > len(prefix) && oid[:len(prefix)].Equal(prefix)
}
