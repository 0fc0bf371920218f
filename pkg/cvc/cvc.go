// Package cvc parses the card-verifiable certificates of BSI TR-03110 part 3
// (appendix C) that a terminal presents during terminal authentication.
//
// A certificate is parsed field by field and rejected as a whole as soon as a
// mandatory element is missing or malformed. Signatures are kept as opaque
// bytes, they are not verified here.
package cvc

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"time"

	"github.com/gregLibert/eid-sim/pkg/tlv"
	"golang.org/x/crypto/cryptobyte"
)

// ErrNotParseable is wrapped by every error returned by the parser.
var ErrNotParseable = errors.New("cvc: certificate not parseable")

// Certificate tags.
var (
	TagCertificate       = tlv.MustTag("7F21")
	TagBody              = tlv.MustTag("7F4E")
	TagSignature         = tlv.MustTag("5F37")
	TagProfileIdentifier = tlv.MustTag("5F29")
	TagAuthorityRef      = tlv.MustTag("42")
	TagPublicKey         = tlv.MustTag("7F49")
	TagHolderRef         = tlv.MustTag("5F20")
	TagExpirationDate    = tlv.MustTag("5F24")
	TagEffectiveDate     = tlv.MustTag("5F25")
	TagCHAT              = tlv.MustTag("7F4C")
	TagExtensions        = tlv.MustTag("65")
	TagOID               = tlv.MustTag("06")
	TagDiscretionaryData = tlv.MustTag("53")
)

// Certificate is a parsed certificate body. It is immutable: accessors return
// copies.
type Certificate struct {
	profile    int
	car        PublicKeyReference
	publicKey  *PublicKey
	chr        PublicKeyReference
	effective  time.Time
	expiration time.Time
	chat       CHAT
	extensions []Extension

	body      []byte
	signature []byte
}

func (c *Certificate) ProfileIdentifier() int { return c.profile }
func (c *Certificate) AuthorityReference() PublicKeyReference { return c.car }
func (c *Certificate) HolderReference() PublicKeyReference { return c.chr }
func (c *Certificate) PublicKey() *PublicKey { return c.publicKey }
func (c *Certificate) EffectiveDate() time.Time { return c.effective }
func (c *Certificate) ExpirationDate() time.Time { return c.expiration }
func (c *Certificate) CHAT() CHAT { return c.chat }

// Extensions returns the certificate extensions in encoding order.
func (c *Certificate) Extensions() []Extension {
	return append([]Extension(nil), c.extensions...)
}

// Body returns the encoded certificate body ('7F4E').
func (c *Certificate) Body() []byte {
	return append([]byte(nil), c.body...)
}

// Signature returns the '5F37' value, or nil when only the body was parsed.
func (c *Certificate) Signature() []byte {
	return append([]byte(nil), c.signature...)
}

// ValidAt reports whether t falls between the effective date and the end of
// the expiration day.
func (c *Certificate) ValidAt(t time.Time) bool {
	t = t.UTC()
	return !t.Before(c.effective) && t.Before(c.expiration.AddDate(0, 0, 1))
}

func (c *Certificate) String() string {
	return fmt.Sprintf("CVC CAR=%s CHR=%s %s [%s..%s]",
		c.car, c.chr, c.chat.Type,
		c.effective.Format(time.DateOnly), c.expiration.Format(time.DateOnly))
}

// Parse reads a certificate body ('7F4E'). When the public key only carries
// the public point, its domain parameters are taken from inherited, which is
// usually the key of the authority that issued the certificate.
func Parse(body *tlv.Node, inherited *PublicKey) (*Certificate, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: missing body", ErrNotParseable)
	}
	if !body.IsConstructed() {
		return nil, fmt.Errorf("%w: body %s is not constructed", ErrNotParseable, body.Tag)
	}

	var (
		c   = &Certificate{body: body.Bytes()}
		err error
	)

	profile, err := mandatory(body, TagProfileIdentifier)
	if err != nil {
		return nil, err
	}
	if len(profile.Value) == 0 || len(profile.Value) > 2 {
		return nil, fmt.Errorf("%w: profile identifier of %d bytes", ErrNotParseable, len(profile.Value))
	}
	for _, b := range profile.Value {
		c.profile = c.profile<<8 | int(b)
	}

	if c.car, err = referenceField(body, TagAuthorityRef); err != nil {
		return nil, err
	}

	key, err := mandatory(body, TagPublicKey)
	if err != nil {
		return nil, err
	}
	if c.publicKey, err = parsePublicKey(key, inherited); err != nil {
		return nil, err
	}

	if c.chr, err = referenceField(body, TagHolderRef); err != nil {
		return nil, err
	}

	if c.expiration, err = dateField(body, TagExpirationDate); err != nil {
		return nil, err
	}
	if c.effective, err = dateField(body, TagEffectiveDate); err != nil {
		return nil, err
	}
	if c.expiration.Before(c.effective) {
		return nil, fmt.Errorf("%w: expires %s before becoming effective %s", ErrNotParseable,
			c.expiration.Format(time.DateOnly), c.effective.Format(time.DateOnly))
	}

	chat, err := mandatory(body, TagCHAT)
	if err != nil {
		return nil, err
	}
	if c.chat, err = parseCHAT(chat); err != nil {
		return nil, err
	}

	if ext := body.Child(TagExtensions); ext != nil {
		if c.extensions, err = parseExtensions(ext); err != nil {
			return nil, fmt.Errorf("%w: extensions: %w", ErrNotParseable, err)
		}
	}

	return c, nil
}

// ParseEncoded parses an encoded certificate. raw is either a complete
// '7F21' certificate or the '7F4E' '5F37' pair found in PSO:VERIFY
// CERTIFICATE. The signature is kept but not verified.
func ParseEncoded(raw []byte, inherited *PublicKey) (*Certificate, error) {
	forest, err := tlv.DecodeBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotParseable, err)
	}
	if len(forest) == 1 && forest[0].Tag == TagCertificate {
		forest = forest[0].Children
	}

	body := tlv.Find(forest, tlv.Path{TagBody})
	sig := tlv.Find(forest, tlv.Path{TagSignature})
	if body == nil || sig == nil {
		return nil, fmt.Errorf("%w: body or signature missing", ErrNotParseable)
	}

	c, err := Parse(body, inherited)
	if err != nil {
		return nil, err
	}
	c.signature = append([]byte(nil), sig.Value...)
	return c, nil
}

func mandatory(parent *tlv.Node, tag tlv.Tag) (*tlv.Node, error) {
	n := parent.Child(tag)
	if n == nil {
		return nil, fmt.Errorf("%w: %s missing in %s", ErrNotParseable, tag, parent.Tag)
	}
	return n, nil
}

func referenceField(body *tlv.Node, tag tlv.Tag) (PublicKeyReference, error) {
	n, err := mandatory(body, tag)
	if err != nil {
		return PublicKeyReference{}, err
	}
	ref, err := ParsePublicKeyReference(n.Value)
	if err != nil {
		return PublicKeyReference{}, fmt.Errorf("%w: %s: %w", ErrNotParseable, tag, err)
	}
	return ref, nil
}

func dateField(body *tlv.Node, tag tlv.Tag) (time.Time, error) {
	n, err := mandatory(body, tag)
	if err != nil {
		return time.Time{}, err
	}
	d, err := ParseDate(n.Value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %w", ErrNotParseable, tag, err)
	}
	return d, nil
}

// parseOID decodes the value of an '06' object.
func parseOID(n *tlv.Node) (asn1.ObjectIdentifier, error) {
	if n == nil {
		return nil, errors.New("object identifier missing")
	}
	if n.IsConstructed() {
		return nil, errors.New("object identifier is constructed")
	}

	var (
		oid asn1.ObjectIdentifier
		in  = cryptobyte.String(n.Bytes())
	)
	if !in.ReadASN1ObjectIdentifier(&oid) || !in.Empty() {
		return nil, fmt.Errorf("invalid object identifier %X", n.Value)
	}
	return oid, nil
}
