package cvc

import (
	"bytes"
	"fmt"
)

// PublicKeyReference identifies a key of the PKI: a two letter country code,
// a holder mnemonic of up to nine characters and a five character sequence
// number ("DECVCA00001").
type PublicKeyReference struct {
	CountryCode string
	Mnemonic    string
	Sequence    string
}

// ParsePublicKeyReference splits the value of a '42' or '5F20' object.
func ParsePublicKeyReference(b []byte) (PublicKeyReference, error) {
	if len(b) < 7 || len(b) > 16 {
		return PublicKeyReference{}, fmt.Errorf("reference of %d bytes, want 7 to 16", len(b))
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return PublicKeyReference{}, fmt.Errorf("reference %X is not printable", b)
		}
	}

	n := len(b)
	return PublicKeyReference{
		CountryCode: string(b[:2]),
		Mnemonic:    string(b[2 : n-5]),
		Sequence:    string(b[n-5:]),
	}, nil
}

// Bytes returns the encoded reference.
func (r PublicKeyReference) Bytes() []byte {
	return []byte(r.String())
}

// Equal reports whether r refers to the key encoded in b.
func (r PublicKeyReference) Equal(b []byte) bool {
	return bytes.Equal(r.Bytes(), b)
}

func (r PublicKeyReference) String() string {
	return r.CountryCode + r.Mnemonic + r.Sequence
}
