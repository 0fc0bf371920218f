package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gregLibert/eid-sim/pkg/bits"
)

// BER TAG ENCODING (ISO/IEC 8825-1, ISO/IEC 7816-4 clause 5.2):
//
// First byte:
//   - Bits 8-7: Class (00 Universal, 01 Application, 10 Context-specific, 11 Private).
//   - Bit 6:    Constructed (1) or Primitive (0) encoding.
//   - Bits 5-1: Tag number, or 11111 if the number continues on subsequent bytes.
//
// Subsequent bytes:
//   - Bit 8:    More bytes follow (1) or last byte (0).
//   - Bits 7-1: Next 7 bits of the tag number.
//
// Card-verifiable certificates use up to two tag bytes ('7F21', '5F29').
// This package accepts tags up to MaxTagLength bytes.

// MaxTagLength is the longest tag (in bytes) accepted by the decoder.
const MaxTagLength = 4

// Class is the class of a tag (bits 8-7 of the first tag byte).
type Class byte

const (
	ClassUniversal       Class = 0
	ClassApplication     Class = 1
	ClassContextSpecific Class = 2
	ClassPrivate         Class = 3
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "Universal"
	case ClassApplication:
		return "Application"
	case ClassContextSpecific:
		return "Context-specific"
	case ClassPrivate:
		return "Private"
	default:
		return fmt.Sprintf("Class(%d)", byte(c))
	}
}

// Tag holds the raw tag bytes packed big-endian into an integer,
// e.g. 0x7F4E for the certificate body tag.
type Tag uint32

// ParseTag reads the tag starting at data[0].
// It returns the tag and the number of bytes consumed.
func ParseTag(data []byte) (Tag, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: no tag byte", ErrTruncatedTag)
	}

	t := Tag(data[0])
	if data[0]&0x1F != 0x1F {
		return t, 1, nil
	}

	for i := 1; ; i++ {
		if i >= MaxTagLength {
			return 0, 0, fmt.Errorf("%w: tag longer than %d bytes", ErrUnsupportedTag, MaxTagLength)
		}
		if i >= len(data) {
			return 0, 0, fmt.Errorf("%w: tag %X continues past end of data", ErrTruncatedTag, data[:i])
		}

		t = t<<8 | Tag(data[i])
		if !bits.IsSet(data[i], 8) {
			return t, i + 1, nil
		}
	}
}

// MustTag parses a hex tag representation ("7F4E", "5f 29") and panics on error.
// It is meant for package-level constants and test fixtures.
func MustTag(s string) Tag {
	raw, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic(fmt.Sprintf("invalid tag '%s': %v", s, err))
	}

	t, n, err := ParseTag(raw)
	if err != nil || n != len(raw) {
		panic(fmt.Sprintf("invalid tag '%s'", s))
	}
	return t
}

// Len returns the number of bytes of the encoded tag.
func (t Tag) Len() int {
	switch {
	case t > 0xFFFFFF:
		return 4
	case t > 0xFFFF:
		return 3
	case t > 0xFF:
		return 2
	default:
		return 1
	}
}

// Bytes returns the encoded tag.
func (t Tag) Bytes() []byte {
	n := t.Len()
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(t)
		t >>= 8
	}
	return out
}

func (t Tag) first() byte {
	return t.Bytes()[0]
}

// Class returns the tag class.
func (t Tag) Class() Class {
	return Class(bits.GetRange(t.first(), 8, 7))
}

// IsConstructed reports whether the constructed bit (bit 6) of the first byte is set.
func (t Tag) IsConstructed() bool {
	return bits.IsSet(t.first(), 6)
}

// Number returns the tag number without class and constructed bits.
func (t Tag) Number() uint32 {
	raw := t.Bytes()
	if len(raw) == 1 {
		return uint32(raw[0] & 0x1F)
	}

	var n uint32
	for _, b := range raw[1:] {
		n = n<<7 | uint32(b&0x7F)
	}
	return n
}

func (t Tag) String() string {
	return fmt.Sprintf("%X", t.Bytes())
}
