package iso7816

import (
	"fmt"

	"github.com/gregLibert/eid-sim/pkg/bits"
)

// BINARY FILE COMMANDS (ISO 7816-4 clause 11.2):
// READ BINARY (B0), UPDATE BINARY (D6) and ERASE BINARY (0E) address a
// transparent EF with P1-P2.
//
// - P1 bit 8 = 1: P1 bits 5-1 hold a Short File Identifier (SFI) and P2 holds
//   the offset (0-255). The referenced EF becomes the current EF.
// - P1 bit 8 = 0: P1-P2 holds a 15-bit offset into the current EF.

// MaxBinaryOffset is the largest offset addressable through P1-P2.
const MaxBinaryOffset = 0x7FFF

// BinaryReference is the file and offset targeted by a binary command.
type BinaryReference struct {
	SFI    byte // 0 means current EF
	Offset int
}

// ParseBinaryReference decodes the P1-P2 addressing of a binary command.
func ParseBinaryReference(p1, p2 byte) BinaryReference {
	if bits.IsSet(p1, 8) {
		return BinaryReference{SFI: bits.GetRange(p1, 5, 1), Offset: int(p2)}
	}
	return BinaryReference{Offset: int(p1)<<8 | int(p2)}
}

// Encode returns the P1-P2 bytes of the reference.
func (r BinaryReference) Encode() (p1, p2 byte, err error) {
	if r.SFI != 0 {
		if r.SFI > 30 {
			return 0, 0, fmt.Errorf("SFI %d out of range (1-30)", r.SFI)
		}
		if r.Offset > 0xFF {
			return 0, 0, fmt.Errorf("offset %d too large for SFI addressing", r.Offset)
		}
		return bits.Set(r.SFI, 8), byte(r.Offset), nil
	}
	if r.Offset < 0 || r.Offset > MaxBinaryOffset {
		return 0, 0, fmt.Errorf("offset %d out of range", r.Offset)
	}
	return byte(r.Offset >> 8), byte(r.Offset), nil
}

func (r BinaryReference) String() string {
	if r.SFI != 0 {
		return fmt.Sprintf("SFI %02X, offset %d", r.SFI, r.Offset)
	}
	return fmt.Sprintf("current EF, offset %d", r.Offset)
}

func newBinaryCommand(cla Class, code InsCode, ref BinaryReference, data []byte, ne int) (*CommandAPDU, error) {
	p1, p2, err := ref.Encode()
	if err != nil {
		return nil, err
	}
	ins, _ := NewInstruction(code)
	return NewCommandAPDU(cla, ins, p1, p2, data, ne), nil
}

// ReadBinary creates a READ BINARY command. ne of 0 requests the maximum
// short length.
func ReadBinary(cla Class, ref BinaryReference, ne int) (*CommandAPDU, error) {
	if ne == 0 {
		ne = MaxShortLe
	}
	return newBinaryCommand(cla, INS_READ_BINARY, ref, nil, ne)
}

// UpdateBinary creates an UPDATE BINARY command writing data at the reference.
func UpdateBinary(cla Class, ref BinaryReference, data []byte) (*CommandAPDU, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("update binary needs data")
	}
	return newBinaryCommand(cla, INS_UPDATE_BINARY, ref, data, 0)
}

// EraseBinary creates an ERASE BINARY command clearing the file from the
// reference offset up to its end.
func EraseBinary(cla Class, ref BinaryReference) (*CommandAPDU, error) {
	return newBinaryCommand(cla, INS_ERASE_BINARY, ref, nil, 0)
}
