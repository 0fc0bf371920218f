package cardfs

import (
	"fmt"

	"github.com/gregLibert/eid-sim/pkg/secstatus"
	"github.com/gregLibert/eid-sim/pkg/tlv"
)

// Access holds the conditions of the three EF operations. Any satisfied
// condition of a list grants the operation, an empty list denies it.
type Access struct {
	Read  []secstatus.Condition
	Write []secstatus.Condition
	Erase []secstatus.Condition
}

// ElementaryFile is a transparent EF.
type ElementaryFile struct {
	fid     FileID
	sfi     byte
	content []byte
	access  Access
	parent  *DedicatedFile
}

// NewEF creates an elementary file. sfi is 0 when the file has no short
// identifier. content is copied.
func NewEF(fid FileID, sfi byte, content []byte, access Access) (*ElementaryFile, error) {
	if sfi > 30 {
		return nil, fmt.Errorf("SFI %d out of range (1-30)", sfi)
	}
	return &ElementaryFile{
		fid:     fid,
		sfi:     sfi,
		content: append([]byte(nil), content...),
		access:  access,
	}, nil
}

func (e *ElementaryFile) FID() FileID { return e.fid }
func (e *ElementaryFile) Parent() *DedicatedFile { return e.parent }
func (e *ElementaryFile) setParent(p *DedicatedFile) { e.parent = p }

// SFI returns the short file identifier, 0 if none.
func (e *ElementaryFile) SFI() byte {
	return e.sfi
}

// Size returns the content length.
func (e *ElementaryFile) Size() int {
	return len(e.content)
}

// Access returns the conditions guarding the file.
func (e *ElementaryFile) Access() Access {
	return e.access
}

func allowed(st secstatus.Reader, conds []secstatus.Condition) bool {
	return secstatus.Satisfied(st, secstatus.Application, conds)
}

// Read returns a copy of the content.
func (e *ElementaryFile) Read(st secstatus.Reader) ([]byte, error) {
	if !allowed(st, e.access.Read) {
		return nil, fmt.Errorf("%w: reading EF %s", ErrAccessDenied, e.fid)
	}
	return append([]byte(nil), e.content...), nil
}

// Write copies data into the content at offset. The file does not grow: a
// write past the end fails with ErrOutOfRange and leaves the content intact.
func (e *ElementaryFile) Write(st secstatus.Reader, offset int, data []byte) error {
	if !allowed(st, e.access.Write) {
		return fmt.Errorf("%w: updating EF %s", ErrAccessDenied, e.fid)
	}
	if offset < 0 || offset+len(data) > len(e.content) {
		return fmt.Errorf("%w: %d bytes at offset %d, EF %s holds %d", ErrOutOfRange, len(data), offset, e.fid, len(e.content))
	}
	copy(e.content[offset:], data)
	return nil
}

// Erase sets the content from offset to the end to zero.
func (e *ElementaryFile) Erase(st secstatus.Reader, offset int) error {
	if !allowed(st, e.access.Erase) {
		return fmt.Errorf("%w: erasing EF %s", ErrAccessDenied, e.fid)
	}
	if offset < 0 || offset > len(e.content) {
		return fmt.Errorf("%w: offset %d, EF %s holds %d", ErrOutOfRange, offset, e.fid, len(e.content))
	}
	clear(e.content[offset:])
	return nil
}

// FCP returns '62' { '82' descriptor, '83' FID, '80' size, '88' SFI }.
// The SFI is coded on bits 8-4 of '88'.
func (e *ElementaryFile) FCP() *tlv.Node {
	fcp := tlv.NewConstructed(TagFCP,
		tlv.NewPrimitive(TagFileDescriptor, []byte{DescriptorTransparentEF}),
		tlv.NewPrimitive(TagFileID, e.fid[:]),
		tlv.NewPrimitive(TagDataSize, minimalUnsigned(len(e.content))),
	)
	if e.sfi != 0 {
		// SFI in b8-b4 with b3-b1 zero, as ISO 7816-4 encodes a one byte '88'.
		// Cards that put the bare SFI in this byte answer 1C where this one
		// answers E0.
		fcp.Children = append(fcp.Children, tlv.NewPrimitive(TagShortFileID, []byte{e.sfi << 3}))
	}
	return fcp
}

// minimalUnsigned encodes n big-endian without leading zero bytes, on at
// least one byte.
func minimalUnsigned(n int) []byte {
	out := []byte{byte(n)}
	for n >>= 8; n > 0; n >>= 8 {
		out = append([]byte{byte(n)}, out...)
	}
	return out
}

func (e *ElementaryFile) String() string {
	if e.sfi != 0 {
		return fmt.Sprintf("EF %s (SFI %02X, %d bytes)", e.fid, e.sfi, len(e.content))
	}
	return fmt.Sprintf("EF %s (%d bytes)", e.fid, len(e.content))
}
