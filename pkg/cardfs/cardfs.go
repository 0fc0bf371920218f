// Package cardfs models the file system of the card: dedicated files (DF)
// holding children and transparent elementary files (EF) holding content.
//
// Every EF operation is gated by the security status: an operation is allowed
// when one of its conditions holds in the APPLICATION context.
package cardfs

import (
	"errors"
	"fmt"

	"github.com/gregLibert/eid-sim/pkg/tlv"
)

var (
	ErrAccessDenied = errors.New("cardfs: access denied")
	ErrOutOfRange   = errors.New("cardfs: offset out of range")
	ErrNotFound     = errors.New("cardfs: file not found")
	ErrDuplicate    = errors.New("cardfs: identifier already in use")
)

// File control parameter tags (ISO 7816-4 table 12).
var (
	TagFCP            = tlv.MustTag("62")
	TagDataSize       = tlv.MustTag("80")
	TagFileDescriptor = tlv.MustTag("82")
	TagFileID         = tlv.MustTag("83")
	TagDFName         = tlv.MustTag("84")
	TagShortFileID    = tlv.MustTag("88")
)

// File descriptor bytes.
const (
	DescriptorTransparentEF byte = 0x01
	DescriptorDF            byte = 0x38
)

// FileID is the two byte file identifier.
type FileID [2]byte

// MasterFileID identifies the root of the tree.
var MasterFileID = FileID{0x3F, 0x00}

// ParseFileID reads a file identifier from a SELECT data field.
func ParseFileID(b []byte) (FileID, error) {
	if len(b) != 2 {
		return FileID{}, fmt.Errorf("file identifier must be 2 bytes, got %d", len(b))
	}
	return FileID{b[0], b[1]}, nil
}

func (f FileID) String() string {
	return fmt.Sprintf("%02X%02X", f[0], f[1])
}

// Object is a node of the file tree.
type Object interface {
	FID() FileID
	Parent() *DedicatedFile
	// FCP returns the file control parameters template ('62').
	FCP() *tlv.Node

	setParent(df *DedicatedFile)
}
