package iso7816

import (
	"fmt"
)

// SELECT (INS A4) makes a file current.
//
//	P1  how the target is designated: file identifier, DF name or path.
//	P2  b4-b3 what the card answers with (FCI, FCP, FMD or nothing),
//	    b2-b1 which occurrence of a DF name is meant.
//
// Bits b8-b5 of P2 are RFU and must be zero.

// SelectionMethod is the P1 of a SELECT command.
type SelectionMethod byte

const (
	SelectByFileID          SelectionMethod = 0x00
	SelectChildDF           SelectionMethod = 0x01
	SelectEFUnderCurrentDF  SelectionMethod = 0x02
	SelectParentDF          SelectionMethod = 0x03
	SelectByDFName          SelectionMethod = 0x04
	SelectPathFromMF        SelectionMethod = 0x08
	SelectPathFromCurrentDF SelectionMethod = 0x09
)

var selectionMethodNames = map[SelectionMethod]string{
	SelectByFileID:          "by file identifier",
	SelectChildDF:           "child DF",
	SelectEFUnderCurrentDF:  "EF under current DF",
	SelectParentDF:          "parent DF",
	SelectByDFName:          "by DF name",
	SelectPathFromMF:        "path from MF",
	SelectPathFromCurrentDF: "path from current DF",
}

func (s SelectionMethod) String() string {
	if name, ok := selectionMethodNames[s]; ok {
		return name
	}
	return fmt.Sprintf("method %02X", byte(s))
}

// IsPath reports whether the command data is a path rather than a single
// identifier or a name.
func (s SelectionMethod) IsPath() bool {
	return s == SelectPathFromMF || s == SelectPathFromCurrentDF
}

// FileOccurrence is b2-b1 of the SELECT P2.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b00
	LastOccurrence        FileOccurrence = 0b01
	NextOccurrence        FileOccurrence = 0b10
	PreviousOccurrence    FileOccurrence = 0b11
)

func (f FileOccurrence) String() string {
	switch f {
	case FirstOrOnlyOccurrence:
		return "first or only"
	case LastOccurrence:
		return "last"
	case NextOccurrence:
		return "next"
	case PreviousOccurrence:
		return "previous"
	}
	return fmt.Sprintf("occurrence %02X", byte(f))
}

// SelectionControl is b4-b3 of the SELECT P2.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b0000
	ReturnFCP    SelectionControl = 0b0100
	ReturnFMD    SelectionControl = 0b1000
	ReturnNoData SelectionControl = 0b1100
)

func (s SelectionControl) String() string {
	switch s {
	case ReturnFCI:
		return "FCI"
	case ReturnFCP:
		return "FCP"
	case ReturnFMD:
		return "FMD"
	case ReturnNoData:
		return "no data"
	}
	return fmt.Sprintf("control %02X", byte(s))
}

// ParseSelectP2 splits a SELECT P2 into its control and occurrence parts.
// RFU bits are reported as an error.
func ParseSelectP2(p2 byte) (SelectionControl, FileOccurrence, error) {
	if p2&0xF0 != 0 {
		return 0, 0, fmt.Errorf("select P2 %02X: RFU bits set", p2)
	}
	return SelectionControl(p2 & 0x0C), FileOccurrence(p2 & 0x03), nil
}

// NewSelectCommand builds a SELECT command.
//
// Le is only requested when no data is sent and an answer is expected, so
// the command stays case 2 or case 3 and works over T=0 as well. Case 3
// answers come back through 61XX and GET RESPONSE.
func NewSelectCommand(
	cla Class,
	method SelectionMethod,
	occurrence FileOccurrence,
	ctrl SelectionControl,
	data []byte,
) *CommandAPDU {
	ins, _ := NewInstruction(INS_SELECT)

	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, ins, byte(method), byte(ctrl)|byte(occurrence), data, ne)
}

// SelectByAID selects an application by DF name and asks for its FCI.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}

// SelectMF selects the master file through an empty file identifier.
func SelectMF(cla Class) *CommandAPDU {
	return NewSelectCommand(cla, SelectByFileID, FirstOrOnlyOccurrence, ReturnFCI, nil)
}

// SelectEF creates a command selecting an EF of the current DF by its file
// identifier, returning the FCP when withFCP is set and no data otherwise.
func SelectEF(cla Class, fid [2]byte, withFCP bool) *CommandAPDU {
	ctrl := ReturnNoData
	if withFCP {
		ctrl = ReturnFCP
	}
	return NewSelectCommand(cla, SelectEFUnderCurrentDF, FirstOrOnlyOccurrence, ctrl, fid[:])
}

// SelectPath selects a file through a path of file identifiers starting at
// the MF, which is left out of the path.
func SelectPath(cla Class, fids ...[2]byte) *CommandAPDU {
	path := make([]byte, 0, 2*len(fids))
	for _, fid := range fids {
		path = append(path, fid[:]...)
	}
	return NewSelectCommand(cla, SelectPathFromMF, FirstOrOnlyOccurrence, ReturnNoData, path)
}
