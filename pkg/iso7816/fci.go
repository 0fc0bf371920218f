package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/eid-sim/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// A SELECT answer depends on the control bits of P2:
//
//	FCI      '6F' wrapping '62' and/or '64', or a flat list of their tags
//	FCP      '62' alone
//	FMD      '64' alone
//	no data  empty
//
// Answers starting with a byte of 'C0' or above are proprietary and kept raw.

// FCPTemplate holds the file control parameters ('62').
type FCPTemplate struct {
	DataSize            []byte `tlv:"80" fmt:"int"`
	TotalSize           []byte `tlv:"81" fmt:"int"`
	FileDescriptor      []byte `tlv:"82"`
	FileIdentifier      []byte `tlv:"83"`
	DFName              []byte `tlv:"84" fmt:"ascii"`
	Proprietary         []byte `tlv:"85"`
	SecurityProprietary []byte `tlv:"86"`
	ShortEFIdentifier   []byte `tlv:"88"`
	LifeCycleStatus     []byte `tlv:"8A"`
	SecurityExpanded    []byte `tlv:"8B"`
	SecurityCompact     []byte `tlv:"8C"`
	SecurityTemplate    []byte `tlv:"A1"`
	SecurityExpandedTpl []byte `tlv:"AB"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FMDTemplate holds the file management data ('64').
type FMDTemplate struct {
	ApplicationIdentifier []byte `tlv:"84" fmt:"ascii"`
	ApplicationLabel      []byte `tlv:"50" fmt:"ascii"`
	Discretionary         []byte `tlv:"53"`
	DiscretionaryTemplate []byte `tlv:"73"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FileControlInfo is a decoded SELECT answer.
type FileControlInfo struct {
	FCP *FCPTemplate
	FMD *FMDTemplate

	// Unknown collects tags of a flat FCI matching neither template.
	Unknown []bertlv.TLV

	ProprietaryRawData []byte
}

// AID returns the DF name from the FCP, falling back to the FMD.
func (fci *FileControlInfo) AID() []byte {
	if name := fci.DFName(); len(name) > 0 {
		return name
	}
	if fci.FMD != nil {
		return fci.FMD.ApplicationIdentifier
	}
	return nil
}

func (fci *FileControlInfo) DFName() []byte {
	if fci.FCP == nil {
		return nil
	}
	return fci.FCP.DFName
}

func (fci *FileControlInfo) ApplicationLabel() []byte {
	if fci.FMD == nil {
		return nil
	}
	return fci.FMD.ApplicationLabel
}

// IsDF reports whether the file descriptor byte announces a DF.
func (fci *FileControlInfo) IsDF() bool {
	return fci.FCP != nil && len(fci.FCP.FileDescriptor) > 0 && fci.FCP.FileDescriptor[0]&0x38 == 0x38
}

// FileSize returns the data size announced by tag '80', or -1 when absent.
func (fci *FileControlInfo) FileSize() int {
	if fci.FCP == nil || len(fci.FCP.DataSize) == 0 {
		return -1
	}
	size := 0
	for _, b := range fci.FCP.DataSize {
		size = size<<8 | int(b)
	}
	return size
}

// SFI returns the short EF identifier carried in b8-b4 of tag '88', or 0.
func (fci *FileControlInfo) SFI() byte {
	if fci.FCP == nil || len(fci.FCP.ShortEFIdentifier) != 1 {
		return 0
	}
	return fci.FCP.ShortEFIdentifier[0] >> 3
}

// Describe dumps every populated field of the parsed templates.
func (fci *FileControlInfo) Describe() string {
	var sb strings.Builder
	tlv.WriteStructFields(&sb, "FCP", fci.FCP)
	tlv.WriteStructFields(&sb, "FMD", fci.FMD)
	if len(fci.Unknown) > 0 {
		tlv.WriteStructFields(&sb, "FCI", struct{ Unknown []bertlv.TLV }{fci.Unknown})
	}
	if len(fci.ProprietaryRawData) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "    - Proprietary: %X", fci.ProprietaryRawData)
	}
	return sb.String()
}

// ParseSelectData decodes the data field of a SELECT answer according to the
// P2 of the command. Empty data and "no data" commands yield nil.
func ParseSelectData(data []byte, p2 byte) (*FileControlInfo, error) {
	ctrl, _, err := ParseSelectP2(p2)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || ctrl == ReturnNoData {
		return nil, nil
	}
	if data[0] >= 0xC0 {
		return &FileControlInfo{ProprietaryRawData: data}, nil
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("select data: %w", err)
	}

	fci := &FileControlInfo{FCP: &FCPTemplate{}, FMD: &FMDTemplate{}}
	switch ctrl {
	case ReturnFCP:
		return fci, requireTemplate(packets, "62", fci.FCP)
	case ReturnFMD:
		return fci, requireTemplate(packets, "64", fci.FMD)
	}

	if wrapped := findPacket(packets, "6F"); wrapped != nil {
		packets = wrapped.TLVs
	}
	hasFCP := unmarshalTemplate(packets, "62", fci.FCP)
	hasFMD := unmarshalTemplate(packets, "64", fci.FMD)
	if hasFCP || hasFMD {
		return fci, nil
	}

	// Flat FCI: FCP tags first, then FMD tags among what is left.
	if err := tlv.UnmarshalFromPackets(packets, fci.FCP); err != nil {
		return nil, fmt.Errorf("flat FCI: %w", err)
	}
	rest := fci.FCP.Unknown
	fci.FCP.Unknown = nil
	if err := tlv.UnmarshalFromPackets(rest, fci.FMD); err != nil {
		return nil, fmt.Errorf("flat FCI: %w", err)
	}
	fci.Unknown, fci.FMD.Unknown = fci.FMD.Unknown, nil
	return fci, nil
}

func findPacket(packets []bertlv.TLV, tag string) *bertlv.TLV {
	for i := range packets {
		if strings.EqualFold(packets[i].Tag, tag) {
			return &packets[i]
		}
	}
	return nil
}

func requireTemplate(packets []bertlv.TLV, tag string, target interface{}) error {
	if !unmarshalTemplate(packets, tag, target) {
		return fmt.Errorf("select data: template %s missing", tag)
	}
	return nil
}

func unmarshalTemplate(packets []bertlv.TLV, tag string, target interface{}) bool {
	p := findPacket(packets, tag)
	return p != nil && tlv.UnmarshalFromPackets(p.TLVs, target) == nil
}
