package protocols

import (
	"testing"

	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/tlv"
)

func TestFileManagement_Select(t *testing.T) {
	p, _ := newCard(t)

	run(t, p, []exchange{
		{"MF with FCP", tlv.Hex("00 A4 00 04 00"), tlv.Hex("62 07 82 01 38 83 02 3F 00"), iso7816.SW_NO_ERROR},
		{"EF under MF", tlv.Hex("00 A4 02 0C 02 01 1C"), []byte{}, iso7816.SW_NO_ERROR},
		{"Unknown EF", tlv.Hex("00 A4 02 0C 02 0F 0F"), nil, iso7816.SW_ERR_FILE_NOT_FOUND},
		{"DF selected as EF", tlv.Hex("00 A4 02 0C 02 7F 00"), nil, iso7816.SW_ERR_FILE_NOT_FOUND},
		{"Child DF", tlv.Hex("00 A4 01 0C 02 7F 00"), nil, iso7816.SW_NO_ERROR},
		{"Sibling by FID", tlv.Hex("00 A4 00 0C 02 01 1C"), nil, iso7816.SW_NO_ERROR},
		{"Unknown DF name", tlv.Hex("00 A4 04 0C 03 A0 00 01"), nil, iso7816.SW_ERR_FILE_NOT_FOUND},
		{"Path from MF", tlv.Hex("00 A4 08 04 04 7F 00 01 01 00"),
			tlv.Hex("62 0D 82 01 01 83 02 01 01 80 01 0B 88 01 08"), iso7816.SW_NO_ERROR},
		{"Parent of current DF", tlv.Hex("00 A4 03 0C"), nil, iso7816.SW_NO_ERROR},
		{"Path below an EF", tlv.Hex("00 A4 08 0C 04 01 1C 01 01"), nil, iso7816.SW_ERR_FILE_NOT_FOUND},
		{"Odd path", tlv.Hex("00 A4 08 0C 03 7F 00 01"), nil, iso7816.SW_ERR_INCORRECT_PARAMS_DATA},
		{"One byte FID", tlv.Hex("00 A4 02 0C 01 01"), nil, iso7816.SW_ERR_INCORRECT_PARAMS_DATA},
		{"Unsupported method", tlv.Hex("00 A4 05 0C 02 01 1C"), nil, iso7816.SW_ERR_INCORRECT_PARAMS_P1P2},
		{"FMD requested", tlv.Hex("00 A4 00 08"), nil, iso7816.SW_ERR_FUNC_NOT_SUPPORTED},
		{"Next occurrence", tlv.Hex("00 A4 04 02 09 E8 07 04 00 7F 00 07 03 02"), nil, iso7816.SW_ERR_FUNC_NOT_SUPPORTED},
		{"RFU bits in P2", tlv.Hex("00 A4 00 1C 02 3F 00"), nil, iso7816.SW_ERR_INCORRECT_PARAMS_P1P2},
	})
}

func TestFileManagement_ReadBinary(t *testing.T) {
	p, _ := newCard(t)

	run(t, p, []exchange{
		{"No current EF", tlv.Hex("00 B0 00 00 00"), nil, iso7816.SW_ERR_CMD_NOT_ALLOWED_NO_EF},
		{"By SFI", tlv.Hex("00 B0 9C 00 00"), tlv.Hex("31 00"), iso7816.SW_NO_ERROR},
		{"SFI made the EF current", tlv.Hex("00 B0 00 01 00"), tlv.Hex("00"), iso7816.SW_NO_ERROR},
		{"Le shorter than content", tlv.Hex("00 B0 00 00 01"), tlv.Hex("31"), iso7816.SW_NO_ERROR},
		{"Offset at the end", tlv.Hex("00 B0 00 02 00"), []byte{}, iso7816.SW_WARN_EOF_REACHED},
		{"Offset at the end by SFI", tlv.Hex("00 B0 9C 02 00"), []byte{}, iso7816.SW_WARN_EOF_REACHED},
		{"Offset past the end", tlv.Hex("00 B0 00 03 00"), nil, iso7816.SW_ERR_WRONG_P1P2},
		{"Unknown SFI", tlv.Hex("00 B0 85 00 00"), nil, iso7816.SW_ERR_FILE_NOT_FOUND},
		{"SFI of another DF", tlv.Hex("00 B0 81 00 00"), nil, iso7816.SW_ERR_FILE_NOT_FOUND},
		{"Protected EF", tlv.Hex("00 A4 08 0C 04 7F 00 01 01"), nil, iso7816.SW_NO_ERROR},
		{"Without authentication", tlv.Hex("00 B0 00 00 00"), nil, iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT},
	})
}

func TestFileManagement_UpdateAndErase(t *testing.T) {
	p, _ := newCard(t)

	run(t, p, []exchange{
		{"Select protected EF", tlv.Hex("00 A4 08 0C 04 7F 00 01 01"), nil, iso7816.SW_NO_ERROR},
		{"Update denied", tlv.Hex("00 D6 00 00 01 AA"), nil, iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT},
		{"Update without data", tlv.Hex("00 D6 00 00"), nil, iso7816.SW_ERR_WRONG_LENGTH},
		{"Erase denied", tlv.Hex("00 0E 00 00"), nil, iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT},
		{"Select open EF", tlv.Hex("00 A4 00 0C 02 01 1C"), nil, iso7816.SW_NO_ERROR},
		{"Update without write condition", tlv.Hex("00 D6 00 00 01 AA"), nil, iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT},
	})
}
