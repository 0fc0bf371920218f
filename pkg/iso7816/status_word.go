package iso7816

import (
	"fmt"

	"github.com/gregLibert/eid-sim/pkg/bits"
)

// Some SW ranges carry a value in SW2 instead of naming a fixed condition:
//
//	61XX  XX more response bytes wait for GET RESPONSE (00 means 256 or more)
//	6CXX  wrong Le, XX is the length the card expects
//	62XX  warning triggered by the card, XX in 02..80 counts the bytes to query
//	64XX  same as 62XX but the command was aborted
//	63CX  counter in the low nibble, usually the remaining retries

// StatusWord is the SW1-SW2 trailer of a response APDU.
type StatusWord uint16

//go:generate stringer -type=StatusWord -output=status_word_string.go

// NewStatusWord joins SW1 and SW2.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

func (sw StatusWord) SW1() byte { return byte(sw >> 8) }
func (sw StatusWord) SW2() byte { return byte(sw) }

// Bytes returns the trailer as sent on the wire.
func (sw StatusWord) Bytes() []byte {
	return []byte{sw.SW1(), sw.SW2()}
}

// IsTriggeringByCard reports a 62XX or 64XX trailer whose SW2 counts bytes
// the card wants queried.
func (sw StatusWord) IsTriggeringByCard() bool {
	sw1, sw2 := sw.SW1(), sw.SW2()
	return (sw1 == 0x62 || sw1 == 0x64) && sw2 >= 0x02 && sw2 <= 0x80
}

// IsCounter reports a 63CX trailer.
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// IsSuccess is true for 9000 and for 61XX, where the command succeeded and
// more data waits.
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR || sw.SW1() == 0x61
}

func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// Verbose describes the trailer for traces. Valued ranges are spelled out,
// named codes show their constant and anything else falls back to the
// meaning of SW1.
func (sw StatusWord) Verbose() string {
	sw1, sw2 := sw.SW1(), sw.SW2()

	switch {
	case sw.IsTriggeringByCard() && sw1 == 0x64:
		return fmt.Sprintf("Error/Abort (Triggering): Card expects query of %d bytes", sw2)
	case sw.IsTriggeringByCard():
		return fmt.Sprintf("Warning (Triggering): Card expects query of %d bytes", sw2)
	case sw.IsCounter():
		return fmt.Sprintf("Warning: State changed, counter = %d", bits.GetRange(sw2, 4, 1))
	case sw1 == 0x61:
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	case sw1 == 0x6C:
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	}

	if name, ok := _StatusWord_map[sw]; ok {
		return fmt.Sprintf("[%04X] %s", uint16(sw), name)
	}
	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.category())
}

func (sw StatusWord) category() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution Error: NV memory unchanged"
	case 0x65:
		return "Execution Error: NV memory changed"
	case 0x66:
		return "Execution Error: Security issue"
	case 0x68:
		return "Checking Error: Function not supported"
	case 0x69:
		return "Checking Error: Command not allowed"
	case 0x6A:
		return "Checking Error: Wrong parameters"
	default:
		return "Unknown Status"
	}
}

// Status words of ISO/IEC 7816-4 used or reported by the simulator.
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_NO_INFO              StatusWord = 0x6200
	SW_WARN_TRIGGERING_BY_CARD   StatusWord = 0x6202
	SW_WARN_DATA_CORRUPTED       StatusWord = 0x6281
	SW_WARN_EOF_REACHED          StatusWord = 0x6282
	SW_WARN_FILE_DEACTIVATED     StatusWord = 0x6283
	SW_WARN_FCI_BAD_FORMAT       StatusWord = 0x6284
	SW_WARN_TERMINATION_STATE    StatusWord = 0x6285
	SW_WARN_NO_INPUT_FROM_SENSOR StatusWord = 0x6286

	SW_WARN_NV_CHANGED_NO_INFO StatusWord = 0x6300
	SW_WARN_FILE_FILLED        StatusWord = 0x6381
	SW_WARN_COUNTER_0          StatusWord = 0x63C0

	SW_ERR_EXEC_NO_INFO            StatusWord = 0x6400
	SW_ERR_EXEC_IMMEDIATE_RESPONSE StatusWord = 0x6401
	SW_ERR_EXEC_TRIGGERING_BY_CARD StatusWord = 0x6402

	SW_ERR_NV_CHANGED_NO_INFO StatusWord = 0x6500
	SW_ERR_MEMORY_FAILURE     StatusWord = 0x6581
	SW_ERR_SECURITY_ISSUE     StatusWord = 0x6600

	SW_ERR_WRONG_LENGTH              StatusWord = 0x6700
	SW_ERR_CHECKING_NO_INFO          StatusWord = 0x6800
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP  StatusWord = 0x6881
	SW_ERR_SECURE_MESSAGING_NOT_SUPP StatusWord = 0x6882
	SW_ERR_LAST_COMMAND_EXPECTED     StatusWord = 0x6883
	SW_ERR_CHAINING_NOT_SUPP         StatusWord = 0x6884

	SW_ERR_CMD_NOT_ALLOWED_NO_INFO StatusWord = 0x6900
	SW_ERR_CMD_INCOMPATIBLE_FILE   StatusWord = 0x6981
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_REF_DATA_NOT_USABLE     StatusWord = 0x6984
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985
	SW_ERR_CMD_NOT_ALLOWED_NO_EF   StatusWord = 0x6986
	SW_ERR_SM_OBJ_MISSING          StatusWord = 0x6987
	SW_ERR_SM_OBJ_INCORRECT        StatusWord = 0x6988

	SW_ERR_WRONG_PARAMS_NO_INFO   StatusWord = 0x6A00
	SW_ERR_INCORRECT_PARAMS_DATA  StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED     StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND         StatusWord = 0x6A82
	SW_ERR_RECORD_NOT_FOUND       StatusWord = 0x6A83
	SW_ERR_NOT_ENOUGH_MEMORY      StatusWord = 0x6A84
	SW_ERR_NC_INCONSISTENT_TLV    StatusWord = 0x6A85
	SW_ERR_INCORRECT_PARAMS_P1P2  StatusWord = 0x6A86
	SW_ERR_NC_INCONSISTENT_P1P2   StatusWord = 0x6A87
	SW_ERR_REF_DATA_NOT_FOUND     StatusWord = 0x6A88
	SW_ERR_FILE_ALREADY_EXISTS    StatusWord = 0x6A89
	SW_ERR_DF_NAME_ALREADY_EXISTS StatusWord = 0x6A8A

	SW_ERR_WRONG_P1P2        StatusWord = 0x6B00
	SW_ERR_INS_INVALID       StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED StatusWord = 0x6E00
	SW_ERR_UNKNOWN           StatusWord = 0x6F00
)
