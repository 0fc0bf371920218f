package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex decodes hex fixtures. Parts are concatenated and any white space is
// ignored, so a certificate can be laid out one data object per line:
//
//	Hex("7F4E 81 76",
//	    "5F29 01 00",
//	    "42 0B 4445435643413030303031")
//
// It panics on invalid input.
func Hex(parts ...string) []byte {
	clean := strings.Join(strings.Fields(strings.Join(parts, "")), "")

	data, err := hex.DecodeString(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid input '%s': %v", clean, err))
	}
	return data
}
