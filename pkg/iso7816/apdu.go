package iso7816

import (
	"bytes"
	"errors"
	"fmt"
)

// APDU (Application Protocol Data Unit) structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU (C-APDU):
// A command consists of a mandatory Header (4 bytes) and an optional Body.
//
// 1. Header:
//   - CLA (Class): Security, Chaining, Logical Channel.
//   - INS (Instruction): The specific command to execute.
//   - P1, P2 (Parameters): Command modifiers.
//
// 2. Body:
//   - Lc (Length Command): Number of bytes in the data field.
//   - Data: The command payload.
//   - Le (Length Expected): Maximum number of bytes expected in the response.
//
// ENCODING CASES (ISO 7816-3):
// - Case 1: No Data, No Response (Header only).
// - Case 2: No Data, Response Expected (Header + Le).
// - Case 3: Data Present, No Response (Header + Lc + Data).
// - Case 4: Data Present, Response Expected (Header + Lc + Data + Le).
//
// LENGTH MODES:
//   - Short Length: Lc/Le encoded on 1 byte (Max 255/256).
//   - Extended Length: Lc/Le encoded on multiple bytes (Max 65535/65536).
//     Extended mode is triggered if Lc > 255 or Le > 256.
//
// RESPONSE APDU (R-APDU):
// A response sent by the card consists of an optional Body and a mandatory Trailer.
//
// 1. Body (Data Field):
//   - Variable length sequence of bytes containing the response data.
//
// 2. Trailer (Status Word):
//   - SW1 (1 byte): Command processing status (High byte).
//   - SW2 (1 byte): Command processing qualification (Low byte).
//   - Example: 0x9000 indicates success.
//
// TRANSACTION:
// A logical exchange consisting of sending one Command APDU and receiving one Response APDU.

// APDU Limits and Constants according to ISO 7816-3.
const (
	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode (1 byte).
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) encodable in Short Length mode.
	// In Short mode, 0x00 encodes 256.
	MaxShortLe = 256

	// MaxExtendedLc is the theoretical limit for Lc in Extended mode (16-bit unsigned).
	MaxExtendedLc = 65535

	// MaxExtendedLe is the maximum Ne encodable in Extended Length mode.
	// In Extended mode, 0x0000 encodes 65536.
	MaxExtendedLe = 65536

	// MaxAPDUBufferSize defines a safe buffer limit for Extended APDUs.
	// Calculation: Header(4) + ExtLc(3) + MaxData(65535) + ExtLe(2) + Safety Margin(1).
	MaxAPDUBufferSize = 4 + 3 + MaxExtendedLc + 2 + 1

	// MaxPredecessorChain bounds the number of links (the command itself
	// included) reachable through Chain.
	MaxPredecessorChain = 16
)

// Parsing errors returned by ParseCommandAPDU.
var (
	ErrMalformedAPDU      = errors.New("iso7816: malformed command APDU")
	ErrInvalidClass       = errors.New("iso7816: invalid class byte")
	ErrInvalidInstruction = errors.New("iso7816: invalid instruction byte")
)

// ISOCase is the ISO 7816-3 command case (1 to 4).
type ISOCase int

const (
	Case1 ISOCase = 1 // No data, no response
	Case2 ISOCase = 2 // Response expected
	Case3 ISOCase = 3 // Data present
	Case4 ISOCase = 4 // Data present, response expected
)

// Format tells whether the CLA byte follows the interindustry coding.
type Format int

const (
	FormatInterindustry Format = iota
	FormatProprietary
)

func (f Format) String() string {
	if f == FormatProprietary {
		return "Proprietary"
	}
	return "Interindustry"
}

// CommandAPDU represents a command sent to the card.
//
// A command received by the card is built by ParseCommandAPDU and is not
// modified afterwards: it may be shared by the matcher, the dispatcher and the
// next command of a chain through its predecessor link.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)

	extended    bool
	predecessor *CommandAPDU
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// ParseCommandAPDU decodes a raw C-APDU as received by the card.
//
// The input is copied. predecessor, when not nil, is the previously received
// command of a chain; links beyond MaxPredecessorChain are dropped.
func ParseCommandAPDU(raw []byte, predecessor *CommandAPDU) (*CommandAPDU, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: %d bytes, header needs 4", ErrMalformedAPDU, len(raw))
	}

	cla, err := NewClass(raw[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClass, err)
	}
	ins, err := NewInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}

	c := &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          raw[2],
		P2:          raw[3],
		predecessor: trimChain(predecessor, MaxPredecessorChain-1),
	}

	if err := c.parseBody(raw[4:]); err != nil {
		return nil, err
	}
	return c, nil
}

// parseBody decodes Lc, data and Le following ISO 7816-3 clause 12.1.3.
func (c *CommandAPDU) parseBody(body []byte) error {
	n := len(body)

	switch {
	case n == 0:
		// Case 1
		return nil

	case n == 1:
		// Case 2 short
		c.Ne = decodeShortLe(body[0])
		return nil

	case body[0] != 0x00:
		lc := int(body[0])
		switch n {
		case 1 + lc:
			// Case 3 short
		case 2 + lc:
			// Case 4 short
			c.Ne = decodeShortLe(body[n-1])
		default:
			return fmt.Errorf("%w: short Lc %d does not match body of %d bytes", ErrMalformedAPDU, lc, n)
		}
		c.Data = append([]byte(nil), body[1:1+lc]...)
		return nil

	case n == 3:
		// Case 2 extended
		c.extended = true
		c.Ne = decodeExtendedLe(body[1], body[2])
		return nil

	case n > 3:
		lc := int(body[1])<<8 | int(body[2])
		if lc == 0 {
			return fmt.Errorf("%w: extended Lc of zero", ErrMalformedAPDU)
		}
		switch n {
		case 3 + lc:
			// Case 3 extended
		case 5 + lc:
			// Case 4 extended
			c.Ne = decodeExtendedLe(body[n-2], body[n-1])
		default:
			return fmt.Errorf("%w: extended Lc %d does not match body of %d bytes", ErrMalformedAPDU, lc, n)
		}
		c.extended = true
		c.Data = append([]byte(nil), body[3:3+lc]...)
		return nil
	}

	return fmt.Errorf("%w: body of %d bytes", ErrMalformedAPDU, n)
}

func decodeShortLe(b byte) int {
	if b == 0 {
		return MaxShortLe
	}
	return int(b)
}

func decodeExtendedLe(hi, lo byte) int {
	le := int(hi)<<8 | int(lo)
	if le == 0 {
		return MaxExtendedLe
	}
	return le
}

// trimChain returns c with at most n links, copying the links it keeps when
// the original chain is longer.
func trimChain(c *CommandAPDU, n int) *CommandAPDU {
	if c == nil || n <= 0 {
		return nil
	}
	if c.chainLen() <= n {
		return c
	}

	cp := *c
	cp.predecessor = trimChain(c.predecessor, n-1)
	return &cp
}

func (c *CommandAPDU) chainLen() int {
	n := 0
	for link := c; link != nil; link = link.predecessor {
		n++
	}
	return n
}

// Case returns the ISO case derived from the presence of data and Ne.
func (c *CommandAPDU) Case() ISOCase {
	switch {
	case len(c.Data) > 0 && c.Ne > 0:
		return Case4
	case len(c.Data) > 0:
		return Case3
	case c.Ne > 0:
		return Case2
	default:
		return Case1
	}
}

// IsExtendedLength reports whether the command was received in extended
// length form, or needs it to be encoded.
func (c *CommandAPDU) IsExtendedLength() bool {
	return c.extended || len(c.Data) > MaxShortLc || c.Ne > MaxShortLe
}

// Format returns the CLA coding of the command.
func (c *CommandAPDU) Format() Format {
	if c.Class.IsProprietary {
		return FormatProprietary
	}
	return FormatInterindustry
}

// IsInterindustry reports whether chaining, secure messaging and logical
// channel can be read from the CLA byte.
func (c *CommandAPDU) IsInterindustry() bool {
	return c.Format() == FormatInterindustry
}

// Predecessor returns the previous command of the chain, or nil.
func (c *CommandAPDU) Predecessor() *CommandAPDU {
	return c.predecessor
}

// Chain returns the command followed by its predecessors, most recent first.
func (c *CommandAPDU) Chain() []*CommandAPDU {
	var links []*CommandAPDU
	for link := c; link != nil && len(links) < MaxPredecessorChain; link = link.predecessor {
		links = append(links, link)
	}
	return links
}

// Bytes encodes the CommandAPDU into its byte representation (C-APDU).
// It automatically handles the selection between Short and Extended encoding
// based on the length of Data (Nc) and the expected response length (Ne).
func (c *CommandAPDU) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	// 1. Encode Header
	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	nc := len(c.Data)
	ne := c.Ne

	// Determine encoding mode
	isExtended := c.IsExtendedLength()

	// 2. Encode Lc Field & Data Field
	if nc > 0 {
		if !isExtended {
			// Case 3/4 Short: Lc (1 byte) + Data
			buf.WriteByte(byte(nc))
		} else {
			// Case 3/4 Extended: 00 + Lc (2 bytes) + Data
			buf.WriteByte(0x00)
			buf.WriteByte(byte(nc >> 8))
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	// 3. Encode Le Field
	if ne > 0 {
		if !isExtended {
			// Case 2/4 Short: Le (1 byte)
			if ne == MaxShortLe {
				buf.WriteByte(0x00) // 0x00 represents 256
			} else {
				buf.WriteByte(byte(ne))
			}
		} else {
			// Case 2/4 Extended
			// If Lc was absent (Case 2 Extended), we need a leading 00 to distinguish Le from Lc.
			if nc == 0 {
				buf.WriteByte(0x00)
			}

			if ne == MaxExtendedLe {
				// 0x0000 represents 65536
				buf.WriteByte(0x00)
				buf.WriteByte(0x00)
			} else {
				// Le (2 bytes Big Endian)
				buf.WriteByte(byte(ne >> 8))
				buf.WriteByte(byte(ne))
			}
		}
	}

	return buf.Bytes(), nil
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Case %d | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, c.Case(), len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// NewResponseAPDU builds a response from its data field and status word.
func NewResponseAPDU(data []byte, sw StatusWord) *ResponseAPDU {
	return &ResponseAPDU{Data: data, Status: sw}
}

// Bytes encodes the response as sent by the card: data followed by SW1 SW2.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, r.Status.Bytes()...)
}

// ParseResponseAPDU parses raw bytes received from the card into a ResponseAPDU.
// The input must contain at least 2 bytes (SW1, SW2).
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	indexSW1 := len(raw) - 2
	data := raw[:indexSW1]
	sw1 := raw[indexSW1]
	sw2 := raw[indexSW1+1]

	return &ResponseAPDU{
		Data:   data,
		Status: NewStatusWord(sw1, sw2),
	}, nil
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
