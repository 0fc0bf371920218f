package iso7816

import (
	"errors"
	"fmt"
)

// CLIENT & PROTOCOL LOGIC:
// The Client is the terminal side of a card connection. It hides the ISO 7816
// transport behaviors a card may expose to the application layer:
//
// 1. Command chaining:
//    Data longer than MaxShortLc is split into short commands. Every part
//    but the last carries the chaining bit of CLA and must be answered with
//    '9000'.
//
// 2. "61 XX" (Response Available):
//    The card keeps XX bytes back (00 meaning 256 or more). The client issues
//    GET RESPONSE until the card answers with a final status word.
//
// 3. "6C XX" (Wrong Length):
//    The card indicates that the expected length (Le) was incorrect and
//    suggests XX. The client re-sends the original command once with Le = XX.
//
// Send returns a Trace holding every physical exchange of the logical
// request. Trace.Data gathers the response data spread over those exchanges.

// Transmitter abstracts the physical card connection: a PC/SC reader, the
// in-process simulator or a remote one.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// MaxGetResponse bounds the GET RESPONSE rounds of one request.
const MaxGetResponse = 64

// ErrTooManyResponses is returned when the card keeps announcing data.
var ErrTooManyResponses = errors.New("iso7816: too many GET RESPONSE rounds")

// Client manages the high-level communication with the card.
type Client struct {
	Card Transmitter
	// Extended sends long data in one extended length command instead of
	// chaining short ones.
	Extended bool
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Send transmits a logical command and handles chaining, 61XX and 6CXX.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	parts, err := c.split(cmd)
	if err != nil {
		return nil, err
	}

	var trace Trace
	for _, part := range parts[:len(parts)-1] {
		tx, err := c.transmit(part)
		if err != nil {
			return trace, err
		}
		trace = append(trace, tx)
		if tx.Response.Status != SW_NO_ERROR {
			return trace, nil
		}
	}

	last := parts[len(parts)-1]
	tx, err := c.transmit(last)
	if err != nil {
		return trace, err
	}
	trace = append(trace, tx)

	// Case 6CXX: Wrong Length -> Re-issue the last command with the suggested Le
	if tx.Response.Status.SW1() == 0x6C {
		retry := *last
		retry.Ne = int(tx.Response.Status.SW2())
		if retry.Ne == 0 {
			retry.Ne = MaxShortLe
		}
		if tx, err = c.transmit(&retry); err != nil {
			return trace, err
		}
		trace = append(trace, tx)
	}

	return c.collect(trace, last.Class)
}

// collect issues GET RESPONSE while the card announces data with 61XX.
func (c *Client) collect(trace Trace, cla Class) (Trace, error) {
	// ISO 7816-4: GET RESPONSE uses the logical channel of the command.
	cla.IsChained = false
	ins, _ := NewInstruction(INS_GET_RESPONSE)

	for rounds := 0; trace.Last().Response.Status.SW1() == 0x61; rounds++ {
		if rounds == MaxGetResponse {
			return trace, ErrTooManyResponses
		}

		ne := int(trace.Last().Response.Status.SW2())
		if ne == 0 {
			ne = MaxShortLe
		}
		tx, err := c.transmit(NewCommandAPDU(cla, ins, 0x00, 0x00, nil, ne))
		if err != nil {
			return trace, err
		}
		trace = append(trace, tx)
	}
	return trace, nil
}

// split cuts long data into chained short commands. The last part keeps the
// Le of cmd.
func (c *Client) split(cmd *CommandAPDU) ([]*CommandAPDU, error) {
	if c.Extended || len(cmd.Data) <= MaxShortLc {
		return []*CommandAPDU{cmd}, nil
	}
	if cmd.Class.IsProprietary {
		return nil, fmt.Errorf("cannot chain %d bytes under proprietary class %02X", len(cmd.Data), cmd.Class.Raw)
	}

	var parts []*CommandAPDU
	for data := cmd.Data; len(data) > 0; {
		n := min(len(data), MaxShortLc)
		part := NewCommandAPDU(cmd.Class, cmd.Instruction, cmd.P1, cmd.P2, data[:n], 0)
		data = data[n:]
		if len(data) > 0 {
			part.Class.IsChained = true
		} else {
			part.Ne = min(cmd.Ne, MaxShortLe)
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func (c *Client) transmit(cmd *CommandAPDU) (Transaction, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return Transaction{}, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Card.Transmit(raw)
	if err != nil {
		return Transaction{}, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{Command: cmd, Response: resp}, nil
}
