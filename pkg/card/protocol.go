package card

import (
	"github.com/gregLibert/eid-sim/pkg/apdumatch"
	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/secstatus"
)

// StatusView is the read-only security status handed to protocols. State
// changes are returned in Response.Update and committed by the processor.
type StatusView interface {
	secstatus.Reader
	Lookup(ctx secstatus.Context, kind secstatus.Kind) secstatus.Mechanism
}

// Protocol is a card application protocol (file management, terminal
// authentication, ...).
type Protocol interface {
	Name() string
	// Specifications lists the commands the protocol accepts.
	Specifications() apdumatch.Set
	Process(req *Request) *Response
	// Reset drops any state kept between commands.
	Reset()
}

// Request is a command routed to a protocol.
type Request struct {
	Command *iso7816.CommandAPDU
	// Spec is the specification that matched the command.
	Spec   *apdumatch.Specification
	Status StatusView
}

// Response is the outcome of a command.
type Response struct {
	Data   []byte
	SW     iso7816.StatusWord
	Update secstatus.Update
}

// OK builds a 9000 response.
func OK(data []byte) *Response {
	return &Response{Data: data, SW: iso7816.SW_NO_ERROR}
}

// Fail builds a response without data.
func Fail(sw iso7816.StatusWord) *Response {
	return &Response{SW: sw}
}

// With attaches a security status update to r.
func (r *Response) With(u secstatus.Update) *Response {
	r.Update.Merge(u)
	return r
}

// Bytes encodes the response APDU.
func (r *Response) Bytes() []byte {
	return iso7816.NewResponseAPDU(r.Data, r.SW).Bytes()
}
