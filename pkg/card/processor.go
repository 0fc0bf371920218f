// Package card implements the command processor of the simulated card.
//
// The Processor decodes every command APDU, hands it to the first registered
// protocol whose specifications accept it and commits the security status
// changes returned by that protocol before the next command is accepted.
//
// Response data that does not fit into Ne is kept back and announced with
// '61XX', the terminal fetches it with GET RESPONSE. This is the card side of
// the behavior iso7816.Client handles.
package card

import (
	"errors"
	"sync"
	"time"

	"github.com/google/logger"

	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/metrics"
	"github.com/gregLibert/eid-sim/pkg/secstatus"
)

const getResponseName = "get-response"

// Processor is the card side of the connection. It implements
// iso7816.Transmitter.
type Processor struct {
	mu        sync.Mutex
	status    *secstatus.Status
	protocols []Protocol
	// chain is the last command when it announced a following one.
	chain *iso7816.CommandAPDU
	// pending holds response bytes awaiting GET RESPONSE.
	pending []byte
}

var _ iso7816.Transmitter = (*Processor)(nil)

// NewProcessor creates a processor dispatching to protocols in the given
// order.
func NewProcessor(protocols ...Protocol) *Processor {
	return &Processor{
		status:    secstatus.New(),
		protocols: protocols,
	}
}

// Register appends a protocol. Earlier protocols take precedence.
func (p *Processor) Register(proto Protocol) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.protocols = append(p.protocols, proto)
}

// Protocols returns the registered protocols in dispatch order.
func (p *Processor) Protocols() []Protocol {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Protocol(nil), p.protocols...)
}

// Transmit processes one raw command APDU and returns the raw response.
// Malformed commands are answered with a status word, the error is reserved
// for transport failures and is always nil here.
func (p *Processor) Transmit(raw []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd, err := iso7816.ParseCommandAPDU(raw, p.continuing(raw))
	if err != nil {
		logger.V(1).Infof("card: rejected %X: %v", raw, err)
		p.chain = nil
		p.pending = nil
		return Fail(parseErrorStatus(err)).Bytes(), nil
	}

	resp := p.process(cmd)

	// Only an accepted part keeps the chain open.
	p.chain = nil
	if cmd.Class.IsChained && resp.SW.IsSuccess() {
		p.chain = cmd
	}
	return resp.Bytes(), nil
}

// continuing returns the open chain when raw carries the same INS, P1 and P2
// as its last part. Any other command starts afresh.
func (p *Processor) continuing(raw []byte) *iso7816.CommandAPDU {
	last := p.chain
	if last == nil {
		return nil
	}
	if len(raw) < 4 || raw[1] != byte(last.Instruction.Raw) || raw[2] != last.P1 || raw[3] != last.P2 {
		logger.V(1).Infof("card: chain of %s abandoned", last.Instruction.Raw)
		return nil
	}
	return last
}

// Process runs an already decoded command.
func (p *Processor) Process(cmd *iso7816.CommandAPDU) *Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.process(cmd)
}

func (p *Processor) process(cmd *iso7816.CommandAPDU) *Response {
	start := time.Now()
	p.status.Clear(secstatus.Command)

	if cmd.Instruction.Raw == iso7816.INS_GET_RESPONSE {
		resp := p.getResponse(cmd)
		metrics.RecordCommand(getResponseName, uint16(resp.SW), time.Since(start).Seconds())
		return resp
	}
	p.pending = nil

	resp, name := p.dispatch(cmd)
	resp = p.fit(cmd, resp)

	logger.V(1).Infof("card: %s -> %04X", cmd.Instruction.Raw, uint16(resp.SW))
	metrics.RecordCommand(name, uint16(resp.SW), time.Since(start).Seconds())
	return resp
}

func (p *Processor) dispatch(cmd *iso7816.CommandAPDU) (*Response, string) {
	for _, proto := range p.protocols {
		spec, ok := proto.Specifications().Match(cmd)
		if !ok {
			continue
		}

		logger.V(1).Infof("card: %s handled by %s (%s)", cmd.Instruction.Raw, proto.Name(), spec.ID)
		resp := proto.Process(&Request{Command: cmd, Spec: spec, Status: p.status})
		if resp == nil {
			resp = Fail(iso7816.SW_ERR_UNKNOWN)
		}

		if !resp.Update.IsEmpty() {
			p.status.Apply(resp.Update)
			logger.V(1).Infof("card: security status %s", p.status)
		}
		return resp, proto.Name()
	}

	logger.V(1).Infof("card: no protocol accepts %s", cmd)
	return Fail(iso7816.SW_ERR_INS_INVALID), metrics.ProtocolNone
}

// fit keeps back the response bytes beyond Ne. A command without Le gets
// none of them directly.
func (p *Processor) fit(cmd *iso7816.CommandAPDU, resp *Response) *Response {
	if len(resp.Data) <= cmd.Ne || !resp.SW.IsSuccess() {
		return resp
	}

	p.pending = append([]byte(nil), resp.Data[cmd.Ne:]...)
	return &Response{
		Data:   resp.Data[:cmd.Ne],
		SW:     available(len(p.pending)),
		Update: resp.Update,
	}
}

func (p *Processor) getResponse(cmd *iso7816.CommandAPDU) *Response {
	if len(p.pending) == 0 {
		return Fail(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}

	n := min(cmd.Ne, len(p.pending))
	if n == 0 {
		n = min(iso7816.MaxShortLe, len(p.pending))
	}

	data := p.pending[:n]
	p.pending = p.pending[n:]
	if len(p.pending) == 0 {
		p.pending = nil
		return OK(data)
	}
	return &Response{Data: data, SW: available(len(p.pending))}
}

// available returns '61XX', XX being 00 for 256 bytes or more.
func available(n int) iso7816.StatusWord {
	if n >= iso7816.MaxShortLe {
		n = 0
	}
	return iso7816.NewStatusWord(0x61, byte(n))
}

// Reset simulates a card reset: the security status is emptied and every
// protocol drops its state.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Reset()
	p.chain = nil
	p.pending = nil
	for _, proto := range p.protocols {
		proto.Reset()
	}
	metrics.RecordReset()
	logger.V(1).Info("card: reset")
}

// SecurityStatus returns a description of the installed mechanisms.
func (p *Processor) SecurityStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.String()
}

func parseErrorStatus(err error) iso7816.StatusWord {
	switch {
	case errors.Is(err, iso7816.ErrInvalidClass):
		return iso7816.SW_ERR_CLA_NOT_SUPPORTED
	case errors.Is(err, iso7816.ErrInvalidInstruction):
		return iso7816.SW_ERR_INS_INVALID
	default:
		return iso7816.SW_ERR_WRONG_LENGTH
	}
}
