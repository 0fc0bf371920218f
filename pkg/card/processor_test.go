package card

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/eid-sim/pkg/apdumatch"
	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/secstatus"
	"github.com/gregLibert/eid-sim/pkg/tlv"
)

// fakeProtocol accepts one instruction and answers with a fixed response.
type fakeProtocol struct {
	name   string
	ins    iso7816.InsCode
	handle func(req *Request) *Response

	requests []*Request
	resets   int
}

func (f *fakeProtocol) Name() string { return f.name }

func (f *fakeProtocol) Specifications() apdumatch.Set {
	return apdumatch.Set{{ID: f.name, INS: apdumatch.Is(f.ins)}}
}

func (f *fakeProtocol) Process(req *Request) *Response {
	f.requests = append(f.requests, req)
	if f.handle != nil {
		return f.handle(req)
	}
	return OK([]byte(f.name))
}

func (f *fakeProtocol) Reset() { f.resets++ }

func TestTransmit_StatusWords(t *testing.T) {
	p := NewProcessor(&fakeProtocol{name: "fm", ins: iso7816.INS_SELECT})

	tests := []struct {
		name string
		raw  []byte
		want []byte
	}{
		{"Handled", tlv.Hex("00 A4 00 0C 00"), append([]byte("fm"), 0x90, 0x00)},
		{"Handled without Le", tlv.Hex("00 A4 00 0C"), tlv.Hex("61 02")},
		{"No protocol", tlv.Hex("00 B0 00 00 00"), tlv.Hex("6D 00")},
		{"Header too short", tlv.Hex("00 A4"), tlv.Hex("67 00")},
		{"Lc mismatch", tlv.Hex("00 A4 00 0C 05 01 02"), tlv.Hex("67 00")},
		{"Reserved CLA", tlv.Hex("FF A4 00 0C"), tlv.Hex("6E 00")},
		{"Reserved INS", tlv.Hex("00 6A 00 0C"), tlv.Hex("6D 00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Transmit(tt.raw)
			if err != nil {
				t.Fatalf("Transmit failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Transmit() = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestTransmit_RegistrationOrder(t *testing.T) {
	first := &fakeProtocol{name: "first", ins: iso7816.INS_SELECT}
	second := &fakeProtocol{name: "second", ins: iso7816.INS_SELECT}
	p := NewProcessor(first)
	p.Register(second)

	got, _ := p.Transmit(tlv.Hex("00 A4 00 0C 00"))
	if !bytes.Equal(got, append([]byte("first"), 0x90, 0x00)) {
		t.Errorf("Transmit() = %X, want the first protocol's answer", got)
	}
	if len(second.requests) != 0 {
		t.Error("The second protocol must not see the command")
	}
	if first.requests[0].Spec.ID != "first" {
		t.Errorf("Request.Spec = %s", first.requests[0].Spec.ID)
	}
}

func TestTransmit_CommitsUpdates(t *testing.T) {
	const kind secstatus.Kind = "pin"

	var seen []bool
	installer := &fakeProtocol{name: "verify", ins: iso7816.INS_VERIFY, handle: func(req *Request) *Response {
		return OK(nil).With(secstatus.Update{Installs: []secstatus.Install{
			{Context: secstatus.Application, Mechanism: secstatus.NewMarker(kind)},
			{Context: secstatus.Command, Mechanism: secstatus.NewMarker("scratch")},
		}})
	}}
	reader := &fakeProtocol{name: "read", ins: iso7816.INS_READ_BINARY, handle: func(req *Request) *Response {
		seen = append(seen,
			req.Status.Lookup(secstatus.Application, kind) != nil,
			req.Status.Lookup(secstatus.Command, "scratch") != nil)
		return OK(nil)
	}}
	p := NewProcessor(installer, reader)

	if _, err := p.Transmit(tlv.Hex("00 20 00 01")); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	if _, err := p.Transmit(tlv.Hex("00 B0 00 00 00")); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}

	// The APPLICATION mechanism survives, the COMMAND one is cleared.
	if diff := cmp.Diff([]bool{true, false}, seen); diff != "" {
		t.Errorf("Visible mechanisms mismatch (-want +got):\n%s", diff)
	}
	if got := p.SecurityStatus(); got != "GLOBAL[] APPLICATION[pin] FILE[] COMMAND[]" {
		t.Errorf("SecurityStatus() = %s", got)
	}
}

func TestTransmit_Chaining(t *testing.T) {
	proto := &fakeProtocol{name: "pso", ins: iso7816.INS_PERFORM_SECURITY_OPERATION}
	p := NewProcessor(proto)

	p.Transmit(tlv.Hex("10 2A 00 BE 02 7F 4E"))
	p.Transmit(tlv.Hex("00 2A 00 BE 02 5F 37"))
	p.Transmit(tlv.Hex("00 2A 00 BE 01 00"))

	if len(proto.requests) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(proto.requests))
	}

	tests := []struct {
		name      string
		req       *Request
		wantChain int
	}{
		{"First of a chain", proto.requests[0], 1},
		{"Last of a chain", proto.requests[1], 2},
		{"After the chain", proto.requests[2], 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.req.Command.Chain()); got != tt.wantChain {
				t.Errorf("len(Chain()) = %d, want %d", got, tt.wantChain)
			}
		})
	}

	if !bytes.Equal(proto.requests[1].Command.Predecessor().Data, tlv.Hex("7F 4E")) {
		t.Error("Predecessor must be the chained command")
	}
}

func TestTransmit_ChainBroken(t *testing.T) {
	tests := []struct {
		name  string
		first []byte
		next  []byte
	}{
		{"Rejected part", tlv.Hex("10 2A 00 BE 02 7F 21"), tlv.Hex("00 2A 00 BE 02 5F 37")},
		{"Unknown instruction", tlv.Hex("10 D6 00 00 02 AA BB"), tlv.Hex("00 2A 00 BE 02 5F 37")},
		{"Other P2", tlv.Hex("10 2A 00 BE 02 7F 4E"), tlv.Hex("00 2A 00 86 02 5F 37")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proto := &fakeProtocol{name: "pso", ins: iso7816.INS_PERFORM_SECURITY_OPERATION, handle: func(req *Request) *Response {
				if bytes.Equal(req.Command.Data, tlv.Hex("7F 21")) {
					return Fail(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
				}
				return OK(nil)
			}}
			p := NewProcessor(proto)

			p.Transmit(tt.first)
			p.Transmit(tt.next)

			last := proto.requests[len(proto.requests)-1]
			if got := len(last.Command.Chain()); got != 1 {
				t.Errorf("len(Chain()) = %d, want 1", got)
			}
		})
	}
}

func TestReset(t *testing.T) {
	proto := &fakeProtocol{name: "verify", ins: iso7816.INS_VERIFY, handle: func(*Request) *Response {
		return OK(nil).With(secstatus.Update{Installs: []secstatus.Install{
			{Context: secstatus.Global, Mechanism: secstatus.NewMarker("pin")},
		}})
	}}
	p := NewProcessor(proto)
	p.Transmit(tlv.Hex("00 20 00 01"))

	p.Reset()

	if proto.resets != 1 {
		t.Errorf("Protocol reset %d times, want 1", proto.resets)
	}
	if got := p.SecurityStatus(); got != "GLOBAL[] APPLICATION[] FILE[] COMMAND[]" {
		t.Errorf("SecurityStatus() after reset = %s", got)
	}
}

func TestProcessor_DrivenByClient(t *testing.T) {
	p := NewProcessor(&fakeProtocol{name: "fm", ins: iso7816.INS_SELECT})
	client := iso7816.NewClient(p)

	trace, err := client.Send(iso7816.SelectMF(iso7816.Class{}))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !trace.IsSuccess() {
		t.Errorf("Trace failed: %s", trace.Describe())
	}
	if string(trace.Last().Response.Data) != "fm" {
		t.Errorf("Response data = %q", trace.Last().Response.Data)
	}
}

func TestTransmit_GetResponse(t *testing.T) {
	content := bytes.Repeat([]byte{0xAB}, 300)
	p := NewProcessor(&fakeProtocol{name: "read", ins: iso7816.INS_READ_BINARY, handle: func(*Request) *Response {
		return OK(content)
	}})

	tests := []struct {
		name     string
		raw      []byte
		wantData int
		wantSW   iso7816.StatusWord
	}{
		{"Nothing pending", tlv.Hex("00 C0 00 00 10"), 0, iso7816.SW_ERR_COND_OF_USE_NOT_SAT},
		{"Le of 256", tlv.Hex("00 B0 00 00 00"), 256, iso7816.NewStatusWord(0x61, 44)},
		{"Partial fetch", tlv.Hex("00 C0 00 00 20"), 32, iso7816.NewStatusWord(0x61, 12)},
		{"Remaining bytes", tlv.Hex("00 C0 00 00 0C"), 12, iso7816.SW_NO_ERROR},
		{"Drained", tlv.Hex("00 C0 00 00 0C"), 0, iso7816.SW_ERR_COND_OF_USE_NOT_SAT},
		{"No Le", tlv.Hex("00 B0 00 00"), 0, iso7816.NewStatusWord(0x61, 0x00)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := p.Transmit(tt.raw)
			resp, err := iso7816.ParseResponseAPDU(raw)
			if err != nil {
				t.Fatalf("ParseResponseAPDU failed: %v", err)
			}
			if len(resp.Data) != tt.wantData || resp.Status != tt.wantSW {
				t.Errorf("Got %d bytes, SW %04X; want %d bytes, SW %04X",
					len(resp.Data), uint16(resp.Status), tt.wantData, uint16(tt.wantSW))
			}
		})
	}
}

func TestTransmit_OtherCommandDropsPendingData(t *testing.T) {
	p := NewProcessor(&fakeProtocol{name: "fm", ins: iso7816.INS_SELECT})

	p.Transmit(tlv.Hex("00 A4 00 0C"))
	p.Transmit(tlv.Hex("00 B0 00 00 00"))

	got, _ := p.Transmit(tlv.Hex("00 C0 00 00 02"))
	if !bytes.Equal(got, tlv.Hex("69 85")) {
		t.Errorf("GET RESPONSE = %X, want 6985", got)
	}
}

func TestProcessor_ClientFetchesKeptBackData(t *testing.T) {
	p := NewProcessor(&fakeProtocol{name: "application", ins: iso7816.INS_SELECT})
	client := iso7816.NewClient(p)

	trace, err := client.Send(iso7816.SelectByAID(iso7816.Class{}, tlv.Hex("A0 00 00 02 47 10 01")))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(trace) != 2 {
		t.Fatalf("Expected SELECT and GET RESPONSE, got %d transactions", len(trace))
	}
	if last := trace.Last(); !last.IsSuccess() || string(last.Response.Data) != "application" {
		t.Errorf("Last transaction = %s", last.Response)
	}
}
