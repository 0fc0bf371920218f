package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/eid-sim/pkg/tlv"
)

// TRACE REPORT:
// Describe renders a trace the way an operator reads it: every physical
// exchange with its decoded header and status, then the payload gathered
// over the exchanges (see Trace.Data). A SELECT payload is interpreted as
// FCI (see ParseSelectData); any other payload is dumped as a TLV tree when
// it decodes as one.

// Describe generates a human-readable report of the trace.
func (t Trace) Describe() string {
	var sb strings.Builder

	for i, tx := range t {
		cmd := tx.Command
		sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, commandTitle(cmd)))
		sb.WriteString(fmt.Sprintf("    + Header:  CLA %02X | P1 %02X | P2 %02X | Case %d\n",
			cmd.Class.Raw, cmd.P1, cmd.P2, cmd.Case()))
		if len(cmd.Data) > 0 {
			sb.WriteString(fmt.Sprintf("    + Data:    %X\n", cmd.Data))
		}
		if tx.Response == nil {
			sb.WriteString("    + Result:  no response\n")
			continue
		}

		marker := "[OK]"
		if !tx.Response.Status.IsSuccess() {
			marker = "[!!]"
		}
		sb.WriteString(fmt.Sprintf("    + Result:  [%04X] %s %s\n",
			uint16(tx.Response.Status), marker, tx.Response.Status.Verbose()))
	}

	payload := t.Data()
	if len(payload) == 0 {
		return sb.String()
	}

	sb.WriteString("\n[=] PAYLOAD:\n")
	sb.WriteString(fmt.Sprintf("    Dump: %X\n", payload))

	if t[0].Command.Instruction.Raw == INS_SELECT {
		fci, err := ParseSelectData(payload, t[0].Command.P2)
		if err == nil && fci != nil {
			sb.WriteString(fci.Describe())
			sb.WriteString("\n")
			return sb.String()
		}
	}

	if nodes, err := tlv.DecodeBytes(payload); err == nil {
		for _, line := range strings.Split(tlv.Describe(nodes), "\n") {
			sb.WriteString("    " + line + "\n")
		}
	}
	return sb.String()
}

func commandTitle(cmd *CommandAPDU) string {
	name := strings.TrimPrefix(cmd.Instruction.Raw.String(), "INS_")
	return strings.ReplaceAll(name, "_", " ")
}
