package apdumatch

import (
	"testing"

	"github.com/gregLibert/eid-sim/pkg/iso7816"
)

func TestSet_Match(t *testing.T) {
	selectFile := &Specification{ID: "select", Initial: true, INS: Is(iso7816.INS_SELECT)}
	readBinary := &Specification{ID: "read", INS: Is(iso7816.INS_READ_BINARY)}
	anyCommand := &Specification{ID: "any"}

	set := Set{selectFile, readBinary, anyCommand}

	tests := []struct {
		hex  string
		want *Specification
	}{
		{"00 A4 02 0C 02 011C", selectFile},
		{"00 B0 9C 00 00", readBinary},
		{"00 22 81 B6", anyCommand},
	}

	for _, tt := range tests {
		got, ok := set.Match(mustParse(t, tt.hex, nil))
		if !ok || got != tt.want {
			t.Errorf("Match(%s) = %v, want %s", tt.hex, got, tt.want)
		}
	}

	if (Set{selectFile}).Matches(mustParse(t, "00 B0 00 00", nil)) {
		t.Error("Set without a matching entry must not match")
	}
	if (Set{}).Matches(mustParse(t, "00 B0 00 00", nil)) {
		t.Error("Empty set must not match")
	}

	initial := set.Initial()
	if len(initial) != 1 || initial[0] != selectFile {
		t.Errorf("Initial() = %v", initial)
	}
}
