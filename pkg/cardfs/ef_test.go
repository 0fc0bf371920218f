package cardfs

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gregLibert/eid-sim/pkg/secstatus"
)

const kindTA secstatus.Kind = "ta"

func newStatus(kinds ...secstatus.Kind) *secstatus.Status {
	st := secstatus.New()
	for _, k := range kinds {
		st.Apply(secstatus.Update{Installs: []secstatus.Install{
			{Context: secstatus.Application, Mechanism: secstatus.NewMarker(k)},
		}})
	}
	return st
}

func mustEF(t *testing.T, content []byte, access Access) *ElementaryFile {
	t.Helper()
	ef, err := NewEF(FileID{0x01, 0x1C}, 0x1C, content, access)
	if err != nil {
		t.Fatalf("NewEF failed: %v", err)
	}
	return ef
}

func TestRead_ConditionsAreOred(t *testing.T) {
	content := []byte{0x31, 0x00}

	tests := []struct {
		name    string
		conds   []secstatus.Condition
		st      *secstatus.Status
		wantErr error
	}{
		{"Only second satisfiable", []secstatus.Condition{secstatus.Never, secstatus.Require(kindTA)}, newStatus(kindTA), nil},
		{"None satisfiable", []secstatus.Condition{secstatus.Never, secstatus.Require(kindTA)}, newStatus(), ErrAccessDenied},
		{"Empty list denies", nil, newStatus(kindTA), ErrAccessDenied},
		{"Always", []secstatus.Condition{secstatus.Always}, newStatus(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ef := mustEF(t, content, Access{Read: tt.conds})
			got, err := ef.Read(tt.st)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Read() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && !bytes.Equal(got, content) {
				t.Errorf("Read() = %X, want %X", got, content)
			}
		})
	}
}

func TestRead_OnlyApplicationContext(t *testing.T) {
	st := secstatus.New()
	st.Apply(secstatus.Update{Installs: []secstatus.Install{
		{Context: secstatus.Global, Mechanism: secstatus.NewMarker(kindTA)},
	}})

	ef := mustEF(t, []byte{0x01}, Access{Read: []secstatus.Condition{secstatus.Require(kindTA)}})
	if _, err := ef.Read(st); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Mechanisms outside APPLICATION must not grant access, got %v", err)
	}
}

func TestRead_ReturnsCopy(t *testing.T) {
	ef := mustEF(t, []byte{0x01, 0x02}, Access{Read: []secstatus.Condition{secstatus.Always}})

	first, _ := ef.Read(newStatus())
	first[0] = 0xFF

	second, _ := ef.Read(newStatus())
	if second[0] != 0x01 {
		t.Error("Read() must not expose the file content")
	}
}

func TestNewEF_CopiesContent(t *testing.T) {
	content := []byte{0x01}
	ef := mustEF(t, content, Access{Read: []secstatus.Condition{secstatus.Always}})
	content[0] = 0xFF

	got, _ := ef.Read(newStatus())
	if got[0] != 0x01 {
		t.Error("NewEF must copy the initial content")
	}

	if _, err := NewEF(FileID{0x01, 0x01}, 31, nil, Access{}); err == nil {
		t.Error("SFI 31 must be rejected")
	}
}

func TestWrite(t *testing.T) {
	open := Access{
		Read:  []secstatus.Condition{secstatus.Always},
		Write: []secstatus.Condition{secstatus.Require(kindTA)},
	}

	tests := []struct {
		name    string
		st      *secstatus.Status
		offset  int
		data    []byte
		want    []byte
		wantErr error
	}{
		{"In place", newStatus(kindTA), 1, []byte{0xAA, 0xBB}, []byte{0x00, 0xAA, 0xBB, 0x00}, nil},
		{"Up to the end", newStatus(kindTA), 2, []byte{0xAA, 0xBB}, []byte{0x00, 0x00, 0xAA, 0xBB}, nil},
		{"Denied", newStatus(), 0, []byte{0xAA}, []byte{0x00, 0x00, 0x00, 0x00}, ErrAccessDenied},
		{"Past the end", newStatus(kindTA), 3, []byte{0xAA, 0xBB}, []byte{0x00, 0x00, 0x00, 0x00}, ErrOutOfRange},
		{"Negative offset", newStatus(kindTA), -1, []byte{0xAA}, []byte{0x00, 0x00, 0x00, 0x00}, ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ef := mustEF(t, make([]byte, 4), open)
			err := ef.Write(tt.st, tt.offset, tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Write() error = %v, want %v", err, tt.wantErr)
			}
			got, _ := ef.Read(tt.st)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("content = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestErase(t *testing.T) {
	access := Access{
		Read:  []secstatus.Condition{secstatus.Always},
		Erase: []secstatus.Condition{secstatus.Always},
	}
	ef := mustEF(t, []byte{0x01, 0x02, 0x03}, access)

	if err := ef.Erase(newStatus(), 1); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	got, _ := ef.Read(newStatus())
	if !bytes.Equal(got, []byte{0x01, 0x00, 0x00}) {
		t.Errorf("content after erase = %X", got)
	}

	if err := ef.Erase(newStatus(), 4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Erase past the end error = %v", err)
	}

	locked := mustEF(t, []byte{0x01}, Access{})
	if err := locked.Erase(newStatus(), 0); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Erase without conditions error = %v", err)
	}
}
