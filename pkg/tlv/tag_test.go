package tlv

import (
	"bytes"
	"testing"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		name          string
		data          []byte
		wantTag       Tag
		wantLen       int
		wantClass     Class
		wantNumber    uint32
		isConstructed bool
	}{
		{"Universal OID", Hex("06"), 0x06, 1, ClassUniversal, 6, false},
		{"Application CAR", Hex("42 10"), 0x42, 1, ClassApplication, 2, false},
		{"Context-specific constructed", Hex("A5"), 0xA5, 1, ClassContextSpecific, 5, true},
		{"Certificate body", Hex("7F4E 81"), 0x7F4E, 2, ClassApplication, 78, true},
		{"Profile identifier", Hex("5F29"), 0x5F29, 2, ClassApplication, 41, false},
		{"Three bytes", Hex("9F8101"), 0x9F8101, 3, ClassContextSpecific, 129, false},
		{"Private", Hex("DF01"), 0xDF01, 2, ClassPrivate, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, n, err := ParseTag(tt.data)
			if err != nil {
				t.Fatalf("ParseTag failed: %v", err)
			}
			if tag != tt.wantTag || n != tt.wantLen {
				t.Errorf("ParseTag() = %s/%d, want %s/%d", tag, n, tt.wantTag, tt.wantLen)
			}
			if tag.Class() != tt.wantClass {
				t.Errorf("Class() = %s, want %s", tag.Class(), tt.wantClass)
			}
			if tag.Number() != tt.wantNumber {
				t.Errorf("Number() = %d, want %d", tag.Number(), tt.wantNumber)
			}
			if tag.IsConstructed() != tt.isConstructed {
				t.Errorf("IsConstructed() = %v, want %v", tag.IsConstructed(), tt.isConstructed)
			}
			if !bytes.Equal(tag.Bytes(), tt.data[:n]) {
				t.Errorf("Bytes() = %X, want %X", tag.Bytes(), tt.data[:n])
			}
		})
	}
}

func TestMustTag(t *testing.T) {
	if got := MustTag("5f 20"); got != 0x5F20 {
		t.Errorf("MustTag(5f 20) = %s", got)
	}

	for _, bad := range []string{"ZZ", "5F", "8001"} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("MustTag(%q) should panic", bad)
				}
			}()
			MustTag(bad)
		}()
	}
}
