package tlv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/moov-io/bertlv"
)

func sampleCertificateBody() *Node {
	return NewConstructed(MustTag("7F4E"),
		NewPrimitive(MustTag("5F29"), []byte{0x00}),
		NewPrimitive(MustTag("42"), []byte("DECVCA00001")),
		NewConstructed(MustTag("7F49"),
			NewPrimitive(MustTag("06"), Hex("04007F00070202020203")),
			NewPrimitive(MustTag("86"), bytes.Repeat([]byte{0x04}, 65)),
		),
		NewConstructed(MustTag("65")),
	)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		node *Node
	}{
		{"Primitive short", NewPrimitive(MustTag("80"), []byte{0x01, 0x02})},
		{"Primitive empty", NewPrimitive(MustTag("04"), nil)},
		{"Primitive 200 bytes (81 form)", NewPrimitive(MustTag("53"), make([]byte, 200))},
		{"Primitive 300 bytes (82 form)", NewPrimitive(MustTag("5F37"), make([]byte, 300))},
		{"Three byte tag", NewPrimitive(MustTag("9F8101"), []byte{0xAA})},
		{"Nested constructed", sampleCertificateBody()},
		{"Empty constructed", NewConstructed(MustTag("A0"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := Encode(tt.node)

			got, err := Decode(raw, 0, len(raw))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if diff := cmp.Diff(tt.node, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
			}

			if !bytes.Equal(got.Bytes(), raw) {
				t.Errorf("Re-encoding differs:\nwant %X\ngot  %X", raw, got.Bytes())
			}
		})
	}
}

func TestEncode_MinimalLength(t *testing.T) {
	tests := []struct {
		length int
		want   []byte
	}{
		{0, Hex("00")},
		{127, Hex("7F")},
		{128, Hex("8180")},
		{255, Hex("81FF")},
		{256, Hex("820100")},
		{65535, Hex("82FFFF")},
		{65536, Hex("83010000")},
	}

	for _, tt := range tests {
		got := encodeLength(tt.length)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("encodeLength(%d) = %X, want %X", tt.length, got, tt.want)
		}
	}
}

func TestEncode_MatchesBERTLV(t *testing.T) {
	want, err := bertlv.Encode([]bertlv.TLV{
		{Tag: "62", TLVs: []bertlv.TLV{
			{Tag: "82", Value: []byte{0x01}},
			{Tag: "83", Value: []byte{0x01, 0x1C}},
			{Tag: "80", Value: make([]byte, 130)},
		}},
	})
	if err != nil {
		t.Fatalf("bertlv encode failed: %v", err)
	}

	got := NewConstructed(MustTag("62"),
		NewPrimitive(MustTag("82"), []byte{0x01}),
		NewPrimitive(MustTag("83"), []byte{0x01, 0x1C}),
		NewPrimitive(MustTag("80"), make([]byte, 130)),
	).Bytes()

	if !bytes.Equal(got, want) {
		t.Errorf("Encoding differs from bertlv:\nwant %X\ngot  %X", want, got)
	}
}

func TestDecode_Bounds(t *testing.T) {
	data := Hex("80 01 FF")

	tests := []struct {
		name       string
		start, end int
		wantErr    error
	}{
		{"Negative start", -1, 3, ErrOutOfBounds},
		{"End before start", 2, 1, ErrOutOfBounds},
		{"End beyond data", 0, 4, ErrOutOfBounds},
		{"Empty window", 1, 1, ErrEmptyRange},
		{"Empty window at end", 3, 3, ErrEmptyRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(data, tt.start, tt.end)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode(%d, %d) error = %v, want %v", tt.start, tt.end, err, tt.wantErr)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"Value beyond window", Hex("80 05 0102"), ErrMalformedLength},
		{"Missing length", Hex("80"), ErrMalformedLength},
		{"Long form truncated", Hex("80 82 01"), ErrMalformedLength},
		{"Long form too wide", Hex("80 85 0000000001"), ErrMalformedLength},
		{"Indefinite length", Hex("A0 80 0000"), ErrIndefiniteLength},
		{"Truncated multi-byte tag", Hex("5F"), ErrTruncatedTag},
		{"Truncated tag continuation", Hex("9F 81"), ErrTruncatedTag},
		{"Tag too long", Hex("9F 81 81 81 01 00"), ErrUnsupportedTag},
		{"Child overruns parent", Hex("A0 03 80 05 01"), ErrMalformedLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, 0, len(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_ConstructedBitOnly(t *testing.T) {
	// 0x20 marks the object as constructed, whatever the tag number.
	node, err := Decode(Hex("20 03 80 01 AA"), 0, 5)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(node.Children) != 1 || node.Children[0].Tag != 0x80 {
		t.Errorf("Expected one child 80, got %v", node.Children)
	}

	// Same bytes under a primitive tag stay opaque.
	node, err = Decode(Hex("04 03 80 01 AA"), 0, 5)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if node.Children != nil || !bytes.Equal(node.Value, Hex("8001AA")) {
		t.Errorf("Expected opaque value, got %+v", node)
	}
}

func TestDecode_Window(t *testing.T) {
	data := Hex("FFFF", "80 01 AA", "81 01 BB", "FFFF")

	node, err := Decode(data, 2, 8)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if node.Tag != 0x80 || node.Len() != 3 {
		t.Errorf("Expected first object 80 of 3 bytes, got %s", node)
	}

	if _, err := Decode(data, 2, 4); !errors.Is(err, ErrMalformedLength) {
		t.Errorf("Object cut by the window must fail, got %v", err)
	}
}

func TestDecode_DoesNotAliasInput(t *testing.T) {
	data := Hex("80 02 0102")
	node, err := Decode(data, 0, len(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	data[2] = 0xFF
	if node.Value[0] != 0x01 {
		t.Error("Decoded value must not alias the input buffer")
	}
}

func TestDecode_NestingLimit(t *testing.T) {
	node := NewPrimitive(MustTag("80"), nil)
	for i := 0; i <= MaxDepth+1; i++ {
		node = NewConstructed(MustTag("A0"), node)
	}
	raw := node.Bytes()

	if _, err := Decode(raw, 0, len(raw)); !errors.Is(err, ErrNestingTooDeep) {
		t.Errorf("Expected nesting error, got %v", err)
	}
}

func TestDecodeAll(t *testing.T) {
	data := Hex("80 01 AA", "A1 03 81 01 BB")

	nodes, err := DecodeAll(data, 0, len(data))
	if err != nil {
		t.Fatalf("DecodeAll failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(nodes))
	}
	if !bytes.Equal(EncodeAll(nodes), data) {
		t.Errorf("EncodeAll = %X, want %X", EncodeAll(nodes), data)
	}

	empty, err := DecodeAll(data, 3, 3)
	if err != nil || len(empty) != 0 {
		t.Errorf("Empty window: got %v, %v", empty, err)
	}

	if _, err := DecodeAll(data, 0, 4); !errors.Is(err, ErrMalformedLength) {
		t.Errorf("Trailing partial object must fail, got %v", err)
	}
}

func TestNode_Navigation(t *testing.T) {
	body := sampleCertificateBody()

	if car := body.Child(MustTag("42")); car == nil || string(car.Value) != "DECVCA00001" {
		t.Errorf("Child(42) = %v", car)
	}
	if body.Child(MustTag("5F20")) != nil {
		t.Error("Child(5F20) should be nil")
	}

	oid := body.Find(NewPath("7F49", "06"))
	if oid == nil || !bytes.Equal(oid.Value, Hex("04007F00070202020203")) {
		t.Errorf("Find(7F49/06) = %v", oid)
	}
}
