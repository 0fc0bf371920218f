package tlv

import (
	"bytes"
	"errors"
	"fmt"
)

// BER LENGTH ENCODING:
//   - Short form: one byte 0x00-0x7F holding the length itself.
//   - Long form:  0x81-0x84 followed by 1 to 4 big-endian length bytes.
//   - 0x80 (indefinite length) is not used by ISO 7816 and is rejected.
//
// The constructed bit of the first tag byte alone decides whether the value
// field is decoded as a sequence of nested objects. No tag registry is
// consulted.

// Decoding errors. They are always returned wrapped with the offending offset.
var (
	ErrOutOfBounds      = errors.New("tlv: window out of bounds")
	ErrEmptyRange       = errors.New("tlv: empty window")
	ErrTruncatedTag     = errors.New("tlv: truncated tag")
	ErrUnsupportedTag   = errors.New("tlv: unsupported tag")
	ErrMalformedLength  = errors.New("tlv: malformed length")
	ErrIndefiniteLength = errors.New("tlv: indefinite length not supported")
	ErrNestingTooDeep   = errors.New("tlv: nesting too deep")
)

// MaxDepth bounds the nesting of constructed objects accepted by the decoder.
const MaxDepth = 32

// Node is a decoded TLV data object.
// Primitive nodes carry Value, constructed nodes carry Children.
type Node struct {
	Tag      Tag
	Value    []byte
	Children []*Node
}

// NewPrimitive creates a primitive node. The value is copied.
func NewPrimitive(tag Tag, value []byte) *Node {
	return &Node{Tag: tag, Value: append([]byte(nil), value...)}
}

// NewConstructed creates a constructed node holding children in order.
func NewConstructed(tag Tag, children ...*Node) *Node {
	return &Node{Tag: tag, Children: children}
}

// IsConstructed reports whether the node was built from a constructed tag.
func (n *Node) IsConstructed() bool {
	return n.Tag.IsConstructed()
}

// ValueField returns the encoded value field: the raw value of a primitive
// node or the concatenated encoding of the children of a constructed one.
func (n *Node) ValueField() []byte {
	if !n.IsConstructed() {
		return append([]byte(nil), n.Value...)
	}

	var buf bytes.Buffer
	for _, c := range n.Children {
		buf.Write(c.Bytes())
	}
	return buf.Bytes()
}

// Bytes returns the BER encoding of the node with minimal length fields.
func (n *Node) Bytes() []byte {
	value := n.ValueField()

	out := make([]byte, 0, n.Tag.Len()+5+len(value))
	out = append(out, n.Tag.Bytes()...)
	out = append(out, encodeLength(len(value))...)
	return append(out, value...)
}

// Len returns the length of the full encoding (tag, length and value).
func (n *Node) Len() int {
	return len(n.Bytes())
}

// Child returns the first direct child carrying tag, or nil.
func (n *Node) Child(tag Tag) *Node {
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// Find follows path through the children of n and returns the first match.
func (n *Node) Find(path Path) *Node {
	return find(n.Children, path)
}

func (n *Node) String() string {
	return fmt.Sprintf("%X", n.Bytes())
}

// Encode returns the BER encoding of node.
func Encode(node *Node) []byte {
	return node.Bytes()
}

// EncodeAll returns the concatenated encoding of a TLV forest.
func EncodeAll(nodes []*Node) []byte {
	var buf bytes.Buffer
	for _, n := range nodes {
		buf.Write(n.Bytes())
	}
	return buf.Bytes()
}

// Decode decodes the TLV object starting at data[start]. The object must fit
// into the window [start, end); bytes following it inside the window are not
// consumed.
func Decode(data []byte, start, end int) (*Node, error) {
	if err := checkWindow(data, start, end); err != nil {
		return nil, err
	}
	if start == end {
		return nil, fmt.Errorf("%w: offset %d", ErrEmptyRange, start)
	}

	node, _, err := decodeNode(data, start, end, 0)
	return node, err
}

// DecodeAll decodes the sequence of TLV objects that exactly spans the window
// [start, end). An empty window yields an empty sequence.
func DecodeAll(data []byte, start, end int) ([]*Node, error) {
	if err := checkWindow(data, start, end); err != nil {
		return nil, err
	}
	return decodeSequence(data, start, end, 0)
}

// DecodeBytes decodes a TLV forest spanning the whole of data.
func DecodeBytes(data []byte) ([]*Node, error) {
	return DecodeAll(data, 0, len(data))
}

func checkWindow(data []byte, start, end int) error {
	switch {
	case start < 0:
		return fmt.Errorf("%w: start %d is negative", ErrOutOfBounds, start)
	case end < start:
		return fmt.Errorf("%w: end %d before start %d", ErrOutOfBounds, end, start)
	case end > len(data):
		return fmt.Errorf("%w: end %d beyond data length %d", ErrOutOfBounds, end, len(data))
	}
	return nil
}

func decodeSequence(data []byte, start, end, depth int) ([]*Node, error) {
	var nodes []*Node
	for off := start; off < end; {
		node, next, err := decodeNode(data, off, end, depth)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
		off = next
	}
	return nodes, nil
}

func decodeNode(data []byte, off, end, depth int) (*Node, int, error) {
	if depth > MaxDepth {
		return nil, 0, fmt.Errorf("%w: more than %d levels at offset %d", ErrNestingTooDeep, MaxDepth, off)
	}

	tag, tagLen, err := ParseTag(data[off:end])
	if err != nil {
		return nil, 0, fmt.Errorf("offset %d: %w", off, err)
	}

	length, lenLen, err := parseLength(data[off+tagLen : end])
	if err != nil {
		return nil, 0, fmt.Errorf("offset %d: %w", off+tagLen, err)
	}

	valueStart := off + tagLen + lenLen
	if length > end-valueStart {
		return nil, 0, fmt.Errorf("%w: tag %s declares %d bytes, only %d available at offset %d",
			ErrMalformedLength, tag, length, end-valueStart, valueStart)
	}
	valueEnd := valueStart + length

	node := &Node{Tag: tag}
	if tag.IsConstructed() {
		node.Children, err = decodeSequence(data, valueStart, valueEnd, depth+1)
		if err != nil {
			return nil, 0, err
		}
	} else {
		node.Value = append([]byte(nil), data[valueStart:valueEnd]...)
	}

	return node, valueEnd, nil
}

func parseLength(data []byte) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: missing length byte", ErrMalformedLength)
	}

	first := data[0]
	switch {
	case first < 0x80:
		return int(first), 1, nil
	case first == 0x80:
		return 0, 0, ErrIndefiniteLength
	case first > 0x84:
		return 0, 0, fmt.Errorf("%w: length field of %d bytes", ErrMalformedLength, first&0x7F)
	}

	n := int(first & 0x7F)
	if len(data) < 1+n {
		return 0, 0, fmt.Errorf("%w: length field truncated", ErrMalformedLength)
	}

	var length uint64
	for _, b := range data[1 : 1+n] {
		length = length<<8 | uint64(b)
	}
	if length > uint64(int(^uint(0)>>1)) {
		return 0, 0, fmt.Errorf("%w: length %d overflows", ErrMalformedLength, length)
	}
	return int(length), 1 + n, nil
}

func encodeLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n <= 0xFF:
		return []byte{0x81, byte(n)}
	case n <= 0xFFFF:
		return []byte{0x82, byte(n >> 8), byte(n)}
	case n <= 0xFFFFFF:
		return []byte{0x83, byte(n >> 16), byte(n >> 8), byte(n)}
	default:
		return []byte{0x84, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
}
