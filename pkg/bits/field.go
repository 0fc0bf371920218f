package bits

import "fmt"

// Field is a fixed-size sequence of bits read from a big-endian byte string.
//
// Bit 0 is the least significant bit of the last byte. When the field is
// shorter than 8×len(bytes), the unused high-order bits of the first byte are
// ignored. This is how TR-03110 stores the relative authorization of a CHAT:
// the two most significant bits carry the role and the remaining 8×n−2 bits
// the access rights.
type Field struct {
	size int
	data []byte
}

// NewField builds a Field of size bits from big-endian data.
func NewField(size int, data []byte) (Field, error) {
	if size < 0 || size > len(data)*8 {
		return Field{}, fmt.Errorf("bit field of %d bits does not fit into %d bytes", size, len(data))
	}

	buf := make([]byte, (size+7)/8)
	copy(buf, data[len(data)-len(buf):])

	if rem := size % 8; rem != 0 {
		buf[0] &= byte(1<<rem) - 1
	}

	return Field{size: size, data: buf}, nil
}

// Len returns the number of bits in the field.
func (f Field) Len() int {
	return f.size
}

// Get reports whether bit i (0 = least significant) is set.
// Out of range indexes read as unset.
func (f Field) Get(i int) bool {
	if i < 0 || i >= f.size {
		return false
	}
	b := f.data[len(f.data)-1-i/8]
	return b&(1<<(i%8)) != 0
}

// Bytes returns a big-endian copy of the field content.
func (f Field) Bytes() []byte {
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}

// String renders the field as a binary string, most significant bit first.
func (f Field) String() string {
	out := make([]byte, f.size)
	for i := 0; i < f.size; i++ {
		if f.Get(f.size - 1 - i) {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return string(out)
}
