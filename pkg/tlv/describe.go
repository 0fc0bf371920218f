package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Describe renders a TLV forest as an indented tree, one object per line.
// Primitive values are dumped in hex, followed by their ASCII rendering when
// the value is fully printable.
func Describe(nodes []*Node) string {
	var lines []string
	for _, n := range nodes {
		lines = describeNode(lines, n, 0)
	}
	return strings.Join(lines, "\n")
}

func describeNode(lines []string, n *Node, depth int) []string {
	indent := strings.Repeat("  ", depth)

	if n.IsConstructed() {
		lines = append(lines, fmt.Sprintf("%s%s (%d bytes)", indent, n.Tag, len(n.ValueField())))
		for _, c := range n.Children {
			lines = describeNode(lines, c, depth+1)
		}
		return lines
	}

	line := fmt.Sprintf("%s%s: %X", indent, n.Tag, n.Value)
	if len(n.Value) > 0 && MakeSafeASCII(n.Value) == string(n.Value) {
		line += fmt.Sprintf(" (%q)", n.Value)
	}
	return append(lines, line)
}

// WriteStructFields inspects a struct and writes its fields to the strings.Builder.
// It joins lines with newlines but DOES NOT add a trailing newline, preventing artifacts in strings.Split.
// If the builder is not empty, it prepends a newline to separate this block from previous content.
func WriteStructFields(sb *strings.Builder, prefix string, s interface{}) {
	val := reflect.ValueOf(s)

	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}

	typ := val.Type()
	var lines []string

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		switch {
		case isByteSlice(field):
			if line := formatByteSliceField(prefix, field, fieldType); line != "" {
				lines = append(lines, line)
			}
		case field.Type() == packetsType:
			lines = append(lines, formatUnknownField(prefix, field)...)
		case field.Type() == nodePtrType && !field.IsNil():
			node := field.Interface().(*Node)
			lines = append(lines, fmt.Sprintf("    - %s.%s (%s): %X", prefix, fieldType.Name, node.Tag, node.ValueField()))
		}
	}

	if len(lines) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(lines, "\n"))
	}
}

func formatByteSliceField(prefix string, field reflect.Value, fieldType reflect.StructField) string {
	if field.IsNil() || field.Len() == 0 {
		return ""
	}

	name := fieldType.Name
	if tlvTag, _ := parseFieldTag(fieldType.Tag.Get("tlv")); tlvTag != "" {
		name = fmt.Sprintf("%s (%s)", name, tlvTag)
	}

	return fmt.Sprintf("    - %s.%s: %s", prefix, name, formatByteValue(field.Bytes(), fieldType.Tag.Get("fmt")))
}

func formatUnknownField(prefix string, field reflect.Value) []string {
	if field.IsNil() || field.Len() == 0 {
		return nil
	}

	var lines []string
	for _, t := range field.Interface().([]bertlv.TLV) {
		valStr := strings.ToUpper(hex.EncodeToString(rawValue(t)))
		lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %s", prefix, t.Tag, valStr))
	}
	return lines
}

func formatByteValue(data []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, MakeSafeASCII(data))
	case "int":
		var integer int
		for _, b := range data {
			integer = (integer << 8) | int(b)
		}
		return fmt.Sprintf("%X (Dec: %d)", data, integer)
	default:
		return strings.ToUpper(hex.EncodeToString(data))
	}
}

// MakeSafeASCII replaces every non printable byte with a dot.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
