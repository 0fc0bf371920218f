// Package tlv implements the BER-TLV (Basic Encoding Rules - Tag-Length-Value)
// encoding used by ISO 7816-4 command data, file control parameters and
// card-verifiable certificates.
//
// Decode, DecodeAll and Encode form the codec used by the card side. Unmarshal
// maps a flat template into a Go structure using struct tags on top of
// github.com/moov-io/bertlv, which is how response templates (FCP, FMD) are
// read back on the terminal side.
package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshaler allows custom types to implement their own TLV parsing logic.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

var (
	nodePtrType   = reflect.TypeOf((*Node)(nil))
	packetsType   = reflect.TypeOf([]bertlv.TLV{})
	unmarshalType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
)

// Unmarshal parses raw BER-TLV data and maps it into a target Go struct.
//
// Supported field kinds: []byte (raw value), string (hex value), unsigned
// integers (big-endian value), nested structs or struct pointers (constructed
// templates), *Node (object re-decoded with this package's codec), slices of
// the above for repeated tags, and any type implementing Unmarshaler.
// A field tagged `tlv:",unknown"` of type []bertlv.TLV collects leftovers.
func Unmarshal(data []byte, target interface{}) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalFromPackets maps pre-decoded bertlv packets to a target struct.
func UnmarshalFromPackets(packets []bertlv.TLV, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("target must point to a struct, got %s", v.Kind())
	}
	t := v.Type()

	consumed := make(map[int]bool)
	var unknown reflect.Value

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		name, opts := parseFieldTag(t.Field(i).Tag.Get("tlv"))

		if opts == "unknown" || t.Field(i).Name == "Unknown" {
			unknown = field
			continue
		}
		if name == "" {
			continue
		}

		for idx, packet := range packets {
			if !strings.EqualFold(packet.Tag, name) {
				continue
			}
			if err := assignPacket(packet, field); err != nil {
				return fmt.Errorf("field %s (tag %s): %w", t.Field(i).Name, name, err)
			}
			consumed[idx] = true
		}
	}

	if unknown.IsValid() && unknown.CanSet() && unknown.Type() == packetsType {
		var leftovers []bertlv.TLV
		for idx, packet := range packets {
			if !consumed[idx] {
				leftovers = append(leftovers, packet)
			}
		}
		if len(leftovers) > 0 {
			unknown.Set(reflect.ValueOf(leftovers))
		}
	}
	return nil
}

func parseFieldTag(tag string) (name, opts string) {
	name, opts, _ = strings.Cut(tag, ",")
	return strings.ToUpper(name), opts
}

// assignPacket stores a packet into field, growing slices for repeated tags.
func assignPacket(packet bertlv.TLV, field reflect.Value) error {
	if field.Kind() == reflect.Slice && !isByteSlice(field) && field.Type() != packetsType {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeInto(packet, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decodeInto(packet, field)
}

func decodeInto(packet bertlv.TLV, field reflect.Value) error {
	if field.CanAddr() && field.Addr().Type().Implements(unmarshalType) {
		return field.Addr().Interface().(Unmarshaler).UnmarshalTLV(rawValue(packet))
	}

	switch {
	case field.Type() == nodePtrType:
		encoded, err := bertlv.Encode([]bertlv.TLV{packet})
		if err != nil {
			return err
		}
		node, err := Decode(encoded, 0, len(encoded))
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(node))
		return nil

	case isByteSlice(field):
		field.SetBytes(rawValue(packet))
		return nil

	case field.Kind() == reflect.String:
		field.SetString(hex.EncodeToString(rawValue(packet)))
		return nil

	case field.Kind() >= reflect.Uint && field.Kind() <= reflect.Uint64:
		value := rawValue(packet)
		if len(value) > int(field.Type().Size()) {
			return fmt.Errorf("%d bytes do not fit into %s", len(value), field.Type())
		}
		var n uint64
		for _, b := range value {
			n = n<<8 | uint64(b)
		}
		field.SetUint(n)
		return nil

	case field.Kind() == reflect.Struct:
		return decodeTemplate(packet, field.Addr().Interface())

	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return decodeTemplate(packet, field.Interface())
	}

	return fmt.Errorf("unsupported field type %s", field.Type())
}

func decodeTemplate(packet bertlv.TLV, target interface{}) error {
	if len(packet.TLVs) > 0 {
		return UnmarshalFromPackets(packet.TLVs, target)
	}
	return Unmarshal(packet.Value, target)
}

// rawValue returns the value field of a packet, re-encoding nested packets
// when bertlv already split a constructed value.
func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}
