package cvc

import (
	"encoding/asn1"

	"github.com/gregLibert/eid-sim/pkg/tlv"
)

// Extension is one discretionary data template of the '65' object.
type Extension struct {
	// OID is nil when the template carries no '06' object.
	OID  asn1.ObjectIdentifier
	node *tlv.Node
}

// Bytes returns the encoded template.
func (e Extension) Bytes() []byte {
	return e.node.Bytes()
}

// Data returns the objects following the identifier.
func (e Extension) Data() []*tlv.Node {
	var out []*tlv.Node
	for _, c := range e.node.Children {
		if c.Tag != TagOID {
			out = append(out, c)
		}
	}
	return out
}

// parseExtensions keeps every constructed child, primitive strays are
// skipped.
func parseExtensions(n *tlv.Node) ([]Extension, error) {
	var out []Extension
	for _, c := range n.Children {
		if !c.IsConstructed() {
			continue
		}

		raw := c.Bytes()
		copied, err := tlv.Decode(raw, 0, len(raw))
		if err != nil {
			return nil, err
		}

		ext := Extension{node: copied}
		if id := copied.Child(TagOID); id != nil {
			if ext.OID, err = parseOID(id); err != nil {
				return nil, err
			}
		}
		out = append(out, ext)
	}
	return out, nil
}
