package iso7816

import (
	"fmt"

	"github.com/gregLibert/eid-sim/pkg/bits"
)

// CLA layouts (ISO 7816-4, 5.4.1):
//
//	1xxx xxxx  proprietary, nothing else is interpreted
//	000c ssnn  first interindustry: SM on b4-b3, channel 0-3 on b2-b1
//	01sc nnnn  further interindustry: SM on b6, channel 4-19 on b4-b1
//
// In both interindustry layouts b5 (c) flags a chained command that is not
// the last of its chain. 0xFF is invalid.

// SecureMessaging is the SM indication of an interindustry class.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0
	SMProprietary  SecureMessaging = 1
	SMHeaderNoProc SecureMessaging = 2 // ISO SM, header not authenticated
	SMHeaderAuth   SecureMessaging = 3 // ISO SM, header authenticated
)

var smNames = [...]string{"no SM", "proprietary SM", "ISO SM", "ISO SM with header"}

func (sm SecureMessaging) String() string {
	if sm >= 0 && int(sm) < len(smNames) {
		return smNames[sm]
	}
	return fmt.Sprintf("SM %d", int(sm))
}

const (
	maxFirstChannel   = 3
	maxFurtherChannel = 19
)

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// NewClass decodes a CLA byte.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA FF")
	}
	if bits.IsSet(cla, 8) {
		return Class{Raw: cla, IsProprietary: true}, nil
	}

	c := Class{Raw: cla, IsChained: bits.IsSet(cla, 5)}
	if bits.IsSet(cla, 7) {
		c.Channel = maxFirstChannel + 1 + bits.GetRange(cla, 4, 1)
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
	} else {
		c.Channel = bits.GetRange(cla, 2, 1)
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
	}
	return c, nil
}

// NewInterindustryClass builds an interindustry class, picking the first or
// further layout from the channel number.
func NewInterindustryClass(isChained bool, sm SecureMessaging, channel uint8) (Class, error) {
	c := Class{IsChained: isChained, SecureMessaging: sm, Channel: channel}
	raw, err := c.Encode()
	if err != nil {
		return Class{}, err
	}
	c.Raw = raw
	return c, nil
}

// Encode returns the CLA byte of c. Proprietary classes are returned as is.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}

	var cla byte
	if c.IsChained {
		cla = bits.Set(cla, 5)
	}

	switch {
	case c.Channel <= maxFirstChannel:
		if c.SecureMessaging < SMNone || c.SecureMessaging > SMHeaderAuth {
			return 0, fmt.Errorf("invalid SM indication %d", c.SecureMessaging)
		}
		return cla | byte(c.SecureMessaging)<<2 | c.Channel, nil

	case c.Channel <= maxFurtherChannel:
		cla = bits.Set(cla, 7)
		switch c.SecureMessaging {
		case SMNone:
		case SMHeaderNoProc:
			cla = bits.Set(cla, 6)
		default:
			return 0, fmt.Errorf("%s is not available on channel %d", c.SecureMessaging, c.Channel)
		}
		return cla | (c.Channel - maxFirstChannel - 1), nil
	}
	return 0, fmt.Errorf("channel %d out of range (max %d)", c.Channel, maxFurtherChannel)
}

// IsSecured reports whether the CLA announces ISO secure messaging.
func (c Class) IsSecured() bool {
	return !c.IsProprietary && (c.SecureMessaging == SMHeaderNoProc || c.SecureMessaging == SMHeaderAuth)
}

// Verbose describes the class on one line per property.
func (c Class) Verbose() string {
	if c.IsProprietary {
		return fmt.Sprintf("Class: Proprietary (0x%02X)", c.Raw)
	}

	layout := "first interindustry"
	if c.Channel > maxFirstChannel {
		layout = "further interindustry"
	}
	chaining := "last or only command"
	if c.IsChained {
		chaining = "more commands follow"
	}
	return fmt.Sprintf("Range: %s\nChaining: %s\nSecure Messaging: %s\nLogical Channel: %d",
		layout, chaining, c.SecureMessaging, c.Channel)
}
