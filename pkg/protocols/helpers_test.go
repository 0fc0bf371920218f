package protocols

import (
	"bytes"
	"testing"
	"time"

	"github.com/gregLibert/eid-sim/pkg/card"
	"github.com/gregLibert/eid-sim/pkg/cardfs"
	"github.com/gregLibert/eid-sim/pkg/cvc"
	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/secstatus"
	"github.com/gregLibert/eid-sim/pkg/tlv"
)

var (
	aidEID    = tlv.Hex("E8 07 04 00 7F 00 07 03 02")
	cardDate  = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	oidECDSA  = tlv.Hex("04 00 7F 00 07 02 02 02 02 03")
	oidRoleAT = tlv.Hex("04 00 7F 00 07 03 01 02 02")
)

func prim(tag string, value []byte) *tlv.Node {
	return tlv.NewPrimitive(tlv.MustTag(tag), value)
}

// certificate encodes a '7F21' AT certificate valid through 2024. CVCA
// certificates carry the full EC key, the others only their public point.
func certificate(car, chr string, rel []byte) []byte {
	key := tlv.NewConstructed(cvc.TagPublicKey, prim("06", oidECDSA))
	if rel[0]>>6 == byte(cvc.RoleCVCA) {
		key.Children = append(key.Children,
			prim("81", bytes.Repeat([]byte{0x01}, 32)),
			prim("82", bytes.Repeat([]byte{0x02}, 32)),
			prim("83", bytes.Repeat([]byte{0x03}, 32)),
			prim("84", bytes.Repeat([]byte{0x04}, 65)),
			prim("85", bytes.Repeat([]byte{0x05}, 32)),
		)
	}
	key.Children = append(key.Children, prim("86", append([]byte{0x04}, bytes.Repeat([]byte(chr), 3)...)))

	body := tlv.NewConstructed(cvc.TagBody,
		prim("5F29", []byte{0x00}),
		prim("42", []byte(car)),
		key,
		prim("5F20", []byte(chr)),
		tlv.NewConstructed(cvc.TagCHAT, prim("06", oidRoleAT), prim("53", rel)),
		prim("5F25", tlv.Hex("02 04 00 01 00 01")),
		prim("5F24", tlv.Hex("02 04 01 02 03 01")),
	)
	return tlv.NewConstructed(cvc.TagCertificate, body, prim("5F37", bytes.Repeat([]byte{0x5A}, 64))).Bytes()
}

var (
	cvcaCert = certificate("DECVCA00001", "DECVCA00001", tlv.Hex("C0 00 00 01 13"))
	dvCert   = certificate("DECVCA00001", "DEDV000001", tlv.Hex("80 00 00 01 03"))
	termCert = certificate("DEDV000001", "DETERM00001", tlv.Hex("00 00 00 01 11"))
)

func mustParse(t *testing.T, raw []byte) *cvc.Certificate {
	t.Helper()
	c, err := cvc.ParseEncoded(raw, nil)
	if err != nil {
		t.Fatalf("ParseEncoded failed: %v", err)
	}
	return c
}

// newCard builds:
//
//	3F00
//	├── 011C EF.CardAccess (SFI 1C, always readable)
//	└── 7F00 eID application
//	    ├── 0101 DG1 (SFI 01, needs TA right 0)
//	    └── 0102 DG2 (SFI 02, needs TA right 1)
func newCard(t *testing.T) (*card.Processor, *cardfs.ElementaryFile) {
	t.Helper()

	always := []secstatus.Condition{secstatus.Always}
	mf := cardfs.NewMF()
	app := cardfs.NewDF(cardfs.FileID{0x7F, 0x00}, aidEID)

	cardAccess, _ := cardfs.NewEF(cardfs.FileID{0x01, 0x1C}, 0x1C, tlv.Hex("31 00"), cardfs.Access{Read: always})
	dg1, _ := cardfs.NewEF(cardfs.FileID{0x01, 0x01}, 0x01, []byte("DG1-CONTENT"), cardfs.Access{
		Read:  []secstatus.Condition{RequireTerminalRight(0)},
		Write: []secstatus.Condition{RequireTerminalRight(4)},
		Erase: []secstatus.Condition{RequireTerminalRight(4)},
	})
	dg2, _ := cardfs.NewEF(cardfs.FileID{0x01, 0x02}, 0x02, []byte("DG2"), cardfs.Access{
		Read: []secstatus.Condition{RequireTerminalRight(1)},
	})

	for _, err := range []error{mf.Add(cardAccess), mf.Add(app), app.Add(dg1), app.Add(dg2)} {
		if err != nil {
			t.Fatalf("Building tree failed: %v", err)
		}
	}

	ta := NewTerminalAuthentication(mustParse(t, cvcaCert), WithClock(func() time.Time { return cardDate }))
	return card.NewProcessor(NewFileManagement(mf), ta), dg1
}

type exchange struct {
	name   string
	cmd    []byte
	want   []byte
	wantSW iso7816.StatusWord
}

func run(t *testing.T, p *card.Processor, steps []exchange) {
	t.Helper()
	for _, step := range steps {
		raw, err := p.Transmit(step.cmd)
		if err != nil {
			t.Fatalf("%s: Transmit failed: %v", step.name, err)
		}
		resp, _ := iso7816.ParseResponseAPDU(raw)
		if resp.Status != step.wantSW {
			t.Errorf("%s: SW = %04X, want %04X", step.name, uint16(resp.Status), uint16(step.wantSW))
		}
		if step.want != nil && !bytes.Equal(resp.Data, step.want) {
			t.Errorf("%s: data = %X, want %X", step.name, resp.Data, step.want)
		}
	}
}

func encode(t *testing.T, cmd *iso7816.CommandAPDU) []byte {
	t.Helper()
	raw, err := cmd.Bytes()
	if err != nil {
		t.Fatalf("Encoding command failed: %v", err)
	}
	return raw
}

func setDST(t *testing.T, car string) []byte {
	return encode(t, iso7816.MSESetDST(iso7816.Class{}, []byte(car)))
}

func verify(t *testing.T, cert []byte) []byte {
	t.Helper()
	cmd, err := iso7816.VerifyCertificate(iso7816.Class{}, cert)
	if err != nil {
		t.Fatalf("VerifyCertificate failed: %v", err)
	}
	return encode(t, cmd)
}

func selectApp(t *testing.T) []byte {
	cmd := iso7816.NewSelectCommand(iso7816.Class{}, iso7816.SelectByDFName, iso7816.FirstOrOnlyOccurrence, iso7816.ReturnNoData, aidEID)
	return encode(t, cmd)
}
