package iso7816

import (
	"fmt"

	"github.com/gregLibert/eid-sim/pkg/tlv"
)

// TERMINAL AUTHENTICATION COMMANDS (BSI TR-03110 part 3, ISO 7816-8):
//
// MSE:Set DST (22 81 B6) announces the public key reference ('83') of the
// key that verifies the next certificate.
// PSO:Verify Certificate (2A 00 BE) carries the certificate body ('7F4E')
// followed by its signature ('5F37').

// Parameters of the MANAGE SECURITY ENVIRONMENT and PERFORM SECURITY
// OPERATION commands used by terminal authentication.
const (
	MSESetComputation byte = 0x81
	CRTDigitalSig     byte = 0xB6
	CRTAuthentication byte = 0xA4

	PSOVerifyCertificate byte = 0xBE
)

// Tags of the card-verifiable certificate encoding.
var (
	TagCVCertificate      = tlv.MustTag("7F21")
	TagCertificateBody    = tlv.MustTag("7F4E")
	TagSignature          = tlv.MustTag("5F37")
	TagPublicKeyReference = tlv.MustTag("83")
)

// MSESetDST creates an MSE:Set DST command selecting the public key named by
// car (certification authority reference).
func MSESetDST(cla Class, car []byte) *CommandAPDU {
	ins, _ := NewInstruction(INS_MANAGE_SECURITY_ENVIRONMENT)
	data := tlv.NewPrimitive(TagPublicKeyReference, car).Bytes()
	return NewCommandAPDU(cla, ins, MSESetComputation, CRTDigitalSig, data, 0)
}

// VerifyCertificate creates a PSO:Verify Certificate command. cert is either a
// complete '7F21' certificate or the already unwrapped body and signature.
func VerifyCertificate(cla Class, cert []byte) (*CommandAPDU, error) {
	nodes, err := tlv.DecodeBytes(cert)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate encoding: %w", err)
	}
	if len(nodes) == 1 && nodes[0].Tag == TagCVCertificate {
		nodes = nodes[0].Children
	}
	if len(nodes) != 2 || nodes[0].Tag != TagCertificateBody || nodes[1].Tag != TagSignature {
		return nil, fmt.Errorf("certificate must hold a body (7F4E) and a signature (5F37)")
	}

	ins, _ := NewInstruction(INS_PERFORM_SECURITY_OPERATION)
	return NewCommandAPDU(cla, ins, 0x00, PSOVerifyCertificate, tlv.EncodeAll(nodes), 0), nil
}
