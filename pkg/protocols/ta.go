package protocols

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/logger"

	"github.com/gregLibert/eid-sim/pkg/apdumatch"
	"github.com/gregLibert/eid-sim/pkg/card"
	"github.com/gregLibert/eid-sim/pkg/cvc"
	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/secstatus"
	"github.com/gregLibert/eid-sim/pkg/tlv"
)

// KindTerminalAuthentication is the mechanism kind installed by a successful
// terminal authentication.
const KindTerminalAuthentication secstatus.Kind = "ta"

// TerminalAuthenticated records the authenticated terminal and its effective
// authorization. It lives in the APPLICATION context until another
// application is selected.
type TerminalAuthenticated struct {
	Holder cvc.PublicKeyReference
	CHAT   cvc.CHAT
}

func (m *TerminalAuthenticated) Kind() secstatus.Kind { return KindTerminalAuthentication }

func (m *TerminalAuthenticated) InvalidatedBy(ev secstatus.Event) bool {
	return ev == secstatus.EventApplicationSelected || ev == secstatus.EventAuthenticationReset
}

func (m *TerminalAuthenticated) String() string {
	return fmt.Sprintf("ta(%s, %s)", m.Holder, m.CHAT)
}

// RequireTerminalRight is satisfied once a terminal authenticated with access
// right bit granted by its effective CHAT.
func RequireTerminalRight(bit int) secstatus.Condition {
	return secstatus.ConditionFunc("ta:"+strconv.Itoa(bit), func(mechs []secstatus.Mechanism) bool {
		for _, m := range mechs {
			if ta, ok := m.(*TerminalAuthenticated); ok && ta.CHAT.Allows(bit) {
				return true
			}
		}
		return false
	}, KindTerminalAuthentication)
}

// TerminalAuthentication verifies the certificate chain presented by the
// terminal: MSE:Set DST selects the verification key, PSO:Verify
// Certificate imports the next certificate. Signatures are not checked.
type TerminalAuthentication struct {
	trustPoint *cvc.Certificate
	now        func() time.Time
	specs      apdumatch.Set

	// key is the certificate whose public key verifies the next
	// certificate, chain the authorization accumulated along the chain.
	key   *cvc.Certificate
	chain *cvc.CHAT
}

var _ card.Protocol = (*TerminalAuthentication)(nil)

// TAOption configures a TerminalAuthentication.
type TAOption func(*TerminalAuthentication)

// WithClock sets the card date used to check certificate validity.
func WithClock(now func() time.Time) TAOption {
	return func(t *TerminalAuthentication) { t.now = now }
}

// NewTerminalAuthentication creates the protocol anchored on a CVCA
// certificate.
func NewTerminalAuthentication(trustPoint *cvc.Certificate, opts ...TAOption) *TerminalAuthentication {
	t := &TerminalAuthentication{
		trustPoint: trustPoint,
		now:        time.Now,
		specs: apdumatch.Set{
			(&apdumatch.Specification{
				ID:       "mse-set-dst",
				Initial:  true,
				Chaining: apdumatch.Is(false),
				INS:      apdumatch.Is(iso7816.INS_MANAGE_SECURITY_ENVIRONMENT),
				P1:       apdumatch.Is(iso7816.MSESetComputation),
				P2:       apdumatch.Is(iso7816.CRTDigitalSig),
			}).RequireTag("83"),
			{
				ID:  "pso-verify-certificate",
				INS: apdumatch.Is(iso7816.INS_PERFORM_SECURITY_OPERATION),
				P1:  apdumatch.Is[byte](0x00),
				P2:  apdumatch.Is(iso7816.PSOVerifyCertificate),
			},
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TerminalAuthentication) Name() string { return "terminal-authentication" }
func (t *TerminalAuthentication) Specifications() apdumatch.Set { return t.specs }

// TrustPoint returns the current CVCA certificate.
func (t *TerminalAuthentication) TrustPoint() *cvc.Certificate {
	return t.trustPoint
}

func (t *TerminalAuthentication) Reset() {
	t.key = nil
	t.chain = nil
}

func (t *TerminalAuthentication) Process(req *card.Request) *card.Response {
	switch req.Command.Instruction.Raw {
	case iso7816.INS_MANAGE_SECURITY_ENVIRONMENT:
		return t.setDST(req)
	case iso7816.INS_PERFORM_SECURITY_OPERATION:
		return t.verifyCertificate(req)
	}
	return card.Fail(iso7816.SW_ERR_INS_INVALID)
}

func (t *TerminalAuthentication) setDST(req *card.Request) *card.Response {
	forest, err := tlv.DecodeBytes(req.Command.Data)
	if err != nil {
		return card.Fail(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}
	ref := tlv.Find(forest, tlv.Path{iso7816.TagPublicKeyReference})
	if ref == nil {
		return card.Fail(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}

	switch {
	case t.trustPoint != nil && t.trustPoint.HolderReference().Equal(ref.Value):
		t.key = t.trustPoint
		t.chain = nil
	case t.key != nil && t.key.HolderReference().Equal(ref.Value):
		// Continue with the last imported certificate.
	default:
		logger.V(1).Infof("ta: unknown key reference %q", ref.Value)
		t.key = nil
		return card.Fail(iso7816.SW_ERR_REF_DATA_NOT_FOUND)
	}
	return card.OK(nil)
}

func (t *TerminalAuthentication) verifyCertificate(req *card.Request) *card.Response {
	if req.Command.Class.IsChained {
		return card.OK(nil)
	}
	if t.key == nil {
		return card.Fail(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}

	cert, err := cvc.ParseEncoded(chainData(req.Command), t.key.PublicKey())
	if err != nil {
		logger.Warningf("ta: certificate rejected: %v", err)
		return card.Fail(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}

	if !cert.AuthorityReference().Equal(t.key.HolderReference().Bytes()) {
		logger.Warningf("ta: %s is not issued by %s", cert, t.key.HolderReference())
		return card.Fail(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}
	if err := t.checkValidity(cert); err != nil {
		logger.Warningf("ta: certificate rejected: %v", err)
		return card.Fail(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}

	effective := cert.CHAT()
	if t.chain != nil {
		effective = effective.Intersect(*t.chain)
	} else if t.key == t.trustPoint {
		effective = effective.Intersect(t.trustPoint.CHAT())
	}

	switch cert.CHAT().Role {
	case cvc.RoleCVCA:
		// Link certificate: the new CVCA key becomes the trust point.
		logger.Infof("ta: trust point updated to %s", cert.HolderReference())
		t.trustPoint = cert
		t.key = cert
		t.chain = nil
		return card.OK(nil)

	case cvc.RoleDVOfficial, cvc.RoleDVNonOfficial:
		t.key = cert
		t.chain = &effective
		return card.OK(nil)
	}

	logger.V(1).Infof("ta: terminal %s authenticated, %s", cert.HolderReference(), effective)
	t.key = nil
	t.chain = nil
	return card.OK(nil).With(secstatus.Update{
		Events: []secstatus.Event{secstatus.EventAuthenticationReset},
		Installs: []secstatus.Install{{
			Context:   secstatus.Application,
			Mechanism: &TerminalAuthenticated{Holder: cert.HolderReference(), CHAT: effective},
		}},
	})
}

// checkValidity accepts certificates valid at the card date. The type of
// the chain must match the trust point.
func (t *TerminalAuthentication) checkValidity(cert *cvc.Certificate) error {
	if now := t.now(); !cert.ValidAt(now) {
		return fmt.Errorf("%s not valid on %s", cert, now.UTC().Format(time.DateOnly))
	}
	if t.trustPoint != nil && cert.CHAT().Type != t.trustPoint.CHAT().Type {
		return fmt.Errorf("%s does not match trust point type %s", cert.CHAT().Type, t.trustPoint.CHAT().Type)
	}
	return nil
}

// chainData concatenates the data of a chained command, oldest first. The
// chain ends at the first link carrying another instruction.
func chainData(cmd *iso7816.CommandAPDU) []byte {
	var links []*iso7816.CommandAPDU
	for _, c := range cmd.Chain() {
		if c.Instruction.Raw != cmd.Instruction.Raw {
			break
		}
		links = append(links, c)
	}
	slices.Reverse(links)

	var buf bytes.Buffer
	for _, c := range links {
		buf.Write(c.Data)
	}
	return buf.Bytes()
}
