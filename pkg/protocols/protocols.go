// Package protocols holds the card application protocols registered with the
// command processor: file management (SELECT and the binary commands) and
// terminal authentication (certificate chain verification).
package protocols

import (
	"errors"

	"github.com/gregLibert/eid-sim/pkg/cardfs"
	"github.com/gregLibert/eid-sim/pkg/iso7816"
)

// statusFor maps a file system error to the status word returned to the
// terminal.
func statusFor(err error) iso7816.StatusWord {
	switch {
	case errors.Is(err, cardfs.ErrAccessDenied):
		return iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT
	case errors.Is(err, cardfs.ErrNotFound):
		return iso7816.SW_ERR_FILE_NOT_FOUND
	case errors.Is(err, cardfs.ErrOutOfRange):
		return iso7816.SW_ERR_WRONG_P1P2
	default:
		return iso7816.SW_ERR_UNKNOWN
	}
}
