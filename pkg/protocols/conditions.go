package protocols

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gregLibert/eid-sim/pkg/secstatus"
)

// ParseCondition reads the textual form of an access condition: "always",
// "never", "ta:<bit>" or "mechanism:<kind>".
func ParseCondition(s string) (secstatus.Condition, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(s), ":")
	switch name {
	case "always":
		return secstatus.Always, nil
	case "never":
		return secstatus.Never, nil
	case "ta":
		bit, err := strconv.Atoi(arg)
		if err != nil || bit < 0 || bit > 37 {
			return nil, fmt.Errorf("invalid terminal right %q", arg)
		}
		return RequireTerminalRight(bit), nil
	case "mechanism":
		if arg == "" {
			return nil, fmt.Errorf("mechanism condition needs a kind")
		}
		return secstatus.Require(secstatus.Kind(arg)), nil
	}
	return nil, fmt.Errorf("unknown condition %q", s)
}
