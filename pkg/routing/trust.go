package routing

import (
	"fmt"
	"strings"
)

// TrustLevel orders originator privilege. Higher values gate more capability
// inside a turn.
type TrustLevel int

const (
	TrustPublic TrustLevel = iota
	TrustFamiliar
	TrustInner
	TrustFull
)

func (t TrustLevel) String() string {
	switch t {
	case TrustPublic:
		return "public"
	case TrustFamiliar:
		return "familiar"
	case TrustInner:
		return "inner"
	case TrustFull:
		return "full"
	default:
		return fmt.Sprintf("trust(%d)", int(t))
	}
}

// AtLeast reports whether t grants at minimum the given level.
func (t TrustLevel) AtLeast(minimum TrustLevel) bool {
	return t >= minimum
}

// ParseTrust maps a config string to a trust level. Unknown values resolve to
// public so a typo never over-grants.
func ParseTrust(input string) (TrustLevel, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "public", "":
		return TrustPublic, nil
	case "familiar":
		return TrustFamiliar, nil
	case "inner":
		return TrustInner, nil
	case "full":
		return TrustFull, nil
	default:
		return TrustPublic, fmt.Errorf("unknown trust level %q", input)
	}
}
