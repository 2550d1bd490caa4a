package cashless

import "fmt"

type SessionState uint8

const (
	StateInactive SessionState = iota
	StateDisabled
	StateEnabled
	StateSessionIdle
	StateVend
)

var sessionStateNames = [...]string{
	StateInactive:    "INACTIVE",
	StateDisabled:    "DISABLED",
	StateEnabled:     "ENABLED",
	StateSessionIdle: "SESSION_IDLE",
	StateVend:        "VEND",
}

func (s SessionState) String() string {
	if int(s) < len(sessionStateNames) {
		return sessionStateNames[s]
	}
	return fmt.Sprintf("SessionState(%d)", uint8(s))
}
