package connectivity

import (
	"fmt"
	"time"
)

// Phase is a step of the connectivity state machine
type Phase int

const (
	Uninitialized Phase = iota
	WaitingForProxyPort
	ProbingEndpoints
	Connected
	Failed
)

var phaseNames = [...]string{
	Uninitialized:       "uninitialized",
	WaitingForProxyPort: "waiting_for_proxy_port",
	ProbingEndpoints:    "probing_endpoints",
	Connected:           "connected",
	Failed:              "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText renders the phase name in JSON payloads
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown connectivity phase %q", text)
}

// State is a point-in-time view of the monitor
type State struct {
	Phase               Phase     `json:"phase"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastTransitionAt    time.Time `json:"lastTransitionAt"`
	LastError           string    `json:"lastError,omitempty"`
	ExitIP              string    `json:"exitIp,omitempty"`
	Endpoint            string    `json:"endpoint,omitempty"`
}

// Connected reports whether the proxy was last verified usable
func (s State) Connected() bool {
	return s.Phase == Connected
}

// Transition is published to subscribers on every phase change
type Transition struct {
	From  Phase     `json:"from"`
	To    Phase     `json:"to"`
	At    time.Time `json:"at"`
	State State     `json:"state"`
}
