package resolver

import "strings"

// Mode selects the egress path of a render.
type Mode int

const (
	// Direct fetches pages from the proxy host's own network.
	Direct Mode = iota
	// Anonymized routes every fetch through the onion-routing SOCKS proxy.
	Anonymized
)

// String returns the short mode name used in cache keys, metrics and logs.
func (m Mode) String() string {
	if m == Anonymized {
		return "tor"
	}
	return "direct"
}

// Label returns the human-readable name shown in pages.
func (m Mode) Label() string {
	if m == Anonymized {
		return "Tor"
	}
	return "Direct"
}

// Toggle returns the other routing mode.
func (m Mode) Toggle() Mode {
	if m == Anonymized {
		return Direct
	}
	return Anonymized
}

// ParseMode interprets the tor query parameter. Only "true" selects Anonymized.
func ParseMode(tor string) Mode {
	if strings.EqualFold(strings.TrimSpace(tor), "true") {
		return Anonymized
	}
	return Direct
}
