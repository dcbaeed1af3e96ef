package source

import (
	"fmt"
	"strings"
)

// Status is the connection state of the active sample source as seen by the
// display layer.
type Status int

const (
	StatusIdle Status = iota
	StatusDiscovering
	StatusConnected
	StatusStreaming
	StatusLeadsOff
	StatusError
	StatusDisconnected
)

var statusNames = [...]string{
	StatusIdle:         "idle",
	StatusDiscovering:  "discovering",
	StatusConnected:    "connected",
	StatusStreaming:    "streaming",
	StatusLeadsOff:     "leads_off",
	StatusError:        "error",
	StatusDisconnected: "disconnected",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status by name so JSON payloads stay readable.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name produced by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(b))
}

// Label is the human readable status line shown next to the live trace.
func (s Status) Label() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusDiscovering:
		return "Searching for device..."
	case StatusConnected:
		return "Connected"
	case StatusStreaming:
		return "Actively receiving ECG data"
	case StatusLeadsOff:
		return "Leads Off"
	case StatusError:
		return "Error"
	case StatusDisconnected:
		return "Disconnected"
	}
	return s.String()
}
