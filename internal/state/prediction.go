package state

import (
	"time"
)

// Prediction is one classification outcome. Exactly one of Label and Err is
// set.
type Prediction struct {
	// Seq increases by one for every prediction published in a session.
	Seq       uint64        `json:"seq"`
	SessionID string        `json:"session_id,omitempty"`
	RunID     string        `json:"run_id"`
	Label     string        `json:"label,omitempty"`
	Err       string        `json:"error,omitempty"`
	Samples   int           `json:"samples"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// IsError reports whether the prediction is an error marker.
func (p *Prediction) IsError() bool {
	return p != nil && p.Err != ""
}

// Text is the display line for the prediction. A nil prediction renders as
// "N/A".
func (p *Prediction) Text() string {
	switch {
	case p == nil:
		return "Prediction: N/A"
	case p.IsError():
		return "Error: " + p.Err
	default:
		return "Prediction: " + p.Label
	}
}
