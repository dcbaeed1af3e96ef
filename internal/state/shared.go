// Package state holds the values shared between the ingestion path, the
// inference worker and display consumers: the connection status, per-payload
// counters and the latest prediction.
package state

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/arrhythmix/internal/source"
)

// StatusReport is the connection status as shown to consumers.
type StatusReport struct {
	Status source.Status `json:"status"`
	Detail string        `json:"detail,omitempty"`
	Source string        `json:"source,omitempty"`
	Since  time.Time     `json:"since"`
}

// Text renders the report as a "Status: ..." line.
func (r StatusReport) Text() string {
	switch r.Status {
	case source.StatusStreaming, source.StatusLeadsOff, source.StatusIdle:
		return "Status: " + r.Status.Label()
	}
	if r.Detail != "" {
		return "Status: " + r.Detail
	}
	return "Status: " + r.Status.Label()
}

// Counters are cumulative per-session payload counts.
type Counters struct {
	Samples      uint64 `json:"samples"`
	DecodeErrors uint64 `json:"decode_errors"`
	LeadsOff     uint64 `json:"leads_off"`
	Dropped      uint64 `json:"dropped"`
}

// Shared is safe for concurrent use. Readers never block the ingestion path
// for longer than a status copy.
type Shared struct {
	mu     sync.Mutex
	status StatusReport

	samples      atomic.Uint64
	decodeErrors atomic.Uint64
	leadsOff     atomic.Uint64
	dropped      atomic.Uint64

	seq        atomic.Uint64
	prediction atomic.Pointer[Prediction]
}

// NewShared returns state with status Idle and no prediction.
func NewShared() *Shared {
	return &Shared{status: StatusReport{Status: source.StatusIdle, Since: time.Now()}}
}

// Status returns a copy of the current status report.
func (s *Shared) Status() StatusReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetSource records which source is feeding the session.
func (s *Shared) SetSource(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Source = name
}

// SetStatus unconditionally replaces the status.
func (s *Shared) SetStatus(st source.Status, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(st, detail)
}

// Transition moves to st only when the current status is one of from. It
// reports whether the status changed.
func (s *Shared) Transition(st source.Status, detail string, from ...source.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(from, s.status.Status) {
		return false
	}
	s.set(st, detail)
	return true
}

// connected lists the states in which the source is delivering payloads.
var connected = []source.Status{
	source.StatusConnected,
	source.StatusStreaming,
	source.StatusLeadsOff,
	source.StatusError,
}

// Promote marks the session Streaming after a valid sample. A payload that
// was queued before a disconnect never resurrects the session.
func (s *Shared) Promote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status.Status {
	case source.StatusConnected, source.StatusLeadsOff, source.StatusError:
		s.set(source.StatusStreaming, "")
		return true
	}
	return false
}

// MarkLeadsOff records a sentinel payload.
func (s *Shared) MarkLeadsOff() {
	s.leadsOff.Add(1)
	s.Transition(source.StatusLeadsOff, "", connected...)
}

// MarkDecodeError records a payload that could not be decoded.
func (s *Shared) MarkDecodeError() {
	s.decodeErrors.Add(1)
	s.Transition(source.StatusError, "Error decoding", connected...)
}

// MarkSample records an appended sample.
func (s *Shared) MarkSample() {
	s.samples.Add(1)
	s.Promote()
}

// MarkDropped records a payload discarded because the feed was full.
func (s *Shared) MarkDropped() {
	s.dropped.Add(1)
}

func (s *Shared) set(st source.Status, detail string) {
	if s.status.Status != st {
		s.status.Since = time.Now()
	}
	s.status.Status = st
	s.status.Detail = detail
}

// Counters returns the current payload counts.
func (s *Shared) Counters() Counters {
	return Counters{
		Samples:      s.samples.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		LeadsOff:     s.leadsOff.Load(),
		Dropped:      s.dropped.Load(),
	}
}

// Publish assigns the next sequence number to p and makes it the latest
// prediction. Only the inference worker publishes.
func (s *Shared) Publish(p Prediction) Prediction {
	p.Seq = s.seq.Add(1)
	s.prediction.Store(&p)
	return p
}

// Prediction returns the latest prediction, or nil before the first run has
// completed. The returned value must not be modified.
func (s *Shared) Prediction() *Prediction {
	return s.prediction.Load()
}
