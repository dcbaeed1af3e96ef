// Package pipeline wires a sample source to the display and inference
// windows and coordinates start and stop across every task of a run.
package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/arrhythmix/internal/history"
	"github.com/banshee-data/arrhythmix/internal/state"
)

// Session is the context object for one run. It is created once and handed
// to every task; nothing in the pipeline is package-level state.
type Session struct {
	ID        string
	StartedAt time.Time

	Display   *history.History
	Inference *history.History
	Shared    *state.Shared

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSession returns a session with a pre-filled display window and an
// empty inference window.
func NewSession(displayCap int, displayFill float64, inferenceCap int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Display:   history.NewFilled(displayCap, displayFill),
		Inference: history.New(inferenceCap),
		Shared:    state.NewShared(),
		stop:      make(chan struct{}),
	}
}

// Stop moves the stop signal to Stopped. It never reverts.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Stopped is closed once Stop has been called.
func (s *Session) Stopped() <-chan struct{} {
	return s.stop
}

// IsStopped reports whether Stop has been called.
func (s *Session) IsStopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}
