// Package inference runs the external classifier over the inference window.
package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/arrhythmix/internal/history"
	"github.com/banshee-data/arrhythmix/internal/monitoring"
	"github.com/banshee-data/arrhythmix/internal/state"
)

const (
	DefaultInterval = 50 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
	// ObserveTimeout bounds each observer notification.
	ObserveTimeout = 5 * time.Second
	// ObserveBacklog caps predictions waiting for slow observers. The oldest
	// waiting prediction is dropped when it is exceeded.
	ObserveBacklog = 64
)

var logf = monitoring.Component("inference")

// ErrEmptyLabel marks a classifier result that carried neither a label nor
// an error.
var ErrEmptyLabel = errors.New("classifier returned an empty label")

// Classifier labels a window of voltages. The input length may differ from
// the classifier's native window; implementations resample as needed.
type Classifier interface {
	Classify(ctx context.Context, samples []float64) (string, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, samples []float64) (string, error)

func (f ClassifierFunc) Classify(ctx context.Context, samples []float64) (string, error) {
	return f(ctx, samples)
}

// Observer is notified after every published prediction, in publish order
// and outside the single-flight scope. Errors are logged.
type Observer interface {
	Observe(ctx context.Context, p state.Prediction) error
}

// Stats describes the worker's activity.
type Stats struct {
	Runs     uint64 `json:"runs"`
	Failures uint64 `json:"failures"`
	Skipped  uint64 `json:"skipped"`
	InFlight bool   `json:"in_flight"`
}

// Worker polls the inference window and runs at most one classification at a
// time.
type Worker struct {
	History    *history.History
	Classifier Classifier
	Shared     *state.Shared
	Policy     Policy
	Interval   time.Duration
	Timeout    time.Duration
	Observers  []Observer
	// SessionID is stamped on every prediction.
	SessionID string

	inFlight atomic.Bool
	prev     uint64 // append count at the previous tick; owned by the polling goroutine
	runs     sync.WaitGroup

	pendingMu sync.Mutex
	pending   []state.Prediction
	notifying bool
	observing sync.WaitGroup

	started  atomic.Uint64
	failures atomic.Uint64
	skipped  atomic.Uint64
}

// NewWorker returns a worker with default interval and timeout.
func NewWorker(h *history.History, c Classifier, shared *state.Shared, p Policy) *Worker {
	return &Worker{
		History:    h,
		Classifier: c,
		Shared:     shared,
		Policy:     p,
		Interval:   DefaultInterval,
		Timeout:    DefaultTimeout,
	}
}

// Run polls until ctx is cancelled, then waits for any in-flight
// classification to finish and publish before returning.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick evaluates the policy once and launches a classification if it fires.
// It must only be called from one goroutine at a time.
func (w *Worker) Tick(ctx context.Context) bool {
	length, appended := w.History.Observe()
	t := Tick{
		Len:      length,
		Capacity: w.History.Cap(),
		Prev:     w.prev,
		Current:  appended,
		InFlight: w.inFlight.Load(),
	}
	w.prev = appended

	if !w.Policy.Fire(t) {
		if t.InFlight && t.Len == t.Capacity && w.Policy.due(t) {
			w.skipped.Add(1)
		}
		return false
	}
	if !w.inFlight.CompareAndSwap(false, true) {
		w.skipped.Add(1)
		return false
	}

	samples := w.History.Snapshot()
	w.started.Add(1)
	w.runs.Add(1)
	go w.classify(ctx, samples)
	return true
}

// Wait blocks until no classification is in flight and every published
// prediction has been handed to the observers.
func (w *Worker) Wait() {
	w.runs.Wait()
	w.observing.Wait()
}

func (w *Worker) classify(ctx context.Context, samples []float64) {
	defer w.runs.Done()

	p := state.Prediction{
		SessionID: w.SessionID,
		RunID:     uuid.NewString(),
		Samples:   len(samples),
		StartedAt: time.Now(),
	}
	label, err := w.invoke(ctx, samples)
	p.Duration = time.Since(p.StartedAt)
	if err != nil {
		w.failures.Add(1)
		p.Err = err.Error()
		logf("run %s failed after %v: %v", p.RunID, p.Duration, err)
	} else if label == "" {
		w.failures.Add(1)
		p.Err = ErrEmptyLabel.Error()
		logf("run %s returned no label", p.RunID)
	} else {
		p.Label = label
	}
	p = w.Shared.Publish(p)
	w.inFlight.Store(false)

	w.notify(ctx, p)
}

// notify queues p for the observers and starts a drain goroutine if none is
// running. It is called before runs.Done so Wait sees the observing count.
func (w *Worker) notify(ctx context.Context, p state.Prediction) {
	if len(w.Observers) == 0 {
		return
	}
	w.pendingMu.Lock()
	if len(w.pending) >= ObserveBacklog {
		logf("observers behind, dropping prediction %d", w.pending[0].Seq)
		w.pending = w.pending[1:]
	}
	w.pending = append(w.pending, p)
	if w.notifying {
		w.pendingMu.Unlock()
		return
	}
	w.notifying = true
	w.observing.Add(1)
	w.pendingMu.Unlock()

	go w.drain(context.WithoutCancel(ctx))
}

func (w *Worker) drain(ctx context.Context) {
	defer w.observing.Done()
	for {
		w.pendingMu.Lock()
		if len(w.pending) == 0 {
			w.notifying = false
			w.pendingMu.Unlock()
			return
		}
		p := w.pending[0]
		w.pending = w.pending[1:]
		w.pendingMu.Unlock()

		for _, o := range w.Observers {
			octx, cancel := context.WithTimeout(ctx, ObserveTimeout)
			if err := o.Observe(octx, p); err != nil {
				logf("observer for prediction %d: %v", p.Seq, err)
			}
			cancel()
		}
	}
}

// invoke calls the classifier with a deadline. Stopping the worker does not
// abort a call in progress.
func (w *Worker) invoke(ctx context.Context, samples []float64) (label string, err error) {
	if w.Classifier == nil {
		return "", fmt.Errorf("no classifier configured")
	}
	cctx := context.WithoutCancel(ctx)
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(cctx, w.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return w.Classifier.Classify(cctx, samples)
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Runs:     w.started.Load(),
		Failures: w.failures.Load(),
		Skipped:  w.skipped.Load(),
		InFlight: w.inFlight.Load(),
	}
}
