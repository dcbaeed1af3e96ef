package source

import (
	"context"
	"sync"
)

// lifecycle carries the open/close bookkeeping shared by every source: a
// done channel closed exactly once, a delivery context cancelled by Close,
// and a guard that runs the disconnect step exactly once.
type lifecycle struct {
	mu       sync.Mutex
	started  bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once

	closeOnce sync.Once
	closeErr  error
}

func newLifecycle() lifecycle {
	return lifecycle{done: make(chan struct{})}
}

// Done is closed once delivery has ended.
func (l *lifecycle) Done() <-chan struct{} {
	return l.done
}

// begin marks the source as started and returns the delivery context.
func (l *lifecycle) begin(ctx context.Context) (context.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if l.started {
		return nil, ErrConnect
	}
	dctx, cancel := context.WithCancel(ctx)
	l.started = true
	l.cancel = cancel
	return dctx, nil
}

// abort reverts begin after a failed connect so the source can be closed
// without waiting on a delivery goroutine that never ran.
func (l *lifecycle) abort() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.started = false
	closed := l.closed
	l.mu.Unlock()
	if closed {
		// shutdown may already be waiting on Done.
		l.finish()
	}
}

// finish closes Done. Safe to call more than once.
func (l *lifecycle) finish() {
	l.doneOnce.Do(func() { close(l.done) })
}

func (l *lifecycle) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// shutdown cancels delivery, runs disconnect once and waits for the delivery
// goroutine to observe it.
func (l *lifecycle) shutdown(disconnect func() error) error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		started := l.started
		if l.cancel != nil {
			l.cancel()
		}
		l.mu.Unlock()

		if disconnect != nil {
			l.closeErr = disconnect()
		}
		if started {
			<-l.done
		} else {
			l.finish()
		}
	})
	return l.closeErr
}
