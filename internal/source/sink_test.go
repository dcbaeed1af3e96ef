package source

import (
	"sync"
	"testing"
	"time"
)

type statusEvent struct {
	Status Status
	Detail string
}

// recordingSink captures everything a source emits.
type recordingSink struct {
	mu       sync.Mutex
	payloads []string
	statuses []statusEvent
}

func (r *recordingSink) Payload(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, string(p))
}

func (r *recordingSink) Status(s Status, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, statusEvent{s, detail})
}

func (r *recordingSink) Payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

func (r *recordingSink) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.statuses))
	for i, e := range r.statuses {
		out[i] = e.Status
	}
	return out
}

func (r *recordingSink) waitPayloads(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := r.Payloads(); len(p) >= n {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d payloads, have %d", n, len(r.Payloads()))
	return nil
}

func waitDone(t *testing.T, src Source) {
	t.Helper()
	select {
	case <-src.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: Done not closed", src.Name())
	}
}
