// Package history provides the fixed-capacity sample windows shared between
// the ingest loop, the inference worker and display consumers.
//
// A History has a single writer and any number of readers. The mutex guards
// only the ring update in Append and the copy in Snapshot, so readers never
// hold it across slow work such as classification or rendering.
package history

import (
	"fmt"
	"sync"
)

// History is a thread-safe FIFO window of the most recent samples. Once full,
// every Append evicts exactly the oldest sample.
type History struct {
	mu       sync.Mutex
	buf      []float64
	head     int // index of the oldest sample
	size     int
	appended uint64
}

// New returns an empty History holding at most capacity samples.
// It panics if capacity is not positive.
func New(capacity int) *History {
	if capacity <= 0 {
		panic(fmt.Sprintf("history: capacity must be positive, got %d", capacity))
	}
	return &History{buf: make([]float64, capacity)}
}

// NewFilled returns a full History whose every slot holds fill. The prefill
// does not count towards Appended.
func NewFilled(capacity int, fill float64) *History {
	h := New(capacity)
	for i := range h.buf {
		h.buf[i] = fill
	}
	h.size = capacity
	return h
}

// Append adds v as the newest sample, evicting the oldest when full.
func (h *History) Append(v float64) {
	h.mu.Lock()
	if h.size < len(h.buf) {
		h.buf[(h.head+h.size)%len(h.buf)] = v
		h.size++
	} else {
		h.buf[h.head] = v
		h.head = (h.head + 1) % len(h.buf)
	}
	h.appended++
	h.mu.Unlock()
}

// Snapshot returns a copy of the window in arrival order, oldest first.
func (h *History) Snapshot() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]float64, h.size)
	n := copy(out, h.buf[h.head:min(h.head+h.size, len(h.buf))])
	copy(out[n:], h.buf[:h.size-n])
	return out
}

// Len returns the number of samples currently held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Cap returns the fixed capacity.
func (h *History) Cap() int {
	return len(h.buf)
}

// Appended returns the total number of Append calls since creation.
func (h *History) Appended() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appended
}

// Observe returns the current length and total append count as one
// consistent pair.
func (h *History) Observe() (length int, appended uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size, h.appended
}
