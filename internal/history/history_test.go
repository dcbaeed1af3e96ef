package history

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHistory_LastCapacitySamples(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		n        int
	}{
		{"empty", 5, 0},
		{"partial", 5, 3},
		{"exactly full", 5, 5},
		{"one over", 5, 6},
		{"many wraps", 5, 23},
		{"capacity one", 1, 4},
		{"inference window", 171, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.capacity)
			var all []float64
			for i := 0; i < tt.n; i++ {
				v := float64(i)
				h.Append(v)
				all = append(all, v)
			}

			want := all
			if len(all) > tt.capacity {
				want = all[len(all)-tt.capacity:]
			}
			if want == nil {
				want = []float64{}
			}
			if diff := cmp.Diff(want, h.Snapshot()); diff != "" {
				t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
			}
			if h.Len() != len(want) {
				t.Errorf("Len() = %d, want %d", h.Len(), len(want))
			}
			if h.Appended() != uint64(tt.n) {
				t.Errorf("Appended() = %d, want %d", h.Appended(), tt.n)
			}
		})
	}
}

func TestHistory_SnapshotIsCopy(t *testing.T) {
	h := New(3)
	h.Append(1)
	h.Append(2)

	snap := h.Snapshot()
	snap[0] = 99
	h.Append(3)

	if diff := cmp.Diff([]float64{1, 2, 3}, h.Snapshot()); diff != "" {
		t.Errorf("mutating a snapshot leaked into the history (-want +got):\n%s", diff)
	}
}

func TestNewFilled(t *testing.T) {
	h := NewFilled(4, 0)
	if h.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", h.Len())
	}
	if h.Appended() != 0 {
		t.Errorf("prefill must not count as appended, got %d", h.Appended())
	}

	h.Append(1.5)
	if diff := cmp.Diff([]float64{0, 0, 0, 1.5}, h.Snapshot()); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_PanicsOnBadCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero capacity")
		}
	}()
	New(0)
}

// Concurrent appends of a strictly increasing sequence must never produce a
// snapshot with a gap, a repeat or a reordering.
func TestHistory_ConcurrentSnapshotsAreConsistent(t *testing.T) {
	const (
		capacity = 64
		total    = 20000
		readers  = 4
	)
	h := New(capacity)

	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan string, readers)

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := h.Snapshot()
				if len(snap) > capacity {
					errs <- "snapshot longer than capacity"
					return
				}
				for i := 1; i < len(snap); i++ {
					if snap[i] != snap[i-1]+1 {
						errs <- "snapshot is not a contiguous run of arrivals"
						return
					}
				}
			}
		}()
	}

	for i := 0; i < total; i++ {
		h.Append(float64(i))
	}
	close(done)
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}

	length, appended := h.Observe()
	if length != capacity || appended != total {
		t.Errorf("Observe() = (%d, %d), want (%d, %d)", length, appended, capacity, total)
	}
}
