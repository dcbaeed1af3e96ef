package inference

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPolicy_Fire(t *testing.T) {
	p := Policy{Refresh: 40}
	full := func(prev, cur uint64) Tick {
		return Tick{Len: 171, Capacity: 171, Prev: prev, Current: cur}
	}

	tests := []struct {
		name string
		tick Tick
		want bool
	}{
		{"filling", Tick{Len: 170, Capacity: 171, Prev: 169, Current: 170}, false},
		{"first fill", full(170, 171), true},
		{"first fill inside a batch", full(150, 175), true},
		{"one after fill", full(171, 172), false},
		{"just before refresh", full(200, 210), false},
		{"refresh", full(210, 211), true},
		{"second refresh", full(250, 251), true},
		{"refresh inside a batch", full(240, 260), true},
		{"no new samples", full(211, 211), false},
		{"in flight at refresh", Tick{Len: 171, Capacity: 171, Prev: 210, Current: 211, InFlight: true}, false},
		{"window not full", Tick{Len: 100, Capacity: 171, Prev: 210, Current: 211}, false},
		{"zero capacity", Tick{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Fire(tt.tick); got != tt.want {
				t.Errorf("Fire(%+v) = %v, want %v", tt.tick, got, tt.want)
			}
		})
	}
}

func TestPolicy_FiringCountsOneSampleAtATime(t *testing.T) {
	p := Policy{Refresh: 40}
	var fired []uint64
	for n := uint64(1); n <= 300; n++ {
		length := int(min(n, 171))
		if p.Fire(Tick{Len: length, Capacity: 171, Prev: n - 1, Current: n}) {
			fired = append(fired, n)
		}
	}
	want := []uint64{171, 211, 251, 291}
	if diff := cmp.Diff(want, fired); diff != "" {
		t.Errorf("firing counts mismatch (-want +got):\n%s", diff)
	}
}

func TestPolicy_NoRefresh(t *testing.T) {
	p := Policy{}
	if !p.Fire(Tick{Len: 5, Capacity: 5, Prev: 0, Current: 5}) {
		t.Error("first fill should fire")
	}
	if p.Fire(Tick{Len: 5, Capacity: 5, Prev: 5, Current: 500}) {
		t.Error("refresh disabled but fired")
	}
}
