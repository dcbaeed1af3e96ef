package inference

// Policy decides when a classification run should start.
//
// The first run fires when the inference window first becomes full. After
// that a run fires every Refresh appended samples. Refresh <= 0 disables
// periodic refresh so only the first fill triggers.
type Policy struct {
	Refresh int
}

// Tick is the state observed by one worker poll.
type Tick struct {
	Len      int // current window length
	Capacity int // window capacity W
	// Prev and Current are the total append counts at the previous and the
	// current poll. Trigger points in (Prev, Current] are considered.
	Prev, Current uint64
	InFlight      bool
}

// Fire reports whether a run should start on this tick. Trigger points that
// pass while a run is in flight are lost, not deferred to a later tick.
func (p Policy) Fire(t Tick) bool {
	if t.InFlight || t.Capacity <= 0 || t.Len != t.Capacity {
		return false
	}
	return p.due(t)
}

// due reports whether (Prev, Current] contains a trigger point, ignoring the
// in-flight flag.
func (p Policy) due(t Tick) bool {
	if t.Current <= t.Prev {
		return false
	}
	w := uint64(t.Capacity)
	if t.Current < w {
		return false
	}
	lo := t.Prev + 1
	if lo <= w {
		return true
	}
	if p.Refresh <= 0 {
		return false
	}
	k := uint64(p.Refresh)
	next := w + (lo-w+k-1)/k*k
	return next <= t.Current
}
