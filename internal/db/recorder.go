package db

import (
	"context"

	"github.com/banshee-data/arrhythmix/internal/state"
)

// Recorder persists a running session: it records session boundaries for
// the pipeline controller and every prediction the inference worker
// publishes.
type Recorder struct {
	*DB
}

// Observe stores p.
func (r Recorder) Observe(ctx context.Context, p state.Prediction) error {
	return r.RecordPrediction(ctx, p)
}
