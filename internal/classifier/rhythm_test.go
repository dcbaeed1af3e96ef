package classifier

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ecg builds a 20 Hz trace with a small baseline wander and an R spike at
// every index in beats.
func ecg(n int, beats []int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = 1.8 + 0.02*math.Sin(2*math.Pi*0.35*float64(i)/20)
	}
	for _, b := range beats {
		if b < n {
			xs[b] = 3.0
		}
	}
	return xs
}

func periodic(start, period, n int) []int {
	var out []int
	for i := start; i < n; i += period {
		out = append(out, i)
	}
	return out
}

func TestRhythm_Labels(t *testing.T) {
	irregular := []int{8}
	for i := 0; irregular[len(irregular)-1] < 171; i++ {
		step := 10
		if i%2 == 1 {
			step = 22
		}
		irregular = append(irregular, irregular[len(irregular)-1]+step)
	}

	tests := []struct {
		name  string
		beats []int
		want  string
		bpm   float64
	}{
		{"normal 75 bpm", periodic(8, 16, 171), LabelNormal, 75},
		{"tachycardia 150 bpm", periodic(8, 8, 171), LabelTachycardia, 150},
		{"bradycardia 40 bpm", periodic(15, 30, 171), LabelBradycardia, 40},
		{"irregular", irregular, LabelIrregular, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRhythm(20)
			xs := ecg(171, tt.beats)

			f, err := r.Analyse(xs)
			require.NoError(t, err)
			assert.InDelta(t, tt.bpm, f.BPM, 1)

			got, err := r.Classify(context.Background(), xs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRhythm_PeakPositions(t *testing.T) {
	r := NewRhythm(20)
	beats := periodic(8, 16, 171)
	f, err := r.Analyse(ecg(171, beats))
	require.NoError(t, err)
	assert.Equal(t, beats, f.Peaks)
	assert.InDelta(t, 0, f.RRCV, 1e-9)
}

func TestRhythm_ResamplesToWindow(t *testing.T) {
	r := NewRhythm(20)
	r.Window = 342
	f, err := r.Analyse(ecg(171, periodic(8, 16, 171)))
	require.NoError(t, err)
	assert.InDelta(t, 75, f.BPM, 2)
}

func TestRhythm_InsufficientSignal(t *testing.T) {
	r := NewRhythm(20)
	flat := make([]float64, 171)
	for i := range flat {
		flat[i] = 1.8
	}
	tests := []struct {
		name string
		xs   []float64
	}{
		{"flat", flat},
		{"one beat", ecg(171, []int{50})},
		{"too short", []float64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Classify(context.Background(), tt.xs)
			assert.True(t, errors.Is(err, ErrInsufficientSignal), "err = %v", err)
		})
	}
}

func TestRhythm_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRhythm(20).Classify(ctx, ecg(171, periodic(8, 16, 171)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRhythm_BadRate(t *testing.T) {
	_, err := NewRhythm(0).Analyse(ecg(171, nil))
	assert.Error(t, err)
}
