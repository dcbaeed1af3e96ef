// Package classifier provides the rhythm classifiers used by the inference
// worker: a local baseline and clients for remote models.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/MicahParks/peakdetect"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Labels produced by Rhythm.
const (
	LabelNormal      = "Normal"
	LabelTachycardia = "Tachycardia"
	LabelBradycardia = "Bradycardia"
	LabelIrregular   = "Irregular"
)

var (
	// ErrInsufficientSignal is returned when the window has too few beats to
	// classify.
	ErrInsufficientSignal = errors.New("insufficient signal")
	// ErrBadResponse is returned when a remote model answers without a label.
	ErrBadResponse = errors.New("bad classifier response")
)

// Rhythm is a baseline classifier working from R-peak timing. Peaks are
// found with a smoothed z-score detector over the z-normalised window.
type Rhythm struct {
	SampleRateHz float64
	// Window, when positive, resamples the input to this many points first.
	Window int

	Lag        int     // detector lag in samples; 0 derives it from the rate
	Threshold  float64 // detector z-score threshold
	Influence  float64 // detector influence of signalled samples
	Refractory float64 // seconds during which a second peak is ignored
	MinPeakZ   float64 // minimum window z-score of an R peak

	TachyBPM    float64
	BradyBPM    float64
	IrregularCV float64 // RR coefficient of variation above which the rhythm is irregular
}

// NewRhythm returns a classifier with adult resting thresholds.
func NewRhythm(sampleRateHz float64) *Rhythm {
	return &Rhythm{
		SampleRateHz: sampleRateHz,
		Threshold:    2.5,
		Influence:    0.3,
		Refractory:   0.25,
		MinPeakZ:     2.0,
		TachyBPM:     100,
		BradyBPM:     60,
		IrregularCV:  0.15,
	}
}

// Features are the quantities the label is derived from.
type Features struct {
	Peaks []int
	BPM   float64
	RRCV  float64
}

// Classify labels the window.
func (r *Rhythm) Classify(ctx context.Context, samples []float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := r.Analyse(samples)
	if err != nil {
		return "", err
	}
	switch {
	case f.RRCV > r.IrregularCV:
		return LabelIrregular, nil
	case f.BPM > r.TachyBPM:
		return LabelTachycardia, nil
	case f.BPM < r.BradyBPM:
		return LabelBradycardia, nil
	}
	return LabelNormal, nil
}

// Analyse extracts peak positions, heart rate and RR variability.
func (r *Rhythm) Analyse(samples []float64) (Features, error) {
	if r.SampleRateHz <= 0 {
		return Features{}, fmt.Errorf("sample rate %v: must be positive", r.SampleRateHz)
	}
	xs, rate := prepare(samples, r.Window, r.SampleRateHz)

	lag := r.Lag
	if lag <= 0 {
		lag = max(3, int(rate/4))
	}
	if len(xs) <= lag+1 {
		return Features{}, fmt.Errorf("%w: %d samples", ErrInsufficientSignal, len(xs))
	}

	mean, std := stat.PopMeanStdDev(xs, nil)
	if std < 1e-9 || math.IsNaN(std) {
		return Features{}, fmt.Errorf("%w: flat signal", ErrInsufficientSignal)
	}
	z := make([]float64, len(xs))
	copy(z, xs)
	floats.AddConst(-mean, z)
	floats.Scale(1/std, z)

	peaks, err := r.detect(z, lag, rate)
	if err != nil {
		return Features{}, err
	}
	if len(peaks) < 2 {
		return Features{Peaks: peaks}, fmt.Errorf("%w: %d peaks", ErrInsufficientSignal, len(peaks))
	}

	rr := make([]float64, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		rr[i-1] = float64(peaks[i]-peaks[i-1]) / rate
	}
	rrMean, rrStd := stat.PopMeanStdDev(rr, nil)
	return Features{Peaks: peaks, BPM: 60 / rrMean, RRCV: rrStd / rrMean}, nil
}

// detect returns the index of the maximum of every positive run reported by
// the detector, dropping peaks inside the refractory period.
func (r *Rhythm) detect(z []float64, lag int, rate float64) ([]int, error) {
	det := peakdetect.NewPeakDetector()
	if err := det.Initialize(r.Influence, r.Threshold, z[:lag]); err != nil {
		return nil, fmt.Errorf("peak detector: %w", err)
	}
	refractory := int(math.Round(r.Refractory * rate))

	var peaks []int
	runStart := -1
	closeRun := func(end int) {
		best := runStart + floats.MaxIdx(z[runStart:end])
		runStart = -1
		if z[best] < r.MinPeakZ {
			return
		}
		if n := len(peaks); n > 0 && best-peaks[n-1] < refractory {
			if z[best] > z[peaks[n-1]] {
				peaks[n-1] = best
			}
		} else {
			peaks = append(peaks, best)
		}
	}
	for i := lag; i < len(z); i++ {
		positive := det.Next(z[i]) == peakdetect.SignalPositive
		switch {
		case positive && runStart < 0:
			runStart = i
		case !positive && runStart >= 0:
			closeRun(i)
		}
	}
	if runStart >= 0 {
		closeRun(len(z))
	}
	return peaks, nil
}
