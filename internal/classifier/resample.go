package classifier

import (
	"gonum.org/v1/gonum/interp"
)

// Resample linearly interpolates xs onto n evenly spaced points spanning the
// same interval. It returns a copy when no resampling is needed.
func Resample(xs []float64, n int) []float64 {
	if n <= 0 || len(xs) == n {
		return append([]float64(nil), xs...)
	}
	out := make([]float64, n)
	switch len(xs) {
	case 0:
		return out
	case 1:
		for i := range out {
			out[i] = xs[0]
		}
		return out
	}

	pos := make([]float64, len(xs))
	for i := range pos {
		pos[i] = float64(i)
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(pos, xs); err != nil {
		// Fit only fails on mismatched or unsorted inputs, which pos rules out.
		panic(err)
	}
	if n == 1 {
		out[0] = xs[0]
		return out
	}
	step := float64(len(xs)-1) / float64(n-1)
	for i := range out {
		out[i] = pl.Predict(float64(i) * step)
	}
	return out
}
