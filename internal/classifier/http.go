package classifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/arrhythmix/internal/httputil"
)

// HTTP classifies by posting the window as JSON to a model server.
//
// Request:  {"samples": [...], "sample_rate_hz": 20}
// Response: {"label": "Normal"}
type HTTP struct {
	URL          string
	Client       httputil.HTTPClient
	InputLength  int
	SampleRateHz float64
}

// NewHTTP returns a classifier posting to url with a default client.
func NewHTTP(url string, inputLength int, sampleRateHz float64) *HTTP {
	return &HTTP{
		URL:          url,
		Client:       &http.Client{Timeout: 30 * time.Second},
		InputLength:  inputLength,
		SampleRateHz: sampleRateHz,
	}
}

type httpRequest struct {
	Samples      []float64 `json:"samples"`
	SampleRateHz float64   `json:"sample_rate_hz,omitempty"`
}

type httpResponse struct {
	Label string `json:"label"`
	Error string `json:"error,omitempty"`
}

func (h *HTTP) Classify(ctx context.Context, samples []float64) (string, error) {
	in, rate := prepare(samples, h.InputLength, h.SampleRateHz)
	var resp httpResponse
	if err := httputil.PostJSON(ctx, h.Client, h.URL, httpRequest{Samples: in, SampleRateHz: rate}, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("model: %s", resp.Error)
	}
	if resp.Label == "" {
		return "", fmt.Errorf("%w: missing label", ErrBadResponse)
	}
	return resp.Label, nil
}

// prepare resamples to the model's native length and scales the rate hint
// to match.
func prepare(samples []float64, length int, rate float64) ([]float64, float64) {
	if length <= 0 || length == len(samples) || len(samples) < 2 {
		return samples, rate
	}
	return Resample(samples, length), rate * float64(length-1) / float64(len(samples)-1)
}
