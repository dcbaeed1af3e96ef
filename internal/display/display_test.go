package display

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/arrhythmix/internal/pipeline"
	"github.com/banshee-data/arrhythmix/internal/source"
	"github.com/banshee-data/arrhythmix/internal/state"
)

func init() {
	color.NoColor = true
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want Summary
	}{
		{"empty", nil, Summary{}},
		{"single", []float64{2}, Summary{N: 1, Mean: 2, Min: 2, Max: 2}},
		{"spread", []float64{1, 2, 3, 4}, Summary{N: 4, Mean: 2.5, StdDev: 1.118033988749895, Min: 1, Max: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.in)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderChart(t *testing.T) {
	var buf bytes.Buffer
	err := RenderChart(&buf, []float64{1, 2}, ChartOptions{Min: 0, Max: 4, RateHz: 20})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Live ECG (mean=1.50 V)")
	assert.Contains(t, out, "Time (s)")
	assert.Contains(t, out, "echarts")
}

func TestRenderChart_Units(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, []float64{1000}, ChartOptions{Title: "Replay", Units: "mV"}))
	assert.Contains(t, buf.String(), "Replay (mean=1000.00 mV)")
	assert.Contains(t, buf.String(), "Sample")
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	samples := []float64{1.8, 1.9, 3.2, 1.8, 1.7}
	require.NoError(t, WritePNG(&buf, samples, ChartOptions{Min: 0, Max: 4, RateHz: 20}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")), "not a PNG")
}

func TestWritePNG_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, nil, ChartOptions{Min: 0, Max: 4}))
	assert.NotZero(t, buf.Len())
}

type fixed pipeline.Snapshot

func (f fixed) Snapshot() pipeline.Snapshot { return pipeline.Snapshot(f) }

func streaming() fixed {
	status := state.StatusReport{Status: source.StatusStreaming}
	return fixed{
		Samples:        []float64{1, 2, 3},
		Status:         status,
		StatusText:     status.Text(),
		PredictionText: (*state.Prediction)(nil).Text(),
		Counters:       state.Counters{Samples: 3},
	}
}

func TestConsole_Line(t *testing.T) {
	c := &Console{Units: "mV"}
	got := c.Line(pipeline.Snapshot(streaming()))
	assert.Equal(t, "Status: Actively receiving ECG data | Prediction: N/A | mean=2000.00 mV n=3", got)

	c.Units = "bogus"
	assert.Contains(t, c.Line(pipeline.Snapshot(streaming())), "mean=2.00 V")
}

func TestConsole_Run(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(streaming())
	c.Out = &buf
	c.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.GreaterOrEqual(t, len(lines), 2)
	assert.Contains(t, lines[0], "Prediction: N/A")
}
