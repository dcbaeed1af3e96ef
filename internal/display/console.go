package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/fatih/color"

	"github.com/banshee-data/arrhythmix/internal/pipeline"
	"github.com/banshee-data/arrhythmix/internal/source"
	"github.com/banshee-data/arrhythmix/internal/units"
)

// DefaultInterval is the console refresh cadence.
const DefaultInterval = 300 * time.Millisecond

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Snapshotter is anything that can produce a display view.
type Snapshotter interface {
	Snapshot() pipeline.Snapshot
}

// Console prints one status line per tick. It only reads snapshots.
type Console struct {
	Source   Snapshotter
	Out      io.Writer
	Interval time.Duration
	Units    string
}

// NewConsole writes to stdout at DefaultInterval.
func NewConsole(src Snapshotter) *Console {
	return &Console{Source: src, Out: os.Stdout, Interval: DefaultInterval, Units: units.Volts}
}

// Run prints until ctx is cancelled.
func (c *Console) Run(ctx context.Context) {
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Print()
		}
	}
}

// Print writes a single line for the current snapshot.
func (c *Console) Print() {
	fmt.Fprintln(c.Out, c.Line(c.Source.Snapshot()))
}

// Line formats snap as "<status> | <prediction> | mean=x.xx V n=N".
func (c *Console) Line(snap pipeline.Snapshot) string {
	u := c.Units
	if !units.IsValid(u) {
		u = units.Volts
	}
	sum := Summarize(units.ConvertSeries(slices.Clone(snap.Samples), u))

	pred := snap.PredictionText
	if snap.Prediction.IsError() {
		pred = red.Sprint(pred)
	}
	return fmt.Sprintf("%s | %s | mean=%.2f %s n=%d",
		statusColour(snap.Status.Status).Sprint(snap.StatusText), pred, sum.Mean, u, snap.Counters.Samples)
}

func statusColour(s source.Status) *color.Color {
	switch s {
	case source.StatusStreaming, source.StatusConnected:
		return green
	case source.StatusLeadsOff, source.StatusDiscovering:
		return yellow
	case source.StatusError, source.StatusDisconnected:
		return red
	}
	return cyan
}
