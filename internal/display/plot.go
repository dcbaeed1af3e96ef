package display

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WritePNG renders samples as a PNG line plot to w.
func WritePNG(w io.Writer, samples []float64, o ChartOptions) error {
	p := plot.New()
	p.Title.Text = o.title(samples)
	p.X.Label.Text = o.xLabel()
	p.Y.Label.Text = "Voltage (" + o.units() + ")"
	if o.Max > o.Min {
		p.Y.Min = o.Min
		p.Y.Max = o.Max
	}
	p.Add(plotter.NewGrid())

	if len(samples) > 0 {
		pts := make(plotter.XYs, len(samples))
		for i, v := range samples {
			pts[i] = plotter.XY{X: o.x(i), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build line: %w", err)
		}
		line.Width = vg.Points(1)
		p.Add(line)
	}

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
