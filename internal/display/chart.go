package display

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartOptions controls RenderChart and WritePNG.
type ChartOptions struct {
	Title string
	Units string
	// Min and Max fix the y range; equal values let the renderer choose.
	Min, Max float64
	// RateHz labels the x axis in seconds when positive, sample index otherwise.
	RateHz     float64
	AssetsHost string
}

func (o ChartOptions) title(samples []float64) string {
	t := o.Title
	if t == "" {
		t = "Live ECG"
	}
	return fmt.Sprintf("%s (mean=%.2f %s)", t, Summarize(samples).Mean, o.units())
}

func (o ChartOptions) units() string {
	if o.Units == "" {
		return "V"
	}
	return o.Units
}

func (o ChartOptions) xLabel() string {
	if o.RateHz > 0 {
		return "Time (s)"
	}
	return "Sample"
}

func (o ChartOptions) x(i int) float64 {
	if o.RateHz > 0 {
		return float64(i) / o.RateHz
	}
	return float64(i)
}

// RenderChart writes an HTML line chart of samples to w.
func RenderChart(w io.Writer, samples []float64, o ChartOptions) error {
	xs := make([]string, len(samples))
	data := make([]opts.LineData, len(samples))
	for i, v := range samples {
		xs[i] = strconv.FormatFloat(o.x(i), 'f', -1, 64)
		data[i] = opts.LineData{Value: v}
	}

	y := opts.YAxis{Name: "Voltage (" + o.units() + ")", NameLocation: "middle", NameGap: 40}
	if o.Max > o.Min {
		y.Min = o.Min
		y.Max = o.Max
	}
	init := opts.Initialization{PageTitle: "Live ECG", Width: "100%", Height: "480px"}
	if o.AssetsHost != "" {
		init.AssetsHost = o.AssetsHost
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(opts.Title{Title: o.title(samples), Subtitle: fmt.Sprintf("points=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: o.xLabel(), NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(y),
	)
	line.SetXAxis(xs).AddSeries("ecg", data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line.Render(w)
}
