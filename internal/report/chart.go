// Package report renders snapshot data as self-contained HTML charts for
// quick visual inspection without the desktop shell.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/orangewave/cardio/internal/ecg"
	"github.com/orangewave/cardio/internal/units"
)

// RenderSignalChart writes an HTML page with the snapshot's voltage trace and
// detected R peaks overlaid as scatter markers.
func RenderSignalChart(w io.Writer, snap ecg.Snapshot) error {
	line := charts.NewLine()

	subtitle := "signal invalid"
	if snap.Rate.Valid {
		subtitle = fmt.Sprintf("%.1f BPM (filtered), %.1f BPM (instant), Pk-Pk %sV",
			snap.Rate.BPMFiltered, snap.Rate.BPMInstant, units.FormatVoltage(snap.PeakToPeak))
	}

	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "ECG Signal",
			Theme:     "dark",
			Width:     "1200px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("ECG signal, %d samples", len(snap.Samples)),
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "V", Scale: opts.Bool(true)}),
	)

	xs := make([]string, 0, len(snap.Samples))
	ys := make([]opts.LineData, 0, len(snap.Samples))
	for _, s := range snap.Samples {
		xs = append(xs, units.FormatTimestamp(s.Timestamp))
		ys = append(ys, opts.LineData{Value: s.Voltage})
	}
	line.SetXAxis(xs).AddSeries("voltage", ys,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	if len(snap.Peaks) > 0 {
		scatter := charts.NewScatter()
		points := make([]opts.ScatterData, 0, len(snap.Peaks))
		for _, p := range snap.Peaks {
			points = append(points, opts.ScatterData{
				Value: []interface{}{units.FormatTimestamp(p.Timestamp), p.Voltage},
			})
		}
		scatter.AddSeries("R peaks", points,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
		line.Overlap(scatter)
	}

	return line.Render(w)
}
