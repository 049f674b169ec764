package projection

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartOptions tunes the HTML rendering of a frame.
type ChartOptions struct {
	// AssetsHost overrides where the echarts javascript is loaded from.
	AssetsHost string
	Subtitle   string
}

// Chart builds a go-echarts line chart of f: the dashed control polyline
// with its markers, the solid trajectory, and the end-effector pin.
func Chart(f Frame, o ChartOptions) *charts.Line {
	line := charts.NewLine()
	init := opts.Initialization{
		PageTitle: fmt.Sprintf("Trajectory %s", strings.ToUpper(string(f.View))),
		Width:     fmt.Sprintf("%dpx", f.Width),
		Height:    fmt.Sprintf("%dpx", f.Height),
	}
	if o.AssetsHost != "" {
		init.AssetsHost = o.AssetsHost
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(opts.Title{Title: strings.ToUpper(string(f.View)), Subtitle: o.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: f.Horizontal, Min: f.HBounds.Min, Max: f.HBounds.Max}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: f.Vertical, Min: f.VBounds.Min, Max: f.VBounds.Max}),
	)

	control := make([]opts.LineData, 0)
	for _, m := range f.MarkersOf(SeriesControl) {
		d := opts.LineData{Name: fmt.Sprintf("Point %d", m.ID), Value: []interface{}{m.Data.X, m.Data.Y}}
		if m.Hidden {
			d.Symbol = "none"
		}
		control = append(control, d)
	}
	line.AddSeries(SeriesControl, control,
		charts.WithLineStyleOpts(opts.LineStyle{Type: string(LineDashed)}),
		charts.WithLineChartOpts(opts.LineChart{Symbol: SymbolCircle, SymbolSize: 2 * ControlRadius, ShowSymbol: opts.Bool(true)}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#FF0000"}),
	)

	var path []opts.LineData
	if l, ok := f.Line(SeriesTrajectory); ok {
		path = make([]opts.LineData, len(l.Data))
		for i, d := range l.Data {
			path[i] = opts.LineData{Value: []interface{}{d.X, d.Y}}
		}
	}
	line.AddSeries(SeriesTrajectory, path,
		charts.WithLineStyleOpts(opts.LineStyle{Type: string(LineSolid), Color: "blue"}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	var pin []opts.LineData
	for _, m := range f.MarkersOf(SeriesEndEffector) {
		pin = append(pin, opts.LineData{Name: "End effector", Value: []interface{}{m.Data.X, m.Data.Y}})
	}
	line.AddSeries(SeriesEndEffector, pin,
		charts.WithLineChartOpts(opts.LineChart{Symbol: SymbolPin, SymbolSize: 2 * EndEffectorRadius, ShowSymbol: opts.Bool(true)}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#000"}),
	)
	return line
}

// RenderHTML writes f as a standalone echarts page.
func RenderHTML(w io.Writer, f Frame, o ChartOptions) error {
	return Chart(f, o).Render(w)
}
