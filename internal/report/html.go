package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lanecount/internal/counting"
)

// WriteHTML renders an interactive page with the per-lane class counts and,
// when crossings are given, the cumulative count over frames.
func WriteHTML(w io.Writer, title string, sum counting.Summary, classes []counting.VehicleClass, crossings []counting.CrossingEvent) error {
	page := components.NewPage()
	page.SetPageTitle(title)
	page.AddCharts(countsBar(sum, classes))
	if len(crossings) > 0 {
		page.AddCharts(cumulativeLine(crossings))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

func countsBar(sum counting.Summary, classes []counting.VehicleClass) *charts.Bar {
	x := make([]string, len(classes))
	for i, c := range classes {
		x[i] = string(c)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Vehicles by lane and class", Subtitle: fmt.Sprintf("total=%d", sum.TotalCounted)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x)
	for _, lane := range counting.Lanes {
		lc := sum.ByLane[lane]
		data := make([]opts.BarData, len(classes))
		for i, c := range classes {
			data[i] = opts.BarData{Value: lc.ByClass[c]}
		}
		bar.AddSeries(string(lane), data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	}
	return bar
}

func cumulativeLine(crossings []counting.CrossingEvent) *charts.Line {
	points := Cumulative(crossings)

	x := make([]string, len(points))
	total := make([]opts.LineData, len(points))
	perLane := make(map[counting.Lane][]opts.LineData, len(counting.Lanes))
	for i, pt := range points {
		x[i] = strconv.FormatInt(pt.Frame, 10)
		total[i] = opts.LineData{Value: pt.Total}
		for _, lane := range counting.Lanes {
			perLane[lane] = append(perLane[lane], opts.LineData{Value: pt.Lane[lane]})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Cumulative count", Subtitle: fmt.Sprintf("crossings=%d", len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Vehicles", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x).AddSeries("total", total)
	for _, lane := range counting.Lanes {
		line.AddSeries(string(lane), perLane[lane])
	}
	return line
}
