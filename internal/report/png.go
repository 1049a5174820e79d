package report

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lanecount/internal/counting"
)

var barWidth = vg.Points(18)

// WritePNG renders per-lane counts by class as a grouped bar chart. The
// image format follows the extension of path (.png, .svg, .pdf).
func WritePNG(path string, sum counting.Summary, classes []counting.VehicleClass) error {
	if len(classes) == 0 {
		return fmt.Errorf("no classes to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Vehicles counted: %d", sum.TotalCounted)
	p.X.Label.Text = "Class"
	p.Y.Label.Text = "Count"
	p.Y.Min = 0

	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = string(c)
	}

	nLanes := len(counting.Lanes)
	for i, lane := range counting.Lanes {
		lc := sum.ByLane[lane]
		values := make(plotter.Values, len(classes))
		for j, c := range classes {
			values[j] = float64(lc.ByClass[c])
		}

		bars, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return fmt.Errorf("failed to build %s bars: %w", lane, err)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = barWidth * vg.Length(2*i-nLanes+1) / 2

		p.Add(bars)
		p.Legend.Add(fmt.Sprintf("%s (%d)", lane, lc.Total), bars)
	}
	p.NominalX(names...)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	return nil
}
