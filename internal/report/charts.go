package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

// DwellHistogramPNG writes a PNG histogram of dwell times. bins <= 0
// lets the plotter choose.
func DwellHistogramPNG(w io.Writer, visits []occupancy.CompletedVisit, bins int) error {
	if len(visits) == 0 {
		return ErrNoVisits
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Dwell time (%d visits)", len(visits))
	p.X.Label.Text = "Dwell (s)"
	p.Y.Label.Text = "Visits"

	h, err := plotter.NewHist(plotter.Values(dwellValues(visits)), bins)
	if err != nil {
		return fmt.Errorf("build histogram: %w", err)
	}
	p.Add(h)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render histogram: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write histogram: %w", err)
	}
	return nil
}

// OccupancyPage renders an HTML page with the live counters and the
// hourly visit trend.
func OccupancyPage(w io.Writer, c occupancy.Counters, trend []HourBucket, summary DwellSummary) error {
	counters := charts.NewBar()
	counters.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy", Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Live counters"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	counters.SetXAxis([]string{"In", "Out", "Inside"}).
		AddSeries("counters", []opts.BarData{
			{Value: c.CountIn},
			{Value: c.CountOut},
			{Value: c.CurrentInside},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	hours := make([]string, len(trend))
	visits := make([]opts.LineData, len(trend))
	dwell := make([]opts.LineData, len(trend))
	for i, b := range trend {
		hours[i] = b.Hour.Format("01-02 15:04")
		visits[i] = opts.LineData{Value: b.Visits}
		dwell[i] = opts.LineData{Value: b.MeanDwell}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Visits per hour",
			Subtitle: fmt.Sprintf("visits=%d mean=%.1fs p85=%.1fs", summary.Visits, summary.Mean, summary.P85),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(hours).
		AddSeries("visits", visits).
		AddSeries("mean dwell (s)", dwell)

	page := components.NewPage()
	page.AddCharts(counters, line)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}
