package stats

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// reportTitle heads the generated statistics page.
const reportTitle = "Tactician extraction report"

// WriteHTMLReport renders the snapshot's histograms as an HTML page.
func WriteHTMLReport(w io.Writer, snap Snapshot) error {
	page := components.NewPage()
	page.PageTitle = reportTitle

	page.AddCharts(
		histogram("Puzzles by objective", snap.Objectives),
		histogram("Puzzles by game phase", snap.Phases),
		histogram("Rejections by reason", snap.Rejections),
	)

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render stats report: %w", err)
	}

	return nil
}

// histogram builds one bar chart from a category count map.
func histogram(title string, counts map[string]int) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
	)

	keys := sortedKeys(counts)
	data := make([]opts.BarData, len(keys))

	for i, key := range keys {
		data[i] = opts.BarData{Value: counts[key]}
	}

	bar.SetXAxis(keys).AddSeries("count", data)

	return bar
}
