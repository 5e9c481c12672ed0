package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"mandi-advisor/internal/storage"
)

// Export renders a price series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.State == "" || opts.District == "" || opts.Commodity == "" {
		return errors.New("state, district and commodity are required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	s, closeStores := a.openStores(ctx)
	defer closeStores()

	series, source := a.newHistory(s).Read(ctx, opts.State, opts.District, opts.Commodity, a.Config.ResolveDays(opts.Days))
	if len(series) == 0 {
		a.Logger.Info().Str("source", string(source)).Msg("no history found for export")
		return nil
	}

	// charts and CSVs read oldest to newest
	ordered := make(storage.TimeSeries, len(series))
	for i, obs := range series {
		ordered[len(series)-1-i] = obs
	}

	downsampled := downsampleSeries(ordered, opts.MaxPoints)
	a.Logger.Info().Int("total", len(ordered)).Int("exported", len(downsampled)).Str("source", string(source)).Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		title := fmt.Sprintf("%s, %s, %s", opts.Commodity, opts.District, opts.State)
		if err := writeSeriesPNG(opts.PNGPath, title, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSeries(series storage.TimeSeries, max int) storage.TimeSeries {
	if max <= 0 || len(series) <= max {
		return series
	}
	if max == 1 {
		return series[len(series)-1:]
	}

	result := make(storage.TimeSeries, 0, max)
	step := float64(len(series)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(series) {
			idx = len(series) - 1
		}
		result = append(result, series[idx])
	}
	return result
}

func writeSeriesCSV(path string, series storage.TimeSeries) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "min_price", "max_price", "modal_price"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, obs := range series {
		record := []string{
			obs.Date.UTC().Format(storage.DateLayout),
			obs.MinPrice.String(),
			obs.MaxPrice.String(),
			obs.ModalPrice.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSeriesPNG(path, title string, series storage.TimeSeries) error {
	if len(series) < 2 {
		return errors.New("a chart needs at least two days of history")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(series))
	minPrices := make([]float64, len(series))
	maxPrices := make([]float64, len(series))
	modal := make([]float64, len(series))

	for i, obs := range series {
		x[i] = obs.Date
		minPrices[i] = obs.MinPrice.InexactFloat64()
		maxPrices[i] = obs.MaxPrice.InexactFloat64()
		modal[i] = obs.ModalPrice.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (₹/quintal)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Modal",
				XValues: x,
				YValues: modal,
			},
			chart.TimeSeries{
				Name:    "Min",
				XValues: x,
				YValues: minPrices,
				Style:   chart.Style{StrokeDashArray: []float64{5.0, 5.0}},
			},
			chart.TimeSeries{
				Name:    "Max",
				XValues: x,
				YValues: maxPrices,
				Style:   chart.Style{StrokeDashArray: []float64{5.0, 5.0}},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
