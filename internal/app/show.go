package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"mandi-advisor/internal/advisory"
	"mandi-advisor/internal/storage"
)

// Show prints a price history and its trend analysis.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.State == "" || opts.District == "" || opts.Commodity == "" {
		return errors.New("state, district and commodity are required")
	}

	s, closeStores := a.openStores(ctx)
	defer closeStores()

	history := a.newHistory(s)
	series, source := history.Read(ctx, opts.State, opts.District, opts.Commodity, a.Config.ResolveDays(opts.Days))
	if len(series) == 0 {
		fmt.Fprintf(a.Out, "no history for %s (source: %s)\n", storage.NormalizeKey(opts.State, opts.District, opts.Commodity), source)
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tMin\tMax\tModal")
	for _, obs := range series {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			obs.Date.UTC().Format(storage.DateLayout),
			formatDecimal(obs.MinPrice, 0),
			formatDecimal(obs.MaxPrice, 0),
			formatDecimal(obs.ModalPrice, 0),
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	analysis := advisory.AnalyzeTrend(series)
	fmt.Fprintf(a.Out, "\n%d days from %s\n", len(series), source)
	fmt.Fprintf(a.Out, "trend: %s (%.1f%%), volatility %.1f%%, range position %.0f%%\n",
		analysis.Trend, analysis.TrendPct, analysis.VolatilityPct, analysis.PricePercentile)
	fmt.Fprintf(a.Out, "%s: %s\n", analysis.Recommendation, analysis.Reason)
	return nil
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
