package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"mandi-advisor/internal/service"
	"mandi-advisor/internal/storage"
)

// Recommend prints advice for a quote against the stored history.
func (a *App) Recommend(ctx context.Context, opts RecommendOptions) error {
	req := opts.AdviceRequest
	if req.State == "" || req.District == "" || req.Commodity == "" {
		return errors.New("state, district and commodity are required")
	}

	s, closeStores := a.openStores(ctx)
	defer closeStores()

	svc := a.newService(s, nil)
	rec := svc.Advise(ctx, req)

	if opts.JSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprintf(a.Out, "%s (%s confidence)\n", rec.Action, rec.Confidence)
	fmt.Fprintln(a.Out, rec.Reason)
	fmt.Fprintln(a.Out, rec.ReasonHi)
	if rec.TrendPct != nil {
		fmt.Fprintf(a.Out, "trend %.1f%%, volatility %.1f%%, percentile %.0f\n", *rec.TrendPct, *rec.VolatilityPct, *rec.PricePercentile)
	}
	return nil
}

// Ingest queries the price feed once and records the answer.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	if opts.State == "" {
		return errors.New("state is required")
	}

	s, closeStores := a.openStores(ctx)
	defer closeStores()

	svc := a.newService(s, nil)
	res, err := svc.Ingest(ctx, opts.Query)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Commodity\tMarket\tDistrict\tArrival\tMin\tMax\tModal")
	for _, rec := range res.Records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Commodity, rec.Market, rec.District, rec.ArrivalDate,
			formatDecimal(rec.MinPrice, 0), formatDecimal(rec.MaxPrice, 0), formatDecimal(rec.ModalPrice, 0))
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	note := ""
	if res.IsFallback {
		note = " (state-wide fallback)"
	}
	fmt.Fprintf(a.Out, "\n%d records%s, %d stored\n", len(res.Records), note, res.Stored)
	return nil
}

// Seed writes synthetic history for one series.
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	if opts.State == "" || opts.District == "" || opts.Commodity == "" {
		return errors.New("state, district and commodity are required")
	}

	s, closeStores := a.openStores(ctx)
	defer closeStores()

	req := opts.SeedRequest
	req.Days = a.Config.ResolveDays(req.Days)

	svc := a.newService(s, nil)
	src, err := svc.Seed(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "seeded %d days into %s\n", req.Days, src)
	return nil
}

// InitDB applies the schema to the structured store.
func (a *App) InitDB(ctx context.Context) error {
	if a.Config.Database.DSN == "" {
		fmt.Fprintln(a.Out, "No database connection available, using file system storage")
		return nil
	}

	pg := storage.NewPostgres(a.Config.Database, a.Logger)
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		if service.IsUnavailable(err) {
			fmt.Fprintln(a.Out, "Database unreachable, using file system storage")
		}
		return err
	}
	fmt.Fprintln(a.Out, "Database initialized successfully")
	return nil
}
