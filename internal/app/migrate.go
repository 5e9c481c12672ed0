package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mandi-advisor/internal/storage"
)

type seriesImporter interface {
	ImportSeries(ctx context.Context, key storage.Key, series storage.TimeSeries) (int, error)
}

type migrateStats struct {
	Series  int
	Written int
	Failed  int
}

// Migrate copies every document-store series into the structured store
// under its existing key.
func (a *App) Migrate(ctx context.Context, opts MigrateOptions) error {
	if a.Config.Database.DSN == "" && !opts.DryRun {
		return errors.New("database.dsn not configured; nothing to migrate into")
	}

	s, closeStores := a.openStores(ctx)
	defer closeStores()

	var dst seriesImporter
	if !opts.DryRun {
		dst = s.postgres
	}

	stats, err := migrateSeries(ctx, s.files, dst, a.Logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "%d series, %d observations written, %d series failed\n", stats.Series, stats.Written, stats.Failed)
	if stats.Failed > 0 {
		return errors.New("some series failed to migrate; check logs")
	}
	return nil
}

// migrateSeries walks src; a nil dst counts observations without writing.
func migrateSeries(ctx context.Context, src *storage.Files, dst seriesImporter, logger zerolog.Logger) (migrateStats, error) {
	var stats migrateStats

	keys, err := src.Keys()
	if err != nil {
		return stats, err
	}

	for _, key := range keys {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		series, err := src.RecentObservations(ctx, key, 0)
		if err != nil {
			return stats, err
		}
		stats.Series++

		if dst == nil {
			stats.Written += len(series)
			logger.Info().Str("key", key.String()).Int("observations", len(series)).Msg("dry-run: would migrate series")
			continue
		}

		written, err := dst.ImportSeries(ctx, key, series)
		stats.Written += written
		if err != nil {
			stats.Failed++
			logger.Error().Err(err).Str("key", key.String()).Int("written", written).Msg("series migration failed")
			continue
		}
		logger.Debug().Str("key", key.String()).Int("observations", written).Msg("series migrated")
	}
	return stats, nil
}
