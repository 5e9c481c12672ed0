package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mandi-advisor/internal/storage"
)

// DefaultHistoryDays is the read window when callers pass a non-positive day count.
const DefaultHistoryDays = 30

// Upper bounds for caller-supplied read sizes.
const (
	MaxHistoryDays = 3650
	MaxCheckLimit  = 500
)

// Source names the backend that served a call.
type Source string

const (
	SourcePrimary  Source = "database"
	SourceFallback Source = "file"
)

// History routes persistence between the structured store and the document
// fallback. Each call probes the primary; the fallback serves only when the
// primary reports an error.
type History struct {
	primary     storage.Backend
	fallback    storage.Backend
	defaultDays int
	logger      zerolog.Logger
	now         func() time.Time
}

// NewHistory constructs the history service. primary may be nil when no
// structured store is configured.
func NewHistory(primary, fallback storage.Backend, defaultDays int, logger zerolog.Logger) *History {
	if defaultDays <= 0 {
		defaultDays = DefaultHistoryDays
	}
	return &History{
		primary:     primary,
		fallback:    fallback,
		defaultDays: defaultDays,
		logger:      logger.With().Str("component", "history").Logger(),
		now:         time.Now,
	}
}

var errNoPrimary = fmt.Errorf("primary store: %w", storage.ErrUnavailable)

func (h *History) hasPrimary() bool {
	if h.primary == nil {
		return false
	}
	if c, ok := h.primary.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

// Write records today's prices for the given series.
func (h *History) Write(ctx context.Context, state, district, commodity string, minPrice, maxPrice, modalPrice decimal.Decimal) (Source, error) {
	return h.WriteObservation(ctx, storage.PriceObservation{
		State:      state,
		District:   district,
		Commodity:  commodity,
		Date:       h.now(),
		MinPrice:   minPrice,
		MaxPrice:   maxPrice,
		ModalPrice: modalPrice,
	})
}

// WriteObservation records prices for an explicit date. Exactly one backend
// receives the write.
func (h *History) WriteObservation(ctx context.Context, obs storage.PriceObservation) (Source, error) {
	obs.Date = storage.Day(obs.Date)
	key := obs.Key()

	err := errNoPrimary
	if h.hasPrimary() {
		err = h.primary.UpsertObservation(ctx, obs)
		if err == nil {
			return SourcePrimary, nil
		}
	}

	h.logger.Debug().Err(err).Str("key", key.String()).Msg("writing price to fallback store")
	if ferr := h.fallback.UpsertObservation(ctx, obs); ferr != nil {
		return SourceFallback, fmt.Errorf("write %s: %w", key, ferr)
	}
	return SourceFallback, nil
}

// Read returns up to days observations, newest first. An empty primary
// answer is returned as is; only a primary error consults the fallback.
func (h *History) Read(ctx context.Context, state, district, commodity string, days int) (storage.TimeSeries, Source) {
	if days <= 0 {
		days = h.defaultDays
	}
	days = min(days, MaxHistoryDays)
	key := storage.NormalizeKey(state, district, commodity)

	if h.hasPrimary() {
		series, err := h.primary.RecentObservations(ctx, key, days)
		if err == nil {
			series.SortNewestFirst()
			return series, SourcePrimary
		}
		h.logger.Debug().Err(err).Str("key", key.String()).Msg("reading price history from fallback store")
	}

	series, err := h.fallback.RecentObservations(ctx, key, days)
	if err != nil {
		h.logger.Warn().Err(err).Str("key", key.String()).Msg("fallback read failed")
		return storage.TimeSeries{}, SourceFallback
	}
	series.SortNewestFirst()
	return series.Window(days), SourceFallback
}

// RecordCheck appends a user check to whichever store is reachable.
func (h *History) RecordCheck(ctx context.Context, check storage.UserCheck) (Source, error) {
	if check.CheckedAt.IsZero() {
		check.CheckedAt = h.now().UTC()
	}
	if h.hasPrimary() {
		err := h.primary.AppendUserCheck(ctx, check)
		if err == nil {
			return SourcePrimary, nil
		}
		h.logger.Debug().Err(err).Msg("recording user check in fallback store")
	}
	if err := h.fallback.AppendUserCheck(ctx, check); err != nil {
		return SourceFallback, fmt.Errorf("record check: %w", err)
	}
	return SourceFallback, nil
}

// RecentChecks lists the most recent user checks, newest first.
func (h *History) RecentChecks(ctx context.Context, limit int) ([]storage.UserCheck, Source) {
	limit = min(limit, MaxCheckLimit)
	if h.hasPrimary() {
		checks, err := h.primary.RecentUserChecks(ctx, limit)
		if err == nil {
			return checks, SourcePrimary
		}
		h.logger.Debug().Err(err).Msg("reading user checks from fallback store")
	}
	checks, err := h.fallback.RecentUserChecks(ctx, limit)
	if err != nil {
		h.logger.Warn().Err(err).Msg("fallback check read failed")
		return []storage.UserCheck{}, SourceFallback
	}
	return checks, SourceFallback
}

// CheckStats counts commodities across the newest window checks.
func (h *History) CheckStats(ctx context.Context, window int) ([]storage.CommodityCount, Source) {
	if h.hasPrimary() {
		stats, err := h.primary.CommodityStats(ctx, window)
		if err == nil {
			return stats, SourcePrimary
		}
		h.logger.Debug().Err(err).Msg("reading check stats from fallback store")
	}
	stats, err := h.fallback.CommodityStats(ctx, window)
	if err != nil {
		h.logger.Warn().Err(err).Msg("fallback stats read failed")
		return []storage.CommodityCount{}, SourceFallback
	}
	return stats, SourceFallback
}

// IsUnavailable reports whether err means a backend could not serve the call.
func IsUnavailable(err error) bool {
	return errors.Is(err, storage.ErrUnavailable)
}
