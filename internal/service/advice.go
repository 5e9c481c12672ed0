package service

import (
	"context"

	"github.com/shopspring/decimal"

	"mandi-advisor/internal/advisory"
	"mandi-advisor/internal/storage"
)

// AdviceRequest is a current quote for a series.
type AdviceRequest struct {
	State      string
	District   string
	Commodity  string
	MinPrice   decimal.Decimal
	MaxPrice   decimal.Decimal
	ModalPrice decimal.Decimal
}

// Advise reads the default history window for the series and runs the
// advisory engine over it.
func (s *Service) Advise(ctx context.Context, req AdviceRequest) advisory.Recommendation {
	series, source := s.history.Read(ctx, req.State, req.District, req.Commodity, 0)
	quote := advisory.Quote{
		Min:   req.MinPrice.InexactFloat64(),
		Max:   req.MaxPrice.InexactFloat64(),
		Modal: req.ModalPrice.InexactFloat64(),
	}

	rec := s.engine.Recommend(quote, series)
	s.logger.Debug().
		Str("commodity", req.Commodity).
		Str("district", req.District).
		Int("points", len(series)).
		Str("source", string(source)).
		Str("rule", rec.Rule).
		Msg("recommendation computed")
	return rec
}

// PriceHistoryView is a history window with its trend analysis.
type PriceHistoryView struct {
	History  storage.TimeSeries
	Analysis advisory.TrendAnalysis
	Source   Source
}

// PriceHistory returns the newest days observations and their analysis.
func (s *Service) PriceHistory(ctx context.Context, state, district, commodity string, days int) PriceHistoryView {
	series, source := s.history.Read(ctx, state, district, commodity, days)
	return PriceHistoryView{
		History:  series,
		Analysis: advisory.AnalyzeTrend(series),
		Source:   source,
	}
}
