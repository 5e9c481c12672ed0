package service

import (
	"context"
	"fmt"

	"mandi-advisor/internal/fetcher"
)

// IngestResult is a feed answer plus how many records were persisted.
type IngestResult struct {
	fetcher.Result
	Stored int
}

// Ingest queries the price feed and records each returned row under the
// requested state and district. Rows are persisted only when both were
// given, since a state-wide answer has no single series to belong to.
func (s *Service) Ingest(ctx context.Context, q fetcher.Query) (IngestResult, error) {
	if s.feed == nil {
		return IngestResult{}, ErrFeedNotConfigured
	}

	res, err := s.feed.FetchPrices(ctx, q)
	if err != nil {
		return IngestResult{}, fmt.Errorf("fetch prices: %w", err)
	}
	out := IngestResult{Result: res}
	if q.State == "" || q.District == "" {
		return out, nil
	}

	for _, rec := range res.Records {
		_, err := s.history.Write(ctx, q.State, q.District, rec.Commodity, rec.MinPrice, rec.MaxPrice, rec.ModalPrice)
		if err != nil {
			s.logger.Warn().Err(err).Str("commodity", rec.Commodity).Msg("failed to persist price")
			continue
		}
		out.Stored++
	}
	return out, nil
}
