package service

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"mandi-advisor/internal/storage"
)

// SeedRequest describes a synthetic history to generate.
type SeedRequest struct {
	State     string
	District  string
	Commodity string
	Days      int
	BasePrice decimal.Decimal
	// Rand drives the price noise; nil uses a random seed.
	Rand *rand.Rand
}

// Seed writes Days synthetic daily observations ending today. Modal prices
// wander ±15% around the base with a mild downward drift toward today.
// Returns the backend that took the last write.
func (s *Service) Seed(ctx context.Context, req SeedRequest) (Source, error) {
	if req.Days <= 0 {
		req.Days = DefaultHistoryDays
	}
	if !req.BasePrice.IsPositive() {
		return "", fmt.Errorf("seed base price must be positive")
	}
	rng := req.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	base := req.BasePrice.InexactFloat64()
	today := storage.Day(s.history.now())
	var source Source
	for i := req.Days - 1; i >= 0; i-- {
		variation := (rng.Float64() - 0.5) * 0.3
		drift := float64(i) / float64(req.Days) * 0.2
		modal := decimal.NewFromFloat(base * (1 + variation + drift)).Round(0)
		minPrice := modal.Mul(decimal.NewFromFloat(0.7 + rng.Float64()*0.15)).Round(0)
		maxPrice := modal.Mul(decimal.NewFromFloat(1.15 + rng.Float64()*0.15)).Round(0)

		src, err := s.history.WriteObservation(ctx, storage.PriceObservation{
			State:      req.State,
			District:   req.District,
			Commodity:  req.Commodity,
			Date:       today.AddDate(0, 0, -i),
			MinPrice:   minPrice,
			MaxPrice:   maxPrice,
			ModalPrice: modal,
		})
		if err != nil {
			return src, fmt.Errorf("seed day %d: %w", i, err)
		}
		source = src
	}

	s.logger.Info().
		Str("key", storage.NormalizeKey(req.State, req.District, req.Commodity).String()).
		Int("days", req.Days).
		Str("source", string(source)).
		Msg("history seeded")
	return source, nil
}
