package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mandi-advisor/internal/advisory"
	"mandi-advisor/internal/alerting"
	"mandi-advisor/internal/config"
	"mandi-advisor/internal/fetcher"
	"mandi-advisor/internal/scheduler"
	"mandi-advisor/internal/storage"
)

// ErrFeedNotConfigured is returned by ingestion when no price feed is wired.
var ErrFeedNotConfigured = errors.New("price feed not configured")

// Service orchestrates ingestion, history, advice, and notices.
type Service struct {
	history   *History
	engine    *advisory.Engine
	feed      fetcher.PriceFeed
	scheduler *scheduler.Scheduler
	notifier  alerting.Notifier
	logger    zerolog.Logger

	regions  []config.Region
	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64
}

// New constructs the advisory service. feed, sched, notifier, and locker
// are optional.
func New(cfg *config.Config, history *History, engine *advisory.Engine, feed fetcher.PriceFeed, sched *scheduler.Scheduler, notifier alerting.Notifier, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	regions, err := cfg.Collector.ParseRegions()
	if err != nil {
		// Load validates regions; a hand-built config may not have been.
		logger.Warn().Err(err).Msg("ignoring malformed collector regions")
		regions = nil
	}
	if engine == nil {
		engine = advisory.NewEngine()
	}

	return &Service{
		history:   history,
		engine:    engine,
		feed:      feed,
		scheduler: sched,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		regions:   regions,
		alertsOn:  cfg.Alerting.Enabled,
		locker:    locker,
		lockKey:   cfg.Collector.LockKey,
	}
}

// History exposes the underlying history service.
func (s *Service) History() *History {
	return s.history
}

// Run begins the scheduled collection loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if len(s.regions) == 0 {
		return fmt.Errorf("no collector regions configured")
	}
	return s.scheduler.Run(ctx, s.Collect)
}

// Collect ingests every configured region once and dispatches SELL/HIGH
// notices. Only one process collects a window when a lock is available.
func (s *Service) Collect(ctx context.Context, window time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("window", window).Msg("skip window because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	var failed int
	for _, region := range s.regions {
		result, err := s.Ingest(ctx, fetcher.Query{State: region.State, District: region.District})
		if err != nil {
			failed++
			s.logger.Error().Err(err).Str("state", region.State).Str("district", region.District).Msg("region ingestion failed")
			continue
		}
		s.logger.Info().
			Time("window", window).
			Str("state", region.State).
			Str("district", region.District).
			Int("records", len(result.Records)).
			Int("stored", result.Stored).
			Bool("fallback", result.IsFallback).
			Msg("region collected")

		if s.alertsOn && s.notifier != nil {
			s.notify(ctx, window, region, result.Records)
		}
	}

	if failed == len(s.regions) {
		return fmt.Errorf("all %d regions failed", failed)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, window time.Time, region config.Region, records []fetcher.Record) {
	for _, rec := range records {
		advice := s.Advise(ctx, AdviceRequest{
			State:      region.State,
			District:   region.District,
			Commodity:  rec.Commodity,
			MinPrice:   rec.MinPrice,
			MaxPrice:   rec.MaxPrice,
			ModalPrice: rec.ModalPrice,
		})
		if advice.Action != advisory.Sell || advice.Confidence != advisory.High {
			continue
		}

		note := alerting.Notification{
			CollectedAt: window,
			State:       region.State,
			District:    region.District,
			Commodity:   rec.Commodity,
			Market:      rec.Market,
			MinPrice:    rec.MinPrice,
			MaxPrice:    rec.MaxPrice,
			ModalPrice:  rec.ModalPrice,
			Action:      string(advice.Action),
			Confidence:  string(advice.Confidence),
			Reason:      advice.Reason,
			ReasonHi:    advice.ReasonHi,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("commodity", rec.Commodity).Msg("failed to dispatch notice")
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		// an unreachable primary must not stop collection into the fallback
		if errors.Is(err, storage.ErrUnavailable) || errors.Is(err, storage.ErrNotConfigured) {
			s.logger.Warn().Err(err).Msg("collecting without advisory lock")
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
