package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"mandi-advisor/internal/advisory"
	"mandi-advisor/internal/alerting"
	"mandi-advisor/internal/config"
	"mandi-advisor/internal/fetcher"
	"mandi-advisor/internal/logging"
	"mandi-advisor/internal/scheduler"
	"mandi-advisor/internal/service"
	"mandi-advisor/internal/storage"
	"mandi-advisor/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output tables.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), Out: os.Stdout}
}

// stores holds both persistence variants. postgres is nil without a DSN.
type stores struct {
	postgres *storage.Postgres
	files    *storage.Files
}

func (s *stores) primary() storage.Backend {
	if s.postgres == nil {
		return nil
	}
	return s.postgres
}

func (s *stores) locker() storage.AdvisoryLocker {
	if s.postgres == nil {
		return nil
	}
	return s.postgres
}

func (a *App) openStores(ctx context.Context) (*stores, func()) {
	files := storage.NewOSFiles(a.Config.Fallback.Dir, storage.FilesOptions{
		HistoryCap: a.Config.Fallback.HistoryCap,
		ChecksCap:  a.Config.Fallback.ChecksCap,
	}, a.Logger)
	s := &stores{files: files}

	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Str("dir", a.Config.Fallback.Dir).Msg("database.dsn not configured; using document store only")
		return s, func() {}
	}

	s.postgres = storage.NewPostgres(a.Config.Database, a.Logger)
	if a.Config.Database.Bootstrap {
		if err := s.postgres.EnsureSchema(ctx); err != nil {
			// the store is re-probed per call, so startup continues
			a.Logger.Warn().Err(err).Msg("schema bootstrap failed")
		}
	}
	return s, s.postgres.Close
}

func (a *App) newFeed() fetcher.PriceFeed {
	cfg := a.Config.Feed
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}
	return fetcher.NewFeed(fetcher.FeedOptions{
		BaseURL:        cfg.BaseURL,
		ResourceID:     cfg.ResourceID,
		APIKey:         cfg.APIKey,
		UserAgent:      cfg.UserAgent,
		Timeout:        cfg.RequestTimeout,
		RequestsPerSec: cfg.RequestsPerSec,
		MaxRetries:     cfg.MaxRetries,
		Limit:          cfg.Limit,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newScheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Options{
		Interval:      a.Config.Collector.Interval,
		AlignToBucket: a.Config.Collector.AlignToBucket,
		StartupDelay:  a.Config.Collector.StartupDelay,
		Immediate:     a.Config.Collector.RunOnStart,
	}, a.Logger)
}

func (a *App) newHistory(s *stores) *service.History {
	return service.NewHistory(s.primary(), s.files, a.Config.History.DefaultDays, a.Logger)
}

// newService wires the service with a feed; sched may be nil.
func (a *App) newService(s *stores, sched *scheduler.Scheduler) *service.Service {
	var notifier alerting.Notifier
	if a.Config.Alerting.Enabled {
		notifier = a.newNotifier()
	}
	return service.New(a.Config, a.newHistory(s), advisory.NewEngine(), a.newFeed(), sched, notifier, s.locker(), a.Logger)
}

// ShowOptions configure the show command.
type ShowOptions struct {
	State     string
	District  string
	Commodity string
	Days      int
}

// RecommendOptions configure the recommend command.
type RecommendOptions struct {
	service.AdviceRequest
	JSON bool
}

// IngestOptions configure the ingest command.
type IngestOptions struct {
	fetcher.Query
}

// ExportOptions hold parameters for exporting a price series.
type ExportOptions struct {
	State     string
	District  string
	Commodity string
	Days      int
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SeedOptions configure synthetic history generation.
type SeedOptions struct {
	service.SeedRequest
}

// MigrateOptions configure the document-to-database copy.
type MigrateOptions struct {
	DryRun bool
}
