package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mandi-advisor/internal/api"
	"mandi-advisor/internal/scheduler"
)

// ServeOptions configure the serve command.
type ServeOptions struct {
	Addr           string
	DisableCollect bool
}

// Serve runs the HTTP API and, when regions are configured, the scheduled
// collector until a termination signal arrives.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, closeStores := a.openStores(ctx)
	defer closeStores()

	collect := !opts.DisableCollect && len(a.Config.Collector.Regions) > 0
	var sched *scheduler.Scheduler
	if collect {
		var err error
		if sched, err = a.newScheduler(); err != nil {
			return err
		}
	}
	svc := a.newService(s, sched)

	handlerOpts := api.Options{
		StatsWindow:    a.Config.Fallback.ChecksCap,
		RequestTimeout: a.Config.HTTP.RequestTimeout,
	}
	if s.postgres != nil {
		handlerOpts.Schema = s.postgres
	}
	handler := api.NewHandler(svc, handlerOpts, a.Logger)

	addr := a.Config.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.Config.HTTP.ReadTimeout,
		WriteTimeout:      a.Config.HTTP.WriteTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		a.Logger.Info().Str("addr", addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if collect {
		group.Go(func() error {
			a.Logger.Info().Strs("regions", a.Config.Collector.Regions).Msg("starting price collector")
			if err := svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("server terminated with error")
		return err
	}
	a.Logger.Info().Msg("server stopped")
	return nil
}
