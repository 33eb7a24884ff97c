package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/servicepoller/internal/config"
	"github.com/hamed0406/servicepoller/internal/httpapi"
	"github.com/hamed0406/servicepoller/internal/logging"
	"github.com/hamed0406/servicepoller/internal/metrics"
	"github.com/hamed0406/servicepoller/internal/notify"
	"github.com/hamed0406/servicepoller/internal/probe"
	"github.com/hamed0406/servicepoller/internal/repo"
	bdg "github.com/hamed0406/servicepoller/internal/repo/badger"
	"github.com/hamed0406/servicepoller/internal/repo/memory"
	pg "github.com/hamed0406/servicepoller/internal/repo/postgres"
	"github.com/hamed0406/servicepoller/internal/scheduler"
	"github.com/hamed0406/servicepoller/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API and the background poller",
	Long: `Start the HTTP API and the background poller.

The store is chosen from the configuration: DATABASE_URL selects
PostgreSQL, otherwise BADGER_PATH selects an embedded on-disk store,
otherwise endpoints are kept in memory.

Runs until interrupted (Ctrl+C) or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "", "path to a YAML config file")
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogStdout)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var traceOut io.Writer = io.Discard
	if cfg.TraceStdout {
		traceOut = os.Stdout
	}
	shutdownTracing, err := tracing.Setup(cfg.TraceStdout, traceOut)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store_open_error", zap.String("kind", cfg.StoreKind()), zap.Error(err))
		return err
	}
	logger.Info("store_opened", zap.String("kind", cfg.StoreKind()))

	m := metrics.New()
	hub := notify.NewHub(logger, cfg.AllowedOrigins)
	observers := notify.Multi{hub}
	var nc *notify.NATS
	if cfg.NATSURL != "" {
		nc, err = notify.NewNATS(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			// events are best effort; keep serving without them
			logger.Warn("nats_connect_error", zap.String("url", cfg.NATSURL), zap.Error(err))
		} else {
			observers = append(observers, nc)
			logger.Info("nats_connected", zap.String("subject", cfg.NATSSubject))
		}
	}

	checker := probe.NewHTTPChecker(cfg.ProbeTimeout)
	poller := scheduler.NewPoller(logger, store, checker, cfg.PollInterval, cfg.ProbeTimeout)
	poller.PollOnStart = cfg.PollOnStart
	poller.Notifier = observers
	poller.Metrics = m

	api := httpapi.NewServer(logger, store, m, hub, httpapi.Options{
		AdminKeys:      cfg.AdminAPIKeys,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimitRPM:   cfg.RateLimitRPM,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err = <-serveErr:
		logger.Error("api_serve_error", zap.Error(err))
		stop()
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = multierr.Append(err, srv.Shutdown(shutCtx))
	// store and notifiers outlive every in-flight write-back
	drainPoller(logger, pollerDone, shutCtx.Done())
	hub.Close()
	if nc != nil {
		err = multierr.Append(err, nc.Close())
	}
	checker.CloseIdleConnections()
	err = multierr.Combine(err, store.Close(), shutdownTracing(shutCtx))
	if err != nil {
		logger.Error("shutdown_error", zap.Error(err))
		return err
	}
	logger.Info("shutdown_complete")
	return nil
}

// drainPoller blocks until the poller has returned. Past the deadline it
// logs once and keeps waiting.
func drainPoller(log *zap.Logger, done, deadline <-chan struct{}) {
	select {
	case <-done:
		return
	case <-deadline:
		log.Warn("poller_shutdown_slow", zap.Duration("timeout", shutdownTimeout))
	}
	<-done
	log.Info("poller_drained")
}

// openStore picks the endpoint store selected by cfg.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.Store, error) {
	switch cfg.StoreKind() {
	case config.StorePostgres:
		s, err := pg.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			return nil, multierr.Append(fmt.Errorf("postgres migrate: %w", err), s.Close())
		}
		return s, nil
	case config.StoreBadger:
		s, err := bdg.Open(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("badger: %w", err)
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}
