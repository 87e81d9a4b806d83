package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/groupledger/internal/cache"
	"github.com/mmynk/groupledger/internal/config"
	"github.com/mmynk/groupledger/internal/delivery"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/serializer"
	"github.com/mmynk/groupledger/internal/service"
	"github.com/mmynk/groupledger/internal/storage/sqlite"
	"github.com/mmynk/groupledger/internal/transport/telegram"
	"github.com/mmynk/groupledger/pkg/logging"
)

type serveCmd struct {
	dataDir     string
	metricsAddr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the bot" }
func (*serveCmd) Usage() string {
	return `ledgerbot serve [-data <dir>] [-metrics <addr>]

  Polls Telegram for updates and serves Prometheus metrics.
  BOT_TOKEN must be set. Other settings come from LEDGER_* variables.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dataDir, "data", "", "Data directory (overrides LEDGER_DATA_DIR).")
	f.StringVar(&c.metricsAddr, "metrics", "", "Metrics listen address (overrides LEDGER_METRICS_ADDR); \"off\" disables.")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(c.dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if c.metricsAddr == "off" {
		cfg.MetricsAddr = ""
	} else if c.metricsAddr != "" {
		cfg.MetricsAddr = c.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil {
		slog.Error("Server failed", "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func serve(ctx context.Context, cfg config.Config) error {
	store, err := sqlite.New(cfg.DataDir, slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "data_dir", cfg.DataDir)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bot, err := telegram.New(cfg.BotToken, telegram.Options{
		Timeouts: telegram.Timeouts{
			Connect: cfg.ConnectTimeout,
			Read:    cfg.ReadTimeout,
			Pool:    cfg.PoolTimeout,
		},
		PollTimeout: cfg.PollTimeout,
	})
	if err != nil {
		return err
	}

	l := ledger.New(store, serializer.New(), cache.NewActiveCycles(),
		ledger.WithPageSize(cfg.PageSize),
		ledger.WithLogger(slog.Default()),
	)
	admins := cache.NewAdmins(bot, cfg.AdminCacheTTL, cache.WithLogger(slog.Default()))
	out := delivery.NewRobust(bot, delivery.NewRetrier(cfg.DeliveryAttempts, cfg.DeliveryBaseDelay, m))
	svc := service.New(l, admins, out, service.WithMetrics(m))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Polling for updates", "poll_timeout", cfg.PollTimeout)
		return bot.Run(ctx, svc)
	})
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           loggingMiddleware(metricsMux(reg)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("Metrics server starting", "address", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	slog.Info("Shut down")
	return err
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

// loggingMiddleware logs every request to the metrics server.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// loadConfig reads the environment, applies the data directory override
// and configures logging.
func loadConfig(dataDir string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))
	return cfg, nil
}
