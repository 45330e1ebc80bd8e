package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	jobqueue "github.com/avenlane/jobqueue"
	"github.com/avenlane/jobqueue/admission"
	"github.com/avenlane/jobqueue/api"
	"github.com/avenlane/jobqueue/authn"
	"github.com/avenlane/jobqueue/config"
	"github.com/avenlane/jobqueue/eventbus"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/metrics"
	"github.com/avenlane/jobqueue/service"
	"github.com/avenlane/jobqueue/store/pg"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jobqueue",
		Short: "Multi-tenant distributed job queue engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the jobs, dlq and tenants tables if they don't exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := pg.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return pg.InitDB(cmd.Context(), db)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API, WebSocket feed, worker pool, reaper and retention worker until signaled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFor(cfg.Debug),
	}))

	db, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := pg.InitDB(ctx, db); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	s := pg.NewStore(db)
	bus := eventbus.New(log)
	a := admission.New(s)
	queue := jobqueue.NewQueueWithBus(s, bus)
	svc := service.New(a, s, bus)
	coll := metrics.New(bus, log)
	if err := coll.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	statusGauge := metrics.NewStatusGauge(s)
	if err := statusGauge.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register status gauge: %w", err)
	}

	hub := api.NewHub(bus, log)
	go hub.Run()

	jwtAuth := authn.New([]byte(cfg.JWTSecret), s)
	srv := api.NewServer(svc, s, bus, hub)
	handler := api.Handler(srv, jwtAuth, log)

	topMux := http.NewServeMux()
	topMux.Handle("/metrics", promhttp.Handler())
	topMux.Handle("/", handler)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler: topMux,
	}

	pool := jobqueue.NewWorkerPool(queue, noopProcessor, &jobqueue.WorkerConfig{
		Concurrency:  1,
		Queue:        1,
		PollInterval: time.Duration(cfg.WorkerPollIntervalMs) * time.Millisecond,
		LeaseTTL:     time.Duration(cfg.WorkerLeaseTTLSec) * time.Second,
	}, cfg.WorkerPoolSize, log)

	reaper := jobqueue.NewReaper(queue, &jobqueue.ReaperConfig{
		Interval: time.Duration(cfg.ReaperIntervalSec) * time.Second,
	}, log)

	retention := jobqueue.NewRetentionWorker(jobqueue.NewCleaner(s), &jobqueue.RetentionConfig{
		Status:   job.Unknown,
		Interval: 6 * time.Hour,
		Before:   true,
		Delta:    7 * 24 * time.Hour,
	}, log)

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	if err := reaper.Start(ctx); err != nil {
		return fmt.Errorf("start reaper: %w", err)
	}
	if err := retention.Start(ctx); err != nil {
		return fmt.Errorf("start retention worker: %w", err)
	}

	go func() {
		log.Info("serving", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped unexpectedly", "err", err)
		}
	}()

	go refreshStatusGauge(ctx, statusGauge, log)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	hub.Stop()
	_ = pool.Stop(10 * time.Second)
	_ = reaper.Stop(5 * time.Second)
	_ = retention.Stop(5 * time.Second)

	return nil
}

func levelFor(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// refreshStatusGauge periodically re-counts jobs per status until ctx
// is canceled. The gauge has no event to hook, unlike metrics.Collector,
// since backlog depth is a property of the whole table, not a single
// transition.
func refreshStatusGauge(ctx context.Context, g *metrics.StatusGauge, log *slog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.Refresh(ctx); err != nil {
				log.Error("status gauge refresh failed", "err", err)
			}
		}
	}
}

// noopProcessor is the default processor wired by `serve`: this engine
// ships as a queueing and admission substrate, not a fixed set of job
// types, so the actual unit of work is defined by whatever embeds this
// module as a library. Standalone `serve` only exercises the queue's
// lifecycle (leasing, retrying, reaping) over whatever jobs arrive via
// the API.
func noopProcessor(ctx context.Context, j *job.Job) error {
	return nil
}
