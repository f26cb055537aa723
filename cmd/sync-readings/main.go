// Package main is the entrypoint for the live sync pipeline.
//
// One-shot by default so an external cron can own the schedule; --daemon
// keeps the process alive and runs the pipeline on an in-process interval
// instead. Each run resolves both clusters' boundaries, fetches new
// readings from the Ambient Weather API (or the local archive), converts
// them to metric, and commits both representations to both clusters.
//
// Exit code 0 means the pipeline reached the reporting stage, even when
// individual clusters errored; non-zero means configuration or the fetch
// itself failed fatally.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/archive"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/config"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/escluster"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/external"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/sync"
)

func main() {
	daemonFlag := flag.Bool("daemon", false, "run on an in-process schedule instead of one-shot")
	everyFlag := flag.Duration("every", 5*time.Minute, "interval between runs in --daemon mode")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	synchronizer := buildSynchronizer(cfg, logger)

	if !*daemonFlag {
		if err := runOnce(ctx, synchronizer, logger); err != nil {
			os.Exit(1)
		}
		return
	}

	if *everyFlag <= 0 {
		fmt.Fprintf(os.Stderr, "error: --every must be positive, got %s\n", *everyFlag)
		os.Exit(1)
	}

	logger.Info("starting sync daemon", "every", everyFlag.String())
	scheduler := gocron.NewScheduler(time.UTC)
	_, err = scheduler.Every(*everyFlag).Do(func() {
		// A failed run must not kill the daemon; the next tick retries.
		if err := runOnce(ctx, synchronizer, logger); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("failed to schedule sync job", "error", err)
		os.Exit(1)
	}

	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	logger.Info("sync daemon stopped")
}

// buildSynchronizer wires the pipeline from configuration. All clients
// are constructed once and passed explicitly; nothing is global.
func buildSynchronizer(cfg *config.Config, logger *slog.Logger) *sync.Synchronizer {
	device := external.NewAmbientClient(
		&http.Client{Timeout: cfg.Ambient.Timeout},
		external.AmbientConfig{
			BaseURL:        cfg.Ambient.BaseURL,
			APIKey:         cfg.Ambient.APIKey,
			ApplicationKey: cfg.Ambient.ApplicationKey,
			DeviceMAC:      cfg.Ambient.DeviceMAC,
		},
	)

	arch := archive.New(cfg.Archive.Dir, logger)

	stores := make([]sync.ClusterStore, 0, 2)
	for _, cc := range cfg.Clusters.All() {
		stores = append(stores, escluster.New(escluster.Config{
			Name:        cc.Name,
			URL:         cc.URL,
			APIKey:      cc.APIKey,
			IndexPrefix: cc.IndexPrefix,
			Timeout:     cc.Timeout,
		}))
	}

	fetcher := sync.NewFetcher(sync.FetcherConfig{
		Device:    device,
		Archive:   arch,
		Cooldown:  cfg.Sync.FetchCooldown,
		PageLimit: cfg.Ambient.PageLimit,
		Logger:    logger,
	})

	return sync.NewSynchronizer(sync.SynchronizerConfig{
		Stores:    stores,
		Fetcher:   fetcher,
		Resolver:  sync.NewBoundaryResolver(logger),
		Committer: sync.NewCommitter(logger),
		Archive:   arch,
		Logger:    logger,
	})
}

// runOnce executes one pipeline pass and logs the per-cluster report.
func runOnce(ctx context.Context, s *sync.Synchronizer, logger *slog.Logger) error {
	report, err := s.Run(ctx)
	if err != nil {
		logger.Error("sync run failed", "error", err)
		return err
	}

	for _, res := range report.Results {
		logger.Info("cluster result",
			"run_id", report.RunID,
			"cluster", res.Cluster,
			"category", string(res.Category),
			"status", string(res.Status),
			"written", res.Written,
			"reason", res.Reason,
		)
	}
	logger.Info("sync run finished",
		"run_id", report.RunID,
		"fetched", report.Fetched,
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
		"errored", report.Errored(),
	)
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
