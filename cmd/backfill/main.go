// Package main is the entrypoint for the operator-driven backfill CLI.
//
//	backfill --clusters=prod,staging --from=2024-01-01 --to=2024-01-03 [--yes]
//
// For each selected cluster it locates the real gap around the requested
// window (anchored on stored documents, not the raw dates), prompts for
// confirmation unless --yes is given, sources the missing readings from
// the local archive or the upstream API, and commits them to that one
// cluster. Clusters are processed sequentially so every prompt is
// attributable to the cluster it gates.
//
// Validation failures exit non-zero before any remote call. Per-cluster
// commit failures are reported but do not change the exit code; only a
// hard sourcing failure does.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/archive"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/backfill"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/config"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/escluster"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/external"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/sync"
)

const dateLayout = "2006-01-02"

func main() {
	clustersFlag := flag.String("clusters", "prod,staging", "comma-separated target clusters")
	fromFlag := flag.String("from", "", "window start, YYYY-MM-DD (UTC, required)")
	toFlag := flag.String("to", "", "window end, YYYY-MM-DD (UTC, required)")
	yesFlag := flag.Bool("yes", false, "skip the confirmation prompt (unattended runs)")
	flag.Parse()

	fromMillis, toMillis, clusterNames, err := validateArgs(*fromFlag, *toFlag, *clustersFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Reports go to stderr so the confirmation prompt owns the terminal.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, err := selectClusters(cfg, clusterNames)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	verifyIndexFamilies(ctx, stores, cfg.Clusters.IndexPrefix, logger)

	orchestrator := buildOrchestrator(cfg, stores, *yesFlag, logger)

	report, err := orchestrator.Run(ctx, fromMillis, toMillis)
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
	if err != nil {
		logger.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	logger.Info("backfill finished",
		"run_id", report.RunID,
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
		"errored", report.Errored(),
	)
}

// validateArgs checks the CLI inputs before anything touches the network.
func validateArgs(from, to, clusters string) (fromMillis, toMillis int64, names []string, err error) {
	if from == "" || to == "" {
		return 0, 0, nil, fmt.Errorf("--from and --to are required (YYYY-MM-DD)")
	}

	fromDay, err := time.ParseInLocation(dateLayout, from, time.UTC)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("invalid --from %q: %w", from, err)
	}
	toDay, err := time.ParseInLocation(dateLayout, to, time.UTC)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("invalid --to %q: %w", to, err)
	}
	if !fromDay.Before(toDay) {
		return 0, 0, nil, fmt.Errorf("--from (%s) must be before --to (%s)", from, to)
	}

	for _, name := range strings.Split(clusters, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name != "prod" && name != "staging" {
			return 0, 0, nil, fmt.Errorf("unknown cluster %q (must be prod or staging)", name)
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return 0, 0, nil, fmt.Errorf("--clusters selected no clusters")
	}

	return fromDay.UnixMilli(), toDay.UnixMilli(), names, nil
}

// selectClusters builds one client per requested cluster, in the order
// requested.
func selectClusters(cfg *config.Config, names []string) ([]*escluster.Client, error) {
	configured := make(map[string]config.ClusterConfig)
	for _, cc := range cfg.Clusters.All() {
		configured[cc.Name] = cc
	}

	stores := make([]*escluster.Client, 0, len(names))
	for _, name := range names {
		cc, ok := configured[name]
		if !ok {
			return nil, fmt.Errorf("cluster %q is not configured", name)
		}
		stores = append(stores, escluster.New(escluster.Config{
			Name:        cc.Name,
			URL:         cc.URL,
			APIKey:      cc.APIKey,
			IndexPrefix: cc.IndexPrefix,
			Timeout:     cc.Timeout,
		}))
	}
	return stores, nil
}

// verifyIndexFamilies checks that each target cluster exposes the
// expected index aliases. A failed or empty listing is a warning, not an
// abort: gap location surfaces the real failure per cluster.
func verifyIndexFamilies(ctx context.Context, stores []*escluster.Client, prefix string, logger *slog.Logger) {
	for _, store := range stores {
		aliases, err := store.Aliases(ctx)
		if err != nil {
			logger.Warn("could not verify index aliases",
				"cluster", store.Name(),
				"error", err,
			)
			continue
		}
		found := false
		for _, a := range aliases {
			if strings.HasPrefix(a.Alias, prefix) || strings.HasPrefix(a.Index, prefix) {
				found = true
				break
			}
		}
		if !found {
			logger.Warn("no index family matching prefix on cluster",
				"cluster", store.Name(),
				"prefix", prefix,
			)
		}
	}
}

// buildOrchestrator wires the backfill flow from configuration.
func buildOrchestrator(cfg *config.Config, clusters []*escluster.Client, unattended bool, logger *slog.Logger) *backfill.Orchestrator {
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

	fetcher := sync.NewFetcher(sync.FetcherConfig{
		Device:    device,
		Archive:   arch,
		Cooldown:  cfg.Sync.FetchCooldown,
		PageLimit: cfg.Ambient.PageLimit,
		Logger:    logger,
	})

	var confirmer backfill.Confirmer = &backfill.TerminalConfirmer{In: os.Stdin, Out: os.Stderr}
	if unattended {
		confirmer = backfill.AutoConfirmer{}
	}

	stores := make([]sync.ClusterStore, 0, len(clusters))
	for _, c := range clusters {
		stores = append(stores, c)
	}

	return backfill.NewOrchestrator(backfill.OrchestratorConfig{
		Stores:    stores,
		Locator:   backfill.NewGapLocator(cfg.Sync.MinGapThreshold, logger),
		Source:    fetcher,
		Committer: sync.NewCommitter(logger),
		Archive:   arch,
		Confirmer: confirmer,
		Logger:    logger,
	})
}
