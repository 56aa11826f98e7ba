package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-prices/app"
	"github.com/aluiziolira/go-scrape-prices/catalog"
	"github.com/aluiziolira/go-scrape-prices/checkpoint"
	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/aluiziolira/go-scrape-prices/models"
	"github.com/aluiziolira/go-scrape-prices/pipeline"
	"github.com/aluiziolira/go-scrape-prices/report"
	"github.com/aluiziolira/go-scrape-prices/scraper"
	"github.com/aluiziolira/go-scrape-prices/sites"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch (or resume) the catalog, scrape every pending link and submit the result.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, opts)
		},
	}
}

func runScrape(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	base, level := newLogger(cfg.Verbose)
	slog.SetDefault(base)
	slog.SetLogLoggerLevel(level.Level())

	runID := uuid.NewString()
	started := time.Now()
	logger := base.With(slog.String("run_id", runID))

	ctx := cmd.Context()
	defer watchShutdown(ctx, logger)()

	metrics := scraper.NewMetrics()
	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics, logger)
	defer stopMetricsServer(metricsServer, logger)

	store, err := checkpoint.Open(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close checkpoint store", slog.Any("error", err))
		}
	}()

	registry := sites.FromConfig(cfg.Sites, logger)
	extractor, err := scraper.NewExtractor(cfg.Scraper, metrics, logger)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	var archive *catalog.Archive
	if !cfg.Storage.DisableArchive {
		archive = catalog.NewArchive(cfg.Storage.ArchiveDir, started, runID, logger)
	}
	client := catalog.NewClient(cfg.API, archive, metrics, logger)

	logger.Info("starting run",
		slog.String("catalog", cfg.API.Get),
		slog.Int("shops", registry.Len()),
		slog.String("checkpoint", cfg.Storage.Checkpoint),
	)

	pipe := pipeline.NewPipeline(registry, extractor, store, metrics, logger)
	result, runErr := app.NewRunner(store, client, pipe, logger).Run(ctx)

	if result != nil && cfg.Report.Path != "" {
		if err := report.WriteCatalog(cfg.Report, result.Catalog); err != nil {
			logger.Error("writing report failed", slog.Any("error", err))
		}
	}
	if result != nil {
		printSummary(cmd, result, cfg, runErr)
	}
	return runErr
}

func startMetricsServer(addr string, metrics *scraper.Metrics, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func stopMetricsServer(server *http.Server, logger *slog.Logger) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(cmd *cobra.Command, result *models.RunResult, cfg *config.Config, runErr error) {
	out := cmd.OutOrStdout()
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	switch {
	case runErr == nil:
		fmt.Fprintln(out, "Run complete, result submitted")
	case errors.Is(runErr, context.Canceled):
		fmt.Fprintln(out, "Run interrupted, checkpoint kept")
	default:
		fmt.Fprintln(out, "Run finished with errors, checkpoint kept")
	}

	fmt.Fprintf(out, "  Resumed:       %v\n", result.Resumed)
	fmt.Fprintf(out, "  Products:      %d (%d invalid)\n", result.Products, result.InvalidProducts)
	fmt.Fprintf(out, "  Links:         %d\n", result.Links)
	fmt.Fprintf(out, "  Priced:        %d\n", result.Priced)
	fmt.Fprintf(out, "  Failed:        %d\n", result.Failed)
	fmt.Fprintf(out, "  Skipped:       %d\n", result.Skipped)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(out, "  Error types:   %v\n", result.ErrorsByType)
	}
	if result.CheckpointFails > 0 {
		fmt.Fprintf(out, "  Checkpoint:    %d failed writes\n", result.CheckpointFails)
	}
	fmt.Fprintf(out, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	if cfg.Report.Path != "" {
		fmt.Fprintf(out, "  Report file:   %s\n", cfg.Report.Path)
	}
	fmt.Fprintln(out, separator)
}

// watchShutdown logs once when ctx is cancelled while the run is still going.
// The returned func ends the watch and waits for it to exit.
func watchShutdown(ctx context.Context, logger *slog.Logger) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received, stopping after the current link")
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}
