// Package app ties the checkpoint store, the catalog client and the
// extraction pipeline into one batch run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-prices/catalog"
	"github.com/aluiziolira/go-scrape-prices/checkpoint"
	"github.com/aluiziolira/go-scrape-prices/models"
)

// ErrSubmissionRejected is returned when the remote side answers the
// submission with anything but 200. The checkpoint is kept.
var ErrSubmissionRejected = errors.New("submission rejected")

// CatalogClient fetches and submits catalogs.
type CatalogClient interface {
	FetchCatalog(ctx context.Context) (*models.Catalog, error)
	SubmitCatalog(ctx context.Context, cat *models.Catalog) (catalog.SubmissionResult, error)
}

// Processor runs one pass over a catalog.
type Processor interface {
	Run(ctx context.Context, cat *models.Catalog) (*models.RunResult, error)
}

// Runner executes one batch: resume or fetch, scrape, submit, clean up.
type Runner struct {
	store    checkpoint.Store
	client   CatalogClient
	pipeline Processor
	logger   *slog.Logger
}

// NewRunner wires a Runner.
func NewRunner(store checkpoint.Store, client CatalogClient, pipeline Processor, logger *slog.Logger) *Runner {
	return &Runner{
		store:    store,
		client:   client,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Run executes the batch. The checkpoint is cleared only after the remote
// side confirmed the submission; on any error it is left for the next run.
// The returned result is non-nil once the pipeline has started.
func (r *Runner) Run(ctx context.Context) (*models.RunResult, error) {
	cat, resumed, err := r.obtain(ctx)
	if err != nil {
		return nil, err
	}

	result, err := r.pipeline.Run(ctx, cat)
	if result != nil {
		result.Resumed = resumed
	}
	if err != nil {
		r.logger.Warn("run interrupted, checkpoint kept", slog.Any("error", err))
		return result, fmt.Errorf("process catalog: %w", err)
	}

	sub, err := r.client.SubmitCatalog(ctx, cat)
	if err != nil {
		r.logger.Error("result was not sent", slog.Any("error", err))
		return result, err
	}
	if !sub.OK() {
		r.logger.Error("result was not sent",
			slog.Int("status", sub.StatusCode),
			slog.String("body", sub.Snippet()),
		)
		return result, fmt.Errorf("%w: status %d", ErrSubmissionRejected, sub.StatusCode)
	}

	r.logger.Info("result was sent successfully", slog.Int("status", sub.StatusCode))
	if err := r.store.Clear(); err != nil {
		r.logger.Error("can not clear checkpoint", slog.Any("error", err))
	}
	return result, nil
}

// obtain returns the stored snapshot when there is one, otherwise a freshly
// fetched catalog.
func (r *Runner) obtain(ctx context.Context) (*models.Catalog, bool, error) {
	if cat, ok := r.store.Load(); ok {
		progress := cat.Progress()
		r.logger.Info("resumed from checkpoint",
			slog.Int("products", progress.Products),
			slog.Int("links", progress.Links),
			slog.Int("done", progress.Terminal),
			slog.Int("pending", progress.Pending()),
		)
		return cat, true, nil
	}

	cat, err := r.client.FetchCatalog(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("obtain catalog: %w", err)
	}
	return cat, false, nil
}
