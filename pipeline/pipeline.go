// Package pipeline walks a catalog, validates every product and link,
// scrapes prices and records each outcome in place.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-prices/models"
	"github.com/aluiziolira/go-scrape-prices/scraper"
	"github.com/aluiziolira/go-scrape-prices/sites"
)

// Extractor reads the price behind one shop link.
type Extractor interface {
	Extract(ctx context.Context, url string, rule sites.Rule) (models.Price, error)
}

// Checkpointer persists a full snapshot of the catalog.
type Checkpointer interface {
	Save(catalog *models.Catalog) error
}

// Pipeline processes a catalog strictly in order, one link at a time.
// Every mutation is followed by a checkpoint so an interrupted run loses at
// most the link that was in flight.
type Pipeline struct {
	registry   *sites.Registry
	extractor  Extractor
	checkpoint Checkpointer
	metrics    *scraper.Metrics
	logger     *slog.Logger
}

// NewPipeline wires the pipeline. checkpoint and metrics may be nil.
func NewPipeline(registry *sites.Registry, extractor Extractor, checkpoint Checkpointer, metrics *scraper.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		registry:   registry,
		extractor:  extractor,
		checkpoint: checkpoint,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run makes one full pass over catalog. Links that already carry a price
// or an error are left untouched, so running it again over a checkpoint
// only processes what is still pending.
//
// The returned error is non-nil only when ctx is cancelled; the result then
// covers the work done up to that point.
func (p *Pipeline) Run(ctx context.Context, catalog *models.Catalog) (*models.RunResult, error) {
	result := &models.RunResult{
		Catalog:      catalog,
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	defer func() {
		result.EndTime = time.Now()
	}()

	for i, product := range catalog.Products {
		result.Products++

		if itemErr := validateProduct(product); itemErr != nil {
			result.InvalidProducts++
			result.ErrorsByType[itemErr.Kind.String()]++
			p.logger.Error("invalid product",
				slog.Int("position", i+1),
				slog.String("product_id", product.IDString()),
				slog.String("error", itemErr.Kind.Message()),
			)
			if product.SetError(itemErr.Kind.Message()) {
				p.save(catalog, result)
			}
			continue
		}

		for j, link := range product.Links {
			result.Links++
			if link.Terminal() {
				result.Skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return result, err
			}

			logger := p.logger.With(
				slog.String("position", fmt.Sprintf("%d.%d", i+1, j+1)),
				slog.String("product_id", product.IDString()),
			)

			price, err := p.processLink(ctx, link)
			var itemErr *ItemError
			switch {
			case err == nil:
				link.SetPrice(price)
				result.Priced++
				p.metrics.IncLink("priced")
				logger.Info("price found",
					slog.String("shop", *link.Shop),
					slog.String("url", *link.URL),
					slog.String("price", price.String()),
				)
			case errors.As(err, &itemErr):
				p.recordFailure(logger, link, itemErr, result)
			default:
				logger.Warn("link interrupted", slog.Any("error", err))
				return result, err
			}

			p.save(catalog, result)
		}
	}

	return result, nil
}

func validateProduct(product *models.Product) *ItemError {
	if product.ID == nil {
		return &ItemError{Kind: IDMissing}
	}
	if product.Links == nil {
		return &ItemError{Kind: LinksMissing}
	}
	return nil
}

// processLink returns the price for link, an *ItemError describing why the
// link failed, or a context error if the run was interrupted mid-fetch.
func (p *Pipeline) processLink(ctx context.Context, link *models.Link) (models.Price, error) {
	if link.Shop == nil {
		return models.Price{}, &ItemError{Kind: ShopMissing}
	}
	rule, ok := p.registry.Lookup(*link.Shop)
	if !ok {
		return models.Price{}, &ItemError{Kind: ShopUnknown}
	}
	if link.URL == nil {
		return models.Price{}, &ItemError{Kind: LinkMissing}
	}

	price, err := p.extractor.Extract(ctx, *link.URL, rule)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return models.Price{}, err
		}
		return models.Price{}, &ItemError{Kind: ExtractionFailed, Cause: err}
	}
	return price, nil
}

func (p *Pipeline) recordFailure(logger *slog.Logger, link *models.Link, itemErr *ItemError, result *models.RunResult) {
	msg := itemErr.Kind.Message()
	if itemErr.Kind == ExtractionFailed {
		link.Fail(msg)
	} else {
		link.SetError(msg)
	}
	result.Failed++
	result.ErrorsByType[itemErr.Kind.String()]++
	p.metrics.IncLink(itemErr.Kind.String())

	attrs := []any{slog.String("error", msg)}
	if link.Shop != nil {
		attrs = append(attrs, slog.String("shop", *link.Shop))
	}
	if link.URL != nil {
		attrs = append(attrs, slog.String("url", *link.URL))
	}
	if itemErr.Cause != nil {
		attrs = append(attrs, slog.Any("cause", itemErr.Cause))
	}
	logger.Error("link failed", attrs...)
}

// save writes a checkpoint. A failed write only degrades durability, so it
// is logged and the run carries on in memory.
func (p *Pipeline) save(catalog *models.Catalog, result *models.RunResult) {
	if p.checkpoint == nil {
		return
	}
	err := p.checkpoint.Save(catalog)
	p.metrics.IncCheckpoint(err == nil)
	if err != nil {
		result.CheckpointFails++
		p.logger.Error("can not save checkpoint", slog.Any("error", err))
	}
}
