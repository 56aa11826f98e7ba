// Package catalog talks to the remote source the catalog is fetched from
// and submitted back to.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/aluiziolira/go-scrape-prices/models"
	"github.com/aluiziolira/go-scrape-prices/scraper"
	"github.com/go-resty/resty/v2"
	"golang.org/x/text/encoding/unicode"
)

const snippetLimit = 500

// SubmissionResult is the remote answer to a submitted catalog.
type SubmissionResult struct {
	StatusCode int
	Body       string
}

// OK reports whether the remote side accepted the catalog.
func (r SubmissionResult) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Snippet returns the start of the response body for logs.
func (r SubmissionResult) Snippet() string {
	if len(r.Body) <= snippetLimit {
		return r.Body
	}
	return r.Body[:snippetLimit]
}

// Client fetches and submits catalogs with basic authentication.
type Client struct {
	http    *resty.Client
	getURL  string
	setURL  string
	archive *Archive
	metrics *scraper.Metrics
	logger  *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport, e.g. with a mock in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.SetTransport(rt)
	}
}

// NewClient builds a client for the endpoints in cfg. archive and metrics may be nil.
func NewClient(cfg config.API, archive *Archive, metrics *scraper.Metrics, logger *slog.Logger, opts ...Option) *Client {
	client := resty.New()
	client.SetBasicAuth(cfg.Login, cfg.Password)
	client.SetTimeout(cfg.Timeout)

	c := &Client{
		http:    client,
		getURL:  cfg.Get,
		setURL:  cfg.Set,
		archive: archive,
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchCatalog downloads the source catalog. A leading byte order mark is
// stripped before the body is archived and decoded.
func (c *Client) FetchCatalog(ctx context.Context) (*models.Catalog, error) {
	res, err := c.http.R().SetContext(ctx).Get(c.getURL)
	if err != nil {
		c.metrics.IncCatalog("fetch", "error")
		return nil, &FetchFailedError{Err: err}
	}
	if !res.IsSuccess() {
		c.metrics.IncCatalog("fetch", "error")
		return nil, &FetchFailedError{StatusCode: res.StatusCode()}
	}

	body, err := unicode.UTF8BOM.NewDecoder().Bytes(res.Body())
	if err != nil {
		c.metrics.IncCatalog("fetch", "error")
		return nil, &FetchFailedError{Err: fmt.Errorf("decode body: %w", err)}
	}
	c.archive.Write(DirectionFetched, body)

	var catalog models.Catalog
	if err := json.Unmarshal(body, &catalog); err != nil {
		c.metrics.IncCatalog("fetch", "error")
		return nil, &FetchFailedError{Err: fmt.Errorf("decode catalog: %w", err)}
	}

	c.metrics.IncCatalog("fetch", "ok")
	c.logger.Info("catalog fetched",
		slog.String("url", c.getURL),
		slog.Int("products", len(catalog.Products)),
	)
	return &catalog, nil
}

// SubmitCatalog posts catalog back. A non-200 answer is not an error; the
// caller decides from the result. Only transport failures are returned.
func (c *Client) SubmitCatalog(ctx context.Context, catalog *models.Catalog) (SubmissionResult, error) {
	payload, err := json.Marshal(catalog)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("encode catalog: %w", err)
	}
	c.archive.Write(DirectionSubmitted, payload)

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.setURL)
	if err != nil {
		c.metrics.IncCatalog("submit", "error")
		return SubmissionResult{}, fmt.Errorf("submit catalog: %w", err)
	}

	result := SubmissionResult{StatusCode: res.StatusCode(), Body: res.String()}
	if result.OK() {
		c.metrics.IncCatalog("submit", "ok")
	} else {
		c.metrics.IncCatalog("submit", "rejected")
	}
	return result, nil
}
