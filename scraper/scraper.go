// Package scraper fetches shop pages and reads prices out of them.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/aluiziolira/go-scrape-prices/models"
	"github.com/aluiziolira/go-scrape-prices/parser"
	"github.com/aluiziolira/go-scrape-prices/sites"
	"github.com/andybalholm/cascadia"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Extractor fetches one page at a time and applies a site rule to it.
// It is not safe for concurrent use.
type Extractor struct {
	cfg       config.Scraper
	collector *colly.Collector
	transport http.RoundTripper
	pages     *lru.Cache[string, []byte]
	metrics   *Metrics
	logger    *slog.Logger
}

// NewExtractor builds an extractor that sends the configured browser-like headers.
func NewExtractor(cfg config.Scraper, metrics *Metrics, logger *slog.Logger) (*Extractor, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	e := &Extractor{
		cfg:       cfg,
		collector: collector,
		transport: transport,
		metrics:   metrics,
		logger:    logger,
	}
	if cfg.PageCacheSize > 0 {
		pages, err := lru.New[string, []byte](cfg.PageCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create page cache: %w", err)
		}
		e.pages = pages
	}
	return e, nil
}

// SetTransport replaces the round tripper pages are fetched with.
func (e *Extractor) SetTransport(rt http.RoundTripper) {
	e.transport = rt
}

// contextTransport binds every page request to the fetch context, so a
// cancelled run or an expired timeout aborts the request in flight.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req.WithContext(t.ctx))
}

// Extract fetches url and reads the price described by rule.
func (e *Extractor) Extract(ctx context.Context, url string, rule sites.Rule) (models.Price, error) {
	selector, err := rule.Compiled()
	if err != nil {
		return models.Price{}, err
	}

	body, err := e.fetch(ctx, url)
	if err != nil {
		return models.Price{}, err
	}

	raw, err := selectValue(body, selector, rule.Attribute)
	if err != nil {
		return models.Price{}, err
	}

	price, err := parser.NormalizePrice(raw)
	if err != nil {
		return models.Price{}, err
	}
	return price, nil
}

func (e *Extractor) fetch(ctx context.Context, url string) ([]byte, error) {
	if e.pages != nil {
		if body, ok := e.pages.Get(url); ok {
			e.metrics.IncRequest("cached")
			e.logger.Debug("page cache hit", slog.String("url", url))
			return body, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Visit is synchronous and reads the full body before returning.
	var (
		fetchCtx context.Context
		cancel   context.CancelFunc
	)
	if e.cfg.Timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
	} else {
		fetchCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	c := e.collector.Clone()
	c.WithTransport(contextTransport{ctx: fetchCtx, next: e.transport})

	var (
		body   []byte
		status int
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", e.cfg.Accept)
		r.Ctx.Put("start", time.Now())
		e.metrics.IncRequest("started")
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		status = r.StatusCode
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			e.metrics.ObserveDuration(time.Since(start))
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(url); err != nil {
		classified := classifyError(err, status)
		category := errorTypeLabel(classified)
		e.metrics.IncError(category)
		e.logger.Debug("page fetch failed",
			slog.String("url", url),
			slog.Int("status", status),
			slog.String("category", category),
			slog.Any("error", err),
		)
		return nil, classified
	}
	c.Wait()

	e.metrics.IncRequest("completed")
	e.logger.Debug("page fetched", slog.String("url", url), slog.Int("status", status), slog.Int("bytes", len(body)))
	if e.pages != nil {
		e.pages.Add(url, body)
	}
	return body, nil
}

// selectValue returns the text, or the attribute value, of the first node
// matching selector.
func selectValue(body []byte, selector cascadia.Selector, attribute string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	match := doc.FindMatcher(selector).First()
	if match.Length() == 0 {
		return "", ErrSelectorMiss
	}
	if attribute == "" {
		return match.Text(), nil
	}
	value, ok := match.Attr(attribute)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAttributeMissing, attribute)
	}
	return value, nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		return ErrStatus{Code: statusCode, Err: err}
	}
	return err
}
