package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-prices/catalog"
	"github.com/aluiziolira/go-scrape-prices/checkpoint"
	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/aluiziolira/go-scrape-prices/models"
	"github.com/aluiziolira/go-scrape-prices/pipeline"
	"github.com/aluiziolira/go-scrape-prices/scraper"
	"github.com/aluiziolira/go-scrape-prices/sites"
	"github.com/jarcoal/httpmock"
)

const (
	getURL = "http://erp.test/get"
	setURL = "http://erp.test/set"

	sourceCatalog = `{"products":[` +
		`{"id":1,"links":[` +
		`{"shop":"shopA","link":"http://shop-a.test/kettle"},` +
		`{"shop":"acme","link":"http://acme.test/kettle"},` +
		`{"shop":"shopA","link":"http://shop-a.test/empty"}` +
		`]},` +
		`{"links":[]}` +
		`],"batch":"42"}`
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func html(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, "<html><body>"+body+"</body></html>")
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

type harness struct {
	runner    *Runner
	store     checkpoint.Store
	transport *httpmock.MockTransport
	submitted map[string]json.RawMessage
}

func newHarness(t *testing.T, submitStatus int) *harness {
	t.Helper()
	logger := discardLogger()
	transport := httpmock.NewMockTransport()
	h := &harness{transport: transport}

	store, err := checkpoint.Open(config.Storage{Driver: "file", Checkpoint: filepath.Join(t.TempDir(), "cache.json")}, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	h.store = store

	cfg := config.DefaultConfig()
	cfg.Scraper.PageCacheSize = 0
	extractor, err := scraper.NewExtractor(cfg.Scraper, nil, logger)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	extractor.SetTransport(transport)

	registry := sites.FromConfig([]config.Site{{Site: "shopA", Selector: ".price"}}, logger)
	client := catalog.NewClient(config.API{Get: getURL, Set: setURL, Timeout: 5 * time.Second}, nil, nil, logger, catalog.WithTransport(transport))
	pipe := pipeline.NewPipeline(registry, extractor, store, nil, logger)
	h.runner = NewRunner(store, client, pipe, logger)

	transport.RegisterResponder(http.MethodGet, getURL, httpmock.NewStringResponder(http.StatusOK, sourceCatalog))
	transport.RegisterResponder(http.MethodGet, "http://shop-a.test/kettle", html(`<span class="price">1,299 RUB</span>`))
	transport.RegisterResponder(http.MethodGet, "http://shop-a.test/empty", html(`<span class="sold-out">-</span>`))
	transport.RegisterResponder(http.MethodPost, setURL, func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&h.submitted); err != nil {
			t.Errorf("decode submitted body: %v", err)
		}
		return httpmock.NewStringResponse(submitStatus, "done"), nil
	})
	return h
}

func (h *harness) submittedCatalog(t *testing.T) *models.Catalog {
	t.Helper()
	data, err := json.Marshal(h.submitted)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var cat models.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		t.Fatalf("decode submitted catalog: %v", err)
	}
	return &cat
}

func TestRunEndToEnd(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	result, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Resumed {
		t.Fatalf("fresh run reported as resumed")
	}
	if result.Priced != 1 || result.Failed != 2 || result.InvalidProducts != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	if string(h.submitted["batch"]) != `"42"` {
		t.Fatalf("unknown catalog key lost: %v", h.submitted)
	}
	cat := h.submittedCatalog(t)
	links := cat.Products[0].Links

	if p := links[0].Price; p == nil || p.String() != "1299" || links[0].Error != nil {
		t.Fatalf("link 1 = price %v error %v, want 1299", p, links[0].Error)
	}
	if links[1].Price != nil || links[1].Error == nil || *links[1].Error != "Shop not found" {
		t.Fatalf("link 2 = price %v error %v, want Shop not found without price", links[1].Price, links[1].Error)
	}
	if links[2].Price == nil || !links[2].Price.IsNull() || *links[2].Error != "PRICE NOT FOUND!" {
		t.Fatalf("link 3 = price %v error %v, want null price and PRICE NOT FOUND!", links[2].Price, links[2].Error)
	}
	if e := cat.Products[1].Error; e == nil || *e != "Product ID not found" {
		t.Fatalf("product 2 error = %v", e)
	}

	if _, ok := h.store.Load(); ok {
		t.Fatalf("checkpoint should be cleared after a successful submission")
	}
}

func TestRunRejectedSubmissionKeepsCheckpoint(t *testing.T) {
	h := newHarness(t, http.StatusInternalServerError)

	_, err := h.runner.Run(context.Background())
	if !errors.Is(err, ErrSubmissionRejected) {
		t.Fatalf("err = %v, want ErrSubmissionRejected", err)
	}

	saved, ok := h.store.Load()
	if !ok {
		t.Fatalf("checkpoint must survive a rejected submission")
	}
	if p := saved.Progress(); p.Pending() != 0 {
		t.Fatalf("checkpoint should hold the finished catalog, pending = %d", p.Pending())
	}
}

func TestRunResumesWithoutFetching(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	var partial models.Catalog
	snapshot := `{"products":[{"id":1,"links":[` +
		`{"shop":"shopA","link":"http://shop-a.test/old","price":10},` +
		`{"shop":"shopA","link":"http://shop-a.test/kettle"}` +
		`]}]}`
	if err := json.Unmarshal([]byte(snapshot), &partial); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if err := h.store.Save(&partial); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	result, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Resumed || result.Skipped != 1 || result.Priced != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	info := h.transport.GetCallCountInfo()
	if n := info["GET "+getURL]; n != 0 {
		t.Fatalf("catalog fetched %d times on resume", n)
	}
	if n := info["GET http://shop-a.test/old"]; n != 0 {
		t.Fatalf("finished link refetched %d times", n)
	}
	links := h.submittedCatalog(t).Products[0].Links
	if links[0].Price.String() != "10" || links[1].Price.String() != "1299" {
		t.Fatalf("submitted prices = %v, %v", links[0].Price, links[1].Price)
	}
}

func TestRunFetchFailure(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	h.transport.RegisterResponder(http.MethodGet, getURL, httpmock.NewStringResponder(http.StatusBadGateway, ""))

	result, err := h.runner.Run(context.Background())
	if !errors.Is(err, catalog.ErrFetchFailed) {
		t.Fatalf("err = %v, want ErrFetchFailed", err)
	}
	if result != nil {
		t.Fatalf("no result expected when the catalog cannot be obtained")
	}
	if n := h.transport.GetCallCountInfo()["POST "+setURL]; n != 0 {
		t.Fatalf("submitted %d times after fetch failure", n)
	}
}

func TestRunInterruptedKeepsCheckpointAndSkipsSubmit(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	var partial models.Catalog
	if err := json.Unmarshal([]byte(sourceCatalog), &partial); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := h.store.Save(&partial); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := h.transport.GetCallCountInfo()["POST "+setURL]; n != 0 {
		t.Fatalf("submitted %d times after interruption", n)
	}
	if _, ok := h.store.Load(); !ok {
		t.Fatalf("checkpoint must be kept after interruption")
	}
}
