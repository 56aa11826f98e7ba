package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aluiziolira/go-scrape-prices/models"
	"github.com/aluiziolira/go-scrape-prices/scraper"
	"github.com/aluiziolira/go-scrape-prices/sites"
)

type extraction struct {
	price models.Price
	err   error
}

type fakeExtractor struct {
	results map[string]extraction
	calls   []string
	after   func(url string)
}

func (f *fakeExtractor) Extract(ctx context.Context, url string, rule sites.Rule) (models.Price, error) {
	f.calls = append(f.calls, url)
	if f.after != nil {
		defer f.after(url)
	}
	res, ok := f.results[url]
	if !ok {
		return models.Price{}, scraper.ErrSelectorMiss
	}
	return res.price, res.err
}

func (f *fakeExtractor) count(url string) int {
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

type memCheckpoint struct {
	snapshots [][]byte
	fail      bool
}

func (m *memCheckpoint) Save(catalog *models.Catalog) error {
	if m.fail {
		return errors.New("disk full")
	}
	data, err := json.Marshal(catalog)
	if err != nil {
		return err
	}
	m.snapshots = append(m.snapshots, data)
	return nil
}

func (m *memCheckpoint) last(t *testing.T) *models.Catalog {
	t.Helper()
	if len(m.snapshots) == 0 {
		t.Fatalf("no checkpoint written")
	}
	var catalog models.Catalog
	if err := json.Unmarshal(m.snapshots[len(m.snapshots)-1], &catalog); err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	return &catalog
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *sites.Registry {
	t.Helper()
	registry := sites.NewRegistry()
	if err := registry.Register("shopA", "span.price", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("shopB", "meta[itemprop=price]", "content"); err != nil {
		t.Fatalf("register: %v", err)
	}
	return registry
}

func decodeCatalog(t *testing.T, input string) *models.Catalog {
	t.Helper()
	var catalog models.Catalog
	if err := json.Unmarshal([]byte(input), &catalog); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	return &catalog
}

func encodeCatalog(t *testing.T, catalog *models.Catalog) string {
	t.Helper()
	data, err := json.Marshal(catalog)
	if err != nil {
		t.Fatalf("encode catalog: %v", err)
	}
	return string(data)
}

func TestPipelineStructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "missing id skips links",
			input: `{"products":[{"links":[{"shop":"shopA","link":"http://a.test/1"}]}]}`,
			want:  `{"products":[{"error":"Product ID not found","links":[{"link":"http://a.test/1","shop":"shopA"}]}]}`,
		},
		{
			name:  "missing links",
			input: `{"products":[{"id":1}]}`,
			want:  `{"products":[{"error":"Key 'links' not found","id":1}]}`,
		},
		{
			name:  "missing shop",
			input: `{"products":[{"id":1,"links":[{"link":"http://a.test/1"}]}]}`,
			want:  `{"products":[{"id":1,"links":[{"error":"Key 'shop' not found","link":"http://a.test/1"}]}]}`,
		},
		{
			name:  "unknown shop",
			input: `{"products":[{"id":1,"links":[{"shop":"acme","link":"http://acme.test/1"}]}]}`,
			want:  `{"products":[{"id":1,"links":[{"error":"Shop not found","link":"http://acme.test/1","shop":"acme"}]}]}`,
		},
		{
			name:  "missing link url",
			input: `{"products":[{"id":1,"links":[{"shop":"shopA"}]}]}`,
			want:  `{"products":[{"id":1,"links":[{"error":"Key 'link' not found","shop":"shopA"}]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := &fakeExtractor{}
			checkpoint := &memCheckpoint{}
			p := NewPipeline(testRegistry(t), extractor, checkpoint, nil, discardLogger())

			catalog := decodeCatalog(t, tt.input)
			if _, err := p.Run(context.Background(), catalog); err != nil {
				t.Fatalf("run: %v", err)
			}

			if got := encodeCatalog(t, catalog); got != tt.want {
				t.Fatalf("catalog =\n%s\nwant\n%s", got, tt.want)
			}
			if len(extractor.calls) != 0 {
				t.Fatalf("extractor called %d times, want 0", len(extractor.calls))
			}
			if len(checkpoint.snapshots) != 1 {
				t.Fatalf("checkpoints = %d, want 1", len(checkpoint.snapshots))
			}
		})
	}
}

func TestPipelineExtractionOutcomes(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]extraction{
		"http://a.test/ok":   {price: models.FloatPrice(1234.56)},
		"http://b.test/ok":   {price: models.IntPrice(899)},
		"http://a.test/down": {err: scraper.ErrStatus{Code: 404, Err: errors.New("Not Found")}},
	}}
	checkpoint := &memCheckpoint{}
	p := NewPipeline(testRegistry(t), extractor, checkpoint, scraper.NewMetrics(), discardLogger())

	catalog := decodeCatalog(t, `{"products":[
		{"id":1,"links":[
			{"shop":"shopA","link":"http://a.test/ok"},
			{"shop":"shopA","link":"http://a.test/down"},
			{"shop":"shopB","link":"http://b.test/ok"},
			{"shop":"shopB","link":"http://b.test/miss"}
		]}
	]}`)

	result, err := p.Run(context.Background(), catalog)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := `{"products":[{"id":1,"links":[` +
		`{"link":"http://a.test/ok","price":1234.56,"shop":"shopA"},` +
		`{"error":"PRICE NOT FOUND!","link":"http://a.test/down","price":null,"shop":"shopA"},` +
		`{"link":"http://b.test/ok","price":899,"shop":"shopB"},` +
		`{"error":"PRICE NOT FOUND!","link":"http://b.test/miss","price":null,"shop":"shopB"}` +
		`]}]}`
	if got := encodeCatalog(t, catalog); got != want {
		t.Fatalf("catalog =\n%s\nwant\n%s", got, want)
	}

	if result.Priced != 2 || result.Failed != 2 || result.Links != 4 {
		t.Fatalf("result = %+v", result)
	}
	if result.ErrorsByType[ExtractionFailed.String()] != 2 {
		t.Fatalf("errors by type = %v", result.ErrorsByType)
	}
	if len(checkpoint.snapshots) != 4 {
		t.Fatalf("checkpoints = %d, want one per link", len(checkpoint.snapshots))
	}
}

func TestPipelineSecondPassIsNoop(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]extraction{
		"http://a.test/ok": {price: models.IntPrice(10)},
	}}
	checkpoint := &memCheckpoint{}
	p := NewPipeline(testRegistry(t), extractor, checkpoint, nil, discardLogger())

	catalog := decodeCatalog(t, `{"products":[
		{"links":[]},
		{"id":"x"},
		{"id":2,"links":[
			{"shop":"shopA","link":"http://a.test/ok"},
			{"shop":"shopA","link":"http://a.test/miss"},
			{"shop":"nope","link":"http://n.test"},
			{"link":"http://n.test"}
		]}
	]}`)

	if _, err := p.Run(context.Background(), catalog); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := encodeCatalog(t, catalog)
	calls := len(extractor.calls)
	saves := len(checkpoint.snapshots)

	result, err := p.Run(context.Background(), catalog)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second := encodeCatalog(t, catalog); second != first {
		t.Fatalf("second pass changed the catalog:\n%s\n%s", first, second)
	}
	if len(extractor.calls) != calls {
		t.Fatalf("second pass fetched %d more pages", len(extractor.calls)-calls)
	}
	if len(checkpoint.snapshots) != saves {
		t.Fatalf("second pass wrote %d checkpoints", len(checkpoint.snapshots)-saves)
	}
	if result.Skipped != 4 {
		t.Fatalf("skipped = %d, want 4", result.Skipped)
	}
}

func TestPipelineSkipsLinkWithNullErrorTag(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]extraction{
		"http://a.test/tagged": {price: models.IntPrice(3)},
	}}
	p := NewPipeline(testRegistry(t), extractor, &memCheckpoint{}, nil, discardLogger())

	catalog := decodeCatalog(t, `{"products":[{"id":1,"links":[{"error":null,"link":"http://a.test/tagged","shop":"shopA"}]}]}`)
	result, err := p.Run(context.Background(), catalog)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := extractor.count("http://a.test/tagged"); n != 0 {
		t.Fatalf("tagged link fetched %d times", n)
	}
	if result.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", result.Skipped)
	}
	want := `{"products":[{"id":1,"links":[{"error":null,"link":"http://a.test/tagged","shop":"shopA"}]}]}`
	if got := encodeCatalog(t, catalog); got != want {
		t.Fatalf("catalog = %s, want %s", got, want)
	}
}

func TestPipelineResumesAfterInterruption(t *testing.T) {
	input := `{"products":[{"id":1,"links":[
		{"shop":"shopA","link":"http://a.test/A"},
		{"shop":"shopB","link":"http://b.test/B"}
	]}]}`

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &fakeExtractor{
		results: map[string]extraction{"http://a.test/A": {price: models.IntPrice(5)}},
		after: func(url string) {
			if url == "http://a.test/A" {
				cancel()
			}
		},
	}
	checkpoint := &memCheckpoint{}
	p := NewPipeline(testRegistry(t), first, checkpoint, nil, discardLogger())

	if _, err := p.Run(ctx, decodeCatalog(t, input)); !errors.Is(err, context.Canceled) {
		t.Fatalf("first run error = %v, want context.Canceled", err)
	}
	if first.count("http://b.test/B") != 0 {
		t.Fatalf("link B must not be processed before the interruption")
	}

	resumed := checkpoint.last(t)
	second := &fakeExtractor{results: map[string]extraction{
		"http://b.test/B": {price: models.IntPrice(7)},
	}}
	p = NewPipeline(testRegistry(t), second, checkpoint, nil, discardLogger())
	if _, err := p.Run(context.Background(), resumed); err != nil {
		t.Fatalf("resumed run: %v", err)
	}

	if second.count("http://a.test/A") != 0 {
		t.Fatalf("link A was fetched again after resume")
	}
	if second.count("http://b.test/B") != 1 {
		t.Fatalf("link B fetched %d times, want 1", second.count("http://b.test/B"))
	}
	want := `{"products":[{"id":1,"links":[{"link":"http://a.test/A","price":5,"shop":"shopA"},{"link":"http://b.test/B","price":7,"shop":"shopB"}]}]}`
	if got := encodeCatalog(t, resumed); got != want {
		t.Fatalf("catalog =\n%s\nwant\n%s", got, want)
	}
}

func TestPipelineInterruptedFetchLeavesLinkPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	extractor := &fakeExtractor{results: map[string]extraction{
		"http://a.test/A": {err: context.Canceled},
	}}
	extractor.after = func(string) { cancel() }
	p := NewPipeline(testRegistry(t), extractor, &memCheckpoint{}, nil, discardLogger())

	catalog := decodeCatalog(t, `{"products":[{"id":1,"links":[{"shop":"shopA","link":"http://a.test/A"}]}]}`)
	if _, err := p.Run(ctx, catalog); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if catalog.Products[0].Links[0].Terminal() {
		t.Fatalf("interrupted link must stay pending")
	}
}

func TestPipelineCheckpointFailureIsNotFatal(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]extraction{
		"http://a.test/1": {price: models.IntPrice(1)},
		"http://a.test/2": {price: models.IntPrice(2)},
	}}
	p := NewPipeline(testRegistry(t), extractor, &memCheckpoint{fail: true}, scraper.NewMetrics(), discardLogger())

	catalog := decodeCatalog(t, `{"products":[{"id":1,"links":[
		{"shop":"shopA","link":"http://a.test/1"},
		{"shop":"shopA","link":"http://a.test/2"}
	]}]}`)
	result, err := p.Run(context.Background(), catalog)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Priced != 2 {
		t.Fatalf("priced = %d, want 2", result.Priced)
	}
	if result.CheckpointFails != 2 {
		t.Fatalf("checkpoint failures = %d, want 2", result.CheckpointFails)
	}
}

func TestItemErrorUnwrap(t *testing.T) {
	cause := scraper.ErrSelectorMiss
	err := error(&ItemError{Kind: ExtractionFailed, Cause: cause})
	if !errors.Is(err, scraper.ErrSelectorMiss) {
		t.Fatalf("ItemError should unwrap to its cause")
	}
	if got := (&ItemError{Kind: ShopUnknown}).Error(); got != "Shop not found" {
		t.Fatalf("Error() = %q", got)
	}
}
