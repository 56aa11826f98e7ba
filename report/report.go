// Package report flattens a processed catalog into one row per link and
// writes it out as CSV or JSON lines.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/aluiziolira/go-scrape-prices/models"
)

// Row is the outcome of one link, or of a product that was never processed.
type Row struct {
	Position  string `json:"position"`
	ProductID string `json:"product_id"`
	Shop      string `json:"shop,omitempty"`
	URL       string `json:"link,omitempty"`
	Price     string `json:"price,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Writer consumes report rows.
type Writer interface {
	Write(rows []Row) error
	Close() error
	Validate() error
}

// Rows flattens catalog in order. Invalid products yield a single row
// carrying the product error.
func Rows(catalog *models.Catalog) []Row {
	var rows []Row
	for i, product := range catalog.Products {
		id := product.IDString()
		if product.Error != nil || product.Links == nil {
			row := Row{Position: fmt.Sprintf("%d", i+1), ProductID: id}
			if product.Error != nil {
				row.Error = *product.Error
			}
			rows = append(rows, row)
			continue
		}
		for j, link := range product.Links {
			row := Row{
				Position:  fmt.Sprintf("%d.%d", i+1, j+1),
				ProductID: id,
				Shop:      deref(link.Shop),
				URL:       deref(link.URL),
				Error:     deref(link.Error),
			}
			if link.Price != nil && !link.Price.IsNull() {
				row.Price = link.Price.String()
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// New opens a writer for format ("csv" or "json") at path.
func New(format, path string) (Writer, error) {
	switch format {
	case "csv":
		return NewCSVWriter(path)
	case "json":
		return NewJSONWriter(path)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteCatalog writes the report for catalog as configured by cfg.
func WriteCatalog(cfg config.Report, catalog *models.Catalog) error {
	writer, err := New(cfg.Format, cfg.Path)
	if err != nil {
		return err
	}
	rows := Rows(catalog)
	if err := writer.Write(rows); err != nil {
		writer.Close()
		return err
	}
	if len(rows) > 0 {
		if err := writer.Validate(); err != nil {
			writer.Close()
			return err
		}
	}
	return writer.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
