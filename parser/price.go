// Package parser turns text scraped from shop pages into prices.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-prices/models"
)

// ErrNoDigits is returned when a scraped value carries no number at all.
var ErrNoDigits = errors.New("price has no digits")

// CleanPrice drops every character that is not a decimal digit, comma or period.
func CleanPrice(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c >= '0' && c <= '9') || c == ',' || c == '.' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// NormalizePrice converts a scraped price string into a number.
//
// Commas are treated as thousand separators and dropped. A period after the
// first character makes the value a float; anything else must parse as an
// integer. "$1,234.56 USD" becomes 1234.56 and "€899" becomes 899.
func NormalizePrice(raw string) (models.Price, error) {
	cleaned := CleanPrice(raw)
	number := strings.ReplaceAll(cleaned, ",", "")
	if strings.Trim(number, ".") == "" {
		return models.Price{}, fmt.Errorf("normalize %q: %w", raw, ErrNoDigits)
	}

	if strings.IndexByte(cleaned, '.') > 0 {
		v, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return models.Price{}, fmt.Errorf("normalize %q: %w", raw, err)
		}
		return models.FloatPrice(v), nil
	}

	v, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		return models.Price{}, fmt.Errorf("normalize %q: %w", raw, err)
	}
	return models.IntPrice(v), nil
}
