// Package sites maps shop identifiers to the rule used to read a price
// from that shop's pages.
package sites

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/andybalholm/cascadia"
)

// Rule describes where a shop keeps its price: the first node matching
// Selector, read either as text or from Attribute.
type Rule struct {
	Shop      string
	Selector  string
	Attribute string

	compiled   cascadia.Selector
	compileErr error
}

// Compiled returns the parsed selector, or the error it failed to parse with.
func (r Rule) Compiled() (cascadia.Selector, error) {
	if r.compileErr != nil {
		return nil, r.compileErr
	}
	if r.compiled == nil {
		return nil, fmt.Errorf("shop %q: selector not compiled", r.Shop)
	}
	return r.compiled, nil
}

// Registry is the rule table. It is built once at startup and only read afterwards.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Register stores the rule for shop, replacing any earlier one.
// A selector that does not compile is still stored so lookups keep
// resolving the shop; its links then fail extraction one by one.
func (r *Registry) Register(shop, selector, attribute string) error {
	rule := Rule{Shop: shop, Selector: selector, Attribute: attribute}
	compiled, err := cascadia.Compile(selector)
	if err != nil {
		rule.compileErr = fmt.Errorf("shop %q: compile selector %q: %w", shop, selector, err)
	} else {
		rule.compiled = compiled
	}
	r.rules[shop] = rule
	return rule.compileErr
}

// Lookup returns the rule for shop. A miss means the shop is not configured.
func (r *Registry) Lookup(shop string) (Rule, bool) {
	rule, ok := r.rules[shop]
	return rule, ok
}

// Len returns the number of configured shops.
func (r *Registry) Len() int {
	return len(r.rules)
}

// FromConfig builds a registry from site records in order.
func FromConfig(records []config.Site, logger *slog.Logger) *Registry {
	registry := NewRegistry()
	for _, record := range records {
		if err := registry.Register(record.Site, record.Selector, record.Attribute); err != nil {
			logger.Warn("invalid site selector", slog.String("shop", record.Site), slog.Any("error", err))
		}
	}
	return registry
}
