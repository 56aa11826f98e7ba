package models

import "time"

// RunResult holds the overall result of one pass over a catalog.
type RunResult struct {
	Catalog         *Catalog
	Resumed         bool
	StartTime       time.Time
	EndTime         time.Time
	Products        int
	InvalidProducts int
	Links           int
	Priced          int
	Failed          int
	Skipped         int
	ErrorsByType    map[string]int
	CheckpointFails int
}

// Progress summarises how far a catalog has been processed.
type Progress struct {
	Products        int
	InvalidProducts int
	Links           int
	Terminal        int
	Priced          int
	Failed          int
}

// Pending is the number of links still waiting for a price or an error.
func (p Progress) Pending() int {
	return p.Links - p.Terminal
}

// Progress walks the catalog and counts processed entities.
func (c *Catalog) Progress() Progress {
	var out Progress
	if c == nil {
		return out
	}
	for _, product := range c.Products {
		out.Products++
		if product.ID == nil || product.Links == nil {
			out.InvalidProducts++
			continue
		}
		for _, link := range product.Links {
			out.Links++
			if !link.Terminal() {
				continue
			}
			out.Terminal++
			if link.Error == nil && link.Price != nil && !link.Price.IsNull() {
				out.Priced++
			} else {
				out.Failed++
			}
		}
	}
	return out
}
