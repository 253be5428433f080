// Package enrich fills in missing coordinates and categories for extracted
// candidates. Lookups go through the shared rate-limited queue; when a
// lookup has no answer the candidate is placed near a reference city.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/model"
	"github.com/sells-group/places-import/pkg/geocode"
)

const (
	// DefaultDelta spaces approximate placements about 100m apart.
	DefaultDelta = 0.001

	approximateNote = "(approximate location)"
)

// Lookup resolves a query to a position, or nil for no match.
// *geocode.Queue satisfies it.
type Lookup interface {
	Submit(ctx context.Context, query string) *geocode.Result
}

// Outcome is the result of enriching one collection.
type Outcome struct {
	Collection  model.Collection
	Lookups     int
	Geocoded    int
	Approximate int
	Warnings    []string
}

// Enricher resolves coordinates for candidates.
type Enricher struct {
	lookup     Lookup
	gazetteer  *Gazetteer
	categories *Categories
	delta      float64
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithDelta sets the per-candidate offset used for approximate placement.
func WithDelta(d float64) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.delta = d
		}
	}
}

// WithCategories enables category inference for candidates without one.
func WithCategories(c *Categories) Option {
	return func(e *Enricher) {
		e.categories = c
	}
}

// New creates an Enricher.
func New(lookup Lookup, gazetteer *Gazetteer, opts ...Option) *Enricher {
	e := &Enricher{
		lookup:    lookup,
		gazetteer: gazetteer,
		delta:     DefaultDelta,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich returns a copy of col in which every candidate has coordinates.
// Candidates are processed in order, one lookup at a time. A candidate with
// nothing to look up and no position is dropped with a warning. progress,
// if non-nil, is called after each candidate.
func (e *Enricher) Enrich(ctx context.Context, col model.Collection, progress func(done, total int)) Outcome {
	out := Outcome{Collection: col}
	out.Collection.Candidates = make([]model.Candidate, 0, len(col.Candidates))

	base, cityMatched := e.gazetteer.Resolve(col.Name)

	total := len(col.Candidates)
	for i, cand := range col.Candidates {
		if cand.Category == "" {
			cand.Category = e.categories.Infer(cand.Name, cand.Notes)
		}

		switch {
		case cand.HasCoordinates():
		case strings.TrimSpace(cand.Name) == "" && strings.TrimSpace(cand.Address) == "":
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: dropped item %d with no name, address or position", col.Title(), i))
			report(progress, i+1, total)
			continue
		default:
			query := e.query(cand, base, cityMatched)
			out.Lookups++
			if res := e.lookup.Submit(ctx, query); res != nil {
				cand = cand.WithCoordinates(res.Latitude, res.Longitude)
				if cand.Address == "" {
					cand.Address = res.DisplayName
				}
				out.Geocoded++
			} else {
				offset := e.delta * float64(i)
				cand = cand.WithCoordinates(base.Latitude+offset, base.Longitude+offset)
				cand.Address = annotate(cand.Address)
				out.Approximate++
				out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %q placed approximately near %s", col.Title(), cand.Name, base.Name))
				zap.L().Debug("enrich: approximate placement",
					zap.String("collection", col.Name),
					zap.String("place", cand.Name),
					zap.String("city", base.Name),
				)
			}
		}

		out.Collection.Candidates = append(out.Collection.Candidates, cand)
		report(progress, i+1, total)
	}
	return out
}

// query builds the lookup text: the address if present, else the name,
// with the collection's city appended when it is known and not already
// mentioned.
func (e *Enricher) query(c model.Candidate, city City, cityMatched bool) string {
	q := strings.TrimSpace(c.Address)
	if q == "" {
		q = strings.TrimSpace(c.Name)
	}
	if cityMatched && !containsWord(fold(q), fold(city.Name)) {
		q += ", " + city.Name
	}
	return q
}

func annotate(address string) string {
	if address == "" {
		return approximateNote
	}
	return address + " " + approximateNote
}

func report(progress func(done, total int), done, total int) {
	if progress != nil {
		progress(done, total)
	}
}
