package model

import "strings"

// Candidate is a place record produced by extraction that has not been
// persisted yet. Extractors never mutate a Candidate after returning it;
// enrichment produces a new value.
type Candidate struct {
	Name       string   `json:"name"`
	Address    string   `json:"address,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	ExternalID string   `json:"external_id,omitempty"`
	Category   string   `json:"category,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	SourceURL  string   `json:"source_url,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (c Candidate) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// WithCoordinates returns a copy of c positioned at lat/lng.
func (c Candidate) WithCoordinates(lat, lng float64) Candidate {
	c.Latitude = &lat
	c.Longitude = &lng
	return c
}

// Coordinates returns the candidate's position. Callers must check
// HasCoordinates first.
func (c Candidate) Coordinates() (lat, lng float64) {
	return *c.Latitude, *c.Longitude
}

// Collection is an ordered, named group of candidates destined to become one
// persisted list.
type Collection struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name,omitempty"`
	Monetize    bool        `json:"monetize"`
	Price       float64     `json:"price"`
	Source      string      `json:"source,omitempty"` // archive entry the collection came from
	Candidates  []Candidate `json:"candidates"`
}

// Title returns the display name if set, otherwise the collection name.
func (c *Collection) Title() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// Center returns the mean latitude/longitude of coordinated members.
// ok is false when no member has coordinates.
func (c *Collection) Center() (lat, lng float64, ok bool) {
	var n int
	for _, cand := range c.Candidates {
		if !cand.HasCoordinates() {
			continue
		}
		la, lo := cand.Coordinates()
		lat += la
		lng += lo
		n++
	}
	if n == 0 {
		return 0, 0, false
	}
	return lat / float64(n), lng / float64(n), true
}

// Selection constrains which collections are imported and how they are
// labelled and priced.
type Selection struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName,omitempty"`
	Monetize    bool    `json:"monetize"`
	Price       float64 `json:"price"`
}

// ApplySelections filters collections to those named in sel (case-insensitive)
// and copies display name and pricing onto them. An empty sel keeps every
// collection unchanged.
func ApplySelections(cols []Collection, sel []Selection) []Collection {
	if len(sel) == 0 {
		return cols
	}
	byName := make(map[string]Selection, len(sel))
	for _, s := range sel {
		byName[strings.ToLower(strings.TrimSpace(s.Name))] = s
	}

	var out []Collection
	for _, c := range cols {
		s, ok := byName[strings.ToLower(strings.TrimSpace(c.Name))]
		if !ok {
			continue
		}
		if s.DisplayName != "" {
			c.DisplayName = s.DisplayName
		}
		c.Monetize = s.Monetize
		c.Price = s.Price
		out = append(out, c)
	}
	return out
}
