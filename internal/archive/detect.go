package archive

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnsupportedLayout is returned when no ingestion strategy matches.
var ErrUnsupportedLayout = eris.New("archive: unsupported layout")

// Strategy names an ingestion approach.
type Strategy string

const (
	// StrategyTabular treats each tabular file in a saved-collections
	// directory as one collection named after the file.
	StrategyTabular Strategy = "tabular"
	// StrategyStructured reads a single point-feature document.
	StrategyStructured Strategy = "structured"
)

// DefaultSavedDirs are the directory names holding per-collection files.
var DefaultSavedDirs = []string{"saved"}

// sniffBytes bounds how much of a .json entry is read to recognise a
// feature collection.
const sniffBytes = 64 << 10

// Plan is the outcome of detection.
type Plan struct {
	Strategy Strategy
	// Entries are the tabular files for StrategyTabular, or the single
	// document for StrategyStructured.
	Entries []Entry
}

// LayoutError carries the full entry listing of an archive no strategy
// could handle.
type LayoutError struct {
	Entries []string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("archive: unsupported layout (%d entries: %s)", len(e.Entries), strings.Join(e.Entries, ", "))
}

// Is makes errors.Is(err, ErrUnsupportedLayout) hold.
func (e *LayoutError) Is(target error) bool {
	return target == ErrUnsupportedLayout
}

// Detector picks an ingestion strategy from archive contents.
type Detector struct {
	savedDirs map[string]bool
}

// NewDetector creates a Detector. Directory names match case-insensitively
// at any depth; with none given DefaultSavedDirs is used.
func NewDetector(savedDirs ...string) *Detector {
	if len(savedDirs) == 0 {
		savedDirs = DefaultSavedDirs
	}
	d := &Detector{savedDirs: make(map[string]bool, len(savedDirs))}
	for _, s := range savedDirs {
		d.savedDirs[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return d
}

// Detect applies the rules in priority order, first match wins:
//
//  1. tabular files under a saved-collections directory
//  2. a point-feature document (.geojson, or .json holding a FeatureCollection)
//  3. otherwise a *LayoutError
//
// Only presence is checked; contents are validated by the extractors.
func (d *Detector) Detect(a *Archive) (*Plan, error) {
	var saved []Entry
	for _, e := range a.Entries() {
		if IsTabular(e) && d.inSavedDir(e) {
			saved = append(saved, e)
		}
	}
	if len(saved) > 0 {
		return &Plan{Strategy: StrategyTabular, Entries: saved}, nil
	}

	if doc, ok := d.findDocument(a); ok {
		return &Plan{Strategy: StrategyStructured, Entries: []Entry{doc}}, nil
	}

	return nil, &LayoutError{Entries: a.Names()}
}

func (d *Detector) inSavedDir(e Entry) bool {
	for _, dir := range e.Dirs() {
		if d.savedDirs[strings.ToLower(dir)] {
			return true
		}
	}
	return false
}

// findDocument prefers a .geojson entry, then a .json entry whose leading
// bytes mention a FeatureCollection.
func (d *Detector) findDocument(a *Archive) (Entry, bool) {
	for _, e := range a.Entries() {
		if e.Ext() == ".geojson" {
			return e, true
		}
	}
	for _, e := range a.Entries() {
		if e.Ext() != ".json" {
			continue
		}
		head, err := a.peek(e, sniffBytes)
		if err != nil {
			continue
		}
		if bytes.Contains(head, []byte(`"FeatureCollection"`)) {
			return e, true
		}
	}
	return Entry{}, false
}

// TabularEntries returns every tabular file in the archive regardless of
// directory. It backs the fallback rescan when a structured document yields
// no usable features.
func TabularEntries(a *Archive) []Entry {
	var out []Entry
	for _, e := range a.Entries() {
		if IsTabular(e) {
			out = append(out, e)
		}
	}
	return out
}

// IsTabular reports whether e is a delimited-text or spreadsheet file.
func IsTabular(e Entry) bool {
	switch e.Ext() {
	case ".csv", ".tsv", ".xlsx":
		return true
	}
	return false
}
