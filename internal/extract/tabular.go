package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/model"
)

// Result is the output of reading one source entry.
type Result struct {
	Collection model.Collection
	// Warnings are human-readable record-level problems.
	Warnings []string
	// Dropped counts rows skipped silently for lacking a name or URL.
	Dropped int
}

// headerAliases maps a canonical column to the header spellings seen in
// saved-list exports.
var headerAliases = map[string][]string{
	"title":   {"title", "name", "place", "place name"},
	"url":     {"url", "link", "google maps url", "maps url"},
	"note":    {"note", "notes"},
	"comment": {"comment", "comments", "description"},
	"tags":    {"tags", "tag", "category", "label", "labels"},
	"address": {"address", "location"},
}

type columns map[string]int

// resolveColumns locates the known columns in header. Title and URL columns
// are required.
func resolveColumns(header []string) (columns, error) {
	cols := columns{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for canonical, aliases := range headerAliases {
			if _, seen := cols[canonical]; seen {
				continue
			}
			for _, a := range aliases {
				if h == a {
					cols[canonical] = i
					break
				}
			}
		}
	}
	if _, ok := cols["title"]; !ok {
		return nil, eris.Errorf("extract: no title column in header %q", header)
	}
	if _, ok := cols["url"]; !ok {
		return nil, eris.Errorf("extract: no url column in header %q", header)
	}
	return cols, nil
}

func (c columns) get(fields []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

// tabularBuilder accumulates rows of one saved list into a Result.
type tabularBuilder struct {
	source string
	cols   columns
	res    *Result
}

func newTabularBuilder(name, source string) *tabularBuilder {
	return &tabularBuilder{
		source: source,
		res: &Result{Collection: model.Collection{
			Name:   name,
			Source: source,
		}},
	}
}

func (b *tabularBuilder) header(fields []string) error {
	cols, err := resolveColumns(fields)
	if err != nil {
		return eris.Wrapf(err, "extract: %s", b.source)
	}
	b.cols = cols
	return nil
}

func (b *tabularBuilder) warn(format string, args ...any) {
	b.res.Warnings = append(b.res.Warnings, fmt.Sprintf("%s: ", b.source)+fmt.Sprintf(format, args...))
}

// add converts one data row. Rows without a title or URL are expected noise
// and are only counted.
func (b *tabularBuilder) add(fields []string) {
	title := b.cols.get(fields, "title")
	link := b.cols.get(fields, "url")
	if title == "" || link == "" {
		b.res.Dropped++
		return
	}

	cand := model.Candidate{
		Name:       title,
		Address:    b.cols.get(fields, "address"),
		ExternalID: ExternalID(link),
		Category:   firstTag(b.cols.get(fields, "tags")),
		Notes:      joinNonEmpty("\n", b.cols.get(fields, "note"), b.cols.get(fields, "comment")),
		SourceURL:  link,
	}
	if lat, lng, ok := CoordinatesFromURL(link); ok {
		cand = cand.WithCoordinates(lat, lng)
	}
	b.res.Collection.Candidates = append(b.res.Collection.Candidates, cand)
}

// ReadTabular reads one delimited-text saved list. name becomes the
// collection name; source identifies the entry in warnings. A file whose
// header lacks a title or URL column is an error; malformed rows become
// warnings.
func ReadTabular(ctx context.Context, r io.Reader, name, source string, delim rune) (*Result, error) {
	b := newTabularBuilder(name, source)

	rows, errs := StreamCSV(ctx, r, CSVOptions{Delimiter: delim, TrimSpace: true})
	first := true
	for rec := range rows {
		if rec.Err != nil {
			if first {
				drain(rows)
				return nil, eris.Wrapf(rec.Err, "extract: %s header", source)
			}
			b.warn("skipped unreadable row: %v", rec.Err)
			continue
		}
		if first {
			first = false
			if err := b.header(rec.Fields); err != nil {
				drain(rows)
				return nil, err
			}
			continue
		}
		if isBlank(rec.Fields) {
			continue
		}
		b.add(rec.Fields)
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrapf(err, "extract: read %s", source)
	}
	if first {
		return nil, eris.Errorf("extract: %s is empty", source)
	}

	zap.L().Debug("extract: read tabular list",
		zap.String("source", source),
		zap.Int("candidates", len(b.res.Collection.Candidates)),
		zap.Int("dropped", b.res.Dropped),
		zap.Int("warnings", len(b.res.Warnings)),
	)
	return b.res, nil
}

// DelimiterFor returns the field separator implied by a file extension.
func DelimiterFor(ext string) rune {
	if strings.EqualFold(ext, ".tsv") {
		return '\t'
	}
	return ','
}

func drain(ch <-chan Record) {
	for range ch {
	}
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func firstTag(tags string) string {
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
	}
	return ""
}

func joinNonEmpty(sep string, vals ...string) string {
	var out []string
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}
