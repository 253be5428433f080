// Package extract turns archive entries into candidate collections: saved
// lists in delimited-text or spreadsheet form, and point-feature documents.
package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter rune // default ','
	TrimSpace bool
}

// Record is one parsed row. Err is set when the row itself is malformed;
// the stream continues with the next row.
type Record struct {
	Line   int
	Fields []string
	Err    error
}

// StreamCSV reads delimited text and sends records to a channel. A
// malformed row is delivered as a Record with Err set; read failures and
// cancellation end the stream on the error channel. Both channels are closed
// when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Record, <-chan error) {
	rowCh := make(chan Record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.FieldsPerRecord = -1 // allow variable fields

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			fields, err := reader.Read()
			if err == io.EOF {
				return
			}
			rec := Record{Fields: fields}
			if err == nil && len(fields) > 0 {
				rec.Line, _ = reader.FieldPos(0)
			}
			if err != nil {
				var pe *csv.ParseError
				if !errors.As(err, &pe) {
					errCh <- eris.Wrap(err, "csv: read row")
					return
				}
				rec = Record{Line: pe.StartLine, Err: eris.Wrapf(pe.Err, "csv: line %d", pe.StartLine)}
			}

			if opts.TrimSpace {
				for i, field := range rec.Fields {
					rec.Fields[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- rec:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
