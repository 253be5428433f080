package importer

import (
	"bytes"
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/places-import/internal/archive"
	"github.com/sells-group/places-import/internal/extract"
	"github.com/sells-group/places-import/internal/model"
)

// readEntry extracts one archive entry according to its extension. The
// collection is named after the file.
func readEntry(ctx context.Context, a *archive.Archive, e archive.Entry) (*extract.Result, error) {
	switch e.Ext() {
	case ".csv", ".tsv":
		rc, err := a.OpenEntry(e)
		if err != nil {
			return nil, err
		}
		defer rc.Close() //nolint:errcheck
		return extract.ReadTabular(ctx, rc, e.Stem(), e.Name, extract.DelimiterFor(e.Ext()))
	case ".xlsx":
		data, err := a.ReadEntry(e)
		if err != nil {
			return nil, err
		}
		return extract.ReadSpreadsheet(data, e.Stem(), e.Name)
	case ".json", ".geojson":
		data, err := a.ReadEntry(e)
		if err != nil {
			return nil, err
		}
		return extract.ReadFeatureCollection(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), e.Stem(), e.Name)
	default:
		return nil, eris.Errorf("importer: no reader for %s", e.Name)
	}
}

func syntheticID(c model.Candidate) string {
	return extract.SyntheticID(c.Name, c.Address, c.Latitude, c.Longitude)
}
