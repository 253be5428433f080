package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/model"
)

// featureCollection mirrors the GeoJSON envelope. Geometry is kept raw so
// that one bad feature does not fail the whole document.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// Property lookup order. Paths are dot-separated into nested objects; the
// first non-empty value wins.
var (
	namePaths     = []string{"location.name", "Title", "title", "name", "Name", "Location.Business Name"}
	addressPaths  = []string{"location.address", "Location.Address", "address", "Address"}
	categoryPaths = []string{"category", "Category", "location.category", "Location.Category"}
	notesPaths    = []string{"Comment", "comment", "note", "notes", "description"}
	urlPaths      = []string{"google_maps_url", "Google Maps URL", "url", "URL"}
	latPaths      = []string{"Location.Geo Coordinates.Latitude", "location.latitude", "latitude"}
	lngPaths      = []string{"Location.Geo Coordinates.Longitude", "location.longitude", "longitude"}
)

// ReadFeatureCollection reads a point-feature document. Each usable point
// feature yields one candidate; coordinates come from the geometry when it
// carries a real position. Features with nothing to identify them are
// dropped with a warning.
func ReadFeatureCollection(data []byte, name, source string) (*Result, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "geojson: decode %s", source)
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("geojson: %s is a %q, not a FeatureCollection", source, fc.Type)
	}

	res := &Result{Collection: model.Collection{Name: name, Source: source}}
	for i, f := range fc.Features {
		cand, warning := featureCandidate(f)
		if warning != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: feature %d: %s", source, i, warning))
			continue
		}
		res.Collection.Candidates = append(res.Collection.Candidates, cand)
	}

	zap.L().Debug("extract: read feature collection",
		zap.String("source", source),
		zap.Int("features", len(fc.Features)),
		zap.Int("candidates", len(res.Collection.Candidates)),
	)
	return res, nil
}

func featureCandidate(f feature) (model.Candidate, string) {
	props := f.Properties

	lat, lng, hasPos, err := pointPosition(f.Geometry)
	if err != nil {
		return model.Candidate{}, err.Error()
	}
	if !hasPos {
		lat, lng, hasPos = propertyPosition(props)
	}

	cand := model.Candidate{
		Name:      lookupString(props, namePaths...),
		Address:   lookupString(props, addressPaths...),
		Category:  lookupString(props, categoryPaths...),
		Notes:     lookupString(props, notesPaths...),
		SourceURL: lookupString(props, urlPaths...),
	}
	if hasPos {
		cand = cand.WithCoordinates(lat, lng)
	}

	if cand.Name == "" {
		switch {
		case cand.Address != "":
			cand.Name = cand.Address
		case hasPos:
			cand.Name = fmt.Sprintf("Dropped pin (%.5f, %.5f)", lat, lng)
		default:
			return model.Candidate{}, "no name, address or position"
		}
	}

	if cand.SourceURL != "" {
		cand.ExternalID = ExternalID(cand.SourceURL)
	} else {
		cand.ExternalID = SyntheticID(cand.Name, cand.Address, cand.Latitude, cand.Longitude)
	}
	return cand, ""
}

// pointPosition decodes a point geometry. A null or placeholder geometry
// reports no position without error; other geometry types are errors.
func pointPosition(raw json.RawMessage) (lat, lng float64, ok bool, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, 0, false, nil
	}

	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return 0, 0, false, eris.Wrap(err, "invalid geometry")
	}
	p, isPoint := g.(*geom.Point)
	if !isPoint {
		return 0, 0, false, eris.Errorf("unsupported geometry %T", g)
	}
	coords := p.FlatCoords()
	if len(coords) < 2 {
		return 0, 0, false, nil
	}
	lng, lat = coords[0], coords[1]
	if !validCoordinates(lat, lng) {
		return 0, 0, false, nil
	}
	return lat, lng, true, nil
}

func propertyPosition(props map[string]any) (lat, lng float64, ok bool) {
	la, okLat := lookupFloat(props, latPaths...)
	lo, okLng := lookupFloat(props, lngPaths...)
	if !okLat || !okLng || !validCoordinates(la, lo) {
		return 0, 0, false
	}
	return la, lo, true
}

func lookup(props map[string]any, path string) (any, bool) {
	var cur any = props
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func lookupString(props map[string]any, paths ...string) string {
	for _, p := range paths {
		v, ok := lookup(props, p)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func lookupFloat(props map[string]any, paths ...string) (float64, bool) {
	for _, p := range paths {
		v, ok := lookup(props, p)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
