package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	// featureIDPattern matches the hex feature token Google Maps embeds in
	// place URLs, e.g. "1s0x60188b563b00109f:0x337328def1e2ab26".
	featureIDPattern = regexp.MustCompile(`0x[0-9a-fA-F]+:0x[0-9a-fA-F]+`)
	placeIDPattern   = regexp.MustCompile(`(?:place_id[:=]|query_place_id=)([A-Za-z0-9_-]{10,})`)

	// coordPattern matches "lat,lng" as it appears after /search/ or @ in
	// map URLs.
	coordPattern = regexp.MustCompile(`(?:/search/|@|[?&]q=|[?&]ll=)(-?\d{1,2}(?:\.\d+)?),\s*(-?\d{1,3}(?:\.\d+)?)`)
)

// ExternalID derives a stable identifier from a place reference URL. A
// provider token is used when the URL carries one; otherwise the identifier
// is a hash of the trimmed URL. Empty input yields "".
func ExternalID(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	if m := featureIDPattern.FindString(rawURL); m != "" {
		return "gmaps:" + strings.ToLower(m)
	}
	if u, err := url.Parse(rawURL); err == nil {
		if cid := u.Query().Get("cid"); cid != "" {
			return "cid:" + cid
		}
	}
	if m := placeIDPattern.FindStringSubmatch(rawURL); m != nil {
		return "place:" + m[1]
	}
	return "url:" + shortHash(rawURL)
}

// SyntheticID builds an identifier from place metadata for records without
// a reference URL. Equal inputs always give equal identifiers.
func SyntheticID(name, address string, lat, lng *float64) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(name)),
		strings.ToLower(strings.TrimSpace(address)),
	}
	if lat != nil && lng != nil {
		parts = append(parts,
			strconv.FormatFloat(*lat, 'f', 6, 64),
			strconv.FormatFloat(*lng, 'f', 6, 64),
		)
	}
	return "meta:" + shortHash(strings.Join(parts, "|"))
}

// CoordinatesFromURL extracts a latitude/longitude pair embedded in a map
// URL, as exported for dropped pins.
func CoordinatesFromURL(rawURL string) (lat, lng float64, ok bool) {
	m := coordPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	if !validCoordinates(lat, lng) {
		return 0, 0, false
	}
	return lat, lng, true
}

// validCoordinates rejects out-of-range values and the 0,0 placeholder
// exporters write for unknown positions.
func validCoordinates(lat, lng float64) bool {
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
