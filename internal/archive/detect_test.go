package archive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const featureCollection = `{"type":"FeatureCollection","features":[]}`

func TestDetect_SavedTabular(t *testing.T) {
	a := openTestZIP(t,
		zipFile{"Takeout/Maps (your places)/Saved Places.json", featureCollection},
		zipFile{"Takeout/Saved/Tokyo.csv", "Title,URL\n"},
		zipFile{"Takeout/Saved/Kyoto.xlsx", "binary"},
		zipFile{"Takeout/Saved/readme.txt", "ignored"},
		zipFile{"Takeout/other.csv", "not saved"},
	)

	plan, err := NewDetector().Detect(a)
	require.NoError(t, err)
	assert.Equal(t, StrategyTabular, plan.Strategy)
	require.Len(t, plan.Entries, 2)
	assert.Equal(t, "Tokyo", plan.Entries[0].Stem())
	assert.Equal(t, "Kyoto", plan.Entries[1].Stem())
}

func TestDetect_CustomSavedDir(t *testing.T) {
	a := openTestZIP(t, zipFile{"export/Favourites/Paris.tsv", "Title\tURL\n"})

	_, err := NewDetector().Detect(a)
	assert.ErrorIs(t, err, ErrUnsupportedLayout)

	plan, err := NewDetector("favourites").Detect(a)
	require.NoError(t, err)
	assert.Equal(t, StrategyTabular, plan.Strategy)
}

func TestDetect_GeoJSONExtension(t *testing.T) {
	a := openTestZIP(t,
		zipFile{"places.json", `{"not":"features"}`},
		zipFile{"export/places.geojson", featureCollection},
	)

	plan, err := NewDetector().Detect(a)
	require.NoError(t, err)
	assert.Equal(t, StrategyStructured, plan.Strategy)
	require.Len(t, plan.Entries, 1)
	assert.Equal(t, "export/places.geojson", plan.Entries[0].Name)
}

func TestDetect_SniffsJSON(t *testing.T) {
	a := openTestZIP(t,
		zipFile{"Takeout/Maps/config.json", `{"version":1}`},
		zipFile{"Takeout/Maps (your places)/Saved Places.json", featureCollection},
	)

	plan, err := NewDetector().Detect(a)
	require.NoError(t, err)
	assert.Equal(t, StrategyStructured, plan.Strategy)
	assert.Equal(t, "Saved Places.json", plan.Entries[0].Base())
}

func TestDetect_Unsupported(t *testing.T) {
	a := openTestZIP(t,
		zipFile{"Takeout/archive_browser.html", "<html>"},
		zipFile{"Takeout/data.json", `{"a":1}`},
	)

	_, err := NewDetector().Detect(a)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedLayout)

	var le *LayoutError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, []string{"Takeout/archive_browser.html", "Takeout/data.json"}, le.Entries)
	assert.Contains(t, err.Error(), "archive_browser.html")
}

func TestDetect_EmptyArchive(t *testing.T) {
	a := openTestZIP(t)
	_, err := NewDetector().Detect(a)
	assert.ErrorIs(t, err, ErrUnsupportedLayout)
}

func TestTabularEntries(t *testing.T) {
	a := openTestZIP(t,
		zipFile{"root.csv", "a"},
		zipFile{"nested/deep/list.xlsx", "b"},
		zipFile{"doc.geojson", featureCollection},
	)

	got := TabularEntries(a)
	require.Len(t, got, 2)
	assert.Equal(t, "root.csv", got[0].Name)
	assert.Equal(t, "nested/deep/list.xlsx", got[1].Name)
}
