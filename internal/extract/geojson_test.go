package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFeatureCollection_Point(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[139.70,35.66]},"properties":{"name":"Hachiko"}}
	]}`

	res, err := ReadFeatureCollection([]byte(doc), "Saved Places", "Takeout/Saved Places.json")
	require.NoError(t, err)
	require.Len(t, res.Collection.Candidates, 1)

	c := res.Collection.Candidates[0]
	assert.Equal(t, "Hachiko", c.Name)
	assert.Empty(t, c.Address)
	require.True(t, c.HasCoordinates())
	lat, lng := c.Coordinates()
	assert.InDelta(t, 35.66, lat, 1e-9)
	assert.InDelta(t, 139.70, lng, 1e-9)
	assert.Contains(t, c.ExternalID, "meta:")
}

func TestReadFeatureCollection_TakeoutProperties(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},
		 "properties":{"google_maps_url":"http://maps.google.com/?cid=99","location":{"name":"Ramen Bar","address":"1 Dogenzaka, Tokyo"},"Comment":"try the tonkotsu"}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[2.2945,48.8584]},
		 "properties":{"Title":"Eiffel Tower","Google Maps URL":"http://maps.google.com/?cid=1","Location":{"Address":"Champ de Mars","Business Name":"Tour Eiffel","Geo Coordinates":{"Latitude":"48.8584","Longitude":"2.2945"}}}},
		{"type":"Feature","geometry":null,
		 "properties":{"Location":{"Business Name":"Colosseum","Geo Coordinates":{"Latitude":"41.8902","Longitude":"12.4922"}}}}
	]}`

	res, err := ReadFeatureCollection([]byte(doc), "Saved Places", "saved.json")
	require.NoError(t, err)
	require.Len(t, res.Collection.Candidates, 3)
	assert.Empty(t, res.Warnings)

	ramen := res.Collection.Candidates[0]
	assert.Equal(t, "Ramen Bar", ramen.Name)
	assert.Equal(t, "1 Dogenzaka, Tokyo", ramen.Address)
	assert.Equal(t, "cid:99", ramen.ExternalID)
	assert.Equal(t, "try the tonkotsu", ramen.Notes)
	assert.False(t, ramen.HasCoordinates(), "0,0 is a placeholder")

	eiffel := res.Collection.Candidates[1]
	assert.Equal(t, "Eiffel Tower", eiffel.Name, "Title precedes Business Name")
	assert.Equal(t, "Champ de Mars", eiffel.Address)
	assert.True(t, eiffel.HasCoordinates())

	colosseum := res.Collection.Candidates[2]
	assert.Equal(t, "Colosseum", colosseum.Name)
	require.True(t, colosseum.HasCoordinates(), "position falls back to properties")
	lat, _ := colosseum.Coordinates()
	assert.InDelta(t, 41.8902, lat, 1e-9)
}

func TestReadFeatureCollection_UnusableFeatures(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":null,"properties":{}},
		{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,1],[1,2]]},"properties":{"name":"Road"}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":"oops"},"properties":{"name":"Bad"}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[12.5,41.9]},"properties":{}},
		{"type":"Feature","geometry":null,"properties":{"address":"221B Baker Street"}}
	]}`

	res, err := ReadFeatureCollection([]byte(doc), "Places", "places.geojson")
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 3)
	require.Len(t, res.Collection.Candidates, 2)
	assert.Contains(t, res.Collection.Candidates[0].Name, "Dropped pin")
	assert.Equal(t, "221B Baker Street", res.Collection.Candidates[1].Name)
}

func TestReadFeatureCollection_NotACollection(t *testing.T) {
	_, err := ReadFeatureCollection([]byte(`{"type":"Feature"}`), "x", "x.json")
	assert.Error(t, err)

	_, err = ReadFeatureCollection([]byte(`not json`), "x", "x.json")
	assert.Error(t, err)
}

func TestReadFeatureCollection_Empty(t *testing.T) {
	res, err := ReadFeatureCollection([]byte(`{"type":"FeatureCollection","features":[]}`), "x", "x.json")
	require.NoError(t, err)
	assert.Empty(t, res.Collection.Candidates)
}
