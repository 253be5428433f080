package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTabular_TakeoutList(t *testing.T) {
	input := "Title,Note,URL,Tags,Comment\n" +
		"Shibuya Crossing,busy,https://www.google.com/maps/place/Shibuya/data=!4m2!3m1!1s0x60188b563b00109f:0x2,sights,\n" +
		",,,,\n" +
		"Dropped pin,,\"https://www.google.com/maps/search/35.6595,139.7005\",,\n" +
		"No link,,,,\n"

	res, err := ReadTabular(context.Background(), strings.NewReader(input), "Tokyo", "Saved/Tokyo.csv", ',')
	require.NoError(t, err)

	col := res.Collection
	assert.Equal(t, "Tokyo", col.Name)
	assert.Equal(t, "Saved/Tokyo.csv", col.Source)
	require.Len(t, col.Candidates, 2)
	assert.Equal(t, 1, res.Dropped, "blank row is skipped, row without URL is dropped")
	assert.Empty(t, res.Warnings)

	first := col.Candidates[0]
	assert.Equal(t, "Shibuya Crossing", first.Name)
	assert.Equal(t, "gmaps:0x60188b563b00109f:0x2", first.ExternalID)
	assert.Equal(t, "sights", first.Category)
	assert.Equal(t, "busy", first.Notes)
	assert.False(t, first.HasCoordinates())

	pin := col.Candidates[1]
	require.True(t, pin.HasCoordinates())
	lat, lng := pin.Coordinates()
	assert.InDelta(t, 35.6595, lat, 1e-9)
	assert.InDelta(t, 139.7005, lng, 1e-9)
}

func TestReadTabular_HeaderAliasesAndBOM(t *testing.T) {
	input := "\ufeffName\tLink\tAddress\tNotes\tComment\n" +
		"Louvre\thttps://maps.google.com/?cid=42\tRue de Rivoli\tart\tgo early\n"

	res, err := ReadTabular(context.Background(), strings.NewReader(input), "Paris", "saved/Paris.tsv", DelimiterFor(".TSV"))
	require.NoError(t, err)
	require.Len(t, res.Collection.Candidates, 1)

	c := res.Collection.Candidates[0]
	assert.Equal(t, "Louvre", c.Name)
	assert.Equal(t, "Rue de Rivoli", c.Address)
	assert.Equal(t, "cid:42", c.ExternalID)
	assert.Equal(t, "art\ngo early", c.Notes)
}

func TestReadTabular_NineValidOneMalformed(t *testing.T) {
	var b strings.Builder
	b.WriteString("Title,URL\n")
	for i := 0; i < 10; i++ {
		if i == 4 {
			b.WriteString("Broken \"row,https://example.com/broken\n")
			continue
		}
		fmt.Fprintf(&b, "Place %d,https://example.com/p/%d\n", i, i)
	}

	res, err := ReadTabular(context.Background(), strings.NewReader(b.String()), "List", "saved/List.csv", ',')
	require.NoError(t, err)
	assert.Len(t, res.Collection.Candidates, 9)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "saved/List.csv")
	assert.Contains(t, res.Warnings[0], "line 6")
}

func TestReadTabular_MissingRequiredColumns(t *testing.T) {
	_, err := ReadTabular(context.Background(), strings.NewReader("Title,Note\nA,b\n"), "L", "l.csv", ',')
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no url column")

	_, err = ReadTabular(context.Background(), strings.NewReader("URL\nhttps://x\n"), "L", "l.csv", ',')
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no title column")
}

func TestReadTabular_Empty(t *testing.T) {
	_, err := ReadTabular(context.Background(), strings.NewReader(""), "L", "l.csv", ',')
	assert.Error(t, err)
}

func TestReadTabular_HeaderOnly(t *testing.T) {
	res, err := ReadTabular(context.Background(), strings.NewReader("Title,URL\n"), "L", "l.csv", ',')
	require.NoError(t, err)
	assert.Empty(t, res.Collection.Candidates)
}

func TestDelimiterFor(t *testing.T) {
	assert.Equal(t, '\t', DelimiterFor(".tsv"))
	assert.Equal(t, ',', DelimiterFor(".csv"))
}
