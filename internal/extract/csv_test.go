package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRecords(t *testing.T, rows <-chan Record, errs <-chan error) ([]Record, error) {
	t.Helper()
	var out []Record
	for r := range rows {
		out = append(out, r)
	}
	return out, <-errs
}

func TestStreamCSV_Basic(t *testing.T) {
	rows, errs := StreamCSV(context.Background(), strings.NewReader("a,b\n1,2\n3,4\n"), CSVOptions{})
	recs, err := collectRecords(t, rows, errs)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"a", "b"}, recs[0].Fields)
	assert.Equal(t, 1, recs[0].Line)
	assert.Equal(t, []string{"3", "4"}, recs[2].Fields)
	assert.Equal(t, 3, recs[2].Line)
}

func TestStreamCSV_TabAndTrim(t *testing.T) {
	rows, errs := StreamCSV(context.Background(), strings.NewReader(" a \t b \n"), CSVOptions{Delimiter: '\t', TrimSpace: true})
	recs, err := collectRecords(t, rows, errs)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"a", "b"}, recs[0].Fields)
}

func TestStreamCSV_MalformedRowContinues(t *testing.T) {
	input := "a,b\nbad \"quote,x\n5,6\n"
	rows, errs := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	recs, err := collectRecords(t, rows, errs)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Error(t, recs[1].Err)
	assert.Equal(t, 2, recs[1].Line)
	assert.NoError(t, recs[2].Err)
	assert.Equal(t, []string{"5", "6"}, recs[2].Fields)
}

func TestStreamCSV_VariableFields(t *testing.T) {
	rows, errs := StreamCSV(context.Background(), strings.NewReader("a,b,c\n1\n"), CSVOptions{})
	recs, err := collectRecords(t, rows, errs)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"1"}, recs[1].Fields)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, errs := StreamCSV(ctx, strings.NewReader("a\nb\n"), CSVOptions{})
	_, err := collectRecords(t, rows, errs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
