package importer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/places-import/internal/model"
)

func newTestTracker(t *testing.T) (*tracker, *recorder) {
	t.Helper()
	rec := &recorder{}
	svc := NewService(nil, nil, WithObserver(rec))
	job := svc.newJob("u1")
	return newTracker(svc, job.ID, "u1"), rec
}

func TestTracker_AdvanceIsMonotonic(t *testing.T) {
	tr, rec := newTestTracker(t)

	tr.advance(model.StageDetecting, 20)
	tr.advance(model.StageDetecting, 10)
	tr.advance(model.StageExtracting, 50)
	tr.advance(model.StageParsing, 15)

	assert.Equal(t, model.StageParsing, tr.stage)
	assert.Equal(t, 20, tr.progress)

	updates := rec.all()
	require.Len(t, updates, 3)
	assert.Equal(t, model.StageExtracting, updates[0].Stage)
	assert.Equal(t, model.StageDetecting, updates[1].Stage)
	assert.Equal(t, model.StageParsing, updates[2].Stage)
	assert.Equal(t, 20, updates[2].Progress)
}

func TestTracker_ProgressIsCapped(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.advance(model.StageSaving, 250)
	assert.Equal(t, 100, tr.progress)
}

func TestTracker_TerminalIsFinal(t *testing.T) {
	tr, rec := newTestTracker(t)
	tr.warn("first warning")
	tr.fail(errors.New("boom"))
	tr.complete()
	tr.advance(model.StageSaving, 90)

	st, err := tr.svc.Status(tr.jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StageError, st.Stage)
	assert.Equal(t, []string{"first warning", "boom"}, st.Errors)
	assert.NotNil(t, st.CompletedAt)

	last := rec.all()
	assert.Equal(t, model.StageError, last[len(last)-1].Stage)
}

func TestTracker_DropEmpty(t *testing.T) {
	tr, _ := newTestTracker(t)
	cols := []model.Collection{
		{Name: "Empty"},
		{Name: "Full", Candidates: []model.Candidate{{Name: "A"}}},
	}

	out := tr.dropEmpty(cols)
	require.Len(t, out, 1)
	assert.Equal(t, "Full", out[0].Name)
	assert.Equal(t, 1, tr.warnings)
	assert.Len(t, cols, 2, "input slice is untouched")
}
