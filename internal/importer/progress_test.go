package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/places-import/internal/model"
)

func TestBroadcaster_DeliversInOrderAndClosesOnTerminal(t *testing.T) {
	b := NewBroadcaster(0)
	ch, cancel := b.Subscribe("j1")
	defer cancel()

	b.Publish(model.JobStatus{JobID: "j1", Stage: model.StageParsing, Progress: 30})
	b.Publish(model.JobStatus{JobID: "other", Stage: model.StageParsing})
	b.Publish(model.JobStatus{JobID: "j1", Stage: model.StageComplete, Progress: 100})

	var got []model.JobStatus
	for st := range ch {
		got = append(got, st)
	}
	require.Len(t, got, 2)
	assert.Equal(t, 30, got[0].Progress)
	assert.Equal(t, model.StageComplete, got[1].Stage)
	assert.Equal(t, 0, b.Subscribers("j1"))
}

func TestBroadcaster_SlowSubscriberIsDropped(t *testing.T) {
	b := NewBroadcaster(2)
	slow, cancelSlow := b.Subscribe("j1")
	defer cancelSlow()

	for p := 1; p <= 3; p++ {
		b.Publish(model.JobStatus{JobID: "j1", Stage: model.StageGeocoding, Progress: p})
	}
	assert.Equal(t, 0, b.Subscribers("j1"))

	var got []int
	for st := range slow {
		got = append(got, st.Progress)
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestBroadcaster_CancelIsIdempotent(t *testing.T) {
	b := NewBroadcaster(4)
	ch, cancel := b.Subscribe("j1")
	assert.Equal(t, 1, b.Subscribers("j1"))

	cancel()
	cancel()
	assert.Equal(t, 0, b.Subscribers("j1"))

	_, open := <-ch
	assert.False(t, open)

	// Publishing with no subscribers is a no-op.
	b.Publish(model.JobStatus{JobID: "j1", Stage: model.StageComplete})
}

func TestObserverFunc(t *testing.T) {
	var got model.Stage
	var o Observer = ObserverFunc(func(st model.JobStatus) { got = st.Stage })
	o.Publish(model.JobStatus{Stage: model.StageSaving})
	assert.Equal(t, model.StageSaving, got)
}
