package importer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/model"
)

// tracker applies stage and progress changes for one job. Every change is
// written to the registry and then published, on the pipeline goroutine.
type tracker struct {
	svc      *Service
	jobID    string
	log      *zap.Logger
	stage    model.Stage
	progress int
	warnings int
}

func newTracker(s *Service, jobID, userID string) *tracker {
	return &tracker{
		svc:   s,
		jobID: jobID,
		log:   zap.L().With(zap.String("job_id", jobID), zap.String("user_id", userID)),
		stage: model.StageExtracting,
	}
}

// update mutates the job and publishes the result.
func (t *tracker) update(fn func(*model.Job)) {
	st, err := t.svc.registry.Update(t.jobID, fn)
	if err != nil {
		t.log.Error("importer: update job", zap.Error(err))
		return
	}
	t.stage = st.Stage
	t.progress = st.Progress
	t.svc.publish(st)
}

// advance moves the job to stage and raises progress to at least p.
// Backward stage moves and progress decreases are ignored; an update is
// published only when something changed.
func (t *tracker) advance(stage model.Stage, p int) {
	if stage != t.stage && !t.stage.CanAdvanceTo(stage) {
		t.log.Warn("importer: ignoring invalid stage transition",
			zap.String("from", string(t.stage)),
			zap.String("to", string(stage)),
		)
		return
	}
	if p > progressDone {
		p = progressDone
	}
	if stage == t.stage && p <= t.progress {
		return
	}
	t.update(func(j *model.Job) {
		j.Stage = stage
		if p > j.Progress {
			j.Progress = p
		}
	})
}

// warn records non-fatal problems on the job.
func (t *tracker) warn(msgs ...string) {
	if len(msgs) == 0 {
		return
	}
	for _, m := range msgs {
		t.log.Info("importer: warning", zap.String("detail", m))
	}
	t.warnings += len(msgs)
	t.update(func(j *model.Job) {
		j.Errors = append(j.Errors, msgs...)
	})
}

// dropEmpty removes collections without candidates, recording why.
func (t *tracker) dropEmpty(cols []model.Collection) []model.Collection {
	out := cols[:0:0]
	for _, c := range cols {
		if len(c.Candidates) == 0 {
			t.warn(fmt.Sprintf("%s: no places found, collection skipped", c.Title()))
			continue
		}
		out = append(out, c)
	}
	return out
}

func (t *tracker) complete() {
	if t.stage.Terminal() {
		return
	}
	now := t.svc.now().UTC()
	t.update(func(j *model.Job) {
		j.Stage = model.StageComplete
		j.Progress = progressDone
		j.CompletedAt = &now
	})
}

// fail ends the job in the error stage. Warnings already recorded stay in
// the error list ahead of the fatal cause.
func (t *tracker) fail(err error) {
	if t.stage.Terminal() {
		return
	}
	now := t.svc.now().UTC()
	t.update(func(j *model.Job) {
		j.Stage = model.StageError
		j.Errors = append(j.Errors, err.Error())
		j.CompletedAt = &now
	})
}
