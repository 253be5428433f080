package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/model"
)

const eventStatus = "status"

// handleImportEvents streams job updates as Server-Sent Events. The current
// state is sent first; the stream ends after a terminal update.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.deps.Events == nil {
		writeError(w, http.StatusNotImplemented, "event streams are not available")
		return
	}

	// Subscribe before reading the snapshot so no update falls in between.
	updates, cancel := s.deps.Events.Subscribe(id)
	defer cancel()

	current, err := s.deps.Importer.Status(id)
	if err != nil {
		writeStatusError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	log := zap.L().With(zap.String("job_id", id))

	if err := sendEvent(w, rc, eventStatus, current); err != nil {
		log.Debug("api: event stream closed", zap.Error(err))
		return
	}
	if current.Stage.Terminal() {
		return
	}

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	lastProgress := current.Progress
	for {
		select {
		case st, ok := <-updates:
			if !ok {
				// Dropped as a slow reader, or the job ended: send the latest
				// snapshot so the client can resume by polling.
				if latest, err := s.deps.Importer.Status(id); err == nil && latest.Progress >= lastProgress {
					_ = sendEvent(w, rc, eventStatus, latest)
				}
				return
			}
			if st.Progress < lastProgress {
				continue
			}
			lastProgress = st.Progress
			if err := sendEvent(w, rc, eventStatus, st); err != nil {
				log.Debug("api: event stream closed", zap.Error(err))
				return
			}
			if st.Stage.Terminal() {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// sendEvent writes one SSE frame and flushes it.
func sendEvent(w http.ResponseWriter, rc *http.ResponseController, event string, st model.JobStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "api: marshal event")
	}
	if _, err := fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event, st.Progress, data); err != nil {
		return eris.Wrap(err, "api: write event")
	}
	if err := rc.Flush(); err != nil {
		return eris.Wrap(err, "api: flush event")
	}
	return nil
}
