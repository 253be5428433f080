package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/importer"
	"github.com/sells-group/places-import/internal/model"
	"github.com/sells-group/places-import/internal/store"
	"github.com/sells-group/places-import/pkg/geocode"
)

// formOverhead is room for the non-file multipart fields on top of the
// archive size limit.
const formOverhead = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmitImport accepts a multipart upload with an "archive" file, the
// owning user in a "user_id" field or X-User-ID header, and optional
// "selections" JSON. The job runs in the background.
func (s *Server) handleSubmitImport(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "archive exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	userID := strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		userID = strings.TrimSpace(r.Header.Get("X-User-ID"))
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if s.deps.Limiter != nil && !s.deps.Limiter.Allow(userID) {
		zap.L().Warn("api: import rate limit exceeded", zap.String("user_id", userID))
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusTooManyRequests, "too many imports, try again later")
		return
	}

	file, header, err := r.FormFile("archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "archive file is required")
		return
	}
	defer file.Close() //nolint:errcheck
	if limit > 0 && header.Size > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "archive exceeds the upload limit")
		return
	}

	var selections []model.Selection
	if raw := strings.TrimSpace(r.FormValue("selections")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &selections); err != nil {
			writeError(w, http.StatusBadRequest, "selections must be a JSON array")
			return
		}
	}

	path, err := s.saveUpload(file)
	if err != nil {
		zap.L().Error("api: save upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	id, err := s.deps.Importer.Submit(r.Context(), importer.Request{
		ArchivePath: path,
		UserID:      userID,
		Selections:  selections,
		Cleanup:     true,
	})
	if err != nil {
		_ = os.Remove(path)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	zap.L().Info("api: import accepted",
		zap.String("job_id", id),
		zap.String("user_id", userID),
		zap.String("filename", header.Filename),
		zap.Int64("bytes", header.Size),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// saveUpload copies the archive into the upload directory. The importer
// removes it once the job is terminal.
func (s *Server) saveUpload(src io.Reader) (string, error) {
	dir := s.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", eris.Wrapf(err, "api: create upload dir %s", dir)
	}
	f, err := os.CreateTemp(dir, "import-*.zip")
	if err != nil {
		return "", eris.Wrap(err, "api: create upload file")
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()           //nolint:errcheck
		os.Remove(f.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "api: write upload file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "api: close upload file")
	}
	return f.Name(), nil
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Importer.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeStatusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleJobsByUser lists a user's jobs known to this process, newest first.
func (s *Server) handleJobsByUser(w http.ResponseWriter, r *http.Request) {
	jobs := s.deps.Importer.Jobs(chi.URLParam(r, "userID"))
	if jobs == nil {
		jobs = []model.JobStatus{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleListsByUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.Lists == nil {
		writeError(w, http.StatusNotImplemented, "lists are not available")
		return
	}
	lists, err := s.deps.Lists.ListsByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		zap.L().Error("api: list user lists", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read lists")
		return
	}
	if lists == nil {
		lists = []store.List{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (s *Server) handleGeocodeStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Queue == nil {
		writeJSON(w, http.StatusOK, geocode.QueueStatus{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Queue.Status())
}

func writeStatusError(w http.ResponseWriter, err error) {
	if errors.Is(err, importer.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	zap.L().Error("api: job status", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "could not read job")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
