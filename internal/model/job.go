package model

import "time"

// Stage is one named phase of an import job.
type Stage string

const (
	StageUploading  Stage = "uploading"
	StageExtracting Stage = "extracting"
	StageDetecting  Stage = "detecting"
	StageParsing    Stage = "parsing"
	StageGeocoding  Stage = "geocoding"
	StageSaving     Stage = "saving"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// stageOrder ranks the non-error stages. StageError is reachable from any
// stage and is handled separately.
var stageOrder = map[Stage]int{
	StageUploading:  0,
	StageExtracting: 1,
	StageDetecting:  2,
	StageParsing:    3,
	StageGeocoding:  4,
	StageSaving:     5,
	StageComplete:   6,
}

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// CanAdvanceTo reports whether a job in stage s may move to next.
// Stages may repeat (progress updates) but never move backwards, and
// terminal stages are final.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageError {
		return true
	}
	cur, ok := stageOrder[s]
	if !ok {
		return false
	}
	n, ok := stageOrder[next]
	if !ok {
		return false
	}
	return n >= cur
}

// Job is the mutable state of one import. It is owned by the pipeline
// goroutine; readers get copies through JobStatus.
type Job struct {
	ID              string
	UserID          string
	Stage           Stage
	Progress        int
	ListsProcessed  int
	PlacesProcessed int
	TotalLists      int
	TotalPlaces     int
	Errors          []string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// JobStatus is the polling contract returned to callers.
type JobStatus struct {
	JobID           string     `json:"jobId"`
	UserID          string     `json:"userId,omitempty"`
	Stage           Stage      `json:"stage"`
	Progress        int        `json:"progress"`
	ListsProcessed  int        `json:"listsProcessed"`
	PlacesProcessed int        `json:"placesProcessed"`
	TotalLists      int        `json:"totalLists"`
	TotalPlaces     int        `json:"totalPlaces"`
	Errors          []string   `json:"errors"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Status returns a deep copy of the job suitable for concurrent readers.
func (j *Job) Status() JobStatus {
	errs := make([]string, len(j.Errors))
	copy(errs, j.Errors)

	st := JobStatus{
		JobID:           j.ID,
		UserID:          j.UserID,
		Stage:           j.Stage,
		Progress:        j.Progress,
		ListsProcessed:  j.ListsProcessed,
		PlacesProcessed: j.PlacesProcessed,
		TotalLists:      j.TotalLists,
		TotalPlaces:     j.TotalPlaces,
		Errors:          errs,
		StartedAt:       j.StartedAt,
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		st.CompletedAt = &t
	}
	return st
}

// ProcessResult is returned by the synchronous import path.
type ProcessResult struct {
	Success        bool     `json:"success"`
	ListsCreated   int      `json:"listsCreated"`
	PlacesImported int      `json:"placesImported"`
	Errors         []string `json:"errors,omitempty"`
}
