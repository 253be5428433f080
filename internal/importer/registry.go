package importer

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/places-import/internal/model"
)

// ErrJobNotFound is returned for unknown job identifiers.
var ErrJobNotFound = eris.New("importer: job not found")

// Registry holds job state for status queries. Implementations must allow
// concurrent reads while the owning pipeline updates a job.
type Registry interface {
	// Put registers a new job.
	Put(job *model.Job)
	// Update applies fn to the stored job and returns the resulting status.
	Update(id string, fn func(*model.Job)) (model.JobStatus, error)
	Get(id string) (model.JobStatus, error)
	// List returns all jobs of userID, newest first.
	List(userID string) []model.JobStatus
}

// MemoryRegistry is an in-process Registry. Jobs live until the process
// exits.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]*model.Job)}
}

// Put implements Registry.
func (r *MemoryRegistry) Put(job *model.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

// Update implements Registry.
func (r *MemoryRegistry) Update(id string, fn func(*model.Job)) (model.JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return model.JobStatus{}, eris.Wrapf(ErrJobNotFound, "importer: update %s", id)
	}
	fn(job)
	return job.Status(), nil
}

// Get implements Registry.
func (r *MemoryRegistry) Get(id string) (model.JobStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return model.JobStatus{}, eris.Wrapf(ErrJobNotFound, "importer: get %s", id)
	}
	return job.Status(), nil
}

// List implements Registry.
func (r *MemoryRegistry) List(userID string) []model.JobStatus {
	r.mu.RLock()
	var out []model.JobStatus
	for _, job := range r.jobs {
		if job.UserID == userID {
			out = append(out, job.Status())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}
