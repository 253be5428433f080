// Package importer runs place-archive imports: it owns the job state
// machine, drives extraction, enrichment and persistence in order, and
// publishes every job update to status readers.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/archive"
	"github.com/sells-group/places-import/internal/enrich"
	"github.com/sells-group/places-import/internal/model"
	"github.com/sells-group/places-import/internal/resilience"
	"github.com/sells-group/places-import/internal/store"
)

// DefaultFallbackListName names the collection built from loose tabular
// files when a feature document has no usable places.
const DefaultFallbackListName = "Imported Places"

// Progress checkpoints.
const (
	progressOpened   = 10
	progressDetected = 30
	progressParsed   = 40
	progressGeocoded = 70
	progressSaved    = 90
	progressDone     = 100
)

// Request describes one archive import.
type Request struct {
	ArchivePath string
	UserID      string
	Selections  []model.Selection
	// Cleanup removes the archive file once the job is terminal.
	Cleanup bool
}

func (r Request) validate() error {
	if strings.TrimSpace(r.ArchivePath) == "" {
		return eris.New("importer: archive path is required")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return eris.New("importer: user id is required")
	}
	return nil
}

// FatalError ends a job in the error stage.
type FatalError struct {
	Stage model.Stage
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("import failed while %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Service runs imports. It is safe for concurrent use; every job shares the
// enricher and therefore its lookup queue.
type Service struct {
	store            store.Store
	enricher         *enrich.Enricher
	detector         *archive.Detector
	registry         Registry
	observer         Observer
	maxArchiveBytes  int64
	fallbackListName string
	retry            resilience.RetryConfig
	now              func() time.Time

	wg sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithRegistry replaces the default in-memory registry.
func WithRegistry(r Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithObserver receives every job update.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithDetector replaces the default format detector.
func WithDetector(d *archive.Detector) Option {
	return func(s *Service) { s.detector = d }
}

// WithMaxArchiveBytes bounds archive and entry sizes.
func WithMaxArchiveBytes(n int64) Option {
	return func(s *Service) { s.maxArchiveBytes = n }
}

// WithFallbackListName names the synthetic fallback collection.
func WithFallbackListName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.fallbackListName = name
		}
	}
}

// WithRetry sets the retry policy for store writes.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// NewService creates a Service writing to st and enriching with e.
func NewService(st store.Store, e *enrich.Enricher, opts ...Option) *Service {
	s := &Service{
		store:            st,
		enricher:         e,
		detector:         archive.NewDetector(),
		registry:         NewMemoryRegistry(),
		fallbackListName: DefaultFallbackListName,
		retry:            resilience.DefaultRetryConfig("store write"),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit registers a job and runs it in the background. The returned id can
// be polled with Status. The job outlives ctx cancellation.
func (s *Service) Submit(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	job := s.newJob(req.UserID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(context.WithoutCancel(ctx), job.ID, req)
	}()
	return job.ID, nil
}

// Process runs a job to completion on the calling goroutine.
func (s *Service) Process(ctx context.Context, req Request) (*model.ProcessResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	job := s.newJob(req.UserID)
	res := s.run(ctx, job.ID, req)
	return res, nil
}

// Status returns a snapshot of a job.
func (s *Service) Status(id string) (model.JobStatus, error) {
	return s.registry.Get(id)
}

// Jobs returns the jobs of a user, newest first.
func (s *Service) Jobs(userID string) []model.JobStatus {
	return s.registry.List(userID)
}

// Wait blocks until every background job has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "importer: wait for jobs")
	}
}

func (s *Service) newJob(userID string) *model.Job {
	job := &model.Job{
		ID:        uuid.New().String(),
		UserID:    userID,
		Stage:     model.StageExtracting,
		StartedAt: s.now().UTC(),
	}
	s.registry.Put(job)
	s.publish(job.Status())
	return job
}

func (s *Service) publish(st model.JobStatus) {
	if s.observer != nil {
		s.observer.Publish(st)
	}
}

// run executes the pipeline for one job and always leaves it terminal.
func (s *Service) run(ctx context.Context, jobID string, req Request) (res *model.ProcessResult) {
	t := newTracker(s, jobID, req.UserID)
	start := s.now()

	if req.Cleanup {
		defer func() {
			if err := os.Remove(req.ArchivePath); err != nil && !errors.Is(err, os.ErrNotExist) {
				t.log.Warn("importer: remove archive", zap.Error(err))
			}
		}()
	}
	defer func() {
		if r := recover(); r != nil {
			t.fail(&FatalError{Stage: t.stage, Err: eris.Errorf("panic: %v", r)})
		}
		st, _ := s.registry.Get(jobID)
		res = &model.ProcessResult{
			Success:        st.Stage == model.StageComplete,
			ListsCreated:   st.ListsProcessed,
			PlacesImported: st.PlacesProcessed,
			Errors:         st.Errors,
		}
	}()

	counts, err := s.pipeline(ctx, t, req)
	if err != nil {
		t.fail(err)
		t.log.Error("importer: job failed", zap.Error(err), zap.Duration("elapsed", s.now().Sub(start)))
		return nil
	}

	t.complete()
	t.log.Info("importer: job complete",
		zap.Int("lists", counts.ListsCreated),
		zap.Int("places", counts.PlacesImported),
		zap.Int("warnings", t.warnings),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return nil
}

type saveCounts struct {
	ListsCreated   int
	PlacesImported int
}

func (s *Service) pipeline(ctx context.Context, t *tracker, req Request) (*saveCounts, error) {
	// extracting
	t.advance(model.StageExtracting, 0)
	a, err := archive.Open(req.ArchivePath, s.maxArchiveBytes)
	if err != nil {
		return nil, &FatalError{Stage: model.StageExtracting, Err: err}
	}
	defer a.Close() //nolint:errcheck
	t.advance(model.StageExtracting, progressOpened)

	// detecting
	t.advance(model.StageDetecting, progressOpened)
	plan, err := s.detector.Detect(a)
	if err != nil {
		var le *archive.LayoutError
		if errors.As(err, &le) {
			t.log.Warn("importer: unsupported archive layout", zap.Strings("entries", le.Entries))
		}
		return nil, &FatalError{Stage: model.StageDetecting, Err: err}
	}
	t.log.Info("importer: detected layout",
		zap.String("strategy", string(plan.Strategy)),
		zap.Int("entries", len(plan.Entries)),
	)
	t.advance(model.StageDetecting, progressDetected)

	// parsing
	t.advance(model.StageParsing, progressDetected)
	cols := s.parse(ctx, t, a, plan)
	cols = model.ApplySelections(cols, req.Selections)
	cols = t.dropEmpty(cols)
	if len(cols) == 0 {
		return nil, &FatalError{Stage: model.StageParsing, Err: eris.New("no collections with places found")}
	}
	totalPlaces := 0
	for _, c := range cols {
		totalPlaces += len(c.Candidates)
	}
	t.update(func(j *model.Job) {
		j.TotalLists = len(cols)
		j.TotalPlaces = totalPlaces
	})
	t.advance(model.StageParsing, progressParsed)

	// geocoding
	t.advance(model.StageGeocoding, progressParsed)
	enriched := make([]model.Collection, len(cols))
	for i, col := range cols {
		out := s.enricher.Enrich(ctx, col, func(done, total int) {
			t.advance(model.StageGeocoding, span(progressParsed, progressGeocoded, i, len(cols), done, total))
		})
		t.warn(out.Warnings...)
		enriched[i] = out.Collection
		t.log.Debug("importer: enriched collection",
			zap.String("collection", col.Name),
			zap.Int("lookups", out.Lookups),
			zap.Int("geocoded", out.Geocoded),
			zap.Int("approximate", out.Approximate),
		)
	}
	t.advance(model.StageGeocoding, progressGeocoded)

	// saving
	t.advance(model.StageSaving, progressGeocoded)
	counts := &saveCounts{}
	for i, col := range enriched {
		if len(col.Candidates) == 0 {
			t.warn(fmt.Sprintf("%s: no places could be placed, collection skipped", col.Title()))
			continue
		}
		saved, err := s.saveCollection(ctx, t, req.UserID, col)
		if err != nil {
			t.warn(fmt.Sprintf("%s: collection not saved: %v", col.Title(), err))
		} else {
			counts.ListsCreated++
			counts.PlacesImported += saved
			t.update(func(j *model.Job) {
				j.ListsProcessed++
				j.PlacesProcessed += saved
			})
		}
		t.advance(model.StageSaving, span(progressGeocoded, progressSaved, i, len(enriched), 1, 1))
	}
	if counts.ListsCreated == 0 {
		return nil, &FatalError{Stage: model.StageSaving, Err: eris.New("no collection could be saved")}
	}
	t.advance(model.StageSaving, progressSaved)
	return counts, nil
}

// parse reads every planned entry into collections. A collection that fails
// to parse is skipped with a warning. When a feature document yields no
// places, loose tabular files anywhere in the archive are merged into one
// fallback collection.
func (s *Service) parse(ctx context.Context, t *tracker, a *archive.Archive, plan *archive.Plan) []model.Collection {
	var cols []model.Collection
	for i, e := range plan.Entries {
		res, err := readEntry(ctx, a, e)
		if err != nil {
			t.warn(fmt.Sprintf("%s: skipped: %v", e.Name, err))
		} else {
			t.warn(res.Warnings...)
			cols = append(cols, res.Collection)
		}
		t.advance(model.StageParsing, span(progressDetected, progressParsed, i, len(plan.Entries), 1, 1))
	}

	if plan.Strategy != archive.StrategyStructured || countCandidates(cols) > 0 {
		return cols
	}

	t.log.Info("importer: feature document has no usable places, rescanning tabular files")
	fallback := model.Collection{Name: s.fallbackListName, Source: a.Path()}
	for _, e := range archive.TabularEntries(a) {
		res, err := readEntry(ctx, a, e)
		if err != nil {
			t.warn(fmt.Sprintf("%s: skipped: %v", e.Name, err))
			continue
		}
		t.warn(res.Warnings...)
		fallback.Candidates = append(fallback.Candidates, res.Collection.Candidates...)
	}
	if len(fallback.Candidates) == 0 {
		return cols
	}
	return []model.Collection{fallback}
}

// saveCollection writes places, then the list with its center, count and
// ordered links in one store transaction. Per-place failures are warnings.
func (s *Service) saveCollection(ctx context.Context, t *tracker, userID string, col model.Collection) (int, error) {
	saved := model.Collection{Name: col.Name}
	var links []store.ListPlace

	for pos, cand := range col.Candidates {
		if !cand.HasCoordinates() {
			t.warn(fmt.Sprintf("%s: %q has no position, not saved", col.Title(), cand.Name))
			continue
		}
		place, err := s.findOrCreatePlace(ctx, cand)
		if err != nil {
			t.warn(fmt.Sprintf("%s: %q not saved: %v", col.Title(), cand.Name, err))
			continue
		}
		saved.Candidates = append(saved.Candidates, cand)
		links = append(links, store.ListPlace{PlaceID: place.ID, Position: pos, Note: cand.Notes})
	}
	if len(links) == 0 {
		return 0, eris.New("no places were saved")
	}

	lat, lng, _ := saved.Center()
	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.store.CreateListWithPlaces(ctx, store.ListInput{
			UserID:      userID,
			Name:        col.Name,
			DisplayName: col.DisplayName,
			Monetize:    col.Monetize,
			Price:       col.Price,
			CenterLat:   lat,
			CenterLng:   lng,
			PlaceCount:  len(links),
		}, links)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(links), nil
}

func (s *Service) findOrCreatePlace(ctx context.Context, cand model.Candidate) (*store.Place, error) {
	lat, lng := cand.Coordinates()
	in := store.PlaceInput{
		ExternalID: cand.ExternalID,
		Name:       cand.Name,
		Address:    cand.Address,
		Category:   cand.Category,
		Latitude:   lat,
		Longitude:  lng,
		SourceURL:  cand.SourceURL,
	}
	if in.ExternalID == "" {
		in.ExternalID = syntheticID(cand)
	}

	var place *store.Place
	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		place, _, err = s.store.FindOrCreatePlace(ctx, in)
		return err
	})
	return place, err
}

func countCandidates(cols []model.Collection) int {
	n := 0
	for _, c := range cols {
		n += len(c.Candidates)
	}
	return n
}

// span maps progress within item i of n (done of total) onto [from, to].
func span(from, to, i, n, done, total int) int {
	if n <= 0 || total <= 0 {
		return from
	}
	width := float64(to - from)
	frac := (float64(i) + float64(done)/float64(total)) / float64(n)
	return from + int(width*frac)
}
