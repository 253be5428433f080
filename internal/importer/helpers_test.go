package importer

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/places-import/internal/enrich"
	"github.com/sells-group/places-import/internal/model"
	"github.com/sells-group/places-import/internal/resilience"
	"github.com/sells-group/places-import/internal/store"
	"github.com/sells-group/places-import/pkg/geocode"
)

type zipFile struct {
	name    string
	content string
}

func createTestZIP(t *testing.T, files ...zipFile) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for _, zf := range files {
		fw, err := w.Create(zf.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(zf.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

// fakeLookup answers from a table and records every query.
type fakeLookup struct {
	mu      sync.Mutex
	answers map[string]*geocode.Result
	queries []string
}

func (f *fakeLookup) Submit(_ context.Context, query string) *geocode.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.answers[query]
}

func (f *fakeLookup) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// recorder is an Observer that keeps every update.
type recorder struct {
	mu      sync.Mutex
	updates []model.JobStatus
}

func (r *recorder) Publish(st model.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, st)
}

func (r *recorder) all() []model.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.JobStatus(nil), r.updates...)
}

func newTestSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "places.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestService(t *testing.T, st store.Store, lookup enrich.Lookup, opts ...Option) *Service {
	t.Helper()
	g, err := enrich.DefaultGazetteer()
	require.NoError(t, err)
	e := enrich.New(lookup, g)

	fastRetry := resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: 1, MaxBackoff: 1, Operation: "test"}
	return NewService(st, e, append([]Option{WithRetry(fastRetry)}, opts...)...)
}

// flakyStore wraps a Store and fails place writes for chosen external ids.
// failLinks makes every list write carry a conflicting link so the
// underlying store rejects it mid-transaction.
type flakyStore struct {
	store.Store

	mu         sync.Mutex
	failPlaces map[string]error
	failLists  error
	failLinks  bool
	placeCalls map[string]int
}

func (f *flakyStore) FindOrCreatePlace(ctx context.Context, p store.PlaceInput) (*store.Place, bool, error) {
	f.mu.Lock()
	if f.placeCalls == nil {
		f.placeCalls = map[string]int{}
	}
	f.placeCalls[p.ExternalID]++
	err := f.failPlaces[p.ExternalID]
	f.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return f.Store.FindOrCreatePlace(ctx, p)
}

func (f *flakyStore) CreateListWithPlaces(ctx context.Context, l store.ListInput, links []store.ListPlace) (*store.List, error) {
	if f.failLists != nil {
		return nil, f.failLists
	}
	if f.failLinks && len(links) > 0 {
		links = append(append([]store.ListPlace(nil), links...), links[0])
	}
	return f.Store.CreateListWithPlaces(ctx, l, links)
}

func (f *flakyStore) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placeCalls[id]
}
