package geocode

import (
	"context"
	"sync"
	"time"
)

// fakeProvider records the time of every call and answers from a function.
type fakeProvider struct {
	mu     sync.Mutex
	calls  []time.Time
	events []string
	fn     func(ctx context.Context, query string) (*Result, error)
}

func (f *fakeProvider) Lookup(ctx context.Context, query string) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	f.events = append(f.events, query)
	f.mu.Unlock()
	if f.fn == nil {
		return &Result{Latitude: 1, Longitude: 2}, nil
	}
	return f.fn(ctx, query)
}

func (f *fakeProvider) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeProvider) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

// queued reports whether a lookup for query is waiting in q.
func (q *Queue) queued(query string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range q.pending {
		if r.query == query {
			return true
		}
	}
	return false
}
