package geocode

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/resilience"
)

const (
	// DefaultMinInterval keeps a margin over the 1 request/second policy of
	// the public Nominatim instance.
	DefaultMinInterval = 1100 * time.Millisecond
	// DefaultTimeout bounds a single provider call.
	DefaultTimeout = 10 * time.Second
)

// QueueStatus reports queue occupancy.
type QueueStatus struct {
	Pending      int  `json:"pending"`
	IsProcessing bool `json:"is_processing"`
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMinInterval sets the minimum gap between two provider calls.
func WithMinInterval(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d >= 0 {
			q.minInterval = d
		}
	}
}

// WithTimeout sets the per-lookup timeout.
func WithTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithBreaker short-circuits lookups while the provider keeps failing.
// Short-circuited lookups resolve to no match and do not count as dispatches.
func WithBreaker(cb *resilience.CircuitBreaker) QueueOption {
	return func(q *Queue) {
		q.breaker = cb
	}
}

type lookupRequest struct {
	ctx   context.Context
	query string
	reply chan *Result
}

// Queue serializes lookups through a single worker so that no two provider
// calls start less than minInterval apart, no matter how many goroutines call
// Submit. One Queue is shared by every job in the process.
type Queue struct {
	provider    Provider
	minInterval time.Duration
	timeout     time.Duration
	breaker     *resilience.CircuitBreaker

	mu         sync.Mutex
	pending    []*lookupRequest
	processing bool
	closed     bool

	// lastDispatch is only touched by the worker goroutine.
	lastDispatch time.Time

	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a Queue in front of provider and starts its worker.
func NewQueue(provider Provider, opts ...QueueOption) *Queue {
	q := &Queue{
		provider:    provider,
		minInterval: DefaultMinInterval,
		timeout:     DefaultTimeout,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.run()
	return q
}

// Submit enqueues query and blocks until the worker has resolved it. It
// returns nil when there is no match, the provider failed or timed out, ctx
// was cancelled, or the queue is closed. Submit never returns an error:
// callers proceed without geocoded data.
func (q *Queue) Submit(ctx context.Context, query string) *Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	req := &lookupRequest{ctx: ctx, query: query, reply: make(chan *Result, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.pending = append(q.pending, req)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case res := <-req.reply:
		return res
	case <-ctx.Done():
		return nil
	}
}

// Status returns the number of queued lookups and whether the worker is busy.
func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStatus{Pending: len(q.pending), IsProcessing: q.processing}
}

// Close stops the worker. Lookups still queued resolve to nil.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		close(q.done)
		<-q.stopped

		q.mu.Lock()
		rest := q.pending
		q.pending = nil
		q.processing = false
		q.mu.Unlock()
		for _, req := range rest {
			req.reply <- nil
		}
	})
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		req, ok := q.next()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}
		req.reply <- q.dispatch(req)

		select {
		case <-q.done:
			return
		default:
		}
	}
}

// next pops the oldest request and flags the worker busy, or flags it idle
// when the queue is empty.
func (q *Queue) next() (*lookupRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		q.processing = false
		return nil, false
	}
	req := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.processing = true
	return req, true
}

func (q *Queue) dispatch(req *lookupRequest) *Result {
	if req.ctx.Err() != nil {
		return nil
	}
	if q.breaker != nil && q.breaker.State() == resilience.CircuitOpen {
		zap.L().Debug("geocode queue: breaker open, skipping lookup", zap.String("query", req.query))
		return nil
	}
	if !q.waitForSlot(req.ctx) {
		return nil
	}

	ctx, cancel := context.WithTimeout(req.ctx, q.timeout)
	defer cancel()

	res, called, err := q.lookup(ctx, req.query)
	if called {
		q.lastDispatch = time.Now()
	}
	if err != nil {
		zap.L().Debug("geocode queue: lookup failed",
			zap.String("query", req.query),
			zap.Error(err),
		)
		return nil
	}
	return res
}

// waitForSlot sleeps off whatever remains of minInterval since the previous
// dispatch. It returns false if the caller or the queue gave up meanwhile.
func (q *Queue) waitForSlot(ctx context.Context) bool {
	if q.lastDispatch.IsZero() {
		return true
	}
	deficit := q.minInterval - time.Since(q.lastDispatch)
	if deficit <= 0 {
		return true
	}

	timer := time.NewTimer(deficit)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-q.done:
		return false
	}
}

func (q *Queue) lookup(ctx context.Context, query string) (*Result, bool, error) {
	if q.breaker == nil {
		res, err := q.provider.Lookup(ctx, query)
		return res, true, err
	}

	called := false
	res, err := resilience.ExecuteVal(ctx, q.breaker, func(ctx context.Context) (*Result, error) {
		called = true
		return q.provider.Lookup(ctx, query)
	})
	return res, called, err
}
