package importer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/model"
)

// Observer receives every job update, in order, on the pipeline goroutine.
// Implementations must not block.
type Observer interface {
	Publish(status model.JobStatus)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(model.JobStatus)

// Publish implements Observer.
func (f ObserverFunc) Publish(status model.JobStatus) { f(status) }

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 64

type subscriber struct {
	ch     chan model.JobStatus
	closed bool
}

// Broadcaster fans job updates out to per-job subscribers. Each subscriber
// has a buffered channel; one that falls a full buffer behind is
// disconnected so the pipeline never waits on a reader. Channels are closed
// after a terminal update is delivered.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

// NewBroadcaster creates a Broadcaster. buffer <= 0 uses
// DefaultSubscriberBuffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe returns a channel of updates for jobID and a function that
// cancels the subscription. Cancelling twice is safe.
func (b *Broadcaster) Subscribe(jobID string) (<-chan model.JobStatus, func()) {
	sub := &subscriber{ch: make(chan model.JobStatus, b.buffer)}

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[*subscriber]struct{})
	}
	b.subs[jobID][sub] = struct{}{}
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.remove(jobID, sub)
	}
}

// Publish implements Observer.
func (b *Broadcaster) Publish(status model.JobStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[status.JobID] {
		select {
		case sub.ch <- status:
		default:
			zap.L().Warn("importer: dropping slow progress subscriber", zap.String("job_id", status.JobID))
			b.remove(status.JobID, sub)
			continue
		}
		if status.Stage.Terminal() {
			b.remove(status.JobID, sub)
		}
	}
}

// Subscribers returns the number of live subscriptions for jobID.
func (b *Broadcaster) Subscribers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}

// remove must be called with b.mu held.
func (b *Broadcaster) remove(jobID string, sub *subscriber) {
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	delete(b.subs[jobID], sub)
	if len(b.subs[jobID]) == 0 {
		delete(b.subs, jobID)
	}
}
