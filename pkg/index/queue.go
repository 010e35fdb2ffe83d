package index

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trellis-ai/trellis/backend/pkg/logger"
)

const defaultDrainInterval = 5 * time.Second

// Drainer is the part of the Indexer the queue drives.
type Drainer interface {
	IsSyncing() bool
	ProcessDocuments(ctx context.Context, uris []string, fullBuild bool) error
}

// ChangeQueue coalesces noisy file-change notifications into a
// deduplicated pending set and drains the whole set into the indexer on a
// fixed interval. A tick that lands while the indexer is mid-pass skips;
// the set keeps absorbing events until the next tick finds it idle, so
// repeated saves of a file cost one pass, not one per event.
type ChangeQueue struct {
	indexer    Drainer
	interval   time.Duration
	afterDrain func()

	mu       sync.Mutex
	pending  map[string]struct{}
	order    []string
	started  bool
	disposed bool

	stop chan struct{}
	done chan struct{}
}

type NewChangeQueueParams struct {
	Indexer  Drainer
	Interval time.Duration
	// AfterDrain runs after every completed drain, successful or not.
	// The worker hangs model-metrics logging on it.
	AfterDrain func()
}

func NewChangeQueue(params NewChangeQueueParams) (*ChangeQueue, error) {
	if params.Indexer == nil {
		return nil, errors.New("indexer is required")
	}

	interval := params.Interval
	if interval <= 0 {
		interval = defaultDrainInterval
	}

	return &ChangeQueue{
		indexer:    params.Indexer,
		interval:   interval,
		afterDrain: params.AfterDrain,
		pending:    make(map[string]struct{}),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start launches the drain loop. Calling it again, or after Dispose, is a
// no-op.
func (q *ChangeQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.disposed {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go func() {
		defer close(q.done)

		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stop:
				return
			case <-ticker.C:
				q.drain(ctx)
			}
		}
	}()
}

// Enqueue adds uris to the pending set. Duplicates of already-pending uris
// are absorbed.
func (q *ChangeQueue) Enqueue(uris ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.disposed {
		return
	}

	for _, uri := range uris {
		if uri == "" {
			continue
		}
		if _, ok := q.pending[uri]; ok {
			continue
		}
		q.pending[uri] = struct{}{}
		q.order = append(q.order, uri)
	}
}

// Pending returns the currently pending uris in first-seen order, for
// inspection only.
func (q *ChangeQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.order))
	copy(out, q.order)
	return out
}

// Dispose stops the drain loop and clears all pending state. Safe to call
// multiple times.
func (q *ChangeQueue) Dispose() {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return
	}
	q.disposed = true
	started := q.started
	q.pending = make(map[string]struct{})
	q.order = nil
	close(q.stop)
	q.mu.Unlock()

	if started {
		<-q.done
	}
}

func (q *ChangeQueue) drain(ctx context.Context) {
	if q.indexer.IsSyncing() {
		return
	}

	batch := q.takeBatch()
	if len(batch) == 0 {
		return
	}

	logger.Debug("[Queue] Draining pending changes", "files", len(batch))
	err := q.indexer.ProcessDocuments(ctx, batch, false)
	if errors.Is(err, ErrSyncing) {
		// A pass started between the idle check and the call. Put the
		// batch back; the next tick retries.
		q.requeue(batch)
		return
	}
	if err != nil {
		logger.Error("[Queue] Drain failed", "files", len(batch), "error", err)
	}

	if q.afterDrain != nil {
		q.afterDrain()
	}
}

func (q *ChangeQueue) takeBatch() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return nil
	}

	batch := q.order
	q.order = nil
	q.pending = make(map[string]struct{})
	return batch
}

func (q *ChangeQueue) requeue(batch []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.disposed {
		return
	}

	for _, uri := range batch {
		if _, ok := q.pending[uri]; ok {
			continue
		}
		q.pending[uri] = struct{}{}
		q.order = append(q.order, uri)
	}
}
