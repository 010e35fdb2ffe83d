package index

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeDrainer struct {
	mu      sync.Mutex
	syncing bool
	batches [][]string
	err     error
}

func (f *fakeDrainer) IsSyncing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncing
}

func (f *fakeDrainer) ProcessDocuments(ctx context.Context, uris []string, fullBuild bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	batch := make([]string, len(uris))
	copy(batch, uris)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeDrainer) drained() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.batches))
	copy(out, f.batches)
	return out
}

func newTestQueue(t *testing.T, drainer Drainer) *ChangeQueue {
	t.Helper()
	queue, err := NewChangeQueue(NewChangeQueueParams{Indexer: drainer, Interval: time.Hour})
	if err != nil {
		t.Fatalf("expected queue, got error: %v", err)
	}
	return queue
}

func TestEnqueueDeduplicates(t *testing.T) {
	queue := newTestQueue(t, &fakeDrainer{})

	queue.Enqueue("file:///ws/a.ts", "file:///ws/b.ts")
	queue.Enqueue("file:///ws/a.ts", "", "file:///ws/c.ts")

	expected := []string{"file:///ws/a.ts", "file:///ws/b.ts", "file:///ws/c.ts"}
	if got := queue.Pending(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected pending %v, got %v", expected, got)
	}
}

func TestDrainProcessesBatchAndClears(t *testing.T) {
	drainer := &fakeDrainer{}
	queue := newTestQueue(t, drainer)

	queue.Enqueue("file:///ws/a.ts", "file:///ws/b.ts")
	queue.drain(context.Background())

	batches := drainer.drained()
	if len(batches) != 1 {
		t.Fatalf("expected one drain, got %d", len(batches))
	}
	if len(batches[0]) != 2 {
		t.Fatalf("expected both uris in the batch, got %v", batches[0])
	}
	if pending := queue.Pending(); len(pending) != 0 {
		t.Fatalf("expected pending set cleared, got %v", pending)
	}
}

func TestDrainSkipsWhileSyncing(t *testing.T) {
	drainer := &fakeDrainer{syncing: true}
	queue := newTestQueue(t, drainer)

	queue.Enqueue("file:///ws/a.ts")
	queue.drain(context.Background())

	if len(drainer.drained()) != 0 {
		t.Fatal("expected no drain while the indexer is syncing")
	}
	if pending := queue.Pending(); len(pending) != 1 {
		t.Fatalf("expected the batch to keep accumulating, got %v", pending)
	}
}

func TestDrainRequeuesOnSyncingRace(t *testing.T) {
	drainer := &fakeDrainer{err: ErrSyncing}
	queue := newTestQueue(t, drainer)

	queue.Enqueue("file:///ws/a.ts")
	queue.drain(context.Background())

	if pending := queue.Pending(); len(pending) != 1 || pending[0] != "file:///ws/a.ts" {
		t.Fatalf("expected batch back in the pending set, got %v", pending)
	}
}

func TestDrainRunsAfterDrainCallback(t *testing.T) {
	drainer := &fakeDrainer{}
	callbacks := 0
	queue, err := NewChangeQueue(NewChangeQueueParams{
		Indexer:    drainer,
		Interval:   time.Hour,
		AfterDrain: func() { callbacks++ },
	})
	if err != nil {
		t.Fatalf("expected queue, got error: %v", err)
	}

	queue.Enqueue("file:///ws/a.ts")
	queue.drain(context.Background())

	if callbacks != 1 {
		t.Fatalf("expected one callback, got %d", callbacks)
	}

	// failed drains still report, only empty ticks skip
	drainer.mu.Lock()
	drainer.err = errors.New("boom")
	drainer.mu.Unlock()
	queue.Enqueue("file:///ws/b.ts")
	queue.drain(context.Background())
	if callbacks != 2 {
		t.Fatalf("expected callback after failed drain, got %d", callbacks)
	}

	queue.drain(context.Background())
	if callbacks != 2 {
		t.Fatalf("expected no callback for an empty tick, got %d", callbacks)
	}
}

func TestStartDrainLoop(t *testing.T) {
	drainer := &fakeDrainer{}
	queue, err := NewChangeQueue(NewChangeQueueParams{Indexer: drainer, Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("expected queue, got error: %v", err)
	}
	defer queue.Dispose()

	queue.Start(context.Background())
	queue.Enqueue("file:///ws/a.ts")

	deadline := time.After(2 * time.Second)
	for {
		if len(drainer.drained()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected the loop to drain the pending set")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDisposeIdempotent(t *testing.T) {
	queue := newTestQueue(t, &fakeDrainer{})
	queue.Start(context.Background())

	queue.Enqueue("file:///ws/a.ts")
	queue.Dispose()
	queue.Dispose()

	if pending := queue.Pending(); len(pending) != 0 {
		t.Fatalf("expected pending cleared on dispose, got %v", pending)
	}

	queue.Enqueue("file:///ws/b.ts")
	if pending := queue.Pending(); len(pending) != 0 {
		t.Fatalf("expected enqueue after dispose to be ignored, got %v", pending)
	}
}

func TestDisposeWithoutStart(t *testing.T) {
	queue := newTestQueue(t, &fakeDrainer{})
	queue.Dispose()
}
