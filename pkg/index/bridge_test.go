package index

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/store"
)

type fakeRemover struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeRemover) RemoveDocuments(ctx context.Context, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]string, len(uris))
	copy(batch, uris)
	f.calls = append(f.calls, batch)
	return nil
}

func (f *fakeRemover) removed() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeBridgeStore stubs the prefix lookup the bridge uses to expand
// directory deletes. Everything else panics if touched.
type fakeBridgeStore struct {
	store.VectorIndex
	docsByPrefix map[string][]common.VectorDocument
}

func (s *fakeBridgeStore) FindDocumentsByPathPrefix(ctx context.Context, pathPrefix string) ([]common.VectorDocument, error) {
	return s.docsByPrefix[pathPrefix], nil
}

func newTestBridge(t *testing.T, remover *fakeRemover, st *fakeBridgeStore, patterns []string) (*FileEventBridge, *ChangeQueue) {
	t.Helper()
	if st == nil {
		st = &fakeBridgeStore{}
	}
	queue := newTestQueue(t, &fakeDrainer{})
	bridge, err := NewFileEventBridge(NewFileEventBridgeParams{
		Workspace:       "/ws",
		IncludePatterns: patterns,
		Queue:           queue,
		Indexer:         remover,
		Store:           st,
	})
	if err != nil {
		t.Fatalf("expected bridge, got error: %v", err)
	}
	return bridge, queue
}

func TestIncluded(t *testing.T) {
	bridge, _ := newTestBridge(t, &fakeRemover{}, nil, nil)

	cases := []struct {
		uri      string
		included bool
	}{
		{"file:///ws/src/indexer.ts", true},
		{"file:///ws/main.go", true},
		{"file:///ws/scripts/run.py", true},
		{"file:///ws/src/App.tsx", true},
		{"file:///ws/README.md", false},
		{"file:///ws/assets/logo.png", false},
		{"file:///etc/passwd", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := bridge.Included(tc.uri); got != tc.included {
			t.Fatalf("expected Included(%q) = %v, got %v", tc.uri, tc.included, got)
		}
	}
}

func TestIncludedCustomPatterns(t *testing.T) {
	bridge, _ := newTestBridge(t, &fakeRemover{}, nil, []string{"src/*.ts"})

	if !bridge.Included("file:///ws/src/indexer.ts") {
		t.Fatal("expected path matching the custom pattern to be included")
	}
	if bridge.Included("file:///ws/lib/indexer.ts") {
		t.Fatal("expected path outside the custom pattern to be excluded")
	}
}

func TestHandleChangesFiltersAndEnqueues(t *testing.T) {
	bridge, queue := newTestBridge(t, &fakeRemover{}, nil, nil)

	bridge.HandleChanges([]string{
		"file:///ws/src/a.ts",
		"file:///ws/README.md",
		"file:///ws/src/b.ts",
	})

	expected := []string{"file:///ws/src/a.ts", "file:///ws/src/b.ts"}
	if got := queue.Pending(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected pending %v, got %v", expected, got)
	}
}

func TestHandleRenames(t *testing.T) {
	remover := &fakeRemover{}
	bridge, queue := newTestBridge(t, remover, nil, nil)

	err := bridge.HandleRenames(context.Background(), []RenamedFile{
		{OldURI: "file:///ws/src/old.ts", NewURI: "file:///ws/src/new.ts"},
		{OldURI: "file:///ws/src/code.ts", NewURI: "file:///ws/notes.md"},
	})
	if err != nil {
		t.Fatalf("expected renames to succeed, got %v", err)
	}

	removed := remover.removed()
	if len(removed) != 1 {
		t.Fatalf("expected one removal batch, got %d", len(removed))
	}
	expectedRemovals := []string{"file:///ws/src/old.ts", "file:///ws/src/code.ts"}
	if !reflect.DeepEqual(removed[0], expectedRemovals) {
		t.Fatalf("expected removals %v, got %v", expectedRemovals, removed[0])
	}

	// only the rename target that is still a source file gets re-indexed
	expectedPending := []string{"file:///ws/src/new.ts"}
	if got := queue.Pending(); !reflect.DeepEqual(got, expectedPending) {
		t.Fatalf("expected pending %v, got %v", expectedPending, got)
	}
}

func TestHandleDeletesSingleFile(t *testing.T) {
	remover := &fakeRemover{}
	bridge, _ := newTestBridge(t, remover, &fakeBridgeStore{}, nil)

	err := bridge.HandleDeletes(context.Background(), []string{"file:///ws/src/a.ts"})
	if err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}

	removed := remover.removed()
	if len(removed) != 1 || !reflect.DeepEqual(removed[0], []string{"src/a.ts"}) {
		t.Fatalf("expected src/a.ts removed, got %v", removed)
	}
}

func TestHandleDeletesExpandsDirectories(t *testing.T) {
	remover := &fakeRemover{}
	st := &fakeBridgeStore{docsByPrefix: map[string][]common.VectorDocument{
		"src": {
			{ID: "src/a.ts:0:16", Metadata: common.DocumentMetadata{FilePath: "src/a.ts"}},
			{ID: "src/a.ts:4:16", Metadata: common.DocumentMetadata{FilePath: "src/a.ts"}},
			{ID: "src/util/b.ts:0:16", Metadata: common.DocumentMetadata{FilePath: "src/util/b.ts"}},
		},
	}}
	bridge, _ := newTestBridge(t, remover, st, nil)

	err := bridge.HandleDeletes(context.Background(), []string{"file:///ws/src"})
	if err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}

	removed := remover.removed()
	if len(removed) != 1 {
		t.Fatalf("expected one removal batch, got %d", len(removed))
	}
	expected := []string{"src/a.ts", "src/util/b.ts"}
	if !reflect.DeepEqual(removed[0], expected) {
		t.Fatalf("expected expanded removals %v, got %v", expected, removed[0])
	}
}

func TestHandleDeletesIgnoresOutsideWorkspace(t *testing.T) {
	remover := &fakeRemover{}
	bridge, _ := newTestBridge(t, remover, &fakeBridgeStore{}, nil)

	err := bridge.HandleDeletes(context.Background(), []string{"file:///etc/passwd"})
	if err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if len(remover.removed()) != 0 {
		t.Fatal("expected no removals for paths outside the workspace")
	}
}

func TestNewFileEventBridgeValidation(t *testing.T) {
	queue, err := NewChangeQueue(NewChangeQueueParams{Indexer: &fakeDrainer{}, Interval: time.Hour})
	if err != nil {
		t.Fatalf("expected queue, got error: %v", err)
	}

	_, err = NewFileEventBridge(NewFileEventBridgeParams{Queue: queue, Indexer: &fakeRemover{}, Store: &fakeBridgeStore{}})
	if err == nil {
		t.Fatal("expected error for missing workspace")
	}
	_, err = NewFileEventBridge(NewFileEventBridgeParams{Workspace: "/ws", Indexer: &fakeRemover{}, Store: &fakeBridgeStore{}})
	if err == nil {
		t.Fatal("expected error for missing queue")
	}
	_, err = NewFileEventBridge(NewFileEventBridgeParams{Workspace: "/ws", Queue: queue, Store: &fakeBridgeStore{}})
	if err == nil {
		t.Fatal("expected error for missing indexer")
	}
	_, err = NewFileEventBridge(NewFileEventBridgeParams{Workspace: "/ws", Queue: queue, Indexer: &fakeRemover{}})
	if err == nil {
		t.Fatal("expected error for missing store")
	}
}
