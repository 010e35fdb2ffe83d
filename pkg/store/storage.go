package store

import (
	"context"
	"errors"
	"time"

	"github.com/trellis-ai/trellis/backend/pkg/common"
)

// ErrNoGraphState is returned by GetGraphState when the workspace has no
// persisted graph state yet. Callers treat this as "start from an empty
// graph", not as a failure.
var ErrNoGraphState = errors.New("no graph state stored for workspace")

// IndexStatus summarizes the persisted side of one workspace index.
type IndexStatus struct {
	Documents    int64     `json:"documents"`
	Files        int64     `json:"files"`
	LastSavedAt  time.Time `json:"last_saved_at"`
	IndexCreated bool      `json:"index_created"`
}

// VectorIndex defines the persistence contract for one workspace's code
// index: the embedded documents plus the graph state sidecar (edges and
// symbol table) written alongside them. Writes happen at the end of an
// indexing pass; reads serve semantic search and session reloads.
type VectorIndex interface {
	// Save persists a batch of documents and the full graph state in one
	// transaction. With purgeStale set, documents sharing a file path with
	// the new batch are deleted before the fresh set is inserted, so a
	// re-indexed file never leaves orphaned fragments behind. Full rebuilds
	// pass purgeStale=false because the index was already cleared upstream.
	Save(
		ctx context.Context,
		documents []common.VectorDocument,
		importEdges map[string][]string,
		exportEdges map[string][]string,
		symbolTable map[string]common.FileDetails,
		purgeStale bool,
	) error

	// Search returns the k documents nearest to the query embedding.
	Search(ctx context.Context, embedding []float32, k int) ([]common.VectorDocument, error)

	GetDocuments(ctx context.Context) ([]common.VectorDocument, error)
	FindDocumentsByID(ctx context.Context, ids []string) ([]common.VectorDocument, error)
	FindDocumentsByPath(ctx context.Context, paths []string) ([]common.VectorDocument, error)
	FindDocumentsByPathPrefix(ctx context.Context, prefix string) ([]common.VectorDocument, error)
	// FindDocumentsByRelatedNode returns documents whose related-node
	// snapshot contains the given node id, i.e. the export side of the
	// graph resolved from storage.
	FindDocumentsByRelatedNode(ctx context.Context, nodeID string) ([]common.VectorDocument, error)

	DeleteDocuments(ctx context.Context, ids []string) error
	DeleteDocumentsByPath(ctx context.Context, paths []string) error

	// GetGraphState returns the persisted graph sidecar, or ErrNoGraphState
	// when the workspace was never saved.
	GetGraphState(ctx context.Context) ([]byte, error)

	GetStatus(ctx context.Context) (IndexStatus, error)
	IsIndexCreated(ctx context.Context) (bool, error)
	CreateIndex(ctx context.Context) error
	DeleteIndex(ctx context.Context) error
}
