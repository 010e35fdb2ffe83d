package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trellis-ai/trellis/backend/pkg/codegraph"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/store"
)

const upsertGraphStateSQL = `
INSERT INTO index_graph_state (workspace_id, state, saved_at)
VALUES ($1, $2, now())
ON CONFLICT (workspace_id) DO UPDATE SET
	state = EXCLUDED.state,
	saved_at = now()`

// GetGraphState returns the persisted graph sidecar for the workspace.
// Returns store.ErrNoGraphState when the index was never created.
func (s *VectorDBIndex) GetGraphState(ctx context.Context) ([]byte, error) {
	var state []byte
	err := s.conn.QueryRow(ctx, `
SELECT state FROM index_graph_state WHERE workspace_id = $1`, s.workspaceID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNoGraphState
		}
		return nil, err
	}
	return state, nil
}

// IsIndexCreated reports whether an index exists for the workspace. Existence
// is defined by the graph state row, not by document count: a freshly created
// empty index counts as created.
func (s *VectorDBIndex) IsIndexCreated(ctx context.Context) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM index_graph_state WHERE workspace_id = $1)`, s.workspaceID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CreateIndex initializes an empty index for the workspace. Calling it on an
// existing index is a no-op and keeps the stored state intact.
func (s *VectorDBIndex) CreateIndex(ctx context.Context) error {
	state, err := codegraph.MarshalState(nil, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to marshal empty graph state: %w", err)
	}

	_, err = s.conn.Exec(ctx, `
INSERT INTO index_graph_state (workspace_id, state, saved_at)
VALUES ($1, $2, now())
ON CONFLICT (workspace_id) DO NOTHING`, s.workspaceID, state)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	logger.Info("[Store] Index created", "workspace", s.workspaceID)
	return nil
}

// DeleteIndex drops the workspace index entirely: all documents and the
// graph state row.
func (s *VectorDBIndex) DeleteIndex(ctx context.Context) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
DELETE FROM index_documents WHERE workspace_id = $1`, s.workspaceID); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	if _, err := tx.Exec(ctx, `
DELETE FROM index_graph_state WHERE workspace_id = $1`, s.workspaceID); err != nil {
		return fmt.Errorf("failed to delete graph state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info("[Store] Index deleted", "workspace", s.workspaceID)
	return nil
}

// GetStatus reports document and file counts plus the last save time.
func (s *VectorDBIndex) GetStatus(ctx context.Context) (store.IndexStatus, error) {
	var status store.IndexStatus

	err := s.conn.QueryRow(ctx, `
SELECT count(*), count(DISTINCT file_path)
FROM index_documents
WHERE workspace_id = $1`, s.workspaceID).Scan(&status.Documents, &status.Files)
	if err != nil {
		return store.IndexStatus{}, err
	}

	var savedAt time.Time
	err = s.conn.QueryRow(ctx, `
SELECT saved_at FROM index_graph_state WHERE workspace_id = $1`, s.workspaceID).Scan(&savedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		status.IndexCreated = false
	case err != nil:
		return store.IndexStatus{}, err
	default:
		status.IndexCreated = true
		status.LastSavedAt = savedAt
	}

	return status, nil
}
