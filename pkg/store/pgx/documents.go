package pgx

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/trellis-ai/trellis/backend/pkg/codegraph"
	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/store"
)

const lookupChunkSize = 500

const upsertDocumentSQL = `
INSERT INTO index_documents (
	workspace_id, node_id, file_path, summary, embedding,
	start_line, start_character, end_line, end_character,
	parent_node_id, related_nodes, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (workspace_id, node_id) DO UPDATE SET
	file_path = EXCLUDED.file_path,
	summary = EXCLUDED.summary,
	embedding = EXCLUDED.embedding,
	start_line = EXCLUDED.start_line,
	start_character = EXCLUDED.start_character,
	end_line = EXCLUDED.end_line,
	end_character = EXCLUDED.end_character,
	parent_node_id = EXCLUDED.parent_node_id,
	related_nodes = EXCLUDED.related_nodes,
	updated_at = now()`

const purgeDocumentsByPathSQL = `
DELETE FROM index_documents WHERE workspace_id = $1 AND file_path = ANY($2)`

// Save persists the document batch and the graph state sidecar in a single
// transaction. The sidecar is always rewritten; it is the canonical edge and
// symbol table snapshot a session reloads at startup.
func (s *VectorDBIndex) Save(
	ctx context.Context,
	documents []common.VectorDocument,
	importEdges map[string][]string,
	exportEdges map[string][]string,
	symbolTable map[string]common.FileDetails,
	purgeStale bool,
) error {
	state, err := codegraph.MarshalState(importEdges, exportEdges, symbolTable)
	if err != nil {
		return fmt.Errorf("failed to marshal graph state: %w", err)
	}

	logger.Debug("[Store] Saving index batch",
		"workspace", s.workspaceID, "documents", len(documents), "purgeStale", purgeStale)

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if purgeStale && len(documents) > 0 {
		paths := store.DedupeStrings(documentPaths(documents))
		if _, err := tx.Exec(ctx, purgeDocumentsByPathSQL, s.workspaceID, paths); err != nil {
			return fmt.Errorf("failed to purge stale documents: %w", err)
		}
	}

	for _, doc := range documents {
		if _, err := tx.Exec(ctx, upsertDocumentSQL,
			s.workspaceID,
			doc.ID,
			doc.Metadata.FilePath,
			doc.Summary,
			pgvector.NewVector(doc.Vector),
			doc.Metadata.StartRange.Line,
			doc.Metadata.StartRange.Character,
			doc.Metadata.EndRange.Line,
			doc.Metadata.EndRange.Character,
			doc.Metadata.ParentNodeID,
			relatedOrEmpty(doc.Metadata.RelatedNodes),
		); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
	}

	if _, err := tx.Exec(ctx, upsertGraphStateSQL, s.workspaceID, state); err != nil {
		return fmt.Errorf("failed to save graph state: %w", err)
	}

	return tx.Commit(ctx)
}

// GetDocuments returns every document of the workspace ordered by file path
// and position. Sessions use this to rebuild the in-memory node map after a
// restart; snapshot export reads the same set.
func (s *VectorDBIndex) GetDocuments(ctx context.Context) ([]common.VectorDocument, error) {
	rows, err := s.conn.Query(ctx, `
SELECT `+documentColumns+`
FROM index_documents
WHERE workspace_id = $1
ORDER BY file_path, start_line, start_character`, s.workspaceID)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// FindDocumentsByID resolves node ids to their documents. Missing ids are
// silently skipped; the result may be shorter than the input.
func (s *VectorDBIndex) FindDocumentsByID(ctx context.Context, ids []string) ([]common.VectorDocument, error) {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var out []common.VectorDocument
	err := store.ChunkRange(len(ids), lookupChunkSize, func(start, end int) error {
		rows, err := s.conn.Query(ctx, `
SELECT `+documentColumns+`
FROM index_documents
WHERE workspace_id = $1 AND node_id = ANY($2)`, s.workspaceID, ids[start:end])
		if err != nil {
			return err
		}
		docs, err := scanDocuments(rows)
		if err != nil {
			return err
		}
		out = append(out, docs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindDocumentsByPath returns all documents whose file path matches one of
// the given workspace-relative paths.
func (s *VectorDBIndex) FindDocumentsByPath(ctx context.Context, paths []string) ([]common.VectorDocument, error) {
	paths = store.DedupeStrings(paths)
	if len(paths) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
SELECT `+documentColumns+`
FROM index_documents
WHERE workspace_id = $1 AND file_path = ANY($2)
ORDER BY file_path, start_line, start_character`, s.workspaceID, paths)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// FindDocumentsByPathPrefix returns all documents under a directory prefix.
// Directory deletions use this to expand into concrete file paths.
func (s *VectorDBIndex) FindDocumentsByPathPrefix(ctx context.Context, prefix string) ([]common.VectorDocument, error) {
	if prefix == "" {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
SELECT `+documentColumns+`
FROM index_documents
WHERE workspace_id = $1 AND file_path LIKE $2
ORDER BY file_path, start_line, start_character`, s.workspaceID, pathPrefixPattern(prefix))
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// FindDocumentsByRelatedNode returns documents whose related-node snapshot
// references the given node id. This is the stored export side of the
// graph: everything that imports the node.
func (s *VectorDBIndex) FindDocumentsByRelatedNode(ctx context.Context, nodeID string) ([]common.VectorDocument, error) {
	if nodeID == "" {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
SELECT `+documentColumns+`
FROM index_documents
WHERE workspace_id = $1 AND related_nodes @> ARRAY[$2::text]`, s.workspaceID, nodeID)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// DeleteDocuments removes documents by node id.
func (s *VectorDBIndex) DeleteDocuments(ctx context.Context, ids []string) error {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return nil
	}

	return store.ChunkRange(len(ids), lookupChunkSize, func(start, end int) error {
		_, err := s.conn.Exec(ctx, `
DELETE FROM index_documents
WHERE workspace_id = $1 AND node_id = ANY($2)`, s.workspaceID, ids[start:end])
		return err
	})
}

// DeleteDocumentsByPath removes every document belonging to the given
// workspace-relative file paths.
func (s *VectorDBIndex) DeleteDocumentsByPath(ctx context.Context, paths []string) error {
	paths = store.DedupeStrings(paths)
	if len(paths) == 0 {
		return nil
	}

	logger.Debug("[Store] Deleting documents by path", "workspace", s.workspaceID, "paths", len(paths))
	_, err := s.conn.Exec(ctx, purgeDocumentsByPathSQL, s.workspaceID, paths)
	return err
}
