package pgx

import (
	"context"
	"errors"

	"github.com/pgvector/pgvector-go"

	"github.com/trellis-ai/trellis/backend/pkg/common"
)

const defaultSearchLimit = 10

// Search returns the k documents closest to the query embedding by cosine
// distance, nearest first. k <= 0 falls back to a default of 10.
func (s *VectorDBIndex) Search(ctx context.Context, embedding []float32, k int) ([]common.VectorDocument, error) {
	if len(embedding) == 0 {
		return nil, errors.New("search embedding must not be empty")
	}
	if k <= 0 {
		k = defaultSearchLimit
	}

	rows, err := s.conn.Query(ctx, `
SELECT `+documentColumns+`
FROM index_documents
WHERE workspace_id = $1
ORDER BY embedding <=> $2
LIMIT $3`, s.workspaceID, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}
