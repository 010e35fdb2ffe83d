package pgx

import (
	"context"
	"errors"
	"strings"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/trellis-ai/trellis/backend/pkg/common"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// VectorDBIndex implements the store.VectorIndex interface using PostgreSQL
// with pgvector for similarity search. Every instance is scoped to a single
// workspace; all statements filter on the workspace id.
type VectorDBIndex struct {
	conn        pgxIConn
	workspaceID string
}

// NewVectorDBIndex creates a workspace-scoped index store over an existing
// database connection or pool. The connection must have the pgvector types
// registered.
func NewVectorDBIndex(conn pgxIConn, workspaceID string) (*VectorDBIndex, error) {
	if conn == nil {
		return nil, errors.New("database connection is required")
	}
	if workspaceID == "" {
		return nil, errors.New("workspace id is required")
	}
	return &VectorDBIndex{conn: conn, workspaceID: workspaceID}, nil
}

// documentColumns is the select list every document query shares. The scan
// order in scanDocuments must match it.
const documentColumns = `node_id, file_path, summary, embedding,
	start_line, start_character, end_line, end_character,
	parent_node_id, related_nodes`

func scanDocuments(rows pgxv5.Rows) ([]common.VectorDocument, error) {
	defer rows.Close()

	var out []common.VectorDocument
	for rows.Next() {
		var (
			doc       common.VectorDocument
			embedding pgvector.Vector
			related   []string
		)
		if err := rows.Scan(
			&doc.ID,
			&doc.Metadata.FilePath,
			&doc.Summary,
			&embedding,
			&doc.Metadata.StartRange.Line,
			&doc.Metadata.StartRange.Character,
			&doc.Metadata.EndRange.Line,
			&doc.Metadata.EndRange.Character,
			&doc.Metadata.ParentNodeID,
			&related,
		); err != nil {
			return nil, err
		}
		doc.Vector = embedding.Slice()
		doc.Metadata.RelatedNodes = related
		out = append(out, doc)
	}
	return out, rows.Err()
}

// documentPaths collects the file path of every document in the batch, in
// batch order and with duplicates included. Callers dedupe as needed.
func documentPaths(docs []common.VectorDocument) []string {
	paths := make([]string, 0, len(docs))
	for _, doc := range docs {
		paths = append(paths, doc.Metadata.FilePath)
	}
	return paths
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// pathPrefixPattern turns a directory-ish prefix into the LIKE pattern that
// matches every file under it. A trailing slash on the input is optional.
// LIKE wildcards in the prefix are escaped; a directory named my_module must
// not match files under myxmodule.
func pathPrefixPattern(prefix string) string {
	return likeEscaper.Replace(strings.TrimSuffix(prefix, "/")) + "/%"
}

// relatedOrEmpty keeps the related-nodes column NOT NULL friendly.
func relatedOrEmpty(related []string) []string {
	if related == nil {
		return []string{}
	}
	return related
}
