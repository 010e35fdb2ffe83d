package pgx

import (
	"context"
	"reflect"
	"testing"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/trellis-ai/trellis/backend/pkg/common"
)

type fakeConn struct{}

func (fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakeConn) Query(context.Context, string, ...any) (pgxv5.Rows, error) { return nil, nil }
func (fakeConn) QueryRow(context.Context, string, ...any) pgxv5.Row        { return nil }
func (fakeConn) Begin(context.Context) (pgxv5.Tx, error)                   { return nil, nil }

func TestNewVectorDBIndex(t *testing.T) {
	if _, err := NewVectorDBIndex(nil, "ws-1"); err == nil {
		t.Fatal("expected error for nil connection")
	}
	if _, err := NewVectorDBIndex(fakeConn{}, ""); err == nil {
		t.Fatal("expected error for empty workspace id")
	}

	idx, err := NewVectorDBIndex(fakeConn{}, "ws-1")
	if err != nil {
		t.Fatalf("expected index, got error: %v", err)
	}
	if idx.workspaceID != "ws-1" {
		t.Fatalf("expected workspace id ws-1, got %s", idx.workspaceID)
	}
}

func TestSearchRequiresEmbedding(t *testing.T) {
	idx, err := NewVectorDBIndex(fakeConn{}, "ws-1")
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	if _, err := idx.Search(context.Background(), nil, 5); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}

func TestLookupsSkipEmptyInput(t *testing.T) {
	idx, err := NewVectorDBIndex(fakeConn{}, "ws-1")
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	ctx := context.Background()

	if docs, err := idx.FindDocumentsByID(ctx, nil); err != nil || docs != nil {
		t.Fatalf("expected empty id lookup to short-circuit, got %v, %v", docs, err)
	}
	if docs, err := idx.FindDocumentsByPath(ctx, nil); err != nil || docs != nil {
		t.Fatalf("expected empty path lookup to short-circuit, got %v, %v", docs, err)
	}
	if docs, err := idx.FindDocumentsByPathPrefix(ctx, ""); err != nil || docs != nil {
		t.Fatalf("expected empty prefix lookup to short-circuit, got %v, %v", docs, err)
	}
	if docs, err := idx.FindDocumentsByRelatedNode(ctx, ""); err != nil || docs != nil {
		t.Fatalf("expected empty node lookup to short-circuit, got %v, %v", docs, err)
	}
	if err := idx.DeleteDocuments(ctx, nil); err != nil {
		t.Fatalf("expected empty delete to be a no-op, got %v", err)
	}
	if err := idx.DeleteDocumentsByPath(ctx, nil); err != nil {
		t.Fatalf("expected empty path delete to be a no-op, got %v", err)
	}
}

func TestPathPrefixPattern(t *testing.T) {
	cases := map[string]string{
		"src":          "src/%",
		"src/":         "src/%",
		"src/index":    "src/index/%",
		"src/my_dir":   `src/my\_dir/%`,
		"src/100%done": `src/100\%done/%`,
	}
	for prefix, expected := range cases {
		if got := pathPrefixPattern(prefix); got != expected {
			t.Fatalf("expected pattern %q for prefix %q, got %q", expected, prefix, got)
		}
	}
}

func TestDocumentPaths(t *testing.T) {
	docs := []common.VectorDocument{
		{Metadata: common.DocumentMetadata{FilePath: "src/a.ts"}},
		{Metadata: common.DocumentMetadata{FilePath: "src/a.ts"}},
		{Metadata: common.DocumentMetadata{FilePath: "src/b.ts"}},
	}
	expected := []string{"src/a.ts", "src/a.ts", "src/b.ts"}
	if got := documentPaths(docs); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestRelatedOrEmpty(t *testing.T) {
	if got := relatedOrEmpty(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
	in := []string{"src/a.ts:1:0"}
	if got := relatedOrEmpty(in); !reflect.DeepEqual(got, in) {
		t.Fatalf("expected passthrough, got %v", got)
	}
}
