// Package symbols defines how the indexing pipeline looks up the structure
// of source documents: the symbol tree of a file and the definition sites of
// identifiers referenced inside it.
package symbols

import (
	"context"

	"github.com/trellis-ai/trellis/backend/pkg/common"
)

// Source resolves the symbol structure of source documents. Implementations
// answer from whatever backs them, such as a parser or an editor's language
// service; the pipeline relies only on these three lookups.
type Source interface {
	// GetSymbols returns the symbol tree of the document, outermost symbols
	// first. Unsupported file types yield an empty slice, not an error.
	GetSymbols(ctx context.Context, doc common.Document) ([]common.DocumentSymbol, error)

	// GetDefinition returns the locations defining the identifier at the
	// given position. A resolution miss is an empty slice, not an error.
	GetDefinition(ctx context.Context, doc common.Document, position common.Position) ([]common.Location, error)

	// GetTypeDefinition is GetDefinition narrowed to type declarations
	// (classes, interfaces, enums and other named types).
	GetTypeDefinition(ctx context.Context, doc common.Document, position common.Position) ([]common.Location, error)
}

// Reference is a single identifier occurrence inside a document.
type Reference struct {
	Name     string
	Position common.Position
}

// Scanner lists the raw syntax facts fragment extraction works from:
// identifier references inside a range and the import statements of a file.
type Scanner interface {
	// ScanReferences returns the identifiers appearing inside the given
	// range, in document order.
	ScanReferences(ctx context.Context, doc common.Document, within common.Range) ([]Reference, error)

	// ScanImports returns the ranges of the document's import statements.
	ScanImports(ctx context.Context, doc common.Document) ([]common.Range, error)
}
