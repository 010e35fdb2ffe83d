// Package extract turns document symbols into code fragments, the unit of
// indexing. A fragment is a callable symbol's source block together with the
// definitions it references, which later become graph edges.
package extract

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/symbols"
)

// Fragment is one extracted code node with everything the summarizer needs:
// its source block and the nodes it references.
type Fragment struct {
	Node      common.CodeGraphNode
	Name      string
	Kind      common.SymbolKind
	Detail    string
	CodeBlock string
	Related   []RelatedNode
}

// RelatedNode names a definition referenced from a fragment. Location spans
// the full enclosing symbol at the definition site, not just the name.
type RelatedNode struct {
	ID       string
	Name     string
	Location common.Location
}

// ChildSummary pairs a child node with its generated summary, for merging
// back into the parent's code block.
type ChildSummary struct {
	Node    common.CodeGraphNode
	Summary string
}

// Paths matching these never join the graph, even when definition lookups
// land in them.
var defaultExcludePatterns = []string{
	`[\\/]node_modules[\\/]`,
	`[\\/]vendor[\\/]`,
	`[\\/]dist[\\/]`,
	`[\\/]\.venv[\\/]`,
	`[\\/]site-packages[\\/]`,
	`[\\/]__pycache__[\\/]`,
	`[\\/]\.git[\\/]`,
	`[\\/]go[\\/]pkg[\\/]mod[\\/]`,
	`\.d\.ts$`,
	`\.min\.js$`,
}

// Extractor builds fragments from documents. Documents passed in carry
// their full text; only definition targets are read from disk, by the
// symbol source.
type Extractor struct {
	source  symbols.Source
	scanner symbols.Scanner
	exclude []*regexp.Regexp
}

type ExtractorParams struct {
	Source  symbols.Source
	Scanner symbols.Scanner
	// ExcludePatterns extends the built-in dependency and runtime path
	// filters.
	ExcludePatterns []string
}

// NewExtractor creates a fragment extractor over a symbol source and a
// reference scanner.
//
// Example:
//
//	extractor, err := extract.NewExtractor(extract.ExtractorParams{
//		Source:  source,
//		Scanner: source,
//	})
//	if err != nil {
//		// handle error
//	}
//	fragment, err := extractor.ProcessSymbol(ctx, doc, symbol)
func NewExtractor(params ExtractorParams) (*Extractor, error) {
	if params.Source == nil {
		return nil, errors.New("symbol source is required")
	}
	if params.Scanner == nil {
		return nil, errors.New("reference scanner is required")
	}

	patterns := append(append([]string{}, defaultExcludePatterns...), params.ExcludePatterns...)
	exclude := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		exclude = append(exclude, re)
	}

	return &Extractor{
		source:  params.Source,
		scanner: params.Scanner,
		exclude: exclude,
	}, nil
}

// Excluded reports whether a uri points into dependency or runtime code.
func (e *Extractor) Excluded(uri string) bool {
	for _, re := range e.exclude {
		if re.MatchString(uri) {
			return true
		}
	}
	return false
}

// ProcessSymbol extracts the fragment for one symbol: its node, its code
// block, and the related nodes its references resolve to.
func (e *Extractor) ProcessSymbol(ctx context.Context, doc common.Document, symbol common.DocumentSymbol) (*Fragment, error) {
	return e.process(ctx, doc, symbol, "")
}

// ProcessChildSymbols extracts fragments for the callable children of a
// container symbol, each linked to the parent node. Children sharing a start
// line are processed once.
func (e *Extractor) ProcessChildSymbols(ctx context.Context, doc common.Document, parent common.DocumentSymbol, parentNodeID string) ([]*Fragment, error) {
	var out []*Fragment
	seenLines := make(map[int]bool)

	for _, child := range parent.Children {
		if !child.Kind.Callable() {
			continue
		}
		if seenLines[child.Range.Start.Line] {
			continue
		}
		seenLines[child.Range.Start.Line] = true

		fragment, err := e.process(ctx, doc, child, parentNodeID)
		if err != nil {
			return nil, err
		}
		out = append(out, fragment)
	}
	return out, nil
}

// FindImportStatements returns the text of the document's import
// statements, in document order.
func (e *Extractor) FindImportStatements(ctx context.Context, doc common.Document) ([]string, error) {
	ranges, err := e.scanner.ScanImports(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to scan imports: %w", err)
	}

	var out []string
	for _, rng := range ranges {
		if text := common.SliceRange(doc.Text, rng); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}

func (e *Extractor) process(ctx context.Context, doc common.Document, symbol common.DocumentSymbol, parentNodeID string) (*Fragment, error) {
	nodeID := common.NodeID(doc.URI, symbol.SelectionRange.Start)

	fragment := &Fragment{
		Node: common.CodeGraphNode{
			ID:           nodeID,
			Location:     common.Location{URI: doc.URI, Range: symbol.Range},
			ParentNodeID: parentNodeID,
		},
		Name:      symbol.Name,
		Kind:      symbol.Kind,
		Detail:    symbol.Detail,
		CodeBlock: common.SliceRange(doc.Text, symbol.Range),
	}

	refs, err := e.scanner.ScanReferences(ctx, doc, symbol.Range)
	if err != nil {
		return nil, fmt.Errorf("failed to scan references: %w", err)
	}

	seenNames := map[string]bool{symbol.Name: true}
	seenNodes := map[string]bool{nodeID: true}

	for _, ref := range refs {
		if seenNames[ref.Name] {
			continue
		}
		seenNames[ref.Name] = true

		locs, err := e.source.GetDefinition(ctx, doc, ref.Position)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve reference %s: %w", ref.Name, err)
		}

		for _, loc := range locs {
			if e.Excluded(loc.URI) {
				continue
			}
			related, ok := e.enclosingNode(ctx, doc, loc)
			if !ok || seenNodes[related.ID] {
				continue
			}
			seenNodes[related.ID] = true
			fragment.Related = append(fragment.Related, related)
		}
	}

	return fragment, nil
}

// enclosingNode maps a definition location to the innermost symbol around
// it. Definitions without an enclosing symbol, and files that cannot be
// inspected, produce no related node.
func (e *Extractor) enclosingNode(ctx context.Context, from common.Document, loc common.Location) (RelatedNode, bool) {
	target := common.Document{URI: loc.URI}
	if loc.URI == from.URI {
		target = from
	}

	syms, err := e.source.GetSymbols(ctx, target)
	if err != nil || len(syms) == 0 {
		return RelatedNode{}, false
	}

	enclosing, ok := innermostEnclosing(syms, loc.Range.Start)
	if !ok {
		return RelatedNode{}, false
	}

	return RelatedNode{
		ID:       common.NodeID(loc.URI, enclosing.SelectionRange.Start),
		Name:     enclosing.Name,
		Location: common.Location{URI: loc.URI, Range: enclosing.Range},
	}, true
}

func innermostEnclosing(syms []common.DocumentSymbol, pos common.Position) (common.DocumentSymbol, bool) {
	for _, sym := range syms {
		if !sym.Range.Contains(pos) {
			continue
		}
		if child, ok := innermostEnclosing(sym.Children, pos); ok {
			return child, true
		}
		return sym, true
	}
	return common.DocumentSymbol{}, false
}

// MergeCodeNodeSummaries rewrites a parent's code block so each child body
// appears as its condensed summary instead. The child's declaration line is
// kept and the body lines are replaced with comment lines carrying the
// summary. Children are applied bottom-up so line offsets stay valid.
func MergeCodeNodeSummaries(parentBlock string, parentStart common.Position, children []ChildSummary) string {
	if len(children) == 0 {
		return parentBlock
	}

	sorted := make([]ChildSummary, len(children))
	copy(sorted, children)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Node.Location.Range.Start.Line > sorted[j].Node.Location.Range.Start.Line
	})

	lines := strings.Split(parentBlock, "\n")
	for _, child := range sorted {
		rng := child.Node.Location.Range
		start := rng.Start.Line - parentStart.Line
		end := rng.End.Line - parentStart.Line

		// a child on the parent's declaration line cannot be folded
		if child.Summary == "" || start <= 0 || start >= len(lines) {
			continue
		}
		if end >= len(lines) {
			end = len(lines) - 1
		}
		if end <= start {
			continue
		}

		indent := leadingWhitespace(lines[start]) + "  "
		replacement := []string{lines[start]}
		for _, line := range strings.Split(child.Summary, "\n") {
			replacement = append(replacement, indent+"// "+line)
		}
		lines = append(lines[:start], append(replacement, lines[end+1:]...)...)
	}
	return strings.Join(lines, "\n")
}

func leadingWhitespace(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' && s[i] != '\t' {
			return s[:i]
		}
	}
	return s
}
