package common

import (
	"fmt"
	"strings"
)

// Position is a zero-based line/character coordinate inside a source file,
// matching the convention used by editor symbol providers.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span between two positions: Start is inclusive,
// End is exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether pos falls inside the range.
func (r Range) Contains(pos Position) bool {
	if pos.Line < r.Start.Line || pos.Line > r.End.Line {
		return false
	}
	if pos.Line == r.Start.Line && pos.Character < r.Start.Character {
		return false
	}
	if pos.Line == r.End.Line && pos.Character >= r.End.Character {
		return false
	}
	return true
}

// ContainsRange reports whether other is fully nested inside the range.
func (r Range) ContainsRange(other Range) bool {
	if other.Start.Line < r.Start.Line || other.End.Line > r.End.Line {
		return false
	}
	if other.Start.Line == r.Start.Line && other.Start.Character < r.Start.Character {
		return false
	}
	if other.End.Line == r.End.Line && other.End.Character > r.End.Character {
		return false
	}
	return true
}

// Location pins a range to the file it belongs to.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// SymbolKind classifies a document symbol, following the numbering used by
// language-server symbol providers.
type SymbolKind int

const (
	SymbolKindFile        SymbolKind = 1
	SymbolKindModule      SymbolKind = 2
	SymbolKindNamespace   SymbolKind = 3
	SymbolKindPackage     SymbolKind = 4
	SymbolKindClass       SymbolKind = 5
	SymbolKindMethod      SymbolKind = 6
	SymbolKindProperty    SymbolKind = 7
	SymbolKindField       SymbolKind = 8
	SymbolKindConstructor SymbolKind = 9
	SymbolKindEnum        SymbolKind = 10
	SymbolKindInterface   SymbolKind = 11
	SymbolKindFunction    SymbolKind = 12
	SymbolKindVariable    SymbolKind = 13
	SymbolKindConstant    SymbolKind = 14
	SymbolKindObject      SymbolKind = 19
	SymbolKindStruct      SymbolKind = 23
)

// Callable reports whether the kind stands for an executable fragment
// (function, method, or constructor). Only callable symbols become their own
// graph nodes; containers such as classes are tracked solely as parents of
// their callable children.
func (k SymbolKind) Callable() bool {
	return k == SymbolKindFunction || k == SymbolKindMethod || k == SymbolKindConstructor
}

// Container reports whether the kind can hold callable children worth
// recursing into, such as a class with methods or an object literal holding
// function properties.
func (k SymbolKind) Container() bool {
	switch k {
	case SymbolKindClass, SymbolKindInterface, SymbolKindModule, SymbolKindNamespace, SymbolKindObject, SymbolKindStruct:
		return true
	}
	return false
}

// DocumentSymbol is one entry of a file's symbol tree as reported by a
// symbol provider. Range spans the full body; SelectionRange spans just the
// name. Children holds nested symbols (methods inside a class, and so on).
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selection_range"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// Document is a loaded source file: its URI plus the full text content at
// the time it was read.
type Document struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

// CodeGraphNode is a code fragment tracked by the graph: a function, method,
// or constructor body, or the container node for such children.
//
// The ID is derived from the fragment's file URI and the line/character where
// its range starts, so it stays stable across runs as long as the fragment
// does not move. ParentNodeID links a nested method back to its enclosing
// container, forming a forest.
type CodeGraphNode struct {
	ID           string   `json:"id"`
	Location     Location `json:"location"`
	ParentNodeID string   `json:"parent_node_id,omitempty"`
}

// SkeletonNode is a CodeGraphNode plus its generated skeleton: the short
// natural-language description of what the fragment does. The skeleton text,
// not the raw code, is what gets embedded for semantic search.
type SkeletonNode struct {
	CodeGraphNode
	Skeleton string `json:"skeleton"`
}

// FileDetails is the symbol table entry for one file: which node ids the
// file owns and the content hash recorded when it was last indexed. The hash
// exists purely for change detection.
type FileDetails struct {
	NodeIDs []string `json:"node_ids"`
	SHA     string   `json:"sha"`
}

// DocumentMetadata is the searchable context stored alongside each embedded
// fragment. RelatedNodes is a snapshot of the node's import edges at save
// time, stored as workspace-relative node ids so an index can be moved
// between machines.
type DocumentMetadata struct {
	FilePath     string   `json:"file_path"`
	StartRange   Position `json:"start_range"`
	EndRange     Position `json:"end_range"`
	RelatedNodes []string `json:"related_nodes"`
	ParentNodeID string   `json:"parent_node_id,omitempty"`
}

// VectorDocument is the persisted form of a skeletonized fragment: the node
// id, the embedding of its skeleton text, the skeleton itself, and the
// metadata needed to locate and contextualize it.
type VectorDocument struct {
	ID       string           `json:"id"`
	Vector   []float32        `json:"vector"`
	Summary  string           `json:"summary"`
	Metadata DocumentMetadata `json:"metadata"`
}

// SliceRange extracts the text covered by rng. Character indices address
// bytes within their line; positions outside the text clamp to it.
func SliceRange(text string, rng Range) string {
	lines := strings.Split(text, "\n")

	startLine := clamp(rng.Start.Line, 0, len(lines)-1)
	endLine := clamp(rng.End.Line, 0, len(lines)-1)
	if startLine > endLine {
		return ""
	}

	if startLine == endLine {
		line := lines[startLine]
		start := clamp(rng.Start.Character, 0, len(line))
		end := clamp(rng.End.Character, 0, len(line))
		if start >= end {
			return ""
		}
		return line[start:end]
	}

	first := lines[startLine]
	out := make([]string, 0, endLine-startLine+1)
	out = append(out, first[clamp(rng.Start.Character, 0, len(first)):])
	for i := startLine + 1; i < endLine; i++ {
		out = append(out, lines[i])
	}
	last := lines[endLine]
	out = append(out, last[:clamp(rng.End.Character, 0, len(last))])
	return strings.Join(out, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NodeID derives the deterministic graph id for a fragment starting at pos
// inside the file identified by uri.
func NodeID(uri string, pos Position) string {
	return fmt.Sprintf("%s:%d:%d", uri, pos.Line, pos.Character)
}

// ParseNodeID splits a node id back into its file part and start position.
// The file part may itself contain colons (URIs do), so the id is split from
// the right.
func ParseNodeID(id string) (string, Position, bool) {
	var pos Position
	last := lastColon(id)
	if last < 0 {
		return "", pos, false
	}
	second := lastColon(id[:last])
	if second < 0 {
		return "", pos, false
	}
	var line, char int
	if _, err := fmt.Sscanf(id[second+1:last], "%d", &line); err != nil {
		return "", pos, false
	}
	if _, err := fmt.Sscanf(id[last+1:], "%d", &char); err != nil {
		return "", pos, false
	}
	pos.Line = line
	pos.Character = char
	return id[:second], pos, true
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}
