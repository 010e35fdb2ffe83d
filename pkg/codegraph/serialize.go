package codegraph

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/trellis-ai/trellis/backend/pkg/common"
)

// The persisted graph state stores maps and sets as association lists:
// each edge relation as [[nodeId, [targetId...]], ...] and the symbol table
// as [[filePath, {nodeIds, sha}], ...]. Entries are sorted by key so the
// serialized form is deterministic. Node bodies are not part of this state;
// they are rebuilt from the persisted documents on load.

type graphState struct {
	ImportEdges []edgePair  `json:"importEdges"`
	ExportEdges []edgePair  `json:"exportEdges"`
	SymbolTable []tablePair `json:"symbolTable"`
}

type edgePair struct {
	NodeID  string
	Targets []string
}

func (p edgePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.NodeID, p.Targets})
}

func (p *edgePair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("edge entry must be a [id, targets] pair, got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.NodeID); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Targets)
}

type tablePair struct {
	FilePath string
	Details  tableDetails
}

type tableDetails struct {
	NodeIDs []string `json:"nodeIds"`
	SHA     string   `json:"sha"`
}

func (p tablePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.FilePath, p.Details})
}

func (p *tablePair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("symbol table entry must be a [path, details] pair, got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.FilePath); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Details)
}

// Serialize renders the graph's edges and symbol table in the persisted
// association-list form.
func (g *Graph) Serialize() ([]byte, error) {
	return MarshalState(g.GetImportEdges(), g.GetExportEdges(), g.GetSymbolTable())
}

// MarshalState renders edge maps and a symbol table in the persisted
// association-list form without requiring a Graph. The storage layer uses
// this to write the same state shape FromSerialized reads back.
func MarshalState(
	importEdges map[string][]string,
	exportEdges map[string][]string,
	symbolTable map[string]common.FileDetails,
) ([]byte, error) {
	state := graphState{
		ImportEdges: toEdgePairs(importEdges),
		ExportEdges: toEdgePairs(exportEdges),
		SymbolTable: toTablePairs(symbolTable),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize graph state: %w", err)
	}
	return data, nil
}

// FromSerialized reconstructs a Graph's edges and symbol table from
// persisted state. The node map starts empty; callers repopulate it from
// the persisted documents.
func FromSerialized(data []byte) (*Graph, error) {
	var state graphState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse graph state: %w", err)
	}

	g := New()
	for _, pair := range state.ImportEdges {
		g.importEdges[pair.NodeID] = toSet(pair.Targets)
	}
	for _, pair := range state.ExportEdges {
		g.exportEdges[pair.NodeID] = toSet(pair.Targets)
	}
	for _, pair := range state.SymbolTable {
		g.symbolTable[pair.FilePath] = fileEntry{nodeIDs: toSet(pair.Details.NodeIDs), sha: pair.Details.SHA}
	}
	return g, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func toEdgePairs(edges map[string][]string) []edgePair {
	pairs := make([]edgePair, 0, len(edges))
	for id, targets := range edges {
		pairs = append(pairs, edgePair{NodeID: id, Targets: targets})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].NodeID < pairs[j].NodeID })
	return pairs
}

func toTablePairs(table map[string]common.FileDetails) []tablePair {
	pairs := make([]tablePair, 0, len(table))
	for path, details := range table {
		pairs = append(pairs, tablePair{
			FilePath: path,
			Details:  tableDetails{NodeIDs: details.NodeIDs, SHA: details.SHA},
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].FilePath < pairs[j].FilePath })
	return pairs
}
