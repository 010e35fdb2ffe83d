package codegraph

import (
	"sort"
	"sync"

	"github.com/trellis-ai/trellis/backend/pkg/common"
)

// Graph is the authoritative in-memory index of code fragments: a node map
// keyed by deterministic ids, two directed edge relations (import and
// export), and a per-file symbol table recording which node ids each file
// owns along with the file's content hash.
//
// All mutation runs through the Graph's own methods so that invalidation can
// never leave an edge pointing at a removed node. Read accessors return
// copies; callers cannot corrupt internal state through a returned value.
type Graph struct {
	mu          sync.RWMutex
	nodes       map[string]common.CodeGraphNode
	importEdges map[string]map[string]struct{}
	exportEdges map[string]map[string]struct{}
	symbolTable map[string]fileEntry
}

type fileEntry struct {
	nodeIDs map[string]struct{}
	sha     string
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		nodes:       make(map[string]common.CodeGraphNode),
		importEdges: make(map[string]map[string]struct{}),
		exportEdges: make(map[string]map[string]struct{}),
		symbolTable: make(map[string]fileEntry),
	}
}

// AddNode inserts or overwrites a node by id. Overwriting is expected:
// re-indexing an unchanged fragment produces the same id again.
func (g *Graph) AddNode(node common.CodeGraphNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[node.ID] = node
}

// MergeImportEdges union-merges the given adjacency lists into the import
// relation. Merging the same input twice leaves the edge sets unchanged.
func (g *Graph) MergeImportEdges(edges map[string][]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mergeEdges(g.importEdges, edges)
}

// MergeExportEdges union-merges the given adjacency lists into the export
// relation.
func (g *Graph) MergeExportEdges(edges map[string][]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mergeEdges(g.exportEdges, edges)
}

func mergeEdges(dst map[string]map[string]struct{}, src map[string][]string) {
	for id, targets := range src {
		set, ok := dst[id]
		if !ok {
			set = make(map[string]struct{}, len(targets))
			dst[id] = set
		}
		for _, target := range targets {
			set[target] = struct{}{}
		}
	}
}

// AddOrUpdateFileInSymbolTable records the node ids and content hash for a
// workspace-relative file path. Node ids present in the previous entry but
// absent from the new one are evicted: removed from the node map and from
// every edge set, in both relations, both as key and as member.
func (g *Graph) AddOrUpdateFileInSymbolTable(path string, details common.FileDetails) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := make(map[string]struct{}, len(details.NodeIDs))
	for _, id := range details.NodeIDs {
		next[id] = struct{}{}
	}

	if prev, ok := g.symbolTable[path]; ok {
		removed := make(map[string]struct{})
		for id := range prev.nodeIDs {
			if _, keep := next[id]; !keep {
				removed[id] = struct{}{}
			}
		}
		g.evictNodes(removed)
	}

	g.symbolTable[path] = fileEntry{nodeIDs: next, sha: details.SHA}
}

// DeleteFile drops a file's symbol table entry and evicts every node the
// file owned, including all edges that mention those nodes.
func (g *Graph) DeleteFile(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.symbolTable[path]
	if !ok {
		return
	}
	g.evictNodes(entry.nodeIDs)
	delete(g.symbolTable, path)
}

// evictNodes is the single invalidation routine shared by the diff-based
// update path and the full-removal path. Every id in removed leaves the node
// map, both edge relations' key sets, and every edge set it appears in as a
// member. Empty edge sets are dropped so they do not linger as keys.
func (g *Graph) evictNodes(removed map[string]struct{}) {
	if len(removed) == 0 {
		return
	}
	for id := range removed {
		delete(g.nodes, id)
		delete(g.importEdges, id)
		delete(g.exportEdges, id)
	}
	for _, relation := range []map[string]map[string]struct{}{g.importEdges, g.exportEdges} {
		for src, targets := range relation {
			for id := range removed {
				delete(targets, id)
			}
			if len(targets) == 0 {
				delete(relation, src)
			}
		}
	}
}

// GetNode returns the node for id, if present.
func (g *Graph) GetNode(id string) (common.CodeGraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	return node, ok
}

// GetNodes returns a copy of the node map.
func (g *Graph) GetNodes() map[string]common.CodeGraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make(map[string]common.CodeGraphNode, len(g.nodes))
	for id, node := range g.nodes {
		nodes[id] = node
	}
	return nodes
}

// GetImportEdge returns the sorted import targets of a node.
func (g *Graph) GetImportEdge(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copySet(g.importEdges[id])
}

// GetExportEdge returns the sorted export targets of a node.
func (g *Graph) GetExportEdge(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copySet(g.exportEdges[id])
}

// GetImportEdges returns a copy of the full import relation.
func (g *Graph) GetImportEdges() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyEdges(g.importEdges)
}

// GetExportEdges returns a copy of the full export relation.
func (g *Graph) GetExportEdges() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyEdges(g.exportEdges)
}

// GetSymbolTable returns a copy of the symbol table keyed by relative file
// path, with node ids sorted.
func (g *Graph) GetSymbolTable() map[string]common.FileDetails {
	g.mu.RLock()
	defer g.mu.RUnlock()
	table := make(map[string]common.FileDetails, len(g.symbolTable))
	for path, entry := range g.symbolTable {
		table[path] = common.FileDetails{NodeIDs: copySet(entry.nodeIDs), SHA: entry.sha}
	}
	return table
}

// GetFileFromSymbolTable returns the symbol table entry for a relative file
// path, if present.
func (g *Graph) GetFileFromSymbolTable(path string) (common.FileDetails, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	entry, ok := g.symbolTable[path]
	if !ok {
		return common.FileDetails{}, false
	}
	return common.FileDetails{NodeIDs: copySet(entry.nodeIDs), SHA: entry.sha}, true
}

func copySet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func copyEdges(relation map[string]map[string]struct{}) map[string][]string {
	edges := make(map[string][]string, len(relation))
	for id, targets := range relation {
		edges[id] = copySet(targets)
	}
	return edges
}
