// Package index orchestrates the incremental build of a workspace's code
// index: fragment extraction into the graph, children-first skeleton
// generation, embedding, and persistence, fed by a coalescing change queue.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/trellis-ai/trellis/backend/internal/util"
	"github.com/trellis-ai/trellis/backend/pkg/ai"
	"github.com/trellis-ai/trellis/backend/pkg/codegraph"
	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/extract"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/skeleton"
	"github.com/trellis-ai/trellis/backend/pkg/store"
	"github.com/trellis-ai/trellis/backend/pkg/symbols"
)

// ErrSyncing is returned when a pass is requested while another one is
// still running. Callers keep their batch and try again on the next drain.
var ErrSyncing = errors.New("indexing pass already running")

const (
	defaultParallelAIRequests = 4
	defaultMaxRetries         = 3
	defaultCallTimeout        = 5 * time.Minute
)

// Indexer drives the indexing pipeline for one workspace. It is the only
// component that mutates the CodeGraph and its symbol table; file events
// and rebuild jobs all funnel into ProcessDocuments or RemoveDocuments.
type Indexer struct {
	workspace string
	graph     *codegraph.Graph
	source    symbols.Source
	extractor *extract.Extractor
	generator *skeleton.Generator
	aiClient  ai.IndexAIClient
	store     store.VectorIndex

	parallelAIRequests int
	maxRetries         int
	callTimeout        time.Duration

	syncing atomic.Bool

	countsLock sync.Mutex
	counts     util.BuildCounts
	passStart  time.Time
}

type NewIndexerParams struct {
	// Workspace is the absolute root path. Node ids and file paths are
	// recorded relative to it so a persisted index stays portable.
	Workspace string
	Graph     *codegraph.Graph
	Source    symbols.Source
	Extractor *extract.Extractor
	Generator *skeleton.Generator
	AIClient  ai.IndexAIClient
	Store     store.VectorIndex

	// ParallelAIRequests bounds sibling skeleton calls and embedding
	// fan-out within one file.
	ParallelAIRequests int
	MaxRetries         int
	CallTimeout        time.Duration
}

func NewIndexer(params NewIndexerParams) (*Indexer, error) {
	if params.Workspace == "" {
		return nil, errors.New("workspace root is required")
	}
	if params.Graph == nil {
		return nil, errors.New("code graph is required")
	}
	if params.Source == nil {
		return nil, errors.New("symbol source is required")
	}
	if params.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if params.Generator == nil {
		return nil, errors.New("skeleton generator is required")
	}
	if params.AIClient == nil {
		return nil, errors.New("ai client is required")
	}
	if params.Store == nil {
		return nil, errors.New("vector index store is required")
	}

	parallel := params.ParallelAIRequests
	if parallel <= 0 {
		parallel = defaultParallelAIRequests
	}
	retries := params.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	timeout := params.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	return &Indexer{
		workspace:          params.Workspace,
		graph:              params.Graph,
		source:             params.Source,
		extractor:          params.Extractor,
		generator:          params.Generator,
		aiClient:           params.AIClient,
		store:              params.Store,
		parallelAIRequests: parallel,
		maxRetries:         retries,
		callTimeout:        timeout,
	}, nil
}

// IsSyncing reports whether a pass is currently running.
func (ix *Indexer) IsSyncing() bool {
	return ix.syncing.Load()
}

// Progress returns a snapshot of the current (or last) pass.
func (ix *Indexer) Progress() util.BuildProgress {
	ix.countsLock.Lock()
	counts := ix.counts
	if ix.syncing.Load() && !ix.passStart.IsZero() {
		counts.ElapsedMs = time.Since(ix.passStart).Milliseconds()
	}
	ix.countsLock.Unlock()
	return util.ComputeBuildProgress(counts)
}

// fileResult accumulates everything one changed file produced during a
// pass. A file that fails any phase keeps failed=true and stays out of the
// commit, so its recorded hash remains stale and the next enqueue
// reprocesses it from scratch.
type fileResult struct {
	path        string
	sha         string
	imports     []string
	fragments   []*extract.Fragment
	importEdges map[string][]string
	exportEdges map[string][]string
	skeletons   []common.SkeletonNode
	vectors     [][]float32
	failed      bool
}

type passState struct {
	visited map[string]bool
	queued  map[string]bool
	hashes  map[string]string
	files   map[string]*fileResult
	order   []string
	removed []string

	contentMu sync.Mutex
	content   map[string]string
}

func newPassState() *passState {
	return &passState{
		visited: make(map[string]bool),
		queued:  make(map[string]bool),
		hashes:  make(map[string]string),
		files:   make(map[string]*fileResult),
		content: make(map[string]string),
	}
}

func (p *passState) storeText(rel, text string) {
	p.contentMu.Lock()
	p.content[rel] = text
	p.contentMu.Unlock()
}

// fileText returns the source text of rel, reading from disk on a cache
// miss. Skeleton goroutines call this concurrently for related context.
func (p *passState) fileText(workspace, rel string) (string, bool) {
	p.contentMu.Lock()
	text, ok := p.content[rel]
	p.contentMu.Unlock()
	if ok {
		return text, true
	}

	content, err := os.ReadFile(resolvePath(workspace, rel))
	if err != nil {
		return "", false
	}
	text = string(content)
	p.storeText(rel, text)
	return text, true
}

// ProcessDocuments runs one indexing pass over the given files. Changed
// files are re-extracted, their fragments skeletonized children first,
// embedded, and persisted together with the graph state; unchanged files
// are skipped by hash without ever reaching the model. Only one pass runs
// at a time.
func (ix *Indexer) ProcessDocuments(ctx context.Context, uris []string, fullBuild bool) error {
	if !ix.syncing.CompareAndSwap(false, true) {
		return ErrSyncing
	}
	defer ix.syncing.Store(false)

	passID, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to create pass id: %w", err)
	}

	start := ix.resetCounts()
	logger.Info("[Index] Starting pass",
		"pass", passID, "workspace", ix.workspace, "seeds", len(uris), "fullBuild", fullBuild)

	pass := newPassState()
	for _, uri := range uris {
		seed := util.WorkspaceRelative(ix.workspace, uri)
		if !workspacePath(seed) {
			logger.Warn("[Index] Skipping path outside workspace", "pass", passID, "uri", uri)
			continue
		}
		if pass.visited[seed] || pass.queued[seed] {
			continue
		}
		pass.queued[seed] = true
		ix.addCounts(func(c *util.BuildCounts) { c.FileTotal++; c.FileQueued++ })

		if err := ix.extractSeed(ctx, pass, seed); err != nil {
			return err
		}
	}

	ix.skeletonizePass(ctx, pass)
	ix.embedPass(ctx, pass)

	committed := ix.commit(pass)
	docs := ix.collectDocuments(pass)

	if len(committed) > 0 || len(pass.removed) > 0 {
		if err := ix.persist(ctx, pass, committed, docs, fullBuild); err != nil {
			// Storage is now behind the in-memory graph. Blank the
			// recorded hashes so the next enqueue pushes these files
			// through again and the store catches up.
			for _, rel := range committed {
				if details, ok := ix.graph.GetFileFromSymbolTable(rel); ok {
					details.SHA = ""
					ix.graph.AddOrUpdateFileInSymbolTable(rel, details)
				}
			}
			return fmt.Errorf("failed to persist pass: %w", err)
		}
		saved := int64(len(docs))
		ix.addCounts(func(c *util.BuildCounts) { c.NodePersisting -= saved; c.NodeCompleted += saved })
	}

	elapsed := ix.finishCounts(start)
	counts := ix.snapshotCounts()
	logger.Info("[Index] Pass complete",
		"pass", passID,
		"files", len(committed),
		"documents", len(docs),
		"skipped", counts.FileSkipped,
		"failedFiles", counts.FileFailed,
		"failedNodes", counts.NodeFailed,
		"duration", elapsed)
	return nil
}

// RemoveDocuments drops the given files from the graph and the store, for
// delete and rename events. The syncing guard applies because the graph
// mutates; a busy indexer surfaces ErrSyncing for the caller to retry.
func (ix *Indexer) RemoveDocuments(ctx context.Context, uris []string) error {
	if len(uris) == 0 {
		return nil
	}
	if !ix.syncing.CompareAndSwap(false, true) {
		return ErrSyncing
	}
	defer ix.syncing.Store(false)

	paths := make([]string, 0, len(uris))
	for _, uri := range uris {
		rel := util.WorkspaceRelative(ix.workspace, uri)
		ix.graph.DeleteFile(rel)
		paths = append(paths, rel)
	}

	if err := ix.store.DeleteDocumentsByPath(ctx, paths); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	if err := ix.store.Save(ctx, nil,
		ix.graph.GetImportEdges(), ix.graph.GetExportEdges(), ix.graph.GetSymbolTable(),
		false,
	); err != nil {
		return fmt.Errorf("failed to save graph state: %w", err)
	}

	logger.Info("[Index] Removed files from index", "workspace", ix.workspace, "files", len(paths))
	return nil
}

// extractSeed walks the seed's related-file closure breadth first. Files
// discovered through cross-file references join the worklist so their
// nodes exist for edges and prompt context; whether they get re-summarized
// is still decided by their own hash.
func (ix *Indexer) extractSeed(ctx context.Context, pass *passState, seed string) error {
	worklist := []string{seed}
	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel := worklist[0]
		worklist = worklist[1:]
		if pass.visited[rel] {
			continue
		}

		discovered, err := ix.extractFile(ctx, pass, rel)
		if err != nil {
			ix.addCounts(func(c *util.BuildCounts) { c.FileFailed++ })
			logger.Error("[Index] Extraction failed, abandoning file", "file", rel, "error", err)
			continue
		}
		worklist = append(worklist, discovered...)
	}
	return nil
}

func (ix *Indexer) extractFile(ctx context.Context, pass *passState, rel string) ([]string, error) {
	pass.visited[rel] = true
	ix.addCounts(func(c *util.BuildCounts) { c.FileQueued--; c.FileScanning++ })

	content, err := os.ReadFile(resolvePath(ix.workspace, rel))
	if err != nil {
		if os.IsNotExist(err) {
			ix.graph.DeleteFile(rel)
			pass.removed = append(pass.removed, rel)
			ix.addCounts(func(c *util.BuildCounts) { c.FileScanning--; c.FileSkipped++ })
			logger.Info("[Index] File vanished before scan, dropping from index", "file", rel)
			return nil, nil
		}
		ix.addCounts(func(c *util.BuildCounts) { c.FileScanning-- })
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	text := string(content)
	pass.storeText(rel, text)

	sha := contentHash(content)
	if details, ok := ix.graph.GetFileFromSymbolTable(rel); ok && details.SHA == sha {
		pass.hashes[rel] = sha
		ix.addCounts(func(c *util.BuildCounts) { c.FileScanning--; c.FileSkipped++ })
		return nil, nil
	}
	if prev, ok := pass.hashes[rel]; ok && prev == sha {
		ix.addCounts(func(c *util.BuildCounts) { c.FileScanning--; c.FileSkipped++ })
		return nil, nil
	}
	pass.hashes[rel] = sha

	doc := common.Document{URI: util.WorkspaceURI(ix.workspace, rel), Text: text}

	syms, err := ix.source.GetSymbols(ctx, doc)
	if err != nil {
		ix.addCounts(func(c *util.BuildCounts) { c.FileScanning-- })
		return nil, fmt.Errorf("failed to resolve symbols: %w", err)
	}

	fr := &fileResult{
		path:        rel,
		sha:         sha,
		importEdges: make(map[string][]string),
		exportEdges: make(map[string][]string),
	}

	fr.imports, err = ix.extractor.FindImportStatements(ctx, doc)
	if err != nil {
		ix.addCounts(func(c *util.BuildCounts) { c.FileScanning-- })
		return nil, fmt.Errorf("failed to find imports: %w", err)
	}

	var discovered []string
	for _, sym := range syms {
		if !qualifies(sym) {
			continue
		}

		fragment, err := ix.extractor.ProcessSymbol(ctx, doc, sym)
		if err != nil {
			ix.addCounts(func(c *util.BuildCounts) { c.FileScanning-- })
			return nil, fmt.Errorf("failed to process symbol %s: %w", sym.Name, err)
		}

		fragments := []*extract.Fragment{fragment}
		if len(sym.Children) > 0 {
			childFragments, err := ix.extractor.ProcessChildSymbols(ctx, doc, sym, fragment.Node.ID)
			if err != nil {
				ix.addCounts(func(c *util.BuildCounts) { c.FileScanning-- })
				return nil, fmt.Errorf("failed to process children of %s: %w", sym.Name, err)
			}
			fragments = append(fragments, childFragments...)
		}

		for _, f := range fragments {
			ix.remapFragment(f)
			fr.fragments = append(fr.fragments, f)

			for _, related := range f.Related {
				target := related.Location.URI
				if !workspacePath(target) {
					// Kept as prompt context only. A node outside the
					// workspace never joins the graph, so no edge may
					// point at it.
					continue
				}
				fr.importEdges[f.Node.ID] = append(fr.importEdges[f.Node.ID], related.ID)
				fr.exportEdges[related.ID] = append(fr.exportEdges[related.ID], f.Node.ID)

				if target != rel && !pass.visited[target] && !pass.queued[target] {
					pass.queued[target] = true
					discovered = append(discovered, target)
					ix.addCounts(func(c *util.BuildCounts) { c.FileTotal++; c.FileQueued++ })
				}
			}
		}
	}

	pass.files[rel] = fr
	pass.order = append(pass.order, rel)
	ix.addCounts(func(c *util.BuildCounts) {
		c.FileScanning--
		c.FileScanned++
		c.NodeTotal += int64(len(fr.fragments))
	})
	return discovered, nil
}

func (ix *Indexer) skeletonizePass(ctx context.Context, pass *passState) {
	for _, rel := range pass.order {
		fr := pass.files[rel]
		if fr.failed || len(fr.fragments) == 0 {
			continue
		}

		n := int64(len(fr.fragments))
		ix.addCounts(func(c *util.BuildCounts) { c.NodeSummarizing += n })

		skeletons, err := ix.skeletonizeFile(ctx, pass, fr)
		if err != nil {
			ix.addCounts(func(c *util.BuildCounts) { c.NodeSummarizing -= n; c.NodeFailed += n })
			logger.Error("[Index] Skeletonization failed, abandoning file", "file", rel, "error", err)
			fr.failed = true
			continue
		}

		fr.skeletons = skeletons
		ix.addCounts(func(c *util.BuildCounts) { c.NodeSummarizing -= n; c.NodePersisting += n })
	}
}

// skeletonizeFile summarizes a file's fragments deepest first, so a
// container's prompt sees its children as one-line summaries instead of
// their full bodies. Siblings within a layer fan out, bounded by
// parallelAIRequests; any failed node fails the whole file.
func (ix *Indexer) skeletonizeFile(ctx context.Context, pass *passState, fr *fileResult) ([]common.SkeletonNode, error) {
	inFile := make(map[string]*extract.Fragment, len(fr.fragments))
	for _, f := range fr.fragments {
		inFile[f.Node.ID] = f
	}

	children := make(map[string][]*extract.Fragment)
	for _, f := range fr.fragments {
		if f.Node.ParentNodeID == "" {
			continue
		}
		if _, ok := inFile[f.Node.ParentNodeID]; ok {
			children[f.Node.ParentNodeID] = append(children[f.Node.ParentNodeID], f)
		}
	}

	var (
		mu        sync.Mutex
		summaries = make(map[string]common.SkeletonNode, len(fr.fragments))
	)

	for _, layer := range fragmentLayers(fr.fragments, inFile) {
		eg, layerCtx := errgroup.WithContext(ctx)
		eg.SetLimit(ix.parallelAIRequests)

		for _, f := range layer {
			eg.Go(func() error {
				block := f.CodeBlock
				if kids := children[f.Node.ID]; len(kids) > 0 {
					var digested []extract.ChildSummary
					mu.Lock()
					for _, kid := range kids {
						if node, ok := summaries[kid.Node.ID]; ok {
							digested = append(digested, extract.ChildSummary{Node: kid.Node, Summary: node.Skeleton})
						}
					}
					mu.Unlock()
					block = extract.MergeCodeNodeSummaries(block, f.Node.Location.Range.Start, digested)
				}

				related := ix.relatedFragments(pass, f)

				node, err := util.RetryWithContext(layerCtx, ix.maxRetries, func(callCtx context.Context) (common.SkeletonNode, error) {
					callCtx, cancel := context.WithTimeout(callCtx, ix.callTimeout)
					defer cancel()
					return ix.generator.Skeletonize(callCtx, fr.path, f.Node, block, fr.imports, related)
				})
				if err != nil {
					return err
				}
				node.Skeleton = util.SanitizePostgresText(node.Skeleton)

				mu.Lock()
				summaries[f.Node.ID] = node
				mu.Unlock()
				return nil
			})
		}

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([]common.SkeletonNode, 0, len(fr.fragments))
	for _, f := range fr.fragments {
		node, ok := summaries[f.Node.ID]
		if !ok {
			return nil, fmt.Errorf("missing skeleton for node %s", f.Node.ID)
		}
		out = append(out, node)
	}
	return out, nil
}

func (ix *Indexer) embedPass(ctx context.Context, pass *passState) {
	for _, rel := range pass.order {
		fr := pass.files[rel]
		if fr.failed || len(fr.skeletons) == 0 {
			continue
		}

		inputs := make([][]byte, len(fr.skeletons))
		for i, node := range fr.skeletons {
			inputs[i] = []byte(node.Skeleton)
		}

		vectors, err := util.RetryWithContext(ctx, ix.maxRetries, func(callCtx context.Context) ([][]float32, error) {
			callCtx, cancel := context.WithTimeout(callCtx, ix.callTimeout)
			defer cancel()
			return GenerateEmbeddings(callCtx, ix.aiClient, inputs, ix.parallelAIRequests)
		})
		if err != nil {
			n := int64(len(fr.fragments))
			ix.addCounts(func(c *util.BuildCounts) { c.NodePersisting -= n; c.NodeFailed += n })
			logger.Error("[Index] Embedding failed, abandoning file", "file", rel, "error", err)
			fr.failed = true
			continue
		}
		fr.vectors = vectors
	}
}

// commit applies every successful file of the pass to the live graph:
// nodes, both edge directions, and the refreshed symbol table entry whose
// diff evicts fragments that no longer exist.
func (ix *Indexer) commit(pass *passState) []string {
	var committed []string
	for _, rel := range pass.order {
		fr := pass.files[rel]
		if fr.failed {
			continue
		}

		ids := make([]string, 0, len(fr.fragments))
		for _, f := range fr.fragments {
			ix.graph.AddNode(f.Node)
			ids = append(ids, f.Node.ID)
		}
		ix.graph.MergeImportEdges(fr.importEdges)
		ix.graph.MergeExportEdges(fr.exportEdges)
		ix.graph.AddOrUpdateFileInSymbolTable(rel, common.FileDetails{NodeIDs: ids, SHA: fr.sha})
		committed = append(committed, rel)
	}
	return committed
}

func (ix *Indexer) collectDocuments(pass *passState) []common.VectorDocument {
	var docs []common.VectorDocument
	for _, rel := range pass.order {
		fr := pass.files[rel]
		if fr.failed || len(fr.skeletons) == 0 {
			continue
		}

		for i, node := range fr.skeletons {
			docs = append(docs, common.VectorDocument{
				ID:      node.ID,
				Vector:  fr.vectors[i],
				Summary: node.Skeleton,
				Metadata: common.DocumentMetadata{
					FilePath:     fr.path,
					StartRange:   node.Location.Range.Start,
					EndRange:     node.Location.Range.End,
					RelatedNodes: ix.graph.GetImportEdge(node.ID),
					ParentNodeID: node.ParentNodeID,
				},
			})
		}
	}
	return docs
}

func (ix *Indexer) persist(ctx context.Context, pass *passState, committed []string, docs []common.VectorDocument, fullBuild bool) error {
	if !fullBuild {
		// Save's purge only covers paths present in the new batch. Files
		// that vanished, and files re-scanned down to zero fragments,
		// still need their old rows cleared here.
		stale := append(pathsWithoutDocuments(committed, docs), pass.removed...)
		if len(stale) > 0 {
			if err := ix.store.DeleteDocumentsByPath(ctx, stale); err != nil {
				return fmt.Errorf("failed to delete stale documents: %w", err)
			}
		}
	}

	return ix.store.Save(ctx, docs,
		ix.graph.GetImportEdges(), ix.graph.GetExportEdges(), ix.graph.GetSymbolTable(),
		!fullBuild,
	)
}

// relatedFragments loads the source text of every definition the fragment
// references, for prompt context. A related file that cannot be read is
// skipped; the skeleton is simply generated with less context.
func (ix *Indexer) relatedFragments(pass *passState, f *extract.Fragment) []skeleton.RelatedFragment {
	var out []skeleton.RelatedFragment
	for _, related := range f.Related {
		text, ok := pass.fileText(ix.workspace, related.Location.URI)
		if !ok {
			continue
		}
		block := common.SliceRange(text, related.Location.Range)
		if strings.TrimSpace(block) == "" {
			continue
		}
		out = append(out, skeleton.RelatedFragment{FilePath: related.Location.URI, Text: block})
	}
	return out
}

func (ix *Indexer) remapFragment(f *extract.Fragment) {
	f.Node.ID = ix.relID(f.Node.ID)
	f.Node.Location.URI = util.WorkspaceRelative(ix.workspace, f.Node.Location.URI)
	if f.Node.ParentNodeID != "" {
		f.Node.ParentNodeID = ix.relID(f.Node.ParentNodeID)
	}
	for i := range f.Related {
		f.Related[i].ID = ix.relID(f.Related[i].ID)
		f.Related[i].Location.URI = util.WorkspaceRelative(ix.workspace, f.Related[i].Location.URI)
	}
}

// relID rewrites a node id from uri form to workspace-relative form. Ids
// that are already relative pass through unchanged.
func (ix *Indexer) relID(id string) string {
	uri, pos, ok := common.ParseNodeID(id)
	if !ok {
		return id
	}
	return common.NodeID(util.WorkspaceRelative(ix.workspace, uri), pos)
}

func (ix *Indexer) addCounts(apply func(*util.BuildCounts)) {
	ix.countsLock.Lock()
	apply(&ix.counts)
	ix.countsLock.Unlock()
}

func (ix *Indexer) resetCounts() time.Time {
	start := time.Now()
	ix.countsLock.Lock()
	ix.counts = util.BuildCounts{}
	ix.passStart = start
	ix.countsLock.Unlock()
	return start
}

func (ix *Indexer) finishCounts(start time.Time) time.Duration {
	elapsed := time.Since(start)
	ix.addCounts(func(c *util.BuildCounts) { c.ElapsedMs = elapsed.Milliseconds() })
	return elapsed
}

func (ix *Indexer) snapshotCounts() util.BuildCounts {
	ix.countsLock.Lock()
	defer ix.countsLock.Unlock()
	return ix.counts
}

// fragmentLayers orders fragments by containment depth, deepest layer
// first. Depth is relative to the file; a fragment whose parent lives
// elsewhere counts as a root.
func fragmentLayers(fragments []*extract.Fragment, inFile map[string]*extract.Fragment) [][]*extract.Fragment {
	depthOf := func(f *extract.Fragment) int {
		d := 0
		cur := f
		for steps := 0; steps < len(fragments); steps++ {
			if cur.Node.ParentNodeID == "" {
				break
			}
			parent, ok := inFile[cur.Node.ParentNodeID]
			if !ok {
				break
			}
			d++
			cur = parent
		}
		return d
	}

	maxDepth := 0
	byDepth := make(map[int][]*extract.Fragment)
	for _, f := range fragments {
		d := depthOf(f)
		byDepth[d] = append(byDepth[d], f)
		if d > maxDepth {
			maxDepth = d
		}
	}

	layers := make([][]*extract.Fragment, 0, maxDepth+1)
	for d := maxDepth; d >= 0; d-- {
		if len(byDepth[d]) > 0 {
			layers = append(layers, byDepth[d])
		}
	}
	return layers
}

// Top-level callables always become fragments. Containers only earn a
// node when they hold callable children; a bare class or object of plain
// properties has nothing to summarize on its own.
func qualifies(sym common.DocumentSymbol) bool {
	if sym.Kind.Callable() {
		return true
	}
	if !sym.Kind.Container() {
		return false
	}
	for _, child := range sym.Children {
		if child.Kind.Callable() {
			return true
		}
	}
	return false
}

func pathsWithoutDocuments(committed []string, docs []common.VectorDocument) []string {
	withDocs := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		withDocs[doc.Metadata.FilePath] = struct{}{}
	}

	var out []string
	for _, rel := range committed {
		if _, ok := withDocs[rel]; !ok {
			out = append(out, rel)
		}
	}
	return out
}

// workspacePath reports whether rel is a path inside the workspace root.
// WorkspaceRelative returns absolute paths unchanged for files outside the
// root; those stay out of the graph.
func workspacePath(rel string) bool {
	if rel == "" || strings.HasPrefix(rel, "/") {
		return false
	}
	if len(rel) > 1 && rel[1] == ':' {
		return false
	}
	return true
}

func resolvePath(workspace, rel string) string {
	if strings.HasPrefix(rel, "/") {
		return filepath.FromSlash(rel)
	}
	return filepath.Join(workspace, filepath.FromSlash(rel))
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
