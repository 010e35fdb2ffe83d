package index

import (
	"context"
	"fmt"
	"path"

	"github.com/trellis-ai/trellis/backend/internal/util"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/store"
)

// DocumentRemover is the part of the Indexer the bridge uses for deletes.
type DocumentRemover interface {
	RemoveDocuments(ctx context.Context, uris []string) error
}

// RenamedFile is one rename notification from the editor gateway.
type RenamedFile struct {
	OldURI string `json:"old_uri"`
	NewURI string `json:"new_uri"`
}

// Source file patterns indexed when the caller configures none. Matches
// the grammars the symbol source parses.
var defaultIncludePatterns = []string{
	"*.ts", "*.tsx", "*.js", "*.jsx", "*.go", "*.py",
}

// FileEventBridge turns raw file-system notifications into index work:
// qualifying changes land in the ChangeQueue, renames and deletes go to
// the indexer for removal. It owns the inclusion filter; nothing behind it
// ever sees a non-source file.
type FileEventBridge struct {
	workspace string
	include   []string
	queue     *ChangeQueue
	indexer   DocumentRemover
	store     store.VectorIndex
}

type NewFileEventBridgeParams struct {
	Workspace string
	// IncludePatterns are path.Match globs tried against the full
	// workspace-relative path and against the basename.
	IncludePatterns []string
	Queue           *ChangeQueue
	Indexer         DocumentRemover
	Store           store.VectorIndex
}

func NewFileEventBridge(params NewFileEventBridgeParams) (*FileEventBridge, error) {
	if params.Workspace == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("change queue is required")
	}
	if params.Indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	include := params.IncludePatterns
	if len(include) == 0 {
		include = defaultIncludePatterns
	}

	return &FileEventBridge{
		workspace: params.Workspace,
		include:   include,
		queue:     params.Queue,
		indexer:   params.Indexer,
		store:     params.Store,
	}, nil
}

// Included reports whether the uri passes the inclusion filter.
func (b *FileEventBridge) Included(uri string) bool {
	rel := util.WorkspaceRelative(b.workspace, uri)
	if !workspacePath(rel) {
		return false
	}

	base := path.Base(rel)
	for _, pattern := range b.include {
		if ok, err := path.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := path.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// HandleChanges enqueues every qualifying changed uri for the next drain.
func (b *FileEventBridge) HandleChanges(uris []string) {
	var qualifying []string
	for _, uri := range uris {
		if b.Included(uri) {
			qualifying = append(qualifying, uri)
		}
	}
	if len(qualifying) == 0 {
		return
	}

	logger.Debug("[Bridge] Enqueueing changed files", "files", len(qualifying))
	b.queue.Enqueue(qualifying...)
}

// HandleRenames removes the old paths from the index and enqueues the new
// ones. The old side is removed regardless of the filter; the file may
// have been renamed out of the indexed set.
func (b *FileEventBridge) HandleRenames(ctx context.Context, renames []RenamedFile) error {
	var removals []string
	var additions []string
	for _, rename := range renames {
		if rename.OldURI != "" {
			removals = append(removals, rename.OldURI)
		}
		if b.Included(rename.NewURI) {
			additions = append(additions, rename.NewURI)
		}
	}

	if len(removals) > 0 {
		if err := b.indexer.RemoveDocuments(ctx, removals); err != nil {
			return fmt.Errorf("failed to remove renamed files: %w", err)
		}
	}
	if len(additions) > 0 {
		b.queue.Enqueue(additions...)
	}
	return nil
}

// HandleDeletes removes deleted files from the index. A uri with no direct
// document match is treated as a directory and expanded to every indexed
// file under its prefix, since the path no longer exists on disk to tell
// the two apart.
func (b *FileEventBridge) HandleDeletes(ctx context.Context, uris []string) error {
	var targets []string
	seen := make(map[string]struct{})

	add := func(rel string) {
		if _, ok := seen[rel]; ok {
			return
		}
		seen[rel] = struct{}{}
		targets = append(targets, rel)
	}

	for _, uri := range uris {
		rel := util.WorkspaceRelative(b.workspace, uri)
		if !workspacePath(rel) {
			continue
		}

		nested, err := b.store.FindDocumentsByPathPrefix(ctx, rel)
		if err != nil {
			return fmt.Errorf("failed to expand deleted directory %s: %w", rel, err)
		}
		if len(nested) == 0 {
			add(rel)
			continue
		}
		for _, doc := range nested {
			add(doc.Metadata.FilePath)
		}
	}

	if len(targets) == 0 {
		return nil
	}

	logger.Debug("[Bridge] Removing deleted files", "files", len(targets))
	return b.indexer.RemoveDocuments(ctx, targets)
}
