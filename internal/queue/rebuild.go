package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/trellis-ai/trellis/backend/internal/util"
	"github.com/trellis-ai/trellis/backend/pkg/index"
	"github.com/trellis-ai/trellis/backend/pkg/leaselock"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	pgxstore "github.com/trellis-ai/trellis/backend/pkg/store/pgx"
)

// Directories never worth descending into during a rebuild scan. File-level
// filtering happens in the bridge; this list only keeps the walk cheap.
var skipDirNames = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"out":          {},
	"__pycache__":  {},
}

// HandleRebuild rebuilds a workspace index from the checkout on disk. The
// stored index is dropped first, then every source file is indexed in one
// full pass. A Postgres lease keyed by workspace serializes rebuilds across
// workers; a busy lease means another worker is already on it and the
// message is dropped.
func HandleRebuild(
	ctx context.Context,
	sessions *Sessions,
	locks *leaselock.Client,
	msgBody string,
) error {
	var data QueueRebuildMsg
	if err := json.Unmarshal([]byte(msgBody), &data); err != nil {
		return fmt.Errorf("failed to parse rebuild message: %w", err)
	}
	if data.WorkspaceID == "" {
		return errors.New("rebuild message is missing a workspace id")
	}

	key := "workspace:" + data.WorkspaceID
	err := locks.WithLease(ctx, key, leaselock.Options{
		TTL:         5 * time.Minute,
		TokenPrefix: "rebuild-",
	}, func(leaseCtx context.Context) error {
		return rebuildWorkspace(leaseCtx, sessions, data.WorkspaceID)
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Warn("[Queue] Rebuild already running elsewhere", "workspace", data.WorkspaceID)
		return nil
	}
	return err
}

func rebuildWorkspace(ctx context.Context, sessions *Sessions, workspaceID string) error {
	logger.Info("[Queue] Rebuilding workspace index", "workspace", workspaceID)
	start := time.Now()

	// Drop the live session before touching storage so no drain loop works
	// against the index while it is being replaced.
	sessions.Dispose(workspaceID)

	vectorIndex, err := pgxstore.NewVectorDBIndex(sessions.pool, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	if err := vectorIndex.DeleteIndex(ctx); err != nil {
		return fmt.Errorf("failed to drop index: %w", err)
	}
	if err := vectorIndex.CreateIndex(ctx); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	sess, err := sessions.Get(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to open session for %s: %w", workspaceID, err)
	}

	uris, err := workspaceSourceFiles(sess.Bridge, sess.Path)
	if err != nil {
		return fmt.Errorf("failed to scan workspace: %w", err)
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	go logRebuildProgress(progressCtx, sess, workspaceID)

	err = sess.Indexer.ProcessDocuments(ctx, uris, true)
	stopProgress()
	if err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}

	logger.Info("[Queue] Workspace rebuilt",
		"workspace", workspaceID,
		"files", len(uris),
		"duration", time.Since(start).Round(time.Second).String(),
	)
	sessions.logModelMetrics()
	return nil
}

// logRebuildProgress reports the build every half minute until the rebuild
// finishes. A rebuild of a large checkout runs for hours, so the log is the
// only sign of life in between.
func logRebuildProgress(ctx context.Context, sess *Session, workspaceID string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			progress := sess.Indexer.Progress()
			if progress.Percentage == nil {
				continue
			}

			keyvals := []any{
				"workspace", workspaceID,
				"percent", *progress.Percentage,
			}
			if progress.TimeRemaining != nil {
				remaining := time.Duration(*progress.TimeRemaining) * time.Millisecond
				keyvals = append(keyvals, "remaining", remaining.Round(time.Second).String())
			}
			logger.Info("[Queue] Rebuild progress", keyvals...)
		}
	}
}

// workspaceSourceFiles walks the checkout and returns a URI for every file
// the bridge would index.
func workspaceSourceFiles(bridge *index.FileEventBridge, root string) ([]string, error) {
	var uris []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if _, skip := skipDirNames[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		uri := util.PathToURI(path)
		if bridge.Included(uri) {
			uris = append(uris, uri)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return uris, nil
}
