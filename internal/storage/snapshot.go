package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/trellis-ai/trellis/backend/internal/util"
	"github.com/trellis-ai/trellis/backend/pkg/codegraph"
	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/store"
)

// ErrNoSnapshots is returned when a workspace has no archived snapshots.
var ErrNoSnapshots = errors.New("no snapshots stored for workspace")

// SnapshotArchive is the portable form of one workspace index: the full
// document set and the graph sidecar, exactly as persisted. Node references
// inside are workspace-relative, so the archive restores cleanly on another
// machine.
type SnapshotArchive struct {
	WorkspaceID string                  `json:"workspace_id"`
	CreatedAt   time.Time               `json:"created_at"`
	GraphState  json.RawMessage         `json:"graph_state"`
	Documents   []common.VectorDocument `json:"documents"`
}

// SnapshotPrefix is the S3 key prefix holding a workspace's archives.
func SnapshotPrefix(workspaceID string) string {
	return fmt.Sprintf("snapshots/%s/", workspaceID)
}

func newSnapshotKey(workspaceID string) (string, error) {
	suffix, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	stamp := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("%s%s-%s.json.gz", SnapshotPrefix(workspaceID), stamp, suffix), nil
}

// ExportSnapshot archives the persisted index of a workspace to S3 and
// returns the object key. A workspace without an index cannot be exported.
func ExportSnapshot(
	ctx context.Context,
	client *s3.Client,
	vectorIndex store.VectorIndex,
	workspaceID string,
) (string, error) {
	state, err := vectorIndex.GetGraphState(ctx)
	if errors.Is(err, store.ErrNoGraphState) {
		return "", fmt.Errorf("workspace %s has no index to snapshot: %w", workspaceID, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load graph state: %w", err)
	}

	documents, err := vectorIndex.GetDocuments(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load documents: %w", err)
	}

	archive := SnapshotArchive{
		WorkspaceID: workspaceID,
		CreatedAt:   time.Now().UTC(),
		GraphState:  state,
		Documents:   documents,
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(archive); err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to compress snapshot: %w", err)
	}

	key, err := newSnapshotKey(workspaceID)
	if err != nil {
		return "", fmt.Errorf("failed to generate snapshot key: %w", err)
	}
	if err := PutFile(ctx, client, key, "application/gzip", &buf); err != nil {
		return "", err
	}

	logger.Info("[Storage] Snapshot exported",
		"workspace", workspaceID, "key", key, "documents", len(documents))

	pruneSnapshots(ctx, client, workspaceID, int(util.GetEnvNumeric("SNAPSHOT_KEEP", 10)))
	return key, nil
}

// pruneSnapshots deletes archives beyond the retention count, oldest first.
// Failures are logged and skipped.
func pruneSnapshots(ctx context.Context, client *s3.Client, workspaceID string, keep int) {
	if keep <= 0 {
		return
	}

	keys, err := ListFilesWithPrefix(ctx, client, SnapshotPrefix(workspaceID))
	if err != nil {
		logger.Warn("[Storage] Failed to list snapshots for pruning", "workspace", workspaceID, "err", err)
		return
	}
	if len(keys) <= keep {
		return
	}

	sort.Strings(keys)
	deleted := 0
	for _, key := range keys[:len(keys)-keep] {
		if err := DeleteFile(ctx, client, key); err != nil {
			logger.Warn("[Storage] Failed to prune snapshot", "key", key, "err", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		logger.Info("[Storage] Pruned old snapshots", "workspace", workspaceID, "deleted", deleted)
	}
}

// LatestSnapshotKey returns the newest archive key for the workspace. Keys
// embed a UTC timestamp, so lexicographic order is chronological.
func LatestSnapshotKey(ctx context.Context, client *s3.Client, workspaceID string) (string, error) {
	keys, err := ListFilesWithPrefix(ctx, client, SnapshotPrefix(workspaceID))
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", ErrNoSnapshots
	}
	sort.Strings(keys)
	return keys[len(keys)-1], nil
}

// ImportSnapshot replaces the workspace index with an archived one. The
// archive's graph state must parse before anything is touched; then the
// current index is dropped and the archived documents and sidecar are
// written back in one transaction.
func ImportSnapshot(
	ctx context.Context,
	client *s3.Client,
	vectorIndex store.VectorIndex,
	key string,
) (*SnapshotArchive, error) {
	raw, err := GetFile(ctx, client, key)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot %s: %w", key, err)
	}
	defer gz.Close()

	var archive SnapshotArchive
	if err := json.NewDecoder(gz).Decode(&archive); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", key, err)
	}

	graph, err := codegraph.FromSerialized(archive.GraphState)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s holds corrupt graph state: %w", key, err)
	}

	if err := vectorIndex.DeleteIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to drop current index: %w", err)
	}
	if err := vectorIndex.Save(
		ctx,
		archive.Documents,
		graph.GetImportEdges(),
		graph.GetExportEdges(),
		graph.GetSymbolTable(),
		false,
	); err != nil {
		return nil, fmt.Errorf("failed to restore snapshot: %w", err)
	}

	logger.Info("[Storage] Snapshot restored",
		"workspace", archive.WorkspaceID, "key", key, "documents", len(archive.Documents))
	return &archive, nil
}
