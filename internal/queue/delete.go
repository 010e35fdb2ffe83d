package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/trellis-ai/trellis/backend/internal/storage"
	"github.com/trellis-ai/trellis/backend/pkg/leaselock"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	pgxstore "github.com/trellis-ai/trellis/backend/pkg/store/pgx"
)

// HandleDelete removes a workspace index entirely: the live session, every
// stored document with the graph sidecar, and any snapshot archives. The
// workspace lease is taken with waiting, so an in-flight rebuild finishes
// or times out before its index is torn down under it.
func HandleDelete(
	ctx context.Context,
	sessions *Sessions,
	locks *leaselock.Client,
	s3Client *awss3.Client,
	msgBody string,
) error {
	var data QueueDeleteMsg
	if err := json.Unmarshal([]byte(msgBody), &data); err != nil {
		return fmt.Errorf("failed to parse delete message: %w", err)
	}
	if data.WorkspaceID == "" {
		return errors.New("delete message is missing a workspace id")
	}

	key := "workspace:" + data.WorkspaceID
	err := locks.WithLease(ctx, key, leaselock.Options{
		TTL:         10 * time.Minute,
		Wait:        true,
		TokenPrefix: fmt.Sprintf("delete/%s/", data.WorkspaceID),
	}, func(leaseCtx context.Context) error {
		sessions.Dispose(data.WorkspaceID)

		vectorIndex, err := pgxstore.NewVectorDBIndex(sessions.pool, data.WorkspaceID)
		if err != nil {
			return fmt.Errorf("failed to create vector index: %w", err)
		}
		return vectorIndex.DeleteIndex(leaseCtx)
	})
	if err != nil {
		return err
	}

	if s3Client != nil {
		prefix := storage.SnapshotPrefix(data.WorkspaceID)
		if err := storage.DeleteFolder(ctx, s3Client, prefix); err != nil {
			logger.Warn("[Queue] Failed to delete snapshot archives",
				"workspace", data.WorkspaceID, "err", err)
		}
	}

	logger.Info("[Queue] Workspace index deleted", "workspace", data.WorkspaceID)
	return nil
}
