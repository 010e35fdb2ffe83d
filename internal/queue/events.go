package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trellis-ai/trellis/backend/pkg/logger"
)

// HandleFileEvent feeds one batch of editor file events into the workspace
// session. Changes only reach the change queue here; the indexing itself
// happens when the drain loop fires. Renames and deletes remove documents
// immediately.
func HandleFileEvent(ctx context.Context, sessions *Sessions, msgBody string) error {
	var data QueueFileEventMsg
	if err := json.Unmarshal([]byte(msgBody), &data); err != nil {
		return fmt.Errorf("failed to parse file event message: %w", err)
	}
	if data.WorkspaceID == "" {
		return errors.New("file event message is missing a workspace id")
	}

	sess, err := sessions.Get(ctx, data.WorkspaceID)
	if err != nil {
		return fmt.Errorf("failed to open session for %s: %w", data.WorkspaceID, err)
	}

	logger.Debug("[Queue] File events received",
		"workspace", data.WorkspaceID,
		"changes", len(data.Changes),
		"renames", len(data.Renames),
		"deletes", len(data.Deletes),
	)

	if len(data.Changes) > 0 {
		sess.Bridge.HandleChanges(data.Changes)
	}

	if len(data.Renames) > 0 {
		if err := sess.Bridge.HandleRenames(ctx, data.Renames); err != nil {
			return fmt.Errorf("failed to handle renames: %w", err)
		}
	}

	if len(data.Deletes) > 0 {
		if err := sess.Bridge.HandleDeletes(ctx, data.Deletes); err != nil {
			return fmt.Errorf("failed to handle deletes: %w", err)
		}
	}

	return nil
}
