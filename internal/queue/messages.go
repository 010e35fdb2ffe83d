package queue

import (
	"github.com/trellis-ai/trellis/backend/pkg/index"
)

// QueueFileEventMsg is one batch of file-system notifications for a
// workspace. Changes and Deletes carry file URIs; Renames carry URI pairs.
// Delete URIs may point at directories, the bridge expands them.
type QueueFileEventMsg struct {
	Message     string              `json:"message"`
	WorkspaceID string              `json:"workspace_id"`
	Changes     []string            `json:"changes,omitempty"`
	Renames     []index.RenamedFile `json:"renames,omitempty"`
	Deletes     []string            `json:"deletes,omitempty"`
}

// QueueRebuildMsg requests a full rebuild of a workspace index from disk.
type QueueRebuildMsg struct {
	Message     string `json:"message"`
	WorkspaceID string `json:"workspace_id"`
}

// QueueDeleteMsg requests removal of a workspace index, documents and graph
// state included.
type QueueDeleteMsg struct {
	Message     string `json:"message"`
	WorkspaceID string `json:"workspace_id"`
}
