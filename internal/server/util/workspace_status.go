package util

import "github.com/trellis-ai/trellis/backend/pkg/store"

// WorkspaceState collapses the persisted index status and the rebuild lease
// into the single state string the status endpoint reports.
func WorkspaceState(status store.IndexStatus, rebuilding bool) string {
	switch {
	case rebuilding:
		return "rebuilding"
	case !status.IndexCreated:
		return "empty"
	default:
		return "ready"
	}
}
