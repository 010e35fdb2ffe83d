package routes

import (
	"encoding/json"
	"net/http"

	"github.com/trellis-ai/trellis/backend/internal/queue"
	"github.com/trellis-ai/trellis/backend/internal/server/middleware"
	"github.com/trellis-ai/trellis/backend/pkg/index"
	"github.com/trellis-ai/trellis/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PostFileEventsHandler enqueues a batch of file events for the indexing
// worker
func PostFileEventsHandler(c echo.Context) error {
	type fileEventsRequest struct {
		WorkspaceID string              `param:"id" validate:"required"`
		Changes     []string            `json:"changes"`
		Renames     []index.RenamedFile `json:"renames"`
		Deletes     []string            `json:"deletes"`
	}

	type fileEventsResponse struct {
		Message string `json:"message"`
	}

	data := new(fileEventsRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, fileEventsResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, fileEventsResponse{
			Message: "Invalid request body",
		})
	}
	if len(data.Changes) == 0 && len(data.Renames) == 0 && len(data.Deletes) == 0 {
		return c.JSON(http.StatusBadRequest, fileEventsResponse{
			Message: "No file events provided",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, fileEventsResponse{
			Message: "Unauthorized",
		})
	}

	queueData := queue.QueueFileEventMsg{
		Message:     "File events received",
		WorkspaceID: data.WorkspaceID,
		Changes:     data.Changes,
		Renames:     data.Renames,
		Deletes:     data.Deletes,
	}
	body, err := json.Marshal(queueData)
	if err != nil {
		logger.Error("Failed to marshal queue message", "err", err)
		return c.JSON(http.StatusInternalServerError, fileEventsResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.FileEventQueue, body); err != nil {
		logger.Error("Failed to publish file events", "err", err)
		return c.JSON(http.StatusInternalServerError, fileEventsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, fileEventsResponse{
		Message: "File events queued",
	})
}
