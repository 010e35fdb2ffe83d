package routes

import (
	"encoding/json"
	"net/http"

	"github.com/trellis-ai/trellis/backend/internal/queue"
	"github.com/trellis-ai/trellis/backend/internal/server/middleware"
	"github.com/trellis-ai/trellis/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ReindexWorkspaceHandler enqueues a full rebuild of a workspace index
func ReindexWorkspaceHandler(c echo.Context) error {
	type reindexRequest struct {
		WorkspaceID string `param:"id" validate:"required"`
	}

	type reindexResponse struct {
		Message string `json:"message"`
	}

	data := new(reindexRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, reindexResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, reindexResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, reindexResponse{
			Message: "Unauthorized",
		})
	}

	queueData := queue.QueueRebuildMsg{
		Message:     "Rebuild requested",
		WorkspaceID: data.WorkspaceID,
	}
	body, err := json.Marshal(queueData)
	if err != nil {
		logger.Error("Failed to marshal queue message", "err", err)
		return c.JSON(http.StatusInternalServerError, reindexResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.RebuildQueue, body); err != nil {
		logger.Error("Failed to publish rebuild request", "err", err)
		return c.JSON(http.StatusInternalServerError, reindexResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, reindexResponse{
		Message: "Workspace reindex started",
	})
}
