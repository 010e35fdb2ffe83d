package routes

import (
	"encoding/json"
	"net/http"

	"github.com/trellis-ai/trellis/backend/internal/queue"
	"github.com/trellis-ai/trellis/backend/internal/server/middleware"
	"github.com/trellis-ai/trellis/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DeleteWorkspaceHandler enqueues removal of a workspace index and its
// snapshots
func DeleteWorkspaceHandler(c echo.Context) error {
	type deleteWorkspaceRequest struct {
		WorkspaceID string `param:"id" validate:"required"`
	}

	type deleteWorkspaceResponse struct {
		Message string `json:"message"`
	}

	data := new(deleteWorkspaceRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, deleteWorkspaceResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, deleteWorkspaceResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, deleteWorkspaceResponse{
			Message: "Unauthorized",
		})
	}

	queueData := queue.QueueDeleteMsg{
		Message:     "Deletion requested",
		WorkspaceID: data.WorkspaceID,
	}
	body, err := json.Marshal(queueData)
	if err != nil {
		logger.Error("Failed to marshal queue message", "err", err)
		return c.JSON(http.StatusInternalServerError, deleteWorkspaceResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.DeleteQueue, body); err != nil {
		logger.Error("Failed to publish deletion request", "err", err)
		return c.JSON(http.StatusInternalServerError, deleteWorkspaceResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, deleteWorkspaceResponse{
		Message: "Workspace deletion started",
	})
}
