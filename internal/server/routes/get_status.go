package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/trellis-ai/trellis/backend/internal/server/middleware"
	"github.com/trellis-ai/trellis/backend/internal/server/util"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	pgxstore "github.com/trellis-ai/trellis/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// GetWorkspaceStatusHandler reports the index state of a workspace
func GetWorkspaceStatusHandler(c echo.Context) error {
	type statusRequest struct {
		WorkspaceID string `param:"id" validate:"required"`
	}

	type statusResponse struct {
		Message     string     `json:"message,omitempty"`
		State       string     `json:"state,omitempty"`
		Documents   int64      `json:"documents"`
		Files       int64      `json:"files"`
		LastSavedAt *time.Time `json:"last_saved_at,omitempty"`
	}

	data := new(statusRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, statusResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, statusResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, statusResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	vectorIndex, err := pgxstore.NewVectorDBIndex(app.DBConn, data.WorkspaceID)
	if err != nil {
		logger.Error("Failed to open workspace index", "err", err)
		return c.JSON(http.StatusInternalServerError, statusResponse{
			Message: "Internal server error",
		})
	}

	status, err := vectorIndex.GetStatus(ctx)
	if err != nil {
		logger.Error("Failed to load workspace status", "err", err)
		return c.JSON(http.StatusInternalServerError, statusResponse{
			Message: "Internal server error",
		})
	}

	rebuilding, err := app.Locks.IsHeld(ctx, "workspace:"+data.WorkspaceID)
	if err != nil {
		logger.Error("Failed to check workspace lock", "err", err)
		return c.JSON(http.StatusInternalServerError, statusResponse{
			Message: "Internal server error",
		})
	}

	resp := statusResponse{
		State:     util.WorkspaceState(status, rebuilding),
		Documents: status.Documents,
		Files:     status.Files,
	}
	if !status.LastSavedAt.IsZero() {
		resp.LastSavedAt = &status.LastSavedAt
	}

	// Clients poll the status before their first query. Warm the model
	// now so that query does not pay the load time.
	aiClient := app.AIClient
	go func() {
		_ = aiClient.LoadModel(context.Background())
	}()

	return c.JSON(http.StatusOK, resp)
}
