package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/trellis-ai/trellis/backend/internal/server/middleware"
	"github.com/trellis-ai/trellis/backend/internal/storage"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/store"
	pgxstore "github.com/trellis-ai/trellis/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// CreateSnapshotHandler archives the current workspace index to S3
func CreateSnapshotHandler(c echo.Context) error {
	type createSnapshotRequest struct {
		WorkspaceID string `param:"id" validate:"required"`
	}

	type createSnapshotResponse struct {
		Message     string `json:"message"`
		Key         string `json:"key,omitempty"`
		DownloadURL string `json:"download_url,omitempty"`
	}

	data := new(createSnapshotRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createSnapshotResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createSnapshotResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, createSnapshotResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	vectorIndex, err := pgxstore.NewVectorDBIndex(app.DBConn, data.WorkspaceID)
	if err != nil {
		logger.Error("Failed to open workspace index", "err", err)
		return c.JSON(http.StatusInternalServerError, createSnapshotResponse{
			Message: "Internal server error",
		})
	}

	key, err := storage.ExportSnapshot(ctx, app.S3, vectorIndex, data.WorkspaceID)
	if errors.Is(err, store.ErrNoGraphState) {
		return c.JSON(http.StatusNotFound, createSnapshotResponse{
			Message: "Workspace has no index to snapshot",
		})
	}
	if err != nil {
		logger.Error("Failed to export snapshot", "err", err)
		return c.JSON(http.StatusInternalServerError, createSnapshotResponse{
			Message: "Internal server error",
		})
	}

	resp := createSnapshotResponse{
		Message: "Snapshot created",
		Key:     key,
	}
	url, err := storage.GenerateDownloadLink(ctx, app.S3, key)
	if err != nil {
		logger.Error("Failed to create download link", "err", err)
	} else {
		resp.DownloadURL = url
	}

	return c.JSON(http.StatusOK, resp)
}

// RestoreSnapshotHandler replaces the workspace index with an archived
// snapshot. Without an explicit key the most recent snapshot is used.
func RestoreSnapshotHandler(c echo.Context) error {
	type restoreSnapshotRequest struct {
		WorkspaceID string `param:"id" validate:"required"`
		Key         string `json:"key"`
	}

	type restoreSnapshotResponse struct {
		Message   string `json:"message"`
		Key       string `json:"key,omitempty"`
		Documents int    `json:"documents,omitempty"`
	}

	data := new(restoreSnapshotRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, restoreSnapshotResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, restoreSnapshotResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, restoreSnapshotResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	key := data.Key
	if key == "" {
		latest, err := storage.LatestSnapshotKey(ctx, app.S3, data.WorkspaceID)
		if errors.Is(err, storage.ErrNoSnapshots) {
			return c.JSON(http.StatusNotFound, restoreSnapshotResponse{
				Message: "No snapshots found",
			})
		}
		if err != nil {
			logger.Error("Failed to list snapshots", "err", err)
			return c.JSON(http.StatusInternalServerError, restoreSnapshotResponse{
				Message: "Internal server error",
			})
		}
		key = latest
	} else if !strings.HasPrefix(key, storage.SnapshotPrefix(data.WorkspaceID)) {
		// A key from another workspace must not be restored here.
		return c.JSON(http.StatusBadRequest, restoreSnapshotResponse{
			Message: "Invalid snapshot key",
		})
	}

	vectorIndex, err := pgxstore.NewVectorDBIndex(app.DBConn, data.WorkspaceID)
	if err != nil {
		logger.Error("Failed to open workspace index", "err", err)
		return c.JSON(http.StatusInternalServerError, restoreSnapshotResponse{
			Message: "Internal server error",
		})
	}

	archive, err := storage.ImportSnapshot(ctx, app.S3, vectorIndex, key)
	if err != nil {
		logger.Error("Failed to import snapshot", "err", err)
		return c.JSON(http.StatusInternalServerError, restoreSnapshotResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, restoreSnapshotResponse{
		Message:   "Snapshot restored",
		Key:       key,
		Documents: len(archive.Documents),
	})
}
