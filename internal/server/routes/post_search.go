package routes

import (
	"net/http"

	"github.com/trellis-ai/trellis/backend/internal/server/middleware"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/query"
	pgxstore "github.com/trellis-ai/trellis/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// SearchWorkspaceHandler handles semantic search over a workspace index
func SearchWorkspaceHandler(c echo.Context) error {
	type searchRequest struct {
		WorkspaceID string `param:"id" validate:"required"`
		Query       string `json:"query" validate:"required"`
		Limit       int    `json:"limit"`
	}

	type searchResponse struct {
		Message string            `json:"message,omitempty"`
		Results []query.SearchHit `json:"results"`
	}

	data := new(searchRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, searchResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	vectorIndex, err := pgxstore.NewVectorDBIndex(app.DBConn, data.WorkspaceID)
	if err != nil {
		logger.Error("Failed to open workspace index", "err", err)
		return c.JSON(http.StatusInternalServerError, searchResponse{
			Message: "Internal server error",
		})
	}

	queryClient, err := query.NewClient(app.AIClient, vectorIndex)
	if err != nil {
		logger.Error("Failed to create query client", "err", err)
		return c.JSON(http.StatusInternalServerError, searchResponse{
			Message: "Internal server error",
		})
	}

	hits, err := queryClient.Search(ctx, data.Query, data.Limit)
	if err != nil {
		logger.Error("[Query] search error", "err", err)
		return c.JSON(http.StatusInternalServerError, searchResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, searchResponse{
		Results: hits,
	})
}
