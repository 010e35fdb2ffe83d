package server

import (
	"github.com/trellis-ai/trellis/backend/internal/server/middleware"
	"github.com/trellis-ai/trellis/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Query routes
	apiRoutes.POST("/workspaces/:id/search", routes.SearchWorkspaceHandler, middleware.RequirePermission("workspace.query"))
	apiRoutes.POST("/workspaces/:id/answer", routes.AnswerWorkspaceHandler, middleware.RequirePermission("workspace.query"))
	apiRoutes.POST("/workspaces/:id/answer/stream", routes.AnswerWorkspaceStreamHandler, middleware.RequirePermission("workspace.query"))
	apiRoutes.GET("/workspaces/:id/status", routes.GetWorkspaceStatusHandler, middleware.RequireAnyPermission("workspace.query", "workspace.index"))

	// Index routes
	apiRoutes.POST("/workspaces/:id/events", routes.PostFileEventsHandler, middleware.RequirePermission("workspace.index"))
	apiRoutes.POST("/workspaces/:id/reindex", routes.ReindexWorkspaceHandler, middleware.RequirePermission("workspace.index"))
	apiRoutes.DELETE("/workspaces/:id", routes.DeleteWorkspaceHandler, middleware.RequirePermission("workspace.delete"))

	// Snapshot routes
	apiRoutes.POST("/workspaces/:id/snapshots", routes.CreateSnapshotHandler, middleware.RequirePermission("workspace.snapshot"))
	apiRoutes.POST("/workspaces/:id/snapshots/restore", routes.RestoreSnapshotHandler, middleware.RequirePermission("workspace.snapshot"))
}
