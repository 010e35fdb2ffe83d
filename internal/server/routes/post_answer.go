package routes

import (
	"net/http"

	"github.com/trellis-ai/trellis/backend/internal/server/middleware"
	"github.com/trellis-ai/trellis/backend/pkg/ai"
	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/query"
	pgxstore "github.com/trellis-ai/trellis/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// AnswerWorkspaceHandler handles grounded question answering over a
// workspace index
func AnswerWorkspaceHandler(c echo.Context) error {
	type answerRequest struct {
		WorkspaceID string           `param:"id" validate:"required"`
		Messages    []ai.ChatMessage `json:"messages" validate:"required"`
		Model       string           `json:"model"`
		Think       bool             `json:"think"`
	}

	type answerResponse struct {
		Message   string                    `json:"message"`
		Citations []common.VectorDocument   `json:"citations,omitempty"`
		Trace     *query.QueryTraceSnapshot `json:"trace,omitempty"`
		Metrics   *ai.ModelMetrics          `json:"metrics,omitempty"`
	}

	data := new(answerRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, answerResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, answerResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, answerResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	vectorIndex, err := pgxstore.NewVectorDBIndex(app.DBConn, data.WorkspaceID)
	if err != nil {
		logger.Error("Failed to open workspace index", "err", err)
		return c.JSON(http.StatusInternalServerError, answerResponse{
			Message: "Internal server error",
		})
	}

	trace := query.NewQueryTrace()
	opts := []query.Option{query.WithTracer(trace)}
	if data.Model != "" {
		opts = append(opts, query.WithModel(data.Model))
	}
	if data.Think {
		opts = append(opts, query.WithThinking("medium"))
	}

	queryClient, err := query.NewClient(app.AIClient, vectorIndex, opts...)
	if err != nil {
		logger.Error("Failed to create query client", "err", err)
		return c.JSON(http.StatusInternalServerError, answerResponse{
			Message: "Internal server error",
		})
	}

	result, err := queryClient.Answer(ctx, data.Messages)
	if err != nil {
		logger.Error("[Query] answer error", "err", err)
		return c.JSON(http.StatusInternalServerError, answerResponse{
			Message: "Internal server error",
		})
	}

	metrics := app.AIClient.GetMetrics()
	app.AIClient.ResetMetrics()
	snapshot := trace.Snapshot()
	return c.JSON(http.StatusOK, answerResponse{
		Message:   result.Answer,
		Citations: result.Citations,
		Trace:     &snapshot,
		Metrics:   &metrics,
	})
}
