package routes

import (
	"net/http"

	"github.com/trellis-ai/trellis/backend/internal/server/middleware"
	"github.com/trellis-ai/trellis/backend/internal/server/util"
	"github.com/trellis-ai/trellis/backend/pkg/ai"
	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/query"
	pgxstore "github.com/trellis-ai/trellis/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// AnswerWorkspaceStreamHandler streams a grounded answer over SSE. Content
// arrives as it is generated; citation tokens are stripped from the text
// and sent as separate events with the cited fragment resolved from the
// index.
func AnswerWorkspaceStreamHandler(c echo.Context) error {
	type answerRequest struct {
		WorkspaceID string           `param:"id" validate:"required"`
		Messages    []ai.ChatMessage `json:"messages" validate:"required"`
		Model       string           `json:"model"`
		Think       bool             `json:"think"`
	}

	type errorResponse struct {
		Message string `json:"message"`
	}

	type citationPayload struct {
		NodeID   string                 `json:"node_id"`
		Document *common.VectorDocument `json:"document,omitempty"`
	}

	data := new(answerRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, errorResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	vectorIndex, err := pgxstore.NewVectorDBIndex(app.DBConn, data.WorkspaceID)
	if err != nil {
		logger.Error("Failed to open workspace index", "err", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{
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
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Message: "Internal server error",
		})
	}

	events, err := queryClient.AnswerStream(ctx, data.Messages)
	if err != nil {
		logger.Error("[Query] answer stream error", "err", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Message: "Internal server error",
		})
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	parser := &util.StreamCitationParser{}

	onContent := func(content string) error {
		return util.WriteSSEEvent(c, "content", map[string]string{"content": content})
	}

	seen := make(map[string]bool)
	onCitation := func(nodeID string) error {
		if seen[nodeID] {
			return nil
		}
		seen[nodeID] = true
		query.RecordUsedNodeIDs(trace, nodeID)

		payload := citationPayload{NodeID: nodeID}
		docs, err := vectorIndex.FindDocumentsByID(ctx, []string{nodeID})
		if err != nil {
			logger.Error("Failed to resolve citation", "err", err)
		} else if len(docs) > 0 {
			payload.Document = &docs[0]
		}
		return util.WriteSSEEvent(c, "citation", payload)
	}

	for event := range events {
		if event.Type == "step" {
			if event.Step == "thinking" && event.Reasoning != "" {
				if err := util.WriteSSEEvent(c, "reasoning", map[string]string{"reasoning": event.Reasoning}); err != nil {
					return err
				}
				continue
			}
			if err := util.WriteSSEEvent(c, "step", map[string]string{"step": event.Step}); err != nil {
				return err
			}
			continue
		}

		if err := parser.Consume(event.Content, onContent, onCitation); err != nil {
			return err
		}
	}

	if err := parser.Flush(onContent); err != nil {
		return err
	}

	metrics := app.AIClient.GetMetrics()
	app.AIClient.ResetMetrics()
	return util.WriteSSEEvent(c, "done", map[string]any{
		"metrics": metrics,
		"trace":   trace.Snapshot(),
	})
}
