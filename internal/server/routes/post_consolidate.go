package routes

import (
	"encoding/json"
	"net/http"

	"github.com/graftlab/graft/internal/queue"
	"github.com/graftlab/graft/internal/server/middleware"
	"github.com/graftlab/graft/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ConsolidateGraphHandler enqueues a consolidation pass.
func ConsolidateGraphHandler(c echo.Context) error {
	type consolidateBody struct {
		GraphID string `json:"graph_id"`
	}

	type consolidateResponse struct {
		Message string `json:"message"`
		GraphID string `json:"graph_id,omitempty"`
	}

	data := new(consolidateBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, consolidateResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	graphID := data.GraphID
	if graphID == "" {
		graphID = app.DefaultGraphID
	}

	body, err := json.Marshal(queue.ConsolidateMessage{GraphID: graphID})
	if err != nil {
		logger.Error("Failed to marshal consolidate message", "err", err)
		return c.JSON(http.StatusInternalServerError, consolidateResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, queue.ConsolidateQueue, body); err != nil {
		logger.Error("Failed to publish consolidate message", "err", err)
		return c.JSON(http.StatusInternalServerError, consolidateResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, consolidateResponse{
		Message: "Consolidation queued",
		GraphID: graphID,
	})
}
