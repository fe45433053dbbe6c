package routes

import (
	"encoding/json"
	"net/http"

	"github.com/graftlab/graft/internal/queue"
	"github.com/graftlab/graft/internal/server/middleware"
	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/logger"

	"github.com/labstack/echo/v4"
)

// IngestDocumentsHandler enqueues documents for analysis and fusion.
func IngestDocumentsHandler(c echo.Context) error {
	type ingestDocument struct {
		Path           string   `json:"path" validate:"required"`
		Source         string   `json:"source"`
		Content        string   `json:"content"`
		CustomEntities []string `json:"custom_entities"`
	}

	type ingestBody struct {
		GraphID   string           `json:"graph_id"`
		Documents []ingestDocument `json:"documents" validate:"required,min=1,dive"`
	}

	type ingestResponse struct {
		Message   string `json:"message"`
		RunID     string `json:"run_id,omitempty"`
		GraphID   string `json:"graph_id,omitempty"`
		Documents int    `json:"documents,omitempty"`
	}

	data := new(ingestBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	graphID := data.GraphID
	if graphID == "" {
		graphID = app.DefaultGraphID
	}

	runID, err := util.NewRunID()
	if err != nil {
		logger.Error("Failed to generate run id", "err", err)
		return c.JSON(http.StatusInternalServerError, ingestResponse{
			Message: "Internal server error",
		})
	}

	msg := queue.IngestMessage{RunID: runID, GraphID: graphID}
	for _, d := range data.Documents {
		source := queue.DocumentSource(d.Source)
		if source == "" {
			source = queue.SourceIO
		}
		if source == queue.SourceInline && d.Content == "" {
			return c.JSON(http.StatusBadRequest, ingestResponse{
				Message: "Inline documents require content",
			})
		}
		msg.Documents = append(msg.Documents, queue.IngestDocument{
			Path:           d.Path,
			Source:         source,
			Content:        d.Content,
			CustomEntities: d.CustomEntities,
		})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to marshal ingest message", "err", err)
		return c.JSON(http.StatusInternalServerError, ingestResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, queue.IngestQueue, body); err != nil {
		logger.Error("Failed to publish ingest message", "err", err)
		return c.JSON(http.StatusInternalServerError, ingestResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, ingestResponse{
		Message:   "Ingest queued",
		RunID:     runID,
		GraphID:   graphID,
		Documents: len(msg.Documents),
	})
}
