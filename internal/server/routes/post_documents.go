package routes

import (
	"encoding/json"
	"net/http"

	"github.com/graftlab/graft/internal/queue"
	"github.com/graftlab/graft/internal/server/middleware"
	"github.com/graftlab/graft/internal/storage"
	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/logger"

	"github.com/labstack/echo/v4"
)

// UploadDocumentsHandler stores uploaded files in the document bucket
// and enqueues them for ingestion.
func UploadDocumentsHandler(c echo.Context) error {
	type uploadResponse struct {
		Message string   `json:"message"`
		RunID   string   `json:"run_id,omitempty"`
		GraphID string   `json:"graph_id,omitempty"`
		Keys    []string `json:"keys,omitempty"`
	}

	app := c.(*middleware.AppContext).App
	if app.S3 == nil {
		return c.JSON(http.StatusServiceUnavailable, uploadResponse{
			Message: "No document bucket configured",
		})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "Invalid request body",
		})
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "No files provided",
		})
	}

	graphID := c.FormValue("graph_id")
	if graphID == "" {
		graphID = app.DefaultGraphID
	}

	runID, err := util.NewRunID()
	if err != nil {
		logger.Error("Failed to generate run id", "err", err)
		return c.JSON(http.StatusInternalServerError, uploadResponse{
			Message: "Internal server error",
		})
	}

	ctx := c.Request().Context()
	msg := queue.IngestMessage{RunID: runID, GraphID: graphID}
	var keys []string

	for _, upload := range uploads {
		src, err := upload.Open()
		if err != nil {
			logger.Error("Failed to open uploaded file", "file", upload.Filename, "err", err)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}

		key, err := storage.PutDocument(ctx, app.S3, graphID, upload.Filename, src)
		src.Close()
		if err != nil {
			logger.Error("Failed to store uploaded file", "file", upload.Filename, "err", err)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}

		keys = append(keys, key)
		msg.Documents = append(msg.Documents, queue.IngestDocument{
			Path:   key,
			Source: queue.SourceS3,
		})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to marshal ingest message", "err", err)
		return c.JSON(http.StatusInternalServerError, uploadResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, queue.IngestQueue, body); err != nil {
		logger.Error("Failed to publish ingest message", "err", err)
		return c.JSON(http.StatusInternalServerError, uploadResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, uploadResponse{
		Message: "Documents uploaded and queued",
		RunID:   runID,
		GraphID: graphID,
		Keys:    keys,
	})
}
