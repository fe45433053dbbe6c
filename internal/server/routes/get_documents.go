package routes

import (
	"net/http"
	"time"

	"github.com/graftlab/graft/internal/server/middleware"
	"github.com/graftlab/graft/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetDocumentsHandler lists the tracked documents of a graph.
func GetDocumentsHandler(c echo.Context) error {
	type documentEntry struct {
		ID          string    `json:"id"`
		Path        string    `json:"path"`
		ContentHash string    `json:"content_hash"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	type documentsResponse struct {
		Message   string          `json:"message"`
		GraphID   string          `json:"graph_id,omitempty"`
		Documents []documentEntry `json:"documents"`
	}

	app := c.(*middleware.AppContext).App
	graphID := c.QueryParam("graph_id")
	if graphID == "" {
		graphID = app.DefaultGraphID
	}

	records, err := app.Docs.ListDocuments(c.Request().Context(), graphID)
	if err != nil {
		logger.Error("Failed to list documents", "graph", graphID, "err", err)
		return c.JSON(http.StatusInternalServerError, documentsResponse{
			Message: "Internal server error",
		})
	}

	documents := make([]documentEntry, 0, len(records))
	for _, r := range records {
		documents = append(documents, documentEntry{
			ID:          r.ID,
			Path:        r.Path,
			ContentHash: r.ContentHash,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		})
	}

	return c.JSON(http.StatusOK, documentsResponse{
		Message:   "OK",
		GraphID:   graphID,
		Documents: documents,
	})
}
