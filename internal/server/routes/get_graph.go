package routes

import (
	"net/http"

	"github.com/graftlab/graft/internal/server/middleware"
	"github.com/graftlab/graft/pkg/common"
	"github.com/graftlab/graft/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetGraphHandler returns the current knowledge graph snapshot.
func GetGraphHandler(c echo.Context) error {
	type graphResponse struct {
		Message string                 `json:"message"`
		Graph   *common.KnowledgeGraph `json:"graph,omitempty"`
	}

	app := c.(*middleware.AppContext).App

	graph, err := app.Graph.GetKnowledgeGraph(c.Request().Context())
	if err != nil {
		logger.Error("Failed to load knowledge graph", "err", err)
		return c.JSON(http.StatusInternalServerError, graphResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, graphResponse{
		Message: "OK",
		Graph:   &graph,
	})
}
