package routes

import (
	"net/http"

	"github.com/graftlab/graft/internal/server/middleware"
	"github.com/graftlab/graft/pkg/logger"
	"github.com/graftlab/graft/pkg/report"

	"github.com/labstack/echo/v4"
)

// GetReportHandler builds a report over the current graph snapshot.
// Pass format=markdown for a rendered report, the default is JSON.
func GetReportHandler(c echo.Context) error {
	type reportResponse struct {
		Message string `json:"message"`
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	graphID := c.QueryParam("graph_id")
	if graphID == "" {
		graphID = app.DefaultGraphID
	}

	graph, err := app.Graph.GetKnowledgeGraph(ctx)
	if err != nil {
		logger.Error("Failed to load knowledge graph", "err", err)
		return c.JSON(http.StatusInternalServerError, reportResponse{
			Message: "Internal server error",
		})
	}

	summaries, err := app.Docs.ListSummaries(ctx, graphID)
	if err != nil {
		logger.Error("Failed to load document summaries", "graph", graphID, "err", err)
		return c.JSON(http.StatusInternalServerError, reportResponse{
			Message: "Internal server error",
		})
	}

	rep := report.Build(&graph, summaries)

	if c.QueryParam("format") == "markdown" {
		md, err := rep.Markdown()
		if err != nil {
			logger.Error("Failed to render report", "graph", graphID, "err", err)
			return c.JSON(http.StatusInternalServerError, reportResponse{
				Message: "Internal server error",
			})
		}
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", md)
	}

	return c.JSON(http.StatusOK, rep)
}
