package server

import (
	"github.com/graftlab/graft/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Ingestion routes
	apiRoutes.POST("/ingest", routes.IngestDocumentsHandler)
	apiRoutes.POST("/documents", routes.UploadDocumentsHandler)
	apiRoutes.GET("/documents", routes.GetDocumentsHandler)

	// Graph routes
	apiRoutes.GET("/graph", routes.GetGraphHandler)
	apiRoutes.POST("/graph/consolidate", routes.ConsolidateGraphHandler)
	apiRoutes.GET("/graph/report", routes.GetReportHandler)
}
