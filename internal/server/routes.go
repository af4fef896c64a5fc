package server

import (
	"github.com/Quantum-369/arxiv-scribe-view/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Text extraction
	apiRoutes.POST("/extract", routes.ExtractHandler)

	// Progressive rendering
	apiRoutes.POST("/render", routes.RenderHandler)
	apiRoutes.GET("/render/:job/pages/:index", routes.GetRenderedPageHandler)
	apiRoutes.DELETE("/render/:job", routes.DeleteRenderHandler)

	// Paper chat
	apiRoutes.POST("/chat", routes.ChatHandler)
	apiRoutes.GET("/chat/usage", routes.ChatUsageHandler)
}
