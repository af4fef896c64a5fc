package routes

import (
	"net/http"

	"github.com/Quantum-369/arxiv-scribe-view/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// ChatUsageHandler reports the token usage of the chat backend since start
// or the last reset. With ?reset=true the counters are zeroed after reading.
func ChatUsageHandler(c echo.Context) error {
	type usageRequest struct {
		Reset bool `query:"reset"`
	}

	data := new(usageRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid query"})
	}

	app := c.(*middleware.AppContext).App
	if app.Assistant == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"message": "AI chat is not configured"})
	}

	usage := app.Assistant.Usage()
	if data.Reset {
		app.Assistant.ResetUsage()
	}
	return c.JSON(http.StatusOK, usage)
}
