package routes

import (
	"net/http"

	"github.com/Quantum-369/arxiv-scribe-view/internal/server/middleware"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"

	"github.com/labstack/echo/v4"
)

func DeleteRenderHandler(c echo.Context) error {
	type deleteRenderParams struct {
		Job string `param:"job" validate:"required"`
	}

	params := new(deleteRenderParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	if err := app.Pages.DeleteJob(c.Request().Context(), params.Job); err != nil {
		logger.Error("[Render] failed to delete pages", "job", params.Job, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	return c.NoContent(http.StatusNoContent)
}
