package routes

import (
	"errors"
	"net/http"

	"github.com/Quantum-369/arxiv-scribe-view/internal/server/middleware"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/render"

	"github.com/labstack/echo/v4"
)

// GetRenderedPageHandler serves a rendered page as PNG, or redirects to a
// presigned link when the page store hands one out.
func GetRenderedPageHandler(c echo.Context) error {
	type pageParams struct {
		Job   string `param:"job" validate:"required"`
		Index int    `param:"index" validate:"min=0"`
	}

	params := new(pageParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	data, link, err := app.Pages.Open(c.Request().Context(), params.Job, params.Index)
	if err != nil {
		if errors.Is(err, render.ErrPageNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Page not found"})
		}
		logger.Error("[Render] failed to open page", "job", params.Job, "page", params.Index, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if link != "" {
		return c.Redirect(http.StatusTemporaryRedirect, link)
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=3600")
	return c.Blob(http.StatusOK, "image/png", data)
}
