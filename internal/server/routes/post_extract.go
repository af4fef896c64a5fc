package routes

import (
	"net/http"

	"github.com/Quantum-369/arxiv-scribe-view/internal/server/middleware"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/extract"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/paper"

	"github.com/labstack/echo/v4"
)

// ExtractHandler fetches a PDF and returns its text. A failed extraction is
// still a 200 response; the reason is in the error field.
func ExtractHandler(c echo.Context) error {
	type extractRequest struct {
		URL string `json:"url" validate:"required"`
	}

	type extractResponse struct {
		URL string `json:"url"`
		extract.Result
	}

	data := new(extractRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	pdfURL, err := paper.PDFURL(data.URL)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	res := app.Engine.ExtractURL(ctx, pdfURL)
	if res.Cancelled() {
		logger.Debug("[Extract] client went away", "url", pdfURL)
		return nil
	}

	return c.JSON(http.StatusOK, extractResponse{URL: pdfURL, Result: res})
}
