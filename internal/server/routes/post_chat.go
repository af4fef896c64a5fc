package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/Quantum-369/arxiv-scribe-view/internal/server/middleware"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/ai"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/extract"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/paper"

	"github.com/labstack/echo/v4"
)

// ChatHandler answers the last user message, grounded on the paper. When the
// paper arrives without text and without a recorded failure its PDF is
// extracted first; concurrent requests for the same PDF share one job.
func ChatHandler(c echo.Context) error {
	type chatRequest struct {
		Paper    *paper.Paper     `json:"paper"`
		Messages []ai.ChatMessage `json:"messages" validate:"required,min=1,dive"`
		Model    string           `json:"model" validate:"omitempty,max=128"`
	}

	type chatResponse struct {
		Message             string `json:"message"`
		FullTextAvailable   bool   `json:"full_text_available"`
		TextExtractionError string `json:"text_extraction_error,omitempty"`
	}

	data := new(chatRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	if app.Assistant == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"message": "AI chat is not configured"})
	}

	ctx := c.Request().Context()
	p := data.Paper
	if p != nil && !p.HasFullText() && p.TextExtractionError == "" {
		ensureFullText(ctx, app, p)
	}

	var opts []ai.GenerateOption
	if data.Model != "" {
		opts = append(opts, ai.WithModel(data.Model))
	}

	reply, err := app.Assistant.Reply(ctx, p, data.Messages, opts...)
	if err != nil {
		if errors.Is(err, paper.ErrNoQuestion) {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
		}
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("[Chat] failed to generate reply", "err", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"message": "Failed to generate a reply"})
	}

	usage := app.Assistant.Usage()
	logger.Debug("[Chat] reply generated",
		"model", data.Model,
		"total_tokens", usage.TotalTokens,
		"tokens_per_second", usage.TokenPerSecond,
	)

	res := chatResponse{Message: reply}
	if p != nil {
		res.FullTextAvailable = p.HasFullText()
		res.TextExtractionError = p.TextExtractionError
	}
	return c.JSON(http.StatusOK, res)
}

// ensureFullText extracts the paper's PDF. The job runs detached from the
// request context and is bounded by the engine's job timeout.
func ensureFullText(ctx context.Context, app *middleware.App, p *paper.Paper) {
	source := p.PDFURL
	if source == "" {
		source = p.ID
	}
	pdfURL, err := paper.PDFURL(source)
	if err != nil {
		p.TextExtractionError = err.Error()
		return
	}

	ch := app.Extractions.DoChan(pdfURL, func() (any, error) {
		return app.Engine.ExtractURL(context.WithoutCancel(ctx), pdfURL), nil
	})

	select {
	case r := <-ch:
		p.ApplyExtraction(r.Val.(extract.Result))
	case <-ctx.Done():
	}
}
