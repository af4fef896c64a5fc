package middleware

import (
	"context"
	"image"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/extract"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/paper"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/render"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"
)

// PageStore keeps rendered pages and serves them back, either as PNG bytes
// or as a link the client is redirected to.
type PageStore interface {
	Store(ctx context.Context, jobID string, index int, img *image.RGBA) error
	Open(ctx context.Context, jobID string, index int) (data []byte, link string, err error)
	DeleteJob(ctx context.Context, jobID string) error
}

type App struct {
	Engine   *extract.Engine
	Pipeline *render.Pipeline
	Pages    PageStore
	// Assistant is nil when no chat backend is configured.
	Assistant *paper.Assistant
	// Extractions collapses concurrent extractions of the same PDF URL.
	Extractions *singleflight.Group
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	if app.Extractions == nil {
		app.Extractions = &singleflight.Group{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
