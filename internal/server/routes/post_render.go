package routes

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Quantum-369/arxiv-scribe-view/internal/server/middleware"
	"github.com/Quantum-369/arxiv-scribe-view/internal/server/util"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/paper"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/render"

	"github.com/labstack/echo/v4"
)

type renderEvent struct {
	Type     string          `json:"type"`
	Job      string          `json:"job"`
	Pages    int             `json:"pages,omitempty"`
	Statuses []render.Status `json:"statuses,omitempty"`
	Index    *int            `json:"index,omitempty"`
	Status   render.Status   `json:"status,omitempty"`
	Image    string          `json:"image,omitempty"`
	Rendered int             `json:"rendered,omitempty"`
	Failed   int             `json:"failed,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// RenderHandler streams the progress of a render job as NDJSON:
// one "started" line, a "page" line per status change, then "done", or a
// single "failed" line. Closing the connection cancels the job.
func RenderHandler(c echo.Context) error {
	type renderRequest struct {
		URL string `json:"url" validate:"required"`
	}

	data := new(renderRequest)
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
	stream := util.NewStreamWriter(c)

	// callbacks wait until the job id is known and the header is out
	ready := make(chan struct{})
	var jobID string

	obs := render.ObserverFuncs{
		OnStarted: func(statuses []render.Status) {
			<-ready
			stream.Write(renderEvent{Type: "started", Job: jobID, Pages: len(statuses), Statuses: statuses})
		},
		OnPage: func(index int, status render.Status) {
			<-ready
			ev := renderEvent{Type: "page", Job: jobID, Index: &index, Status: status}
			if status == render.StatusRendered {
				ev.Image = pageURL(jobID, index)
			}
			stream.Write(ev)
		},
		OnFailed: func(err error) {
			<-ready
			stream.Write(renderEvent{Type: "failed", Job: jobID, Message: err.Error()})
		},
	}

	job := app.Pipeline.Start(ctx, pdfURL, obs)
	jobID = job.ID()
	c.Response().Header().Set("X-Render-Job", jobID)
	stream.Start()
	close(ready)

	log := logger.With("job", jobID, "url", pdfURL)
	select {
	case <-job.Done():
	case <-ctx.Done():
		job.Cancel()
		<-job.Done()
		log.Debug("[Render] client went away, job cancelled")
		return nil
	}

	res := job.Wait()
	if res.Err != nil {
		if !errors.Is(res.Err, loader.ErrCancelled) {
			log.Warn("[Render] job failed", "err", res.Err)
		}
		return nil
	}

	done := renderEvent{Type: "done", Job: jobID, Pages: res.PageCount}
	for _, st := range res.Statuses {
		switch st {
		case render.StatusRendered:
			done.Rendered++
		case render.StatusError:
			done.Failed++
		}
	}
	stream.Write(done)
	return nil
}

func pageURL(jobID string, index int) string {
	return fmt.Sprintf("/api/render/%s/pages/%d", jobID, index)
}
