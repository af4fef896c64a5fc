package util

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

const MIMEApplicationNDJSON = "application/x-ndjson"

// StreamWriter writes one JSON object per line and flushes after each. It
// is safe for concurrent use. After the first write error every later
// write is dropped and returns that error.
type StreamWriter struct {
	mu      sync.Mutex
	c       echo.Context
	enc     *json.Encoder
	started bool
	err     error
}

func NewStreamWriter(c echo.Context) *StreamWriter {
	return &StreamWriter{c: c, enc: json.NewEncoder(c.Response())}
}

// Start sends the status line and headers. Write calls it implicitly.
func (w *StreamWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.start()
}

func (w *StreamWriter) start() {
	if w.started {
		return
	}
	w.started = true
	w.c.Response().Header().Set(echo.HeaderContentType, MIMEApplicationNDJSON)
	w.c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	w.c.Response().WriteHeader(http.StatusOK)
}

func (w *StreamWriter) Write(payload any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.start()
	if err := w.enc.Encode(payload); err != nil {
		w.err = err
		return err
	}
	w.c.Response().Flush()
	return nil
}
