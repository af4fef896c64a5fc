// Package extract turns a PDF into plain text, page by page, with per-page
// and per-job time limits.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Quantum-369/arxiv-scribe-view/internal/util"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageCap       = 20
	DefaultBatchSize     = 5
	DefaultPageTimeout   = 10 * time.Second
	DefaultDecodeTimeout = 30 * time.Second
	DefaultJobTimeout    = 2 * time.Minute

	pageSeparator     = "\n\n"
	fragmentSeparator = " "
)

// Fetcher is the part of web.Fetcher the engine needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config bounds an extraction. Zero values select the defaults, except
// PageCap where a negative value means no cap.
type Config struct {
	PageCap       int
	BatchSize     int
	PageTimeout   time.Duration
	DecodeTimeout time.Duration
	JobTimeout    time.Duration
	// Placeholder inserts a marker where a page failed.
	Placeholder bool
}

func (c Config) withDefaults() Config {
	if c.PageCap == 0 {
		c.PageCap = DefaultPageCap
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	if c.DecodeTimeout <= 0 {
		c.DecodeTimeout = DefaultDecodeTimeout
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	return c
}

// Result is the outcome of one extraction. On completion exactly one of Text
// and Error is set. A cancelled job has Err == loader.ErrCancelled and neither.
type Result struct {
	Text           string `json:"text"`
	Error          string `json:"error,omitempty"`
	Err            error  `json:"-"`
	PageCount      int    `json:"page_count"`
	PagesProcessed int    `json:"pages_processed"`
	FailedPages    []int  `json:"failed_pages,omitempty"`
	Truncated      bool   `json:"truncated"`
}

// Cancelled reports whether the caller abandoned the job.
func (r Result) Cancelled() bool {
	return errors.Is(r.Err, loader.ErrCancelled)
}

type Engine struct {
	fetcher Fetcher
	decoder loader.Decoder
	cfg     Config
}

type NewEngineParams struct {
	Fetcher Fetcher
	Decoder loader.Decoder
	Config  Config
}

func NewEngine(params NewEngineParams) *Engine {
	return &Engine{
		fetcher: params.Fetcher,
		decoder: params.Decoder,
		cfg:     params.Config.withDefaults(),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ExtractURL fetches, decodes and extracts the document at url.
func (e *Engine) ExtractURL(ctx context.Context, url string) Result {
	log := logger.With("url", url)
	jobCtx, cancel := context.WithTimeout(ctx, e.cfg.JobTimeout)
	defer cancel()

	if e.fetcher == nil {
		return e.fail(ctx, fmt.Errorf("no fetcher configured"))
	}
	data, err := e.fetcher.Fetch(jobCtx, url)
	if err != nil {
		log.Warn("[Extract] fetch failed", "err", err)
		return e.fail(ctx, err)
	}
	return e.extractBytes(ctx, jobCtx, data, log)
}

// ExtractBytes decodes data with the engine's own decoder. data is only read,
// so the same buffer may be handed to a render job at the same time.
func (e *Engine) ExtractBytes(ctx context.Context, data []byte) Result {
	jobCtx, cancel := context.WithTimeout(ctx, e.cfg.JobTimeout)
	defer cancel()
	return e.extractBytes(ctx, jobCtx, data, logger.With())
}

func (e *Engine) extractBytes(parent, jobCtx context.Context, data []byte, log logger.Scoped) Result {
	if e.decoder == nil {
		return e.fail(parent, loader.ErrNoDecoder)
	}
	raw, err := loader.Decode(jobCtx, e.decoder, data, e.cfg.DecodeTimeout)
	if err != nil {
		log.Warn("[Extract] decode failed", "err", err)
		return e.fail(parent, err)
	}
	doc := loader.Track(raw)
	defer doc.Close()

	return e.run(parent, jobCtx, doc, log)
}

// ExtractDocument extracts an already decoded document. The caller keeps
// ownership of doc. Pages abandoned by a timeout may still be running when
// this returns, so doc should be a *loader.TrackedDocument if it is closed
// right after.
func (e *Engine) ExtractDocument(ctx context.Context, doc loader.Document) Result {
	jobCtx, cancel := context.WithTimeout(ctx, e.cfg.JobTimeout)
	defer cancel()
	return e.run(ctx, jobCtx, doc, logger.With())
}

func (e *Engine) fail(parent context.Context, err error) Result {
	if parent.Err() != nil {
		return Result{Err: loader.ErrCancelled}
	}
	return Result{Error: err.Error(), Err: err}
}

type pageOutcome struct {
	text string
	err  error
}

func (e *Engine) run(parent, jobCtx context.Context, doc loader.Document, log logger.Scoped) Result {
	total := doc.NumPages()
	limit := total
	if e.cfg.PageCap > 0 && e.cfg.PageCap < total {
		limit = e.cfg.PageCap
	}
	log = log.With("pages", total)
	log.Debug("[Extract] extracting pages", "limit", limit, "batch", e.cfg.BatchSize)

	outcomes := make([]pageOutcome, limit)
	for start := 0; start < limit; start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, limit)
		if jobCtx.Err() != nil {
			for i := start; i < limit; i++ {
				outcomes[i].err = &loader.PageError{Page: i + 1, Err: jobCtx.Err()}
			}
			break
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				text, err := e.page(jobCtx, doc, i+1)
				outcomes[i] = pageOutcome{text: text, err: err}
				return nil
			})
		}
		// pages record their own errors in outcomes
		_ = g.Wait()
	}

	if parent.Err() != nil {
		log.Debug("[Extract] cancelled")
		return Result{Err: loader.ErrCancelled, PageCount: total}
	}

	res := Result{PageCount: total, Truncated: limit < total}
	parts := make([]string, 0, limit)
	hasText := false
	for i, out := range outcomes {
		if out.err != nil {
			res.FailedPages = append(res.FailedPages, i+1)
			log.Warn("[Extract] page failed", "page", i+1, "err", out.err)
			if e.cfg.Placeholder {
				parts = append(parts, fmt.Sprintf("[page %d: text unavailable]", i+1))
			}
			continue
		}
		res.PagesProcessed++
		if out.text != "" {
			hasText = true
			parts = append(parts, out.text)
		}
	}

	if !hasText {
		res.Error = loader.ErrEmptyResult.Error()
		res.Err = loader.ErrEmptyResult
		if jobCtx.Err() != nil {
			res.Err = fmt.Errorf("%w: %w", loader.ErrEmptyResult, jobCtx.Err())
		}
		return res
	}

	res.Text = strings.TrimSpace(strings.Join(parts, pageSeparator))
	if res.Truncated {
		res.Text += pageSeparator + TruncationNote(total, limit)
	}
	log.Info("[Extract] done", "processed", res.PagesProcessed, "failed", len(res.FailedPages), "chars", len(res.Text))
	return res
}

// TruncationNote is appended when only the first limit pages were read.
func TruncationNote(total, limit int) string {
	return fmt.Sprintf("[Document has %d pages; text was extracted from the first %d pages only.]", total, limit)
}

// page extracts one page under its own deadline. The handle is released by
// the goroutine that obtained it, also when the caller has stopped waiting.
func (e *Engine) page(ctx context.Context, doc loader.Document, n int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
	defer cancel()

	ch := make(chan pageOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				select {
				case ch <- pageOutcome{err: fmt.Errorf("panic: %v", r)}:
				default:
				}
			}
		}()

		p, err := doc.Page(ctx, n)
		if err != nil {
			ch <- pageOutcome{err: err}
			return
		}
		defer p.Release()

		frags, err := p.Fragments(ctx)
		if err != nil {
			ch <- pageOutcome{err: err}
			return
		}
		ch <- pageOutcome{text: joinFragments(frags)}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			var pageErr *loader.PageError
			if !errors.As(out.err, &pageErr) {
				out.err = &loader.PageError{Page: n, Err: out.err}
			}
		}
		return out.text, out.err
	case <-ctx.Done():
		return "", &loader.PageError{Page: n, Err: ctx.Err()}
	}
}

func joinFragments(frags []loader.Fragment) string {
	parts := make([]string, 0, len(frags))
	for _, f := range frags {
		if text := util.NormalizeExtractedText(f.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, fragmentSeparator)
}
