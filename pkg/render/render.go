// Package render rasterizes every page of a PDF in order and reports the
// status of each page as soon as it is known.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var errEmptyPage = errors.New("page has no area")

const (
	DefaultScale         = 1.5
	DefaultPageTimeout   = 10 * time.Second
	DefaultJobTimeout    = 5 * time.Minute
	DefaultDecodeTimeout = 30 * time.Second
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRendered Status = "rendered"
	StatusError    Status = "error"
)

// Observer receives job progress. Calls for one job never overlap.
// Page indices are 0-based.
type Observer interface {
	// Started delivers one pending status per page before any page is rendered.
	Started(statuses []Status)
	PageStatus(index int, status Status)
	// Failed is called once when the document could not be fetched or decoded.
	// No page statuses are delivered in that case.
	Failed(err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnStarted func(statuses []Status)
	OnPage    func(index int, status Status)
	OnFailed  func(err error)
}

func (o ObserverFuncs) Started(statuses []Status) {
	if o.OnStarted != nil {
		o.OnStarted(statuses)
	}
}

func (o ObserverFuncs) PageStatus(index int, status Status) {
	if o.OnPage != nil {
		o.OnPage(index, status)
	}
}

func (o ObserverFuncs) Failed(err error) {
	if o.OnFailed != nil {
		o.OnFailed(err)
	}
}

// Sink receives every successfully rendered surface.
type Sink interface {
	Store(ctx context.Context, jobID string, index int, img *image.RGBA) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	Scale         float64
	PageTimeout   time.Duration
	JobTimeout    time.Duration
	DecodeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Scale <= 0 {
		c.Scale = DefaultScale
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.DecodeTimeout <= 0 {
		c.DecodeTimeout = DefaultDecodeTimeout
	}
	return c
}

type Pipeline struct {
	fetcher Fetcher
	decoder loader.Decoder
	sink    Sink
	cfg     Config
}

type NewPipelineParams struct {
	Fetcher Fetcher
	// Decoder must be able to render.
	Decoder loader.Decoder
	// Sink is optional.
	Sink   Sink
	Config Config
}

func NewPipeline(params NewPipelineParams) *Pipeline {
	return &Pipeline{
		fetcher: params.Fetcher,
		decoder: params.Decoder,
		sink:    params.Sink,
		cfg:     params.Config.withDefaults(),
	}
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

// Result is available from Job.Wait once the job has ended.
type Result struct {
	Statuses []Status
	// Surfaces holds nil for pages that did not render.
	Surfaces  []*image.RGBA
	PageCount int
	// Err is the job-level failure, or loader.ErrCancelled.
	Err error
}

// Job is one render run. Every job decodes its own document.
type Job struct {
	id     string
	parent context.Context
	cancel context.CancelFunc
	obs    Observer

	stopped atomic.Bool
	// mu is held for the duration of every observer callback.
	mu sync.Mutex

	done   chan struct{}
	result Result
}

// Start renders the document at url.
func (p *Pipeline) Start(ctx context.Context, url string, obs Observer) *Job {
	return p.start(ctx, obs, logger.With("url", url), func(ctx context.Context) ([]byte, error) {
		if p.fetcher == nil {
			return nil, fmt.Errorf("no fetcher configured")
		}
		return p.fetcher.Fetch(ctx, url)
	})
}

// StartBytes renders already fetched bytes. data is only read.
func (p *Pipeline) StartBytes(ctx context.Context, data []byte, obs Observer) *Job {
	return p.start(ctx, obs, logger.With(), func(context.Context) ([]byte, error) {
		return data, nil
	})
}

func (p *Pipeline) start(ctx context.Context, obs Observer, log logger.Scoped, load func(context.Context) ([]byte, error)) *Job {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	id, err := gonanoid.New()
	if err != nil {
		id = fmt.Sprintf("job-%d", time.Now().UnixNano())
	}
	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	j := &Job{
		id:     id,
		parent: ctx,
		cancel: cancel,
		obs:    obs,
		done:   make(chan struct{}),
	}
	go p.run(jobCtx, j, log.With("job", id), load)
	return j
}

func (j *Job) ID() string {
	return j.id
}

// Cancel stops the job. When Cancel returns no observer callback is running
// and none will run afterwards. It must not be called from inside a callback;
// cancel the context passed to Start there instead.
func (j *Job) Cancel() {
	j.stopped.Store(true)
	j.cancel()
	j.mu.Lock()
	j.mu.Unlock()
}

// Done is closed when the job has ended and its handles are released.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) Wait() Result {
	<-j.done
	return j.result
}

func (j *Job) isStopped() bool {
	return j.stopped.Load() || j.parent.Err() != nil
}

// publish runs fn under the callback lock unless the job was cancelled.
func (j *Job) publish(fn func()) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.isStopped() {
		return false
	}
	fn()
	return true
}

func (p *Pipeline) run(ctx context.Context, j *Job, log logger.Scoped, load func(context.Context) ([]byte, error)) {
	defer close(j.done)
	defer j.cancel()

	if p.decoder == nil || !p.decoder.CanRender() {
		p.fail(j, log, loader.ErrRenderUnsupported)
		return
	}

	data, err := load(ctx)
	if err != nil {
		p.fail(j, log, err)
		return
	}
	raw, err := loader.Decode(ctx, p.decoder, data, p.cfg.DecodeTimeout)
	if err != nil {
		p.fail(j, log, err)
		return
	}
	doc := loader.Track(raw)
	defer doc.Close()

	n := doc.NumPages()
	j.result.PageCount = n
	j.result.Statuses = make([]Status, n)
	j.result.Surfaces = make([]*image.RGBA, n)
	for i := range j.result.Statuses {
		j.result.Statuses[i] = StatusPending
	}

	initial := append([]Status(nil), j.result.Statuses...)
	if !j.publish(func() { j.obs.Started(initial) }) {
		j.result.Err = loader.ErrCancelled
		return
	}
	log.Debug("[Render] started", "pages", n)

	rendered := 0
	for i := 0; i < n; i++ {
		if j.isStopped() {
			j.result.Err = loader.ErrCancelled
			log.Debug("[Render] cancelled", "at", i)
			return
		}

		img, err := p.renderPage(ctx, doc, i+1)
		status := StatusRendered
		if err != nil {
			status = StatusError
			img = nil
			log.Warn("[Render] page failed", "page", i+1, "err", err)
		}

		ok := j.publish(func() {
			j.result.Statuses[i] = status
			j.result.Surfaces[i] = img
			j.obs.PageStatus(i, status)
		})
		if !ok {
			j.result.Err = loader.ErrCancelled
			return
		}
		if img == nil {
			continue
		}
		rendered++
		if p.sink != nil {
			if err := p.sink.Store(ctx, j.id, i, img); err != nil {
				log.Warn("[Render] failed to store page", "page", i+1, "err", err)
			}
		}
	}
	log.Info("[Render] done", "pages", n, "rendered", rendered)
}

func (p *Pipeline) fail(j *Job, log logger.Scoped, err error) {
	if j.isStopped() {
		j.result.Err = loader.ErrCancelled
		return
	}
	log.Warn("[Render] job failed", "err", err)
	if !j.publish(func() {
		j.result.Err = err
		j.obs.Failed(err)
	}) {
		j.result.Err = loader.ErrCancelled
	}
}

// Viewport is the surface size of a w x h point page at scale.
func Viewport(w, h, scale float64) (int, int) {
	return int(math.Ceil(w * scale)), int(math.Ceil(h * scale))
}

func (p *Pipeline) renderPage(ctx context.Context, doc loader.Document, n int) (*image.RGBA, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PageTimeout)
	defer cancel()

	type outcome struct {
		img *image.RGBA
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				select {
				case ch <- outcome{err: fmt.Errorf("panic: %v", r)}:
				default:
				}
			}
		}()

		page, err := doc.Page(ctx, n)
		if err != nil {
			ch <- outcome{err: err}
			return
		}
		defer page.Release()

		pw, ph := page.Size()
		w, h := Viewport(pw, ph, p.cfg.Scale)
		if w <= 0 || h <= 0 {
			ch <- outcome{err: errEmptyPage}
			return
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		if err := page.Render(ctx, p.cfg.Scale, dst); err != nil {
			ch <- outcome{err: err}
			return
		}
		ch <- outcome{img: dst}
	}()

	select {
	case out := <-ch:
		return out.img, out.err
	case <-ctx.Done():
		return nil, &loader.PageError{Page: n, Err: ctx.Err()}
	}
}
