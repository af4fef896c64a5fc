package loader

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"
)

// Fragment is one run of text on a page, in the order the decoder reports it.
// Coordinates are PDF user space points with the origin at the bottom left.
type Fragment struct {
	Text     string
	X        float64
	Y        float64
	FontSize float64
}

// Page is a handle to a single page of a decoded document.
//
// A Page must be released exactly once by whoever obtained it. Release is
// safe to call more than once; only the first call has an effect.
type Page interface {
	// Number is the 1-based page number.
	Number() int
	// Size returns the page width and height in points.
	Size() (w, h float64)
	Fragments(ctx context.Context) ([]Fragment, error)
	// Render draws the page at scale into dst. dst must be at least
	// ceil(w*scale) x ceil(h*scale) pixels.
	Render(ctx context.Context, scale float64, dst *image.RGBA) error
	Release() error
}

// Document is a decoded PDF. Pages are addressed 1..NumPages.
type Document interface {
	NumPages() int
	Page(ctx context.Context, n int) (Page, error)
	Close() error
}

// Decoder turns raw PDF bytes into a Document. Implementations hold only
// immutable configuration and may be shared between jobs.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (Document, error)
	Name() string
	CanRender() bool
}

// Decode runs dec with an upper bound on how long decoding may take. A document
// produced after the deadline has passed is closed and never returned.
func Decode(ctx context.Context, dec Decoder, data []byte, timeout time.Duration) (Document, error) {
	if dec == nil {
		return nil, &DecodeError{Decoder: "none", Err: ErrNoDecoder}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type decoded struct {
		doc Document
		err error
	}
	ch := make(chan decoded, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- decoded{err: fmt.Errorf("decoder panic: %v", r)}
			}
		}()
		doc, err := dec.Decode(ctx, data)
		ch <- decoded{doc: doc, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, &DecodeError{Decoder: dec.Name(), Err: res.err}
		}
		if res.doc == nil {
			return nil, &DecodeError{Decoder: dec.Name(), Err: fmt.Errorf("decoder returned no document")}
		}
		return res.doc, nil
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.doc != nil {
				_ = res.doc.Close()
			}
		}()
		return nil, &DecodeError{Decoder: dec.Name(), Err: ctx.Err()}
	}
}

// TrackedDocument counts outstanding page handles. Close marks the document
// as closing and the underlying document is closed once the last handle is
// released, so a page abandoned by a timed out caller can finish safely.
type TrackedDocument struct {
	inner Document

	mu       sync.Mutex
	open     int
	closing  bool
	closeErr error
	done     chan struct{}
}

// Track wraps doc. The returned document owns doc.
func Track(doc Document) *TrackedDocument {
	return &TrackedDocument{
		inner: doc,
		done:  make(chan struct{}),
	}
}

func (t *TrackedDocument) NumPages() int {
	return t.inner.NumPages()
}

// Page returns a handle for page n, or ErrClosed once Close has been called.
func (t *TrackedDocument) Page(ctx context.Context, n int) (Page, error) {
	if n < 1 || n > t.inner.NumPages() {
		return nil, fmt.Errorf("page %d of %d: %w", n, t.inner.NumPages(), ErrPageRange)
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.open++
	t.mu.Unlock()

	p, err := t.inner.Page(ctx, n)
	if err != nil {
		t.release()
		return nil, err
	}
	return &trackedPage{Page: p, doc: t}, nil
}

// Close is idempotent. It returns the underlying close error only when the
// document could be closed right away.
func (t *TrackedDocument) Close() error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	if t.open > 0 {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	return t.finish()
}

// Done is closed after the underlying document has been closed.
func (t *TrackedDocument) Done() <-chan struct{} {
	return t.done
}

// Outstanding reports how many page handles have not been released yet.
func (t *TrackedDocument) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *TrackedDocument) release() {
	t.mu.Lock()
	t.open--
	last := t.open == 0 && t.closing
	t.mu.Unlock()
	if last {
		_ = t.finish()
	}
}

func (t *TrackedDocument) finish() error {
	t.closeErr = t.inner.Close()
	close(t.done)
	return t.closeErr
}

type trackedPage struct {
	Page
	doc  *TrackedDocument
	once sync.Once
}

func (p *trackedPage) Release() error {
	var err error
	p.once.Do(func() {
		err = p.Page.Release()
		p.doc.release()
	})
	return err
}
