package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Quantum-369/arxiv-scribe-view/internal/testutil"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader/pdf"
)

type pageBehavior struct {
	text      string
	err       error
	delay     time.Duration
	ignoreCtx bool
	panic     bool
}

type fakeDoc struct {
	pages []pageBehavior

	mu      sync.Mutex
	open    int
	maxOpen int

	obtained atomic.Int32
	released atomic.Int32
	closed   atomic.Int32
}

func newFakeDoc(pages ...pageBehavior) *fakeDoc {
	return &fakeDoc{pages: pages}
}

func markerDoc(n int) *fakeDoc {
	pages := make([]pageBehavior, n)
	for i := range pages {
		// earlier pages finish later so completion order is reversed
		pages[i] = pageBehavior{text: marker(i + 1), delay: time.Duration(n-i) * time.Millisecond}
	}
	return newFakeDoc(pages...)
}

func marker(n int) string {
	return fmt.Sprintf("MARKER-%03d", n)
}

func (d *fakeDoc) NumPages() int { return len(d.pages) }

func (d *fakeDoc) Page(ctx context.Context, n int) (loader.Page, error) {
	d.obtained.Add(1)
	d.mu.Lock()
	d.open++
	d.maxOpen = max(d.maxOpen, d.open)
	d.mu.Unlock()
	return &fakePage{doc: d, n: n}, nil
}

func (d *fakeDoc) Close() error {
	d.closed.Add(1)
	return nil
}

type fakePage struct {
	doc *fakeDoc
	n   int
}

func (p *fakePage) Number() int              { return p.n }
func (p *fakePage) Size() (float64, float64) { return 612, 792 }
func (p *fakePage) Render(ctx context.Context, scale float64, dst *image.RGBA) error {
	return loader.ErrRenderUnsupported
}

func (p *fakePage) Fragments(ctx context.Context) ([]loader.Fragment, error) {
	b := p.doc.pages[p.n-1]
	if b.panic {
		panic("corrupt content stream")
	}
	if b.delay > 0 {
		if b.ignoreCtx {
			time.Sleep(b.delay)
		} else {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.delay):
			}
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	var frags []loader.Fragment
	for _, word := range strings.Fields(b.text) {
		frags = append(frags, loader.Fragment{Text: word})
	}
	return frags, nil
}

func (p *fakePage) Release() error {
	p.doc.released.Add(1)
	p.doc.mu.Lock()
	p.doc.open--
	p.doc.mu.Unlock()
	return nil
}

type fakeDecoder struct {
	doc *fakeDoc
	err error
}

func (d *fakeDecoder) Name() string    { return "fake" }
func (d *fakeDecoder) CanRender() bool { return false }
func (d *fakeDecoder) Decode(ctx context.Context, data []byte) (loader.Document, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.doc, nil
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.data, f.err
}

func newEngine(doc *fakeDoc, cfg Config) *Engine {
	return NewEngine(NewEngineParams{
		Fetcher: &fakeFetcher{data: []byte("%PDF-1.4")},
		Decoder: &fakeDecoder{doc: doc},
		Config:  cfg,
	})
}

func assertAscending(t *testing.T, text string, pages ...int) {
	t.Helper()
	last := -1
	for _, n := range pages {
		idx := strings.Index(text, marker(n))
		if idx < 0 {
			t.Fatalf("marker for page %d missing from %q", n, text)
		}
		if idx <= last {
			t.Fatalf("marker for page %d out of order in %q", n, text)
		}
		last = idx
	}
}

func TestExtract_OrderAcrossBatchSizes(t *testing.T) {
	for _, batch := range []int{1, 2, 3, 5, 7, 20} {
		t.Run(fmt.Sprintf("batch=%d", batch), func(t *testing.T) {
			doc := markerDoc(7)
			res := newEngine(doc, Config{BatchSize: batch}).ExtractURL(context.Background(), "https://arxiv.org/pdf/1706.03762")
			if res.Error != "" {
				t.Fatalf("unexpected error %q", res.Error)
			}
			assertAscending(t, res.Text, 1, 2, 3, 4, 5, 6, 7)
			if strings.Count(res.Text, "\n\n") != 6 {
				t.Fatalf("expected pages separated by blank lines, got %q", res.Text)
			}
			if res.PageCount != 7 || res.PagesProcessed != 7 {
				t.Fatalf("unexpected counts %+v", res)
			}
			if doc.maxOpen > batch {
				t.Fatalf("batch %d opened %d pages at once", batch, doc.maxOpen)
			}
			if doc.released.Load() != doc.obtained.Load() {
				t.Fatalf("released %d of %d handles", doc.released.Load(), doc.obtained.Load())
			}
			if doc.closed.Load() != 1 {
				t.Fatalf("document closed %d times", doc.closed.Load())
			}
		})
	}
}

func TestExtract_PartialFailure(t *testing.T) {
	tests := []struct {
		name string
		bad  pageBehavior
	}{
		{name: "page error", bad: pageBehavior{err: errors.New("bad font")}},
		{name: "page panic", bad: pageBehavior{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := markerDoc(5)
			doc.pages[2] = tt.bad

			res := newEngine(doc, Config{BatchSize: 2}).ExtractURL(context.Background(), "u")
			if res.Error != "" || res.Err != nil {
				t.Fatalf("expected success, got %q / %v", res.Error, res.Err)
			}
			assertAscending(t, res.Text, 1, 2, 4, 5)
			if len(res.FailedPages) != 1 || res.FailedPages[0] != 3 {
				t.Fatalf("expected page 3 to fail, got %v", res.FailedPages)
			}
			if res.PagesProcessed != 4 {
				t.Fatalf("expected 4 processed pages, got %d", res.PagesProcessed)
			}
			if strings.Contains(res.Text, "unavailable") {
				t.Fatal("placeholder emitted while disabled")
			}
		})
	}
}

func TestExtract_Placeholder(t *testing.T) {
	doc := markerDoc(3)
	doc.pages[1] = pageBehavior{err: errors.New("broken")}

	res := newEngine(doc, Config{Placeholder: true}).ExtractURL(context.Background(), "u")
	want := marker(1) + "\n\n[page 2: text unavailable]\n\n" + marker(3)
	if res.Text != want {
		t.Fatalf("got %q, want %q", res.Text, want)
	}
}

func TestExtract_EmptyDocument(t *testing.T) {
	doc := newFakeDoc(pageBehavior{}, pageBehavior{text: "   "}, pageBehavior{err: errors.New("x")})

	res := newEngine(doc, Config{Placeholder: true}).ExtractURL(context.Background(), "u")
	if res.Text != "" {
		t.Fatalf("expected no text, got %q", res.Text)
	}
	if res.Error != "no extractable text" {
		t.Fatalf("unexpected error %q", res.Error)
	}
	if !errors.Is(res.Err, loader.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", res.Err)
	}
}

func TestExtract_PageCap(t *testing.T) {
	doc := markerDoc(25)
	res := newEngine(doc, Config{}).ExtractURL(context.Background(), "u")

	if !res.Truncated || res.PageCount != 25 || res.PagesProcessed != 20 {
		t.Fatalf("unexpected result %+v", res)
	}
	if strings.Contains(res.Text, marker(21)) {
		t.Fatal("page beyond the cap was extracted")
	}
	if doc.obtained.Load() != 20 {
		t.Fatalf("expected 20 page handles, got %d", doc.obtained.Load())
	}
	note := "[Document has 25 pages; text was extracted from the first 20 pages only.]"
	if !strings.HasSuffix(res.Text, "\n\n"+note) {
		t.Fatalf("missing truncation note in %q", res.Text)
	}

	unlimited := newEngine(markerDoc(25), Config{PageCap: -1}).ExtractURL(context.Background(), "u")
	if unlimited.Truncated || !strings.Contains(unlimited.Text, marker(25)) {
		t.Fatal("negative cap should read every page")
	}

	exact := newEngine(markerDoc(20), Config{}).ExtractURL(context.Background(), "u")
	if exact.Truncated || strings.Contains(exact.Text, "[Document has") {
		t.Fatal("no note expected when the document fits the cap")
	}
}

func TestExtract_PageTimeoutReleasesHandle(t *testing.T) {
	doc := markerDoc(3)
	doc.pages[1] = pageBehavior{text: "late", delay: 150 * time.Millisecond, ignoreCtx: true}

	start := time.Now()
	res := newEngine(doc, Config{PageTimeout: 20 * time.Millisecond}).ExtractURL(context.Background(), "u")
	if elapsed := time.Since(start); elapsed > 120*time.Millisecond {
		t.Fatalf("extraction waited for the stuck page (%s)", elapsed)
	}
	if strings.Contains(res.Text, "late") {
		t.Fatal("timed out page contributed text")
	}
	assertAscending(t, res.Text, 1, 3)
	if len(res.FailedPages) != 1 || res.FailedPages[0] != 2 {
		t.Fatalf("expected page 2 to fail, got %v", res.FailedPages)
	}

	// the stuck page still owns its handle, so the document stays open until it finishes
	if doc.closed.Load() != 0 {
		t.Fatal("document closed under a running page")
	}
	deadline := time.After(2 * time.Second)
	for doc.closed.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("document never closed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if doc.released.Load() != 3 {
		t.Fatalf("expected 3 releases, got %d", doc.released.Load())
	}
}

func TestExtract_JobTimeoutKeepsPartialText(t *testing.T) {
	pages := make([]pageBehavior, 6)
	for i := range pages {
		pages[i] = pageBehavior{text: marker(i + 1), delay: 30 * time.Millisecond}
	}
	doc := newFakeDoc(pages...)

	res := newEngine(doc, Config{BatchSize: 1, JobTimeout: 75 * time.Millisecond}).ExtractURL(context.Background(), "u")
	if res.Error != "" {
		t.Fatalf("expected partial success, got %q", res.Error)
	}
	assertAscending(t, res.Text, 1, 2)
	if strings.Contains(res.Text, marker(6)) {
		t.Fatal("pages past the job deadline were extracted")
	}
	if len(res.FailedPages) == 0 {
		t.Fatal("expected pages past the deadline to be reported as failed")
	}
}

func TestExtract_Cancelled(t *testing.T) {
	doc := markerDoc(3)
	doc.pages[0] = pageBehavior{text: "slow", delay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	res := newEngine(doc, Config{}).ExtractURL(ctx, "u")
	if !res.Cancelled() {
		t.Fatalf("expected cancelled result, got %+v", res)
	}
	if res.Error != "" || res.Text != "" {
		t.Fatalf("cancelled job must not surface text or errors: %+v", res)
	}
}

func TestExtract_JobFailures(t *testing.T) {
	fetchErr := &loader.FetchError{URL: "u", DirectErr: errors.New("status 403")}

	tests := []struct {
		name    string
		engine  *Engine
		wantErr string
	}{
		{
			name: "fetch",
			engine: NewEngine(NewEngineParams{
				Fetcher: &fakeFetcher{err: fetchErr},
				Decoder: &fakeDecoder{doc: markerDoc(1)},
			}),
			wantErr: "direct: status 403",
		},
		{
			name: "decode",
			engine: NewEngine(NewEngineParams{
				Fetcher: &fakeFetcher{data: []byte("<html>")},
				Decoder: &fakeDecoder{err: errors.New("invalid header")},
			}),
			wantErr: "failed to decode PDF (fake): invalid header",
		},
		{
			name:    "no decoder",
			engine:  NewEngine(NewEngineParams{Fetcher: &fakeFetcher{data: []byte("%PDF-1.4")}}),
			wantErr: "no decoder configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.engine.ExtractURL(context.Background(), "u")
			if res.Text != "" {
				t.Fatalf("unexpected text %q", res.Text)
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Fatalf("error %q does not contain %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestExtractDocument_CallerOwnsDocument(t *testing.T) {
	doc := markerDoc(2)
	res := NewEngine(NewEngineParams{}).ExtractDocument(context.Background(), doc)
	assertAscending(t, res.Text, 1, 2)
	if doc.closed.Load() != 0 {
		t.Fatal("ExtractDocument must not close the caller's document")
	}
}

func TestExtractBytes_RealDecoder(t *testing.T) {
	data := testutil.TextPDF(marker(1), "", marker(3), marker(4))
	engine := NewEngine(NewEngineParams{
		Decoder: pdf.NewDecoder(),
		Config:  Config{BatchSize: 3},
	})

	res := engine.ExtractBytes(context.Background(), data)
	if res.Error != "" {
		t.Fatalf("unexpected error %q", res.Error)
	}
	assertAscending(t, res.Text, 1, 3, 4)
	if res.PageCount != 4 || res.PagesProcessed != 4 {
		t.Fatalf("unexpected counts %+v", res)
	}

	empty := engine.ExtractBytes(context.Background(), testutil.TextPDF("", ""))
	if empty.Error != "no extractable text" {
		t.Fatalf("expected empty result, got %+v", empty)
	}
}
