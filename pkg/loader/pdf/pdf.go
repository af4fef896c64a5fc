// Package pdf decodes documents with ledongthuc/pdf. It is pure Go and needs
// no system libraries, but it only extracts text.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader"

	"github.com/ledongthuc/pdf"
)

const (
	// gapFactor is the horizontal gap, relative to the font size, above which
	// two glyphs are treated as separate words.
	gapFactor = 0.2
	// lineTolerance is the baseline difference in points still considered one line.
	lineTolerance = 0.5

	letterWidth  = 612
	letterHeight = 792
)

// Decoder is the headless text decoder.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Name() string    { return "pdf" }
func (d *Decoder) CanRender() bool { return false }

// Decode parses data. The reader is read-only after construction and is
// shared by all page handles of the document.
func (d *Decoder) Decode(ctx context.Context, data []byte) (doc loader.Document, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty PDF content")
	}
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	if n <= 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	return &document{reader: r, pages: n}, nil
}

type document struct {
	reader *pdf.Reader
	pages  int
}

func (d *document) NumPages() int {
	return d.pages
}

func (d *document) Page(ctx context.Context, n int) (p loader.Page, err error) {
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("page %d of %d: %w", n, d.pages, loader.ErrPageRange)
	}
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, &loader.PageError{Page: n, Err: fmt.Errorf("malformed page: %v", r)}
		}
	}()

	page := d.reader.Page(n)
	if page.V.IsNull() {
		return nil, &loader.PageError{Page: n, Err: fmt.Errorf("page object missing")}
	}
	w, h := mediaBox(page.V)
	return &handle{page: page, number: n, width: w, height: h}, nil
}

func (d *document) Close() error {
	d.reader = nil
	return nil
}

type handle struct {
	page   pdf.Page
	number int
	width  float64
	height float64
}

func (h *handle) Number() int { return h.number }

func (h *handle) Size() (float64, float64) { return h.width, h.height }

func (h *handle) Fragments(ctx context.Context) (frags []loader.Fragment, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			frags, err = nil, fmt.Errorf("malformed content stream: %v", r)
		}
	}()
	return coalesce(h.page.Content().Text), nil
}

func (h *handle) Render(ctx context.Context, scale float64, dst *image.RGBA) error {
	return loader.ErrRenderUnsupported
}

func (h *handle) Release() error { return nil }

// coalesce merges positioned glyphs into runs. A run ends when the font,
// the size or the baseline changes, or when the pen moves backwards.
func coalesce(glyphs []pdf.Text) []loader.Fragment {
	var frags []loader.Fragment
	var run strings.Builder
	var cur loader.Fragment
	var font string
	var end float64

	flush := func() {
		text := strings.TrimSpace(run.String())
		if text != "" {
			cur.Text = text
			frags = append(frags, cur)
		}
		run.Reset()
	}

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		sameRun := run.Len() > 0 &&
			g.Font == font &&
			g.FontSize == cur.FontSize &&
			math.Abs(g.Y-cur.Y) <= lineTolerance &&
			g.X >= end-g.FontSize
		if !sameRun {
			flush()
			cur = loader.Fragment{X: g.X, Y: g.Y, FontSize: g.FontSize}
			font = g.Font
		} else if g.X-end > gapFactor*g.FontSize && !strings.HasSuffix(run.String(), " ") && g.S != " " {
			run.WriteByte(' ')
		}
		run.WriteString(g.S)
		end = g.X + g.W
	}
	flush()
	return frags
}

// mediaBox returns the page size, following inheritance through the page tree.
// Pages without a usable box are treated as US Letter.
func mediaBox(v pdf.Value) (float64, float64) {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return letterWidth, letterHeight
}
