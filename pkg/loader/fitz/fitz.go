// Package fitz decodes and rasterizes documents with MuPDF through go-fitz.
package fitz

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader"

	"github.com/gen2brain/go-fitz"
)

const pointsPerInch = 72

type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Name() string    { return "fitz" }
func (d *Decoder) CanRender() bool { return true }

func (d *Decoder) Decode(ctx context.Context, data []byte) (loader.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty PDF content")
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := doc.NumPage()
	if n <= 0 {
		_ = doc.Close()
		return nil, fmt.Errorf("document has no pages")
	}
	return &document{doc: doc, pages: n}, nil
}

// go-fitz serialises calls on a document internally, so handles of one
// document can be used from several goroutines.
type document struct {
	doc   *fitz.Document
	pages int
}

func (d *document) NumPages() int {
	return d.pages
}

func (d *document) Page(ctx context.Context, n int) (loader.Page, error) {
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("page %d of %d: %w", n, d.pages, loader.ErrPageRange)
	}
	bound, err := d.doc.Bound(n - 1)
	if err != nil {
		return nil, &loader.PageError{Page: n, Err: err}
	}
	return &handle{
		doc:    d.doc,
		number: n,
		width:  float64(bound.Dx()),
		height: float64(bound.Dy()),
	}, nil
}

func (d *document) Close() error {
	return d.doc.Close()
}

type handle struct {
	doc    *fitz.Document
	number int
	width  float64
	height float64
}

func (h *handle) Number() int { return h.number }

func (h *handle) Size() (float64, float64) { return h.width, h.height }

// Fragments returns one fragment per non-empty text line. MuPDF does not
// expose positions through go-fitz, so coordinates are left at zero.
func (h *handle) Fragments(ctx context.Context) ([]loader.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := h.doc.Text(h.number - 1)
	if err != nil {
		return nil, err
	}
	var frags []loader.Fragment
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line != "" {
			frags = append(frags, loader.Fragment{Text: line})
		}
	}
	return frags, nil
}

func (h *handle) Render(ctx context.Context, scale float64, dst *image.RGBA) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if scale <= 0 {
		return fmt.Errorf("invalid scale %v", scale)
	}
	if dst == nil {
		return fmt.Errorf("nil render target")
	}
	img, err := h.doc.ImageDPI(h.number-1, pointsPerInch*scale)
	if err != nil {
		return err
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return nil
}

func (h *handle) Release() error { return nil }
