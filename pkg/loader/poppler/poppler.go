// Package poppler decodes documents by shelling out to poppler-utils
// (pdfinfo, pdftotext, pdftoppm).
package poppler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Config is fixed once the decoder is built.
type Config struct {
	// BinDir holds the poppler binaries. Empty means PATH lookup.
	BinDir string
	// TempDir is where documents are spilled to disk. Empty means os.TempDir.
	TempDir string
}

type Decoder struct {
	cfg Config
}

func NewDecoder(cfg Config) *Decoder {
	return &Decoder{cfg: cfg}
}

func (d *Decoder) Name() string    { return "poppler" }
func (d *Decoder) CanRender() bool { return true }

func (d *Decoder) bin(name string) (string, error) {
	if d.cfg.BinDir != "" {
		p := filepath.Join(d.cfg.BinDir, name)
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s not found in %s: %w", name, d.cfg.BinDir, err)
		}
		return p, nil
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return p, nil
}

// Available reports whether all required binaries can be found.
func (d *Decoder) Available() error {
	for _, name := range []string{"pdfinfo", "pdftotext", "pdftoppm"} {
		if _, err := d.bin(name); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) Decode(ctx context.Context, data []byte) (loader.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty PDF content")
	}
	if err := d.Available(); err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("nanoid: %w", err)
	}
	tmpRoot := d.cfg.TempDir
	if tmpRoot == "" {
		tmpRoot = os.TempDir()
	}
	tmpDir := filepath.Join(tmpRoot, "scribe-pdf-"+id)
	if err := os.MkdirAll(tmpDir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir tmp: %w", err)
	}

	doc := &document{dec: d, dir: tmpDir, path: filepath.Join(tmpDir, "input.pdf")}
	if err := os.WriteFile(doc.path, data, 0o600); err != nil {
		doc.Close()
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	out, err := d.run(ctx, "pdfinfo", doc.path)
	if err != nil {
		doc.Close()
		return nil, err
	}
	info, err := parseInfo(out)
	if err != nil {
		doc.Close()
		return nil, err
	}
	doc.pages = info.Pages

	out, err = d.run(ctx, "pdfinfo", "-f", "1", "-l", strconv.Itoa(info.Pages), doc.path)
	if err != nil {
		doc.Close()
		return nil, err
	}
	sized, err := parseInfo(out)
	if err != nil {
		doc.Close()
		return nil, err
	}
	doc.sizes = sized.Sizes

	return doc, nil
}

func (d *Decoder) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	bin, err := d.bin(name)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", name, ctx.Err())
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type pageSize struct {
	W, H float64
}

type info struct {
	Pages int
	Sizes map[int]pageSize
}

// parseInfo reads pdfinfo output. With -f/-l pdfinfo prints one
// "Page N size: W x H pts" line per page; without, a single "Page size:".
func parseInfo(out []byte) (info, error) {
	res := info{Sizes: map[int]pageSize{}}
	var fallback *pageSize

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields := strings.Fields(key)
		switch {
		case len(fields) == 1 && fields[0] == "Pages":
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return res, fmt.Errorf("pdfinfo: bad page count %q", value)
			}
			res.Pages = n
		case len(fields) == 2 && fields[0] == "Page" && fields[1] == "size":
			if s, ok := parseSize(value); ok {
				fallback = &s
			}
		case len(fields) == 3 && fields[0] == "Page" && fields[2] == "size":
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				continue
			}
			if s, ok := parseSize(value); ok {
				res.Sizes[n] = s
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return res, err
	}
	if res.Pages <= 0 {
		return res, errors.New("pdfinfo: document has no pages")
	}
	if fallback != nil {
		for n := 1; n <= res.Pages; n++ {
			if _, ok := res.Sizes[n]; !ok {
				res.Sizes[n] = *fallback
			}
		}
	}
	return res, nil
}

// parseSize handles "612 x 792 pts (letter)".
func parseSize(value string) (pageSize, bool) {
	fields := strings.Fields(value)
	if len(fields) < 3 || fields[1] != "x" {
		return pageSize{}, false
	}
	w, err1 := strconv.ParseFloat(fields[0], 64)
	h, err2 := strconv.ParseFloat(fields[2], 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return pageSize{}, false
	}
	return pageSize{W: w, H: h}, true
}

type document struct {
	dec   *Decoder
	dir   string
	path  string
	pages int
	sizes map[int]pageSize
}

func (d *document) NumPages() int {
	return d.pages
}

func (d *document) Page(ctx context.Context, n int) (loader.Page, error) {
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("page %d of %d: %w", n, d.pages, loader.ErrPageRange)
	}
	size, ok := d.sizes[n]
	if !ok {
		size = pageSize{W: 612, H: 792}
	}
	return &handle{doc: d, number: n, size: size}, nil
}

// Close removes the spilled file.
func (d *document) Close() error {
	if err := os.RemoveAll(d.dir); err != nil {
		logger.Warn("[Poppler] failed to remove temp dir", "dir", d.dir, "err", err)
		return err
	}
	return nil
}

type handle struct {
	doc    *document
	number int
	size   pageSize
}

func (h *handle) Number() int { return h.number }

func (h *handle) Size() (float64, float64) { return h.size.W, h.size.H }

func (h *handle) Fragments(ctx context.Context) ([]loader.Fragment, error) {
	page := strconv.Itoa(h.number)
	out, err := h.doc.dec.run(ctx, "pdftotext",
		"-f", page, "-l", page,
		"-enc", "UTF-8",
		"-eol", "unix",
		"-nopgbrk",
		"-q",
		h.doc.path, "-",
	)
	if err != nil {
		return nil, err
	}
	var frags []loader.Fragment
	for line := range strings.Lines(string(out)) {
		line = strings.TrimSpace(line)
		if line != "" {
			frags = append(frags, loader.Fragment{Text: line})
		}
	}
	return frags, nil
}

// Render asks pdftoppm for exactly the size of dst.
func (h *handle) Render(ctx context.Context, scale float64, dst *image.RGBA) error {
	if scale <= 0 {
		return fmt.Errorf("invalid scale %v", scale)
	}
	if dst == nil {
		return fmt.Errorf("nil render target")
	}
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("nanoid: %w", err)
	}
	prefix := filepath.Join(h.doc.dir, fmt.Sprintf("page-%d-%s", h.number, id))
	defer os.Remove(prefix + ".png")

	page := strconv.Itoa(h.number)
	b := dst.Bounds()
	dpi := math.Round(72 * scale)
	args := []string{
		"-png",
		"-r", strconv.FormatFloat(dpi, 'f', -1, 64),
		"-scale-to-x", strconv.Itoa(b.Dx()),
		"-scale-to-y", strconv.Itoa(b.Dy()),
		"-q",
		"-singlefile",
		"-f", page,
		"-l", page,
		h.doc.path, prefix,
	}
	if _, err := h.doc.dec.run(ctx, "pdftoppm", args...); err != nil {
		return err
	}

	f, err := os.Open(prefix + ".png")
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	draw.Draw(dst, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, b, img, img.Bounds().Min, draw.Over)
	return nil
}

func (h *handle) Release() error { return nil }
