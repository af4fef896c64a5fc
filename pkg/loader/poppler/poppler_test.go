package poppler

import (
	"context"
	"image"
	"os"
	"strings"
	"testing"

	"github.com/Quantum-369/arxiv-scribe-view/internal/testutil"
)

func TestParseInfo(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		pages   int
		sizes   map[int]pageSize
		wantErr bool
	}{
		{
			name: "summary output",
			out: `Title:          Attention Is All You Need
Producer:       pdfTeX-1.40.25
Pages:          3
Page size:      612 x 792 pts (letter)
PDF version:    1.5
`,
			pages: 3,
			sizes: map[int]pageSize{1: {612, 792}, 2: {612, 792}, 3: {612, 792}},
		},
		{
			name: "per page output",
			out: `Pages:          2
Page    1 size: 595.276 x 841.89 pts (A4)
Page    1 rot:  0
Page    2 size: 841.89 x 595.276 pts
Page    2 rot:  90
`,
			pages: 2,
			sizes: map[int]pageSize{1: {595.276, 841.89}, 2: {841.89, 595.276}},
		},
		{
			name:    "no pages",
			out:     "Producer: nothing\n",
			wantErr: true,
		},
		{
			name:    "bad count",
			out:     "Pages: many\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInfo([]byte(tt.out))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Pages != tt.pages {
				t.Fatalf("pages: got %d, want %d", got.Pages, tt.pages)
			}
			for n, want := range tt.sizes {
				if got.Sizes[n] != want {
					t.Fatalf("page %d size: got %+v, want %+v", n, got.Sizes[n], want)
				}
			}
		})
	}
}

func TestDecoder_MissingBinDir(t *testing.T) {
	dec := NewDecoder(Config{BinDir: t.TempDir()})
	if err := dec.Available(); err == nil {
		t.Fatal("expected missing binaries to be reported")
	}
	if _, err := dec.Decode(context.Background(), []byte("%PDF-1.4")); err == nil {
		t.Fatal("expected decode to fail without binaries")
	}
}

func TestDecoder_EndToEnd(t *testing.T) {
	dec := NewDecoder(Config{TempDir: t.TempDir()})
	if err := dec.Available(); err != nil {
		t.Skipf("poppler-utils not installed: %v", err)
	}

	data := testutil.BuildPDF([]testutil.Page{
		{Lines: []string{"POPPLER-ONE"}},
		{Lines: []string{"POPPLER-TWO"}, Width: 100, Height: 200},
	})
	doc, err := dec.Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	dir := doc.(*document).dir

	if doc.NumPages() != 2 {
		t.Fatalf("expected 2 pages, got %d", doc.NumPages())
	}

	p, err := doc.Page(context.Background(), 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if w, h := p.Size(); w != 100 || h != 200 {
		t.Fatalf("unexpected size %vx%v", w, h)
	}
	frags, err := p.Fragments(context.Background())
	if err != nil {
		t.Fatalf("fragments: %v", err)
	}
	if len(frags) == 0 || !strings.Contains(frags[0].Text, "POPPLER-TWO") {
		t.Fatalf("unexpected fragments %+v", frags)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 150, 300))
	if err := p.Render(context.Background(), 1.5, dst); err != nil {
		t.Fatalf("render: %v", err)
	}
	_ = p.Release()

	if err := doc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("temp dir %s still exists", dir)
	}
}
