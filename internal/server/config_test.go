package server

import (
	"testing"
	"time"
)

func TestExtractConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantCap int
	}{
		{name: "default", env: map[string]string{}, wantCap: 20},
		{name: "zero lifts the cap", env: map[string]string{"PDF_PAGE_CAP": "0"}, wantCap: -1},
		{name: "explicit", env: map[string]string{"PDF_PAGE_CAP": "50"}, wantCap: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := ExtractConfig().PageCap; got != tt.wantCap {
				t.Fatalf("PageCap = %d, want %d", got, tt.wantCap)
			}
		})
	}
}

func TestRenderConfigDurations(t *testing.T) {
	t.Setenv("PDF_PAGE_TIMEOUT", "3s")
	t.Setenv("PDF_RENDER_TIMEOUT", "90")
	cfg := RenderConfig()
	if cfg.PageTimeout != 3*time.Second || cfg.JobTimeout != 90*time.Second {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestNewDecoder(t *testing.T) {
	for _, name := range []string{"pdf", "fitz"} {
		dec, err := NewDecoder(name)
		if err != nil || dec.Name() != name {
			t.Fatalf("NewDecoder(%q) = %v, %v", name, dec, err)
		}
	}
	if _, err := NewDecoder("pdfium"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := NewRenderDecoder("pdf"); err == nil {
		t.Fatalf("expected error for a text-only render backend")
	}
}
