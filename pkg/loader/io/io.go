package io

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"
)

const DefaultMaxBytes = 64 << 20

// Fetcher is the interface shared with the web fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FileFetcher reads local PDFs. Sources that are not local paths or
// file:// URLs go to Next.
type FileFetcher struct {
	next     Fetcher
	maxBytes int64
}

type NewFileFetcherParams struct {
	// Next handles remote sources. When nil they fail.
	Next     Fetcher
	MaxBytes int64
}

func NewFileFetcher(params NewFileFetcherParams) *FileFetcher {
	f := &FileFetcher{
		next:     params.Next,
		maxBytes: params.MaxBytes,
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	return f
}

// IsLocal reports whether source names a file rather than a remote URL.
func IsLocal(source string) bool {
	if strings.HasPrefix(source, "file://") {
		return true
	}
	return !strings.Contains(source, "://")
}

// LocalPath returns the filesystem path of a local source.
func LocalPath(source string) (string, error) {
	if !strings.HasPrefix(source, "file://") {
		return source, nil
	}
	u, err := url.Parse(source)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}

func (f *FileFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if !IsLocal(source) {
		if f.next == nil {
			return nil, &loader.FetchError{URL: source, DirectErr: fmt.Errorf("remote sources are disabled")}
		}
		return f.next.Fetch(ctx, source)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := LocalPath(source)
	if err != nil {
		return nil, &loader.FetchError{URL: source, DirectErr: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &loader.FetchError{URL: source, DirectErr: err}
	}
	if info.IsDir() {
		return nil, &loader.FetchError{URL: source, DirectErr: fmt.Errorf("%s is a directory", path)}
	}
	if info.Size() > f.maxBytes {
		return nil, &loader.FetchError{URL: source, DirectErr: fmt.Errorf("file exceeds %d bytes", f.maxBytes)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &loader.FetchError{URL: source, DirectErr: err}
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, &loader.FetchError{URL: source, DirectErr: fmt.Errorf("%s is not a PDF", path)}
	}

	logger.Debug("[Fetch] read local file", "path", path, "bytes", len(data))
	return data, nil
}
