package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Quantum-369/arxiv-scribe-view/internal/util"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"

	"codeberg.org/readeck/go-readability/v2"
)

const (
	DefaultMinBytes = 64
	DefaultMaxBytes = 64 << 20
	DefaultTimeout  = 30 * time.Second

	acceptHeader = "application/pdf,*/*"
	pdfMagic     = "%PDF-"
)

// Proxy is a pass-through service. The target URL is query-escaped and
// appended to Prefix.
type Proxy struct {
	Name   string
	Prefix string
}

// DefaultProxies are public CORS proxies, tried in this order.
var DefaultProxies = []Proxy{
	{Name: "allorigins", Prefix: "https://api.allorigins.win/raw?url="},
	{Name: "cors-anywhere", Prefix: "https://cors-anywhere.herokuapp.com/"},
	{Name: "cors.sh", Prefix: "https://proxy.cors.sh/"},
	{Name: "codetabs", Prefix: "https://api.codetabs.com/v1/proxy?quest="},
}

// ParseProxies builds a proxy list from bare prefixes. The host becomes the name.
func ParseProxies(prefixes []string) []Proxy {
	proxies := make([]Proxy, 0, len(prefixes))
	for _, prefix := range prefixes {
		name := prefix
		if u, err := url.Parse(prefix); err == nil && u.Host != "" {
			name = u.Host
		}
		proxies = append(proxies, Proxy{Name: name, Prefix: prefix})
	}
	return proxies
}

// Fetcher retrieves PDF bytes, first directly and then through each proxy.
// It caches nothing; every call goes to the network.
type Fetcher struct {
	client   *http.Client
	proxies  []Proxy
	minBytes int
	maxBytes int64
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

// NewFetcherParams configures a Fetcher. A nil Proxies slice selects
// DefaultProxies; an empty one disables the fallback.
type NewFetcherParams struct {
	Client   *http.Client
	Proxies  []Proxy
	MinBytes int
	MaxBytes int64
	Timeout  time.Duration
	// Attempts per strategy. Only transport errors and 5xx/429 answers are retried.
	Attempts int
	Backoff  time.Duration
}

func NewFetcher(params NewFetcherParams) *Fetcher {
	f := &Fetcher{
		client:   params.Client,
		proxies:  params.Proxies,
		minBytes: params.MinBytes,
		maxBytes: params.MaxBytes,
		timeout:  params.Timeout,
		attempts: params.Attempts,
		backoff:  params.Backoff,
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.proxies == nil {
		f.proxies = DefaultProxies
	}
	if f.minBytes <= 0 {
		f.minBytes = DefaultMinBytes
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.attempts <= 0 {
		f.attempts = 1
	}
	return f
}

// Strategies lists the names of the strategies in the order Fetch tries them.
func (f *Fetcher) Strategies() []string {
	names := make([]string, 0, len(f.proxies)+1)
	names = append(names, "direct")
	for _, p := range f.proxies {
		names = append(names, p.Name)
	}
	return names
}

// Fetch returns the body of the first strategy whose response passes Accept.
// When every strategy fails the error is a *loader.FetchError. A cancelled ctx
// stops the walk and its error is returned as is.
func (f *Fetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("unsupported url %q", target)
		}
		return nil, &loader.FetchError{URL: target, DirectErr: err}
	}

	data, directErr := f.try(ctx, target)
	if directErr == nil {
		logger.Debug("[Fetch] direct fetch succeeded", "url", target, "bytes", len(data))
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.Debug("[Fetch] direct fetch failed", "url", target, "err", directErr)

	var proxyErr error
	for _, p := range f.proxies {
		data, err := f.try(ctx, p.Prefix+url.QueryEscape(target))
		if err == nil {
			logger.Debug("[Fetch] proxy fetch succeeded", "url", target, "proxy", p.Name, "bytes", len(data))
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug("[Fetch] proxy fetch failed", "url", target, "proxy", p.Name, "err", err)
		proxyErr = fmt.Errorf("%s: %w", p.Name, err)
	}

	return nil, &loader.FetchError{URL: target, DirectErr: directErr, ProxyErr: proxyErr}
}

func (f *Fetcher) try(ctx context.Context, requestURL string) ([]byte, error) {
	return util.RetryWithBackoff(ctx, f.attempts, f.backoff, func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, requestURL)
	})
}

func (f *Fetcher) get(ctx context.Context, requestURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, util.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, util.Permanent(err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, util.Permanent(fmt.Errorf("response exceeds %d bytes", f.maxBytes))
	}

	if err := f.Accept(resp.Header.Get("Content-Type"), body, req.URL); err != nil {
		return nil, util.Permanent(err)
	}
	return body, nil
}

var (
	errTooSmall     = errors.New("response too small")
	errNotPDF       = errors.New("response is not a PDF")
	errUnexpectType = errors.New("unexpected content type")
)

// Accept is the single success test shared by every strategy. Status codes
// are checked before the body is read, so only type and size are judged here.
// A body without the PDF magic is sniffed even when it is declared as a PDF.
func (f *Fetcher) Accept(contentType string, body []byte, source *url.URL) error {
	if len(body) < f.minBytes {
		return fmt.Errorf("%w: %d bytes", errTooSmall, len(body))
	}
	if bytes.HasPrefix(body, []byte(pdfMagic)) {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}
	mediaType = strings.ToLower(mediaType)

	switch {
	case isTextual(mediaType):
		return rejectText(mediaType, body, source)
	case isPDF(mediaType) || isUntrusted(mediaType):
		// Proxies label their own error pages with the upstream type.
		sniffed := http.DetectContentType(body)
		if strings.HasPrefix(sniffed, "text/") {
			return rejectText(sniffed, body, source)
		}
		return nil
	default:
		return fmt.Errorf("%w %s", errUnexpectType, mediaType)
	}
}

func isPDF(mediaType string) bool {
	return mediaType == "application/pdf" || mediaType == "application/x-pdf"
}

func isTextual(mediaType string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/xhtml+xml", "application/xml":
		return true
	}
	return false
}

func isUntrusted(mediaType string) bool {
	switch mediaType {
	case "", "application/octet-stream", "binary/octet-stream", "application/force-download", "application/download":
		return true
	}
	return false
}

func rejectText(mediaType string, body []byte, source *url.URL) error {
	if !strings.Contains(mediaType, "html") {
		return fmt.Errorf("%w: got %s", errNotPDF, mediaType)
	}
	summary := summarizeHTML(body, source)
	if summary == "" {
		return fmt.Errorf("%w: got %s", errNotPDF, mediaType)
	}
	return fmt.Errorf("%w: got %s (%q)", errNotPDF, mediaType, summary)
}

const summaryLimit = 120

// summarizeHTML extracts the readable text of an error or interstitial page
// so the failure names what was served instead of the PDF.
func summarizeHTML(body []byte, source *url.URL) string {
	if source == nil {
		source = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(body), source)
	if err != nil {
		return ""
	}
	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return ""
	}
	text := util.NormalizeExtractedText(builder.String())
	if len([]rune(text)) > summaryLimit {
		text = string([]rune(text)[:summaryLimit]) + "..."
	}
	return text
}
