package loader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResult means a document decoded fine but yielded no text.
	ErrEmptyResult = errors.New("no extractable text")
	// ErrCancelled is reported for jobs stopped by their caller.
	ErrCancelled = errors.New("cancelled")
	ErrClosed    = errors.New("document closed")
	// ErrRenderUnsupported is returned by text-only decoders.
	ErrRenderUnsupported = errors.New("decoder cannot render pages")
	ErrPageRange         = errors.New("page out of range")
	ErrNoDecoder         = errors.New("no decoder configured")
)

// FetchError is returned when neither the direct request nor any proxy
// produced an acceptable PDF.
type FetchError struct {
	URL       string
	DirectErr error
	ProxyErr  error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to fetch PDF from %s", e.URL)
	if e.DirectErr != nil {
		fmt.Fprintf(&b, ": direct: %v", e.DirectErr)
	}
	if e.ProxyErr != nil {
		fmt.Fprintf(&b, "; proxy: %v", e.ProxyErr)
	}
	return b.String()
}

func (e *FetchError) Unwrap() []error {
	var errs []error
	if e.DirectErr != nil {
		errs = append(errs, e.DirectErr)
	}
	if e.ProxyErr != nil {
		errs = append(errs, e.ProxyErr)
	}
	return errs
}

// DecodeError wraps a failure to parse a document.
type DecodeError struct {
	Decoder string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode PDF (%s): %v", e.Decoder, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PageError is a failure confined to one page. Page is 1-based.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}
