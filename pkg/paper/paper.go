package paper

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/extract"
)

// Paper is the search result the reader works on. FullText and
// TextExtractionError are filled by ApplyExtraction.
type Paper struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title" validate:"required"`
	Authors             []string `json:"authors"`
	Abstract            string   `json:"abstract"`
	Category            string   `json:"category"`
	PublishedDate       string   `json:"published_date"`
	PDFURL              string   `json:"pdf_url"`
	Citations           *int     `json:"citations,omitempty"`
	FullText            string   `json:"full_text,omitempty"`
	TextExtractionError string   `json:"text_extraction_error,omitempty"`
}

const unknownExtractionError = "unknown error during PDF extraction"

// ApplyExtraction stores the outcome of an extraction job. Exactly one of
// FullText and TextExtractionError is set afterwards. A cancelled result
// leaves the paper untouched.
func (p *Paper) ApplyExtraction(res extract.Result) {
	if res.Cancelled() {
		return
	}
	if res.Text != "" {
		p.FullText = res.Text
		p.TextExtractionError = ""
		return
	}
	p.FullText = ""
	switch {
	case res.Error != "":
		p.TextExtractionError = res.Error
	case res.Err != nil:
		p.TextExtractionError = res.Err.Error()
	default:
		p.TextExtractionError = unknownExtractionError
	}
}

// HasFullText reports whether the paper carries non-blank extracted text.
func (p *Paper) HasFullText() bool {
	return strings.TrimSpace(p.FullText) != ""
}

var (
	newStyleID = regexp.MustCompile(`(\d{4}\.\d{4,5})(v\d+)?`)
	oldStyleID = regexp.MustCompile(`([a-z][a-z\-]*(?:\.[A-Z]{2})?/\d{7})(v\d+)?`)

	ErrInvalidPaperURL = errors.New("not an arXiv identifier or http(s) URL")
)

const arxivPDFBase = "https://arxiv.org/pdf/"

// PDFURL resolves an arXiv identifier, an arxiv.org abstract or PDF link,
// or any other http(s) URL to the address the PDF is fetched from.
//
//	2301.01234             -> https://arxiv.org/pdf/2301.01234.pdf
//	hep-th/9901001v2       -> https://arxiv.org/pdf/hep-th/9901001.pdf
//	http://arxiv.org/abs/2301.01234v3 -> https://arxiv.org/pdf/2301.01234.pdf
//
// Version suffixes are dropped so the latest revision is served. Links to
// other hosts are returned unchanged.
func PDFURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPaperURL
	}

	if !strings.Contains(raw, "://") {
		if id := arxivID(strings.TrimPrefix(strings.ToLower(raw), "arxiv:"), raw); id != "" {
			return arxivPDFBase + id + ".pdf", nil
		}
		return "", fmt.Errorf("%w: %q", ErrInvalidPaperURL, raw)
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaperURL, raw)
	}
	if !isArxivHost(u.Hostname()) {
		return u.String(), nil
	}
	if id := arxivID(u.Path, u.Path); id != "" {
		return arxivPDFBase + id + ".pdf", nil
	}
	u.Scheme = "https"
	return u.String(), nil
}

// arxivID finds a new style id in lower, else an old style id in orig.
// Old style archive names keep their case ("math.GT").
func arxivID(lower, orig string) string {
	if m := newStyleID.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	if m := oldStyleID.FindStringSubmatch(orig); m != nil {
		return m[1]
	}
	return ""
}

func isArxivHost(host string) bool {
	host = strings.ToLower(host)
	return host == "arxiv.org" || strings.HasSuffix(host, ".arxiv.org")
}
