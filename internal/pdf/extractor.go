// Package pdf turns a PDF file into an ordered, immutable sequence of page
// texts. Extraction is page-independent: a page with no usable text layer
// yields an empty page instead of failing the document.
package pdf

import (
	"fmt"
	"log/slog"

	pdfreader "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageStatus reports whether a page's text layer was readable.
type PageStatus int

const (
	PageOK PageStatus = iota
	PageFailed
)

// Page is one extracted page. Index is 0-based. Text may be empty for pages
// without a text layer or pages that failed extraction.
type Page struct {
	Index  int
	Text   string
	Status PageStatus
}

// Document is the extraction result. Immutable once built.
type Document struct {
	Path  string
	Pages []Page
}

// PageTexts returns the raw text of every page in document order.
func (d *Document) PageTexts() []string {
	out := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		out[i] = p.Text
	}
	return out
}

// FailedPages returns the indices of pages whose extraction failed.
func (d *Document) FailedPages() []int {
	var out []int
	for _, p := range d.Pages {
		if p.Status == PageFailed {
			out = append(out, p.Index)
		}
	}
	return out
}

// ExtractionError means the file as a whole could not be read: not a PDF,
// corrupt, or encrypted without a usable password.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor reads the text layer of PDF files.
type Extractor struct {
	log *slog.Logger
}

func NewExtractor(log *slog.Logger) *Extractor {
	return &Extractor{log: log.With(slog.String("component", "pdf-extractor"))}
}

// Extract opens the file, validates it, and pulls the text layer of every
// page in order. The whole-file checks (parseable, not encrypted) fail with
// ExtractionError before any page is read; individual page failures only
// mark that page.
func (e *Extractor) Extract(path string) (*Document, error) {
	// pdfcpu validates structure up front and rejects encrypted files it
	// cannot open, which is exactly the whole-document failure contract.
	if err := api.ValidateFile(path, nil); err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	f, reader, err := pdfreader.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer f.Close()

	if n := reader.NumPage(); n < pageCount {
		pageCount = n
	}

	doc := &Document{Path: path, Pages: make([]Page, 0, pageCount)}
	for i := 1; i <= pageCount; i++ {
		text, err := extractPage(reader, i)
		page := Page{Index: i - 1, Text: text, Status: PageOK}
		if err != nil {
			page.Status = PageFailed
			page.Text = ""
			e.log.Warn("page extraction failed",
				slog.String("path", path),
				slog.Int("page", i),
				slog.String("error", err.Error()))
		}
		doc.Pages = append(doc.Pages, page)
	}

	e.log.Info("extracted document",
		slog.String("path", path),
		slog.Int("pages", len(doc.Pages)),
		slog.Int("failed_pages", len(doc.FailedPages())))
	return doc, nil
}

// extractPage isolates the reader's occasional panics on malformed content
// streams so one bad page cannot take down the document.
func extractPage(reader *pdfreader.Reader, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", num, r)
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
