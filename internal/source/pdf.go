package source

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/ledongthuc/pdf"
)

// PDFDocument wraps a PDF: page counting and embedded-text salvage come
// from the PDF structure itself, rasterization from the injected renderer.
type PDFDocument struct {
	filename string
	data     []byte
	reader   *pdf.Reader
	renderer PageRenderer
}

// NewPDFDocument parses the PDF structure. A nil renderer is allowed; such
// a document can report pages and embedded text but not render.
func NewPDFDocument(filename string, data []byte, renderer PageRenderer) (*PDFDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrNotFound, filename, err)
	}
	return &PDFDocument{
		filename: filename,
		data:     data,
		reader:   reader,
		renderer: renderer,
	}, nil
}

func (d *PDFDocument) PageCount() int {
	return d.reader.NumPage()
}

// RenderPage rasterizes one page (0-indexed) at the requested DPI through
// the external renderer.
func (d *PDFDocument) RenderPage(ctx context.Context, index int, dpi int) (*image.Gray, error) {
	if index < 0 || index >= d.reader.NumPage() {
		return nil, fmt.Errorf("%w: page %d of %s (0-%d)", ErrPageOutOfRange, index, d.filename, d.reader.NumPage()-1)
	}
	if d.renderer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRenderer, d.filename)
	}
	img, err := d.renderer.Render(ctx, d.data, index, dpi)
	if err != nil {
		return nil, fmt.Errorf("rendering page %d of %s: %w", index, d.filename, err)
	}
	return ToGray(img), nil
}

// EmbeddedPageText salvages text embedded in the PDF content stream for
// one page (0-indexed). Scanned transcripts usually have none; when text
// is present it supplements the recognizer as raw material for the field
// parsers.
func (d *PDFDocument) EmbeddedPageText(index int) (string, error) {
	if index < 0 || index >= d.reader.NumPage() {
		return "", fmt.Errorf("%w: page %d of %s", ErrPageOutOfRange, index, d.filename)
	}
	page := d.reader.Page(index + 1) // ledongthuc/pdf pages are 1-based
	if page.V.IsNull() {
		return "", nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extracting text from page %d of %s: %w", index, d.filename, err)
	}
	return text, nil
}
