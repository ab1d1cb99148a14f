/**
 * Document sources for the preprocessing pipeline
 *
 * A Document yields a page count and a renderable page given an index.
 * Image files render themselves; PDF rasterization is an external
 * collaborator supplied as a PageRenderer. Missing or unreadable sources
 * surface ErrNotFound.
 */

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	// ErrNotFound reports a missing or unreadable source document.
	ErrNotFound = errors.New("source document not found or unreadable")

	// ErrPageOutOfRange reports a page index outside the document.
	ErrPageOutOfRange = errors.New("page index out of range")

	// ErrNoRenderer reports a PDF source without a configured renderer.
	ErrNoRenderer = errors.New("no page renderer configured for PDF source")
)

// Document is one source document: a page count plus renderable pages.
type Document interface {
	PageCount() int
	RenderPage(ctx context.Context, index int, dpi int) (*image.Gray, error)
}

// PageRenderer rasterizes one PDF page at the requested DPI. Rendering is
// delegated to an external collaborator; this worker only consumes the
// produced raster.
type PageRenderer interface {
	Render(ctx context.Context, data []byte, pageIndex int, dpi int) (image.Image, error)
}

// FromBytes builds a Document from raw file content. The format is sniffed
// from magic bytes, not the filename; upload metadata lies often enough
// that the filename is only used for error messages.
func FromBytes(filename string, data []byte, renderer PageRenderer) (Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNotFound, filename)
	}

	switch DetectFormat(data) {
	case FormatPDF:
		return NewPDFDocument(filename, data, renderer)
	case FormatPNG, FormatJPEG, FormatTIFF, FormatBMP:
		return NewImageDocument(filename, data)
	default:
		return nil, fmt.Errorf("%w: %s has unrecognized format", ErrNotFound, filename)
	}
}

// Format is a sniffed source file format.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatTIFF    Format = "tiff"
	FormatBMP     Format = "bmp"
	FormatUnknown Format = "unknown"
)

// DetectFormat sniffs the file format from content magic bytes.
func DetectFormat(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return FormatPDF
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return FormatPNG
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return FormatJPEG
	}

	// TIFF: 'I' 'I' 0x2A 0x00 (little-endian) or 'M' 'M' 0x00 0x2A (big-endian)
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return FormatTIFF
	}

	// BMP: 'B' 'M'
	if bytes.HasPrefix(data, []byte("BM")) {
		return FormatBMP
	}

	return FormatUnknown
}
