package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"

	// Registered decoders for the formats DetectFormat recognizes.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ImageDocument is a single photographed or scanned page.
type ImageDocument struct {
	filename string
	img      image.Image
}

// NewImageDocument decodes raw image bytes into a one-page document.
func NewImageDocument(filename string, data []byte) (*ImageDocument, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrNotFound, filename, err)
	}
	return &ImageDocument{filename: filename, img: img}, nil
}

func (d *ImageDocument) PageCount() int {
	return 1
}

// RenderPage returns the decoded image as grayscale. Image files carry
// their own resolution, so the requested DPI is advisory here.
func (d *ImageDocument) RenderPage(ctx context.Context, index int, dpi int) (*image.Gray, error) {
	if index != 0 {
		return nil, fmt.Errorf("%w: page %d of single-image document %s", ErrPageOutOfRange, index, d.filename)
	}
	return ToGray(d.img), nil
}

// ToGray converts any decoded image to 8-bit grayscale.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}
