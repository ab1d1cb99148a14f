package source

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Format
	}{
		{"pdf", []byte("%PDF-1.7\n"), FormatPDF},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, FormatJPEG},
		{"tiff little endian", []byte{0x49, 0x49, 0x2A, 0x00, 0x08}, FormatTIFF},
		{"tiff big endian", []byte{0x4D, 0x4D, 0x00, 0x2A, 0x08}, FormatTIFF},
		{"bmp", []byte("BMxxxx"), FormatBMP},
		{"plain text", []byte("hello world"), FormatUnknown},
		{"too short", []byte{0x89}, FormatUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectFormat(tc.data))
		})
	}

	t.Run("png", func(t *testing.T) {
		assert.Equal(t, FormatPNG, DetectFormat(pngBytes(t, 4, 4)))
	})
}

func TestImageDocumentRoundTrip(t *testing.T) {
	doc, err := FromBytes("scan.png", pngBytes(t, 12, 20), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.PageCount())

	gray, err := doc.RenderPage(context.Background(), 0, 300)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 20), gray.Bounds())

	_, err = doc.RenderPage(context.Background(), 1, 300)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestFromBytesRejectsGarbage(t *testing.T) {
	_, err := FromBytes("note.txt", []byte("not an image"), nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = FromBytes("empty.png", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	// Valid magic bytes but truncated body.
	_, err = FromBytes("broken.png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToGrayPassesThroughGray(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 5, 5))
	assert.Same(t, g, ToGray(g))
}
