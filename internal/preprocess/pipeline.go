/**
 * Page preprocessing pipeline
 *
 * Runs each rendered page through quality assessment, denoising, skew
 * correction and local contrast enhancement, then encodes the result as
 * PNG for the recognition engines. Low quality never rejects a page; it
 * only adds a warning that surfaces in the record's confidence notes.
 */

package preprocess

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/png"

	"github.com/landreg/transcript-worker/internal/logging"
	"github.com/landreg/transcript-worker/internal/ocrerr"
	"github.com/landreg/transcript-worker/internal/source"
)

// Options controls the pipeline steps per document.
type Options struct {
	DPI              int     `json:"dpi"`
	Denoise          bool    `json:"denoise"`
	DenoiseStrength  float64 `json:"denoise_strength"`
	Deskew           bool    `json:"deskew"`
	Contrast         bool    `json:"contrast"`
	QualityThreshold float64 `json:"quality_threshold"`
}

// DefaultOptions enables the full pipeline at 300 DPI.
func DefaultOptions() Options {
	return Options{
		DPI:              300,
		Denoise:          true,
		DenoiseStrength:  10,
		Deskew:           true,
		Contrast:         true,
		QualityThreshold: DefaultQualityThreshold,
	}
}

// Fingerprint returns a short stable digest of the options, used as the
// trailing component of recognition cache keys so a changed pipeline
// configuration never serves stale results.
func (o Options) Fingerprint() string {
	raw, err := json.Marshal(o)
	if err != nil {
		return "default"
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])[:8]
}

// PageResult is one fully preprocessed page.
type PageResult struct {
	Index    int
	Image    *image.Gray
	PNG      []byte
	Quality  QualityReport
	Skew     float64
	Warnings []string
}

// Pipeline preprocesses rendered pages.
type Pipeline struct {
	opts   Options
	logger *logging.Logger
}

func NewPipeline(opts Options) *Pipeline {
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if opts.QualityThreshold <= 0 {
		opts.QualityThreshold = DefaultQualityThreshold
	}
	return &Pipeline{
		opts:   opts,
		logger: logging.NewLogger("preprocess"),
	}
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// ProcessPage runs the enhancement chain on one page. Quality is assessed
// on the raw render, before any enhancement touches the pixels.
func (p *Pipeline) ProcessPage(ctx context.Context, img *image.Gray, pageIndex int) (*PageResult, error) {
	result := &PageResult{Index: pageIndex, Image: img}

	result.Quality = AssessQuality(img)
	if result.Quality.Score < p.opts.QualityThreshold {
		warning := fmt.Sprintf("page %d scan quality %.2f below threshold %.2f",
			pageIndex+1, result.Quality.Score, p.opts.QualityThreshold)
		result.Warnings = append(result.Warnings, warning)
		p.logger.Warn("Low scan quality", "page", pageIndex+1,
			"score", fmt.Sprintf("%.2f", result.Quality.Score),
			"sharpness", fmt.Sprintf("%.1f", result.Quality.Sharpness),
			"noise", fmt.Sprintf("%.1f", result.Quality.Noise))
	}

	if p.opts.Denoise {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Image = Denoise(result.Image, p.opts.DenoiseStrength)
	}

	if p.opts.Deskew {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Skew = DetectSkew(result.Image)
		result.Image = Deskew(result.Image, result.Skew)
	}

	if p.opts.Contrast {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Image = EnhanceContrast(result.Image)
	}

	encoded, err := EncodePNG(result.Image)
	if err != nil {
		return nil, ocrerr.NewProcessingError("encoding preprocessed page", err,
			map[string]interface{}{"page": pageIndex + 1})
	}
	result.PNG = encoded

	return result, nil
}

// ProcessDocument renders and preprocesses every page of the document. A
// page that fails to render fails the whole document; partial records
// from a half-read transcript are worse than an error.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc source.Document) ([]*PageResult, error) {
	count := doc.PageCount()
	if count == 0 {
		return nil, ocrerr.NewValidationError("document has no pages", nil)
	}

	results := make([]*PageResult, 0, count)
	for i := 0; i < count; i++ {
		img, err := doc.RenderPage(ctx, i, p.opts.DPI)
		if err != nil {
			return nil, ocrerr.NewProcessingError("rendering page", err,
				map[string]interface{}{"page": i + 1, "pages": count})
		}
		page, err := p.ProcessPage(ctx, img, i)
		if err != nil {
			return nil, err
		}
		results = append(results, page)
	}

	return results, nil
}

// EncodePNG serializes a page image for the recognition engines; PNG keeps
// text edges lossless where JPEG would smear them.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
