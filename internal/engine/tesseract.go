/**
 * Tesseract fallback engine
 *
 * Offline last resort when every hosted vision model is unavailable.
 * Tesseract cannot produce the structured form directly, so this engine
 * yields raw text only; the downstream field parsers mine it for the
 * land numbers, areas, owners and dates they can still find.
 */

package engine

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/landreg/transcript-worker/internal/ocrerr"
)

// TesseractEngine runs local Tesseract with Traditional Chinese support.
type TesseractEngine struct {
	languages []string
	enabled   bool
}

// NewTesseractEngine builds the offline fallback. Languages default to
// Traditional Chinese plus English for the mixed numbering on transcripts.
func NewTesseractEngine(languages []string, enabled bool) *TesseractEngine {
	if len(languages) == 0 {
		languages = []string{"chi_tra", "eng"}
	}
	return &TesseractEngine{languages: languages, enabled: enabled}
}

func (e *TesseractEngine) Name() string {
	return "tesseract-local"
}

func (e *TesseractEngine) Ready() bool {
	return e.enabled
}

func (e *TesseractEngine) Recognize(ctx context.Context, pagePNG []byte) (*Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return nil, ocrerr.NewRecognitionError("configuring tesseract languages", err,
			map[string]interface{}{"languages": strings.Join(e.languages, "+")})
	}
	if err := client.SetImageFromBytes(pagePNG); err != nil {
		return nil, ocrerr.NewRecognitionError("loading page into tesseract", err, nil)
	}

	text, err := client.Text()
	if err != nil {
		return nil, ocrerr.NewRecognitionError("tesseract recognition failed", err, nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ocrerr.NewRecognitionError("tesseract produced no text", nil, nil)
	}

	return &Fields{RawText: text}, nil
}
