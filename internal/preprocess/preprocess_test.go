package preprocess

import (
	"context"
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticPage draws dark horizontal text bars on a white page, optionally
// rotated, optionally with additive noise. Deterministic via the seed.
func syntheticPage(w, h int, angleDeg float64, noiseSigma float64, seed int64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}

	theta := angleDeg * math.Pi / 180
	sin, cos := math.Sin(theta), math.Cos(theta)
	cx, cy := float64(w)/2, float64(h)/2

	// Bars every 40 rows, 8 rows tall, inset from the margins.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Rotate the sample point back into the unrotated page frame.
			dx, dy := float64(x)-cx, float64(y)-cy
			ux := cos*dx + sin*dy + cx
			uy := -sin*dx + cos*dy + cy
			if ux < float64(w)/10 || ux > float64(w)*9/10 {
				continue
			}
			row := int(uy)
			if row >= 0 && row%40 < 8 {
				img.SetGray(x, y, color.Gray{Y: 20})
			}
		}
	}

	if noiseSigma > 0 {
		rng := rand.New(rand.NewSource(seed))
		for i, v := range img.Pix {
			img.Pix[i] = clampU8(float64(v) + rng.NormFloat64()*noiseSigma)
		}
	}

	return img
}

func TestOtsuThresholdSeparatesBimodal(t *testing.T) {
	img := syntheticPage(200, 200, 0, 0, 1)
	threshold := OtsuThreshold(img)
	assert.Greater(t, threshold, uint8(20))
	assert.Less(t, threshold, uint8(255))
}

func TestDetectSkewFindsRotation(t *testing.T) {
	for _, angle := range []float64{-6, -3, 3, 6} {
		img := syntheticPage(400, 400, angle, 0, 1)
		got := DetectSkew(img)
		assert.InDeltaf(t, angle, got, 1.5, "angle %.1f detected as %.2f", angle, got)
	}
}

func TestDetectSkewStraightPageNearZero(t *testing.T) {
	img := syntheticPage(400, 400, 0, 0, 1)
	got := DetectSkew(img)
	assert.InDelta(t, 0, got, 1.0)
}

func TestDeskewSkipsSmallAngles(t *testing.T) {
	img := syntheticPage(100, 100, 0, 0, 1)
	out := Deskew(img, 0.3)
	assert.Same(t, img, out, "angles under half a degree must not resample")
}

func TestDeskewStraightensPage(t *testing.T) {
	img := syntheticPage(400, 400, 5, 0, 1)
	angle := DetectSkew(img)
	straightened := Deskew(img, angle)
	residual := DetectSkew(straightened)
	assert.Less(t, math.Abs(residual), math.Abs(angle))
	assert.InDelta(t, 0, residual, 1.5)
}

func TestDenoiseReducesNoise(t *testing.T) {
	noisy := syntheticPage(200, 200, 0, 15, 7)
	denoised := Denoise(noisy, 10)
	assert.Less(t, NoiseLevel(denoised), NoiseLevel(noisy))
}

func TestDenoisePreservesDimensions(t *testing.T) {
	img := syntheticPage(120, 90, 0, 10, 3)
	out := Denoise(img, 10)
	assert.Equal(t, img.Bounds(), out.Bounds())
}

func TestEnhanceContrastStretchesNarrowRange(t *testing.T) {
	// Texture compressed into the 110-125 range; every tile sees the
	// full (narrow) distribution.
	img := image.NewGray(image.Rect(0, 0, 160, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 160; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(110 + (x+y)%16)})
		}
	}

	out := EnhanceContrast(img)
	assert.Greater(t, Contrast(out), 1.5*Contrast(img))
	assert.Equal(t, img.Bounds(), out.Bounds())
}

func TestQualityScoreBounds(t *testing.T) {
	sharp := syntheticPage(200, 200, 0, 0, 1)
	report := AssessQuality(sharp)
	assert.GreaterOrEqual(t, report.Score, 0.0)
	assert.LessOrEqual(t, report.Score, 1.0)
}

func TestQualityRanksCleanAboveNoisy(t *testing.T) {
	clean := syntheticPage(200, 200, 0, 0, 1)
	noisy := syntheticPage(200, 200, 0, 25, 9)
	assert.Greater(t, AssessQuality(clean).Score, AssessQuality(noisy).Score)
}

func TestQualityFlatImageScoresLow(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	report := AssessQuality(flat)
	assert.Less(t, report.Score, DefaultQualityThreshold)
}

func TestLayoutBandsCoverExpectedFractions(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 1000))
	bands := LayoutBands(img)
	require.Len(t, bands, 3)

	assert.Equal(t, "header", bands[0].Name)
	assert.Equal(t, 0, bands[0].Rect.Min.Y)
	assert.Equal(t, 100, bands[0].Rect.Max.Y)

	assert.Equal(t, "ownership", bands[1].Name)
	assert.Equal(t, 300, bands[1].Rect.Min.Y)
	assert.Equal(t, 600, bands[1].Rect.Max.Y)

	assert.Equal(t, "area", bands[2].Name)
	assert.Equal(t, 600, bands[2].Rect.Min.Y)
	assert.Equal(t, 1000, bands[2].Rect.Max.Y)
}

func TestHeaderBandSharesPixels(t *testing.T) {
	img := syntheticPage(200, 400, 0, 0, 1)
	header := HeaderBand(img)
	assert.Equal(t, 40, header.Bounds().Dy())
	assert.Equal(t, img.Bounds().Dx(), header.Bounds().Dx())
}

func TestDetectTextRegionsFindsBars(t *testing.T) {
	img := syntheticPage(400, 400, 0, 0, 1)
	regions := DetectTextRegions(img)
	require.NotEmpty(t, regions)

	// Bars repeat every 40 rows over the full height.
	assert.InDelta(t, 10, len(regions), 2)

	for i := 1; i < len(regions); i++ {
		assert.GreaterOrEqual(t, regions[i].Rect.Min.Y, regions[i-1].Rect.Max.Y,
			"regions must come back sorted top to bottom")
	}
}

func TestDetectTextRegionsBlankPage(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range blank.Pix {
		blank.Pix[i] = 0xFF
	}
	assert.Empty(t, DetectTextRegions(blank))
}

func TestOptionsFingerprintStable(t *testing.T) {
	a := DefaultOptions()
	b := DefaultOptions()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 8)

	b.DPI = 150
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestProcessPageProducesPNG(t *testing.T) {
	p := NewPipeline(DefaultOptions())
	img := syntheticPage(200, 200, 2, 5, 4)

	result, err := p.ProcessPage(context.Background(), img, 0)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.PNG)
	// PNG signature
	assert.Equal(t, []byte{0x89, 0x50, 0x4E, 0x47}, result.PNG[:4])
	assert.Equal(t, img.Bounds(), result.Image.Bounds())
}

func TestProcessPageLowQualityWarns(t *testing.T) {
	p := NewPipeline(DefaultOptions())
	flat := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}

	result, err := p.ProcessPage(context.Background(), flat, 2)
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "page 3")
}

func TestProcessPageHonorsCancellation(t *testing.T) {
	p := NewPipeline(DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessPage(ctx, syntheticPage(100, 100, 0, 0, 1), 0)
	assert.ErrorIs(t, err, context.Canceled)
}
