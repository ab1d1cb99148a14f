/**
 * Scan quality scoring
 *
 * Sharpness, contrast and noise estimates combined into a single score in
 * [0, 1]. Pages under the configured threshold are still processed; the
 * score only feeds the confidence notes on the final record.
 */

package preprocess

import (
	"image"
	"math"
)

// QualityReport carries the raw metrics plus the composite score.
type QualityReport struct {
	Sharpness float64 `json:"sharpness"`
	Contrast  float64 `json:"contrast"`
	Noise     float64 `json:"noise"`
	Score     float64 `json:"score"`
}

// DefaultQualityThreshold is the score below which a page is flagged as
// low quality in the record's confidence notes.
const DefaultQualityThreshold = 0.5

// AssessQuality computes the three raw metrics and the weighted composite:
// 40% sharpness (normalized at 500), 30% contrast (normalized at 100) and
// 30% inverted noise (normalized at 50), clamped to [0, 1].
func AssessQuality(img *image.Gray) QualityReport {
	sharpness := Sharpness(img)
	contrast := Contrast(img)
	noise := NoiseLevel(img)

	score := 0.4*math.Min(sharpness/500.0, 1.0) +
		0.3*math.Min(contrast/100.0, 1.0) +
		0.3*math.Max(0.0, 1.0-noise/50.0)
	score = math.Max(0.0, math.Min(score, 1.0))

	return QualityReport{
		Sharpness: sharpness,
		Contrast:  contrast,
		Noise:     noise,
		Score:     score,
	}
}

// Sharpness is the variance of the Laplacian response: blurred scans have
// weak second derivatives everywhere, crisp text has strong ones at every
// stroke edge.
func Sharpness(img *image.Gray) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := int(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			up := int(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y-1).Y)
			down := int(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y+1).Y)
			left := int(img.GrayAt(bounds.Min.X+x-1, bounds.Min.Y+y).Y)
			right := int(img.GrayAt(bounds.Min.X+x+1, bounds.Min.Y+y).Y)

			lap := float64(up + down + left + right - 4*c)
			sum += lap
			sumSq += lap * lap
			n++
		}
	}

	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// Contrast is the standard deviation of pixel intensities.
func Contrast(img *image.Gray) float64 {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	var sum, sumSq float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := float64(img.GrayAt(x, y).Y)
			sum += v
			sumSq += v * v
		}
	}

	mean := sum / float64(total)
	variance := sumSq/float64(total) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// NoiseLevel estimates scan grain as the median absolute deviation of the
// residual after a 3x3 median filter. Text strokes survive the median, so
// what remains is mostly sensor and compression noise.
func NoiseLevel(img *image.Gray) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	var residualHist [256]int
	n := 0
	var window [9]uint8
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window[k] = img.GrayAt(bounds.Min.X+x+dx, bounds.Min.Y+y+dy).Y
					k++
				}
			}
			med := median9(window)
			diff := int(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y) - int(med)
			if diff < 0 {
				diff = -diff
			}
			residualHist[diff]++
			n++
		}
	}

	// Median of the absolute residuals via the histogram.
	half := n / 2
	cum := 0
	for v := 0; v < 256; v++ {
		cum += residualHist[v]
		if cum > half {
			// Scaled so Gaussian noise maps MAD to its sigma.
			return float64(v) * 1.4826
		}
	}
	return 0
}

// median9 returns the median of a 3x3 window via insertion sort; the fixed
// size makes this faster than sorting a slice per pixel.
func median9(w [9]uint8) uint8 {
	for i := 1; i < 9; i++ {
		v := w[i]
		j := i - 1
		for j >= 0 && w[j] > v {
			w[j+1] = w[j]
			j--
		}
		w[j+1] = v
	}
	return w[4]
}
