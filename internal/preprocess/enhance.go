/**
 * Image enhancement for scanned transcript pages
 *
 * Denoising, skew detection/correction and local contrast equalization.
 * Each operation takes and returns an 8-bit grayscale image and never
 * mutates its input.
 */

package preprocess

import (
	"image"
	"image/color"
	"math"
	"sort"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Denoise applies edge-preserving smoothing: a small bilateral-style
// filter that averages neighbors weighted by spatial distance and by
// intensity similarity, so strokes keep their edges while scan grain
// flattens out.
func Denoise(img *image.Gray, strength float64) *image.Gray {
	if strength <= 0 {
		strength = 10
	}

	const radius = 2
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(bounds)

	// Precomputed spatial weights for the (2r+1)^2 window.
	var spatial [2*radius + 1][2*radius + 1]float64
	sigmaSpace := float64(radius)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			spatial[dy+radius][dx+radius] = math.Exp(-d2 / (2 * sigmaSpace * sigmaSpace))
		}
	}

	// Range weights over the 256 possible intensity deltas.
	var rangeWeight [256]float64
	sigmaRange := strength * 2.5
	for d := 0; d < 256; d++ {
		rangeWeight[d] = math.Exp(-float64(d*d) / (2 * sigmaRange * sigmaRange))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y
			var sum, weightSum float64
			for dy := -radius; dy <= radius; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w {
						continue
					}
					v := img.GrayAt(bounds.Min.X+xx, bounds.Min.Y+yy).Y
					delta := int(v) - int(center)
					if delta < 0 {
						delta = -delta
					}
					wgt := spatial[dy+radius][dx+radius] * rangeWeight[delta]
					sum += wgt * float64(v)
					weightSum += wgt
				}
			}
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: clampU8(sum / weightSum)})
		}
	}

	return out
}

// DetectSkew estimates the dominant rotation of the page in degrees via a
// minimum-area bounding box over thresholded foreground pixels. Returns 0
// when too few foreground pixels exist to estimate anything.
func DetectSkew(img *image.Gray) float64 {
	threshold := OtsuThreshold(img)
	points := foregroundPoints(img, threshold, 50000)
	if len(points) < 5 {
		return 0.0
	}

	hull := convexHull(points)
	if len(hull) < 3 {
		return 0.0
	}

	angle := minAreaRectAngle(hull)

	// Normalize into (-45, 45]: a page is never off by more than that,
	// and the rect angle is ambiguous modulo 90.
	if angle < -45 {
		angle += 90
	} else if angle > 45 {
		angle -= 90
	}

	return angle
}

// Deskew rotates the image by the negative of the detected angle. Angles
// below 0.5 degrees are left alone; re-sampling an already-straight page
// only re-introduces blur.
func Deskew(img *image.Gray, angle float64) *image.Gray {
	if math.Abs(angle) < 0.5 {
		return img
	}
	return rotate(img, -angle)
}

// rotate rotates the image about its center by the given angle in degrees,
// bilinear-resampled, with white fill outside the source.
func rotate(img *image.Gray, degrees float64) *image.Gray {
	bounds := img.Bounds()
	dst := image.NewGray(bounds)
	for i := range dst.Pix {
		dst.Pix[i] = 0xFF
	}

	theta := degrees * math.Pi / 180
	sin, cos := math.Sin(theta), math.Cos(theta)
	cx := float64(bounds.Min.X) + float64(bounds.Dx())/2
	cy := float64(bounds.Min.Y) + float64(bounds.Dy())/2

	// Source-to-destination affine: rotate about (cx, cy).
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	xdraw.BiLinear.Transform(dst, m, img, bounds, xdraw.Src, nil)

	return dst
}

// EnhanceContrast applies tile-based local histogram equalization with a
// clip limit, the document-scan variant of adaptive equalization: global
// equalization would blow out stamps and shading, local tiles keep the
// text bands readable.
func EnhanceContrast(img *image.Gray) *image.Gray {
	return claheGray(img, 8, 8, 2.0)
}

// OtsuThreshold computes the global binarization threshold that maximizes
// between-class variance.
func OtsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * float64(c)
	}

	var sumBg, weightBg float64
	var best float64
	var threshold uint8
	for t := 0; t < 256; t++ {
		weightBg += float64(hist[t])
		if weightBg == 0 {
			continue
		}
		weightFg := float64(total) - weightBg
		if weightFg == 0 {
			break
		}
		sumBg += float64(t) * float64(hist[t])
		meanBg := sumBg / weightBg
		meanFg := (sumAll - sumBg) / weightFg
		between := weightBg * weightFg * (meanBg - meanFg) * (meanBg - meanFg)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}

	return threshold
}

type point struct{ x, y float64 }

// foregroundPoints collects dark (text) pixels below the threshold,
// subsampled so the skew estimate stays cheap on 300 DPI pages.
func foregroundPoints(img *image.Gray, threshold uint8, maxPoints int) []point {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	stride := 1
	if maxPoints > 0 && total > maxPoints {
		stride = int(math.Ceil(math.Sqrt(float64(total) / float64(maxPoints))))
	}

	var points []point
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			if img.GrayAt(x, y).Y < threshold {
				points = append(points, point{float64(x), float64(y)})
			}
		}
	}
	return points
}

// convexHull computes the hull with Andrew's monotone chain. Input is
// reordered in place.
func convexHull(points []point) []point {
	n := len(points)
	if n < 3 {
		return points
	}

	sortPoints(points)

	hull := make([]point, 0, 2*n)
	// Lower hull
	for _, p := range points {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// Upper hull
	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := points[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	return hull[:len(hull)-1]
}

func sortPoints(points []point) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].x != points[j].x {
			return points[i].x < points[j].x
		}
		return points[i].y < points[j].y
	})
}

func cross(o, a, b point) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// minAreaRectAngle runs rotating calipers over the hull: the minimum-area
// enclosing rectangle has one side collinear with a hull edge, so testing
// every edge orientation finds it.
func minAreaRectAngle(hull []point) float64 {
	bestArea := math.Inf(1)
	bestAngle := 0.0

	for i := 0; i < len(hull); i++ {
		j := (i + 1) % len(hull)
		dx := hull[j].x - hull[i].x
		dy := hull[j].y - hull[i].y
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		ux, uy := dx/length, dy/length // edge direction
		vx, vy := -uy, ux              // edge normal

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			u := p.x*ux + p.y*uy
			v := p.x*vx + p.y*vy
			minU = math.Min(minU, u)
			maxU = math.Max(maxU, u)
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}

		area := (maxU - minU) * (maxV - minV)
		if area < bestArea {
			bestArea = area
			bestAngle = math.Atan2(uy, ux) * 180 / math.Pi
		}
	}

	return bestAngle
}

func clampU8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
