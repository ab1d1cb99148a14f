/**
 * Region-of-interest extraction for transcript pages
 *
 * Title transcripts follow a fixed vertical layout: the register office
 * and document header sit in the top band, the ownership table in the
 * middle and the area breakdown near the bottom. Cropping those bands
 * before recognition keeps each engine call focused on one section.
 */

package preprocess

import (
	"image"
	"sort"
)

// Region names a cropped band of the page.
type Region struct {
	Name string          `json:"name"`
	Rect image.Rectangle `json:"rect"`
}

// Band fractions of the page height, matching the layout of the standard
// transcript form.
const (
	headerBandBottom = 0.10
	ownerBandTop     = 0.30
	ownerBandBottom  = 0.60
	areaBandTop      = 0.60
)

// HeaderBand crops the top tenth of the page: register office, document
// type and issue date.
func HeaderBand(img *image.Gray) *image.Gray {
	return cropBand(img, 0, headerBandBottom)
}

// OwnerBand crops the middle band holding the ownership table.
func OwnerBand(img *image.Gray) *image.Gray {
	return cropBand(img, ownerBandTop, ownerBandBottom)
}

// AreaBand crops everything below the ownership table: area breakdown,
// shared portions and the encumbrance section.
func AreaBand(img *image.Gray) *image.Gray {
	return cropBand(img, areaBandTop, 1.0)
}

// LayoutBands returns the three named bands in reading order.
func LayoutBands(img *image.Gray) []Region {
	b := img.Bounds()
	h := b.Dy()
	return []Region{
		{Name: "header", Rect: bandRect(b, 0, int(float64(h)*headerBandBottom))},
		{Name: "ownership", Rect: bandRect(b, int(float64(h)*ownerBandTop), int(float64(h)*ownerBandBottom))},
		{Name: "area", Rect: bandRect(b, int(float64(h)*areaBandTop), h)},
	}
}

func bandRect(b image.Rectangle, top, bottom int) image.Rectangle {
	return image.Rect(b.Min.X, b.Min.Y+top, b.Max.X, b.Min.Y+bottom)
}

// cropBand returns a sub-image spanning the given fractional height range.
// The result shares pixels with the source.
func cropBand(img *image.Gray, topFrac, bottomFrac float64) *image.Gray {
	b := img.Bounds()
	h := b.Dy()
	top := b.Min.Y + int(float64(h)*topFrac)
	bottom := b.Min.Y + int(float64(h)*bottomFrac)
	if bottom > b.Max.Y {
		bottom = b.Max.Y
	}
	if top >= bottom {
		return image.NewGray(image.Rect(b.Min.X, top, b.Max.X, top))
	}
	return img.SubImage(image.Rect(b.Min.X, top, b.Max.X, bottom)).(*image.Gray)
}

// DetectTextRegions finds horizontal text runs via a row-projection
// profile: rows whose foreground pixel count clears a fraction of the
// page width start a region, a gap of blank rows ends it. Regions come
// back sorted top to bottom.
func DetectTextRegions(img *image.Gray) []Region {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	threshold := OtsuThreshold(img)
	minRowInk := w / 50 // rows with under 2% ink are blank
	if minRowInk < 1 {
		minRowInk = 1
	}

	profile := make([]int, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y < threshold {
				profile[y]++
			}
		}
	}

	const minRegionHeight = 4
	const maxGap = 3

	var regions []Region
	start := -1
	gap := 0
	for y := 0; y <= h; y++ {
		inked := y < h && profile[y] >= minRowInk
		switch {
		case inked && start < 0:
			start = y
			gap = 0
		case inked:
			gap = 0
		case start >= 0:
			gap++
			if gap > maxGap || y == h {
				end := y - gap + 1
				if end-start >= minRegionHeight {
					regions = append(regions, Region{
						Name: "text",
						Rect: image.Rect(bounds.Min.X, bounds.Min.Y+start, bounds.Max.X, bounds.Min.Y+end),
					})
				}
				start = -1
				gap = 0
			}
		}
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Rect.Min.Y < regions[j].Rect.Min.Y
	})
	return regions
}
