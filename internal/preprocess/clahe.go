package preprocess

import (
	"image"
	"image/color"
)

// claheGray performs contrast-limited adaptive histogram equalization on a
// grayscale image: per-tile clipped equalization with bilinear blending
// between neighboring tile mappings to avoid visible tile seams.
func claheGray(img *image.Gray, tilesX, tilesY int, clipLimit float64) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return img
	}
	if tilesX < 1 {
		tilesX = 1
	}
	if tilesY < 1 {
		tilesY = 1
	}
	if tilesX > w {
		tilesX = w
	}
	if tilesY > h {
		tilesY = h
	}

	tileW := (w + tilesX - 1) / tilesX
	tileH := (h + tilesY - 1) / tilesY

	// Per-tile intensity mappings.
	mappings := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0 := tx * tileW
			y0 := ty * tileH
			x1 := minInt(x0+tileW, w)
			y1 := minInt(y0+tileH, h)

			var hist [256]int
			count := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y]++
					count++
				}
			}
			if count == 0 {
				continue
			}

			clipHistogram(&hist, count, clipLimit)

			var mapping [256]uint8
			cum := 0
			for v := 0; v < 256; v++ {
				cum += hist[v]
				mapping[v] = clampU8(float64(cum) * 255.0 / float64(count))
			}
			mappings[ty*tilesX+tx] = mapping
		}
	}

	out := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y

			// Position relative to tile centers.
			fx := (float64(x) - float64(tileW)/2) / float64(tileW)
			fy := (float64(y) - float64(tileH)/2) / float64(tileH)

			tx0 := int(fx)
			ty0 := int(fy)
			if fx < 0 {
				tx0 = -1
			}
			if fy < 0 {
				ty0 = -1
			}
			wx := fx - float64(tx0)
			wy := fy - float64(ty0)

			tx0c := clampInt(tx0, 0, tilesX-1)
			tx1c := clampInt(tx0+1, 0, tilesX-1)
			ty0c := clampInt(ty0, 0, tilesY-1)
			ty1c := clampInt(ty0+1, 0, tilesY-1)

			v00 := float64(mappings[ty0c*tilesX+tx0c][v])
			v01 := float64(mappings[ty0c*tilesX+tx1c][v])
			v10 := float64(mappings[ty1c*tilesX+tx0c][v])
			v11 := float64(mappings[ty1c*tilesX+tx1c][v])

			top := v00*(1-wx) + v01*wx
			bot := v10*(1-wx) + v11*wx
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: clampU8(top*(1-wy) + bot*wy)})
		}
	}

	return out
}

// clipHistogram caps each bin at clipLimit times the uniform bin height and
// redistributes the clipped mass evenly.
func clipHistogram(hist *[256]int, count int, clipLimit float64) {
	if clipLimit <= 0 {
		return
	}
	limit := int(clipLimit * float64(count) / 256.0)
	if limit < 1 {
		limit = 1
	}

	excess := 0
	for v := 0; v < 256; v++ {
		if hist[v] > limit {
			excess += hist[v] - limit
			hist[v] = limit
		}
	}

	share := excess / 256
	remainder := excess % 256
	for v := 0; v < 256; v++ {
		hist[v] += share
		if v < remainder {
			hist[v]++
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
