package inference

import (
	"image"
	"image/color"

	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

// luminance maps a color to 8-bit grayscale using the Rec. 601 weights.
func luminance(c color.Color) uint8 {
	r, g, b, _ := c.RGBA()
	y := (299*r + 587*g + 114*b) / 1000
	return uint8(y >> 8)
}

func grayscale(tile image.Image) *image.Gray {
	b := tile.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.SetGray(x, y, color.Gray{Y: luminance(tile.At(x, y))})
		}
	}
	return gray
}

func binarize(gray *image.Gray, threshold uint8, darkIsPositive bool) *image.Gray {
	b := gray.Bounds()
	mask := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dark := gray.GrayAt(x, y).Y < threshold
			if dark == darkIsPositive {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return mask
}

// MeanThreshold marks pixels darker than the tile's mean luminance. Cell
// nuclei stain darker than their surroundings, so this is the deterministic
// stand-in when no segmentation model is wired in.
func MeanThreshold(tile image.Image) (*image.Gray, error) {
	b := tile.Bounds()
	if b.Empty() {
		return nil, models.NewError(models.KindInvalid, "empty tile")
	}
	gray := grayscale(tile)

	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += uint64(gray.GrayAt(x, y).Y)
		}
	}
	mean := uint8(sum / uint64(b.Dx()*b.Dy()))
	return binarize(gray, mean, true), nil
}

// OtsuThreshold separates tissue from background by maximizing between-class
// variance of the luminance histogram. Tissue is the darker class.
func OtsuThreshold(tile image.Image) (*image.Gray, error) {
	b := tile.Bounds()
	if b.Empty() {
		return nil, models.NewError(models.KindInvalid, "empty tile")
	}
	gray := grayscale(tile)

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}

	total := b.Dx() * b.Dy()
	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i) * float64(n)
	}

	var sumBelow, weightBelow float64
	var best float64
	threshold := 0
	for i := 0; i < 256; i++ {
		weightBelow += float64(hist[i])
		if weightBelow == 0 {
			continue
		}
		weightAbove := float64(total) - weightBelow
		if weightAbove == 0 {
			break
		}
		sumBelow += float64(i) * float64(hist[i])
		meanBelow := sumBelow / weightBelow
		meanAbove := (sumAll - sumBelow) / weightAbove
		between := weightBelow * weightAbove * (meanBelow - meanAbove) * (meanBelow - meanAbove)
		if between > best {
			best = between
			threshold = i
		}
	}

	return binarize(gray, uint8(threshold)+1, true), nil
}
