package executor

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

// overlayColor picks the preview tint for a job type: red for cell
// segmentation, green for tissue masks.
func overlayColor(jobType models.JobType) color.RGBA {
	if jobType == models.JobTypeSegmentCells {
		return color.RGBA{R: 255, A: 255}
	}
	return color.RGBA{G: 255, A: 255}
}

// previewBuilder accumulates per-tile masks into a downscaled canvas so the
// full-resolution mask never has to exist in memory.
type previewBuilder struct {
	srcBounds image.Rectangle
	bounds    image.Rectangle
	scale     float64
	mask      *image.Gray
}

func newPreviewBuilder(srcBounds image.Rectangle, maxDim int) *previewBuilder {
	w, h := srcBounds.Dx(), srcBounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	scale := 1.0
	if longest > maxDim {
		scale = float64(maxDim) / float64(longest)
	}
	pw := int(float64(w)*scale + 0.5)
	ph := int(float64(h)*scale + 0.5)
	if pw < 1 {
		pw = 1
	}
	if ph < 1 {
		ph = 1
	}
	bounds := image.Rect(0, 0, pw, ph)
	return &previewBuilder{
		srcBounds: srcBounds,
		bounds:    bounds,
		scale:     scale,
		mask:      image.NewGray(bounds),
	}
}

// scaleRect maps a slide-coordinate rectangle into preview coordinates.
func (p *previewBuilder) scaleRect(r image.Rectangle) image.Rectangle {
	rel := r.Sub(p.srcBounds.Min)
	out := image.Rect(
		int(float64(rel.Min.X)*p.scale),
		int(float64(rel.Min.Y)*p.scale),
		int(float64(rel.Max.X)*p.scale+0.5),
		int(float64(rel.Max.Y)*p.scale+0.5),
	)
	return out.Intersect(p.bounds)
}

// addMask scales a tile's core mask into the accumulated preview mask.
func (p *previewBuilder) addMask(coreMask *image.Gray, core image.Rectangle) {
	dst := p.scaleRect(core)
	if dst.Empty() {
		return
	}
	xdraw.ApproxBiLinear.Scale(p.mask, dst, coreMask, coreMask.Bounds(), xdraw.Src, nil)
}

// compose downscales the slide and tints positive mask pixels with the
// overlay color at half strength.
func (p *previewBuilder) compose(src image.Image, overlay color.RGBA) *image.RGBA {
	out := image.NewRGBA(p.bounds)
	xdraw.ApproxBiLinear.Scale(out, p.bounds, src, src.Bounds(), xdraw.Src, nil)

	for y := p.bounds.Min.Y; y < p.bounds.Max.Y; y++ {
		for x := p.bounds.Min.X; x < p.bounds.Max.X; x++ {
			if p.mask.GrayAt(x, y).Y < 128 {
				continue
			}
			c := out.RGBAAt(x, y)
			c.R = uint8((uint16(c.R) + uint16(overlay.R)) / 2)
			c.G = uint8((uint16(c.G) + uint16(overlay.G)) / 2)
			c.B = uint8((uint16(c.B) + uint16(overlay.B)) / 2)
			out.SetRGBA(x, y, c)
		}
	}
	return out
}
