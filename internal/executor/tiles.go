package executor

import (
	"image"
	"image/draw"
)

// Tile is one cell of the execution grid. Core is the tile's exclusive
// region in slide coordinates; Read is Core grown by the overlap margin on
// every side so the inference sees context past the cell edge, clipped to
// the slide. Masks are computed over Read and cropped back to Core, so
// adjacent tiles never double-write a pixel.
type Tile struct {
	Row, Col int
	Core     image.Rectangle
	Read     image.Rectangle
}

// Grid partitions bounds into a row-major tileSize grid. Edge tiles are
// clipped, never padded.
func Grid(bounds image.Rectangle, tileSize, overlap int) []Tile {
	if bounds.Empty() {
		return nil
	}
	cols := (bounds.Dx() + tileSize - 1) / tileSize
	rows := (bounds.Dy() + tileSize - 1) / tileSize

	tiles := make([]Tile, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			core := image.Rect(
				bounds.Min.X+col*tileSize,
				bounds.Min.Y+row*tileSize,
				bounds.Min.X+(col+1)*tileSize,
				bounds.Min.Y+(row+1)*tileSize,
			).Intersect(bounds)
			read := core.Inset(-overlap).Intersect(bounds)
			tiles = append(tiles, Tile{Row: row, Col: col, Core: core, Read: read})
		}
	}
	return tiles
}

// cropTile copies the Read region of src into a zero-origin image.
func cropTile(src image.Image, read image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, read.Dx(), read.Dy()))
	draw.Draw(out, out.Bounds(), src, read.Min, draw.Src)
	return out
}

// cropOverlap extracts the Core region from a mask computed over the tile's
// Read region. The mask is in tile-local coordinates, zero-origin.
func cropOverlap(mask *image.Gray, t Tile) *image.Gray {
	rel := t.Core.Sub(t.Read.Min)
	out := image.NewGray(image.Rect(0, 0, rel.Dx(), rel.Dy()))
	draw.Draw(out, out.Bounds(), mask, rel.Min, draw.Src)
	return out
}
