package terrain

import (
	"errors"
	"fmt"
	"image"
)

// ErrGridShape is returned when the packed cells and height grid do not
// describe a rectangular terrain snapshot.
var ErrGridShape = errors.New("terrain: malformed grid")

// Grid is an immutable per-area walkability snapshot. Each packed byte
// holds two 4-bit cell codes, low nibble first.
type Grid struct {
	BytesPerRow int
	Packed      []byte
	// Heights is indexed [row][pixel column].
	Heights [][]int
}

// Rows returns the number of terrain rows.
func (g Grid) Rows() int {
	if g.BytesPerRow <= 0 {
		return 0
	}
	return len(g.Packed) / g.BytesPerRow
}

// Width returns the decoded bitmap width in pixels.
func (g Grid) Width() int {
	return g.BytesPerRow * 2
}

// Validate checks that the grid can be decoded.
func (g Grid) Validate() error {
	if g.BytesPerRow <= 0 {
		return fmt.Errorf("%w: bytes per row must be positive, got %d", ErrGridShape, g.BytesPerRow)
	}
	if len(g.Packed)%g.BytesPerRow != 0 {
		return fmt.Errorf("%w: %d packed bytes is not a multiple of stride %d", ErrGridShape, len(g.Packed), g.BytesPerRow)
	}
	rows := g.Rows()
	if len(g.Heights) < rows {
		return fmt.Errorf("%w: height grid has %d rows, need %d", ErrGridShape, len(g.Heights), rows)
	}
	// The last pixel pair reads its height from column width-2.
	need := g.Width() - 1
	for i := 0; i < rows; i++ {
		if len(g.Heights[i]) < need {
			return fmt.Errorf("%w: height row %d has %d columns, need %d", ErrGridShape, i, len(g.Heights[i]), need)
		}
	}
	return nil
}

// HeightAt returns the terrain height at a grid position, or 0 when the
// position falls outside the height grid.
func (g Grid) HeightAt(x, y int) int {
	if y < 0 || y >= len(g.Heights) || x < 0 || x >= len(g.Heights[y]) {
		return 0
	}
	return g.Heights[y][x]
}

// Bitmap is the decoded walkability image. Width and Height always derive
// from the Grid it was decoded from.
type Bitmap struct {
	Width  int
	Height int
	Image  *image.NRGBA
}

// Clone returns a copy with its own pixel buffer. A nil bitmap clones to nil.
func (b *Bitmap) Clone() *Bitmap {
	if b == nil {
		return nil
	}
	out := &Bitmap{Width: b.Width, Height: b.Height}
	if b.Image != nil {
		img := *b.Image
		img.Pix = append([]uint8(nil), b.Image.Pix...)
		out.Image = &img
	}
	return out
}

// SizeBytes returns the size of the pixel buffer.
func (b *Bitmap) SizeBytes() int {
	if b == nil || b.Image == nil {
		return 0
	}
	return len(b.Image.Pix)
}
