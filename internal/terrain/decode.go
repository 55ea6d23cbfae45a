package terrain

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Skew divisors for elevated terrain. The source grid stores tall terrain
// shifted by its perspective offset; these were measured against live
// captures of one client version and must not be changed without
// re-checking against real area data.
const (
	// RowSkewDivisor is the height (world units) per row of upward shift.
	RowSkewDivisor = 21
	// ColumnSkewDivisor is the height (world units) per packed byte of
	// leftward shift.
	ColumnSkewDivisor = 41
)

// Cell codes. 1 and 2 are walkable; 0, 3, 4 and 5 are drawn as
// non-walkable. Any other value means the grid format has changed.
const (
	codeBlocked   = 0
	codeWalkable  = 1
	codeWalkableB = 2
	codeBlockedB  = 3
	codeBlockedC  = 4
	codeBlockedD  = 5
	nibbleBits    = 4
	nibbleMask    = 0x0F
	pixelsPerByte = 2
)

// ErrUnknownTerrainCode reports a cell code outside the known set.
var ErrUnknownTerrainCode = errors.New("terrain: unrecognized terrain code")

// DecodeError locates an unknown cell code in the output bitmap.
type DecodeError struct {
	Row    int
	Column int
	Code   byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("terrain: unrecognized terrain code %d at row %d column %d", e.Code, e.Row, e.Column)
}

func (e *DecodeError) Unwrap() error { return ErrUnknownTerrainCode }

// DecodeOptions controls decode parallelism.
type DecodeOptions struct {
	// Workers bounds the number of rows decoded concurrently. Zero uses
	// GOMAXPROCS.
	Workers int
}

// Decode converts the packed grid into a bitmap using default options.
func Decode(grid Grid, walkable, nonWalkable color.NRGBA) (*Bitmap, error) {
	return DecodeWithOptions(context.Background(), grid, walkable, nonWalkable, DecodeOptions{})
}

// DecodeWithOptions converts the packed grid into a bitmap. The first
// unknown cell code aborts the decode and no bitmap is returned.
func DecodeWithOptions(ctx context.Context, grid Grid, walkable, nonWalkable color.NRGBA, opts DecodeOptions) (*Bitmap, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	width, height := grid.Width(), grid.Rows()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < height; i++ {
		row := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return decodeRow(grid, img, row, walkable, nonWalkable)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Bitmap{Width: width, Height: height, Image: img}, nil
}

// decodeRow fills output row i. It only writes pixels of row i.
func decodeRow(grid Grid, img *image.NRGBA, i int, walkable, nonWalkable color.NRGBA) error {
	width, height := grid.Width(), grid.Rows()
	for x := 0; x < width-1; x += pixelsPerByte {
		// Height is indexed by pixel column, not byte column.
		terrainHeight := grid.Heights[i][x]

		yAxis := i
		if shifted := i - terrainHeight/RowSkewDivisor; shifted >= 0 && shifted < height {
			yAxis = shifted
		}

		index := yAxis*grid.BytesPerRow + x/pixelsPerByte
		if shifted := index - terrainHeight/ColumnSkewDivisor; shifted >= 0 && shifted < len(grid.Packed) {
			index = shifted
		}

		data := grid.Packed[index]
		for k := 0; k < pixelsPerByte; k++ {
			code := (data >> (nibbleBits * k)) & nibbleMask
			var c color.NRGBA
			switch code {
			case codeWalkable, codeWalkableB:
				c = walkable
			case codeBlocked, codeBlockedB, codeBlockedC, codeBlockedD:
				c = nonWalkable
			default:
				return &DecodeError{Row: i, Column: x + k, Code: code}
			}
			off := img.PixOffset(x+k, i)
			img.Pix[off+0] = c.R
			img.Pix[off+1] = c.G
			img.Pix[off+2] = c.B
			img.Pix[off+3] = c.A
		}
	}
	return nil
}
