package terrain

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testWalkable = color.NRGBA{R: 150, G: 200, B: 255, A: 255}
	transparent  = color.NRGBA{}
)

// flatGrid builds a grid with all heights zero.
func flatGrid(bytesPerRow int, packed ...byte) Grid {
	rows := len(packed) / bytesPerRow
	heights := make([][]int, rows)
	for i := range heights {
		heights[i] = make([]int, bytesPerRow*2)
	}
	return Grid{BytesPerRow: bytesPerRow, Packed: packed, Heights: heights}
}

func pixel(b *Bitmap, x, y int) color.NRGBA {
	return b.Image.NRGBAAt(x, y)
}

func TestDecode_BothNibblesWalkable(t *testing.T) {
	bmp, err := Decode(flatGrid(1, 0x21), testWalkable, transparent)
	require.NoError(t, err)

	assert.Equal(t, testWalkable, pixel(bmp, 0, 0))
	assert.Equal(t, testWalkable, pixel(bmp, 1, 0))
}

func TestDecode_BlockedNibblesTransparent(t *testing.T) {
	bmp, err := Decode(flatGrid(1, 0x30), testWalkable, transparent)
	require.NoError(t, err)

	assert.Equal(t, transparent, pixel(bmp, 0, 0))
	assert.Equal(t, transparent, pixel(bmp, 1, 0))
}

func TestDecode_AllKnownCodes(t *testing.T) {
	// Codes 0-5 in pairs: (0,1) (2,3) (4,5).
	bmp, err := Decode(flatGrid(3, 0x10, 0x32, 0x54), testWalkable, transparent)
	require.NoError(t, err)

	want := []color.NRGBA{transparent, testWalkable, testWalkable, transparent, transparent, transparent}
	for x, w := range want {
		assert.Equal(t, w, pixel(bmp, x, 0), "pixel %d", x)
	}
}

func TestDecode_NonWalkableColourApplied(t *testing.T) {
	grey := color.NRGBA{R: 10, G: 10, B: 10, A: 80}
	bmp, err := Decode(flatGrid(1, 0x40), testWalkable, grey)
	require.NoError(t, err)

	assert.Equal(t, grey, pixel(bmp, 0, 0))
	assert.Equal(t, grey, pixel(bmp, 1, 0))
}

func TestDecode_UnknownCodeIsFatal(t *testing.T) {
	for _, b := range []byte{0x06, 0x60, 0xF1} {
		bmp, err := Decode(flatGrid(2, 0x11, b), testWalkable, transparent)
		assert.Nil(t, bmp)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownTerrainCode), "byte %#x: %v", b, err)

		var de *DecodeError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, 0, de.Row)
	}
}

func TestDecode_UnknownCodeLocation(t *testing.T) {
	_, err := Decode(flatGrid(2, 0x11, 0x11, 0x11, 0x71), testWalkable, transparent)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Row)
	assert.Equal(t, 3, de.Column)
	assert.Equal(t, byte(7), de.Code)
}

func TestDecode_Dimensions(t *testing.T) {
	cases := []struct {
		stride int
		rows   int
	}{
		{1, 1}, {2, 5}, {7, 3}, {16, 16},
	}
	for _, tc := range cases {
		packed := make([]byte, tc.stride*tc.rows)
		bmp, err := Decode(flatGrid(tc.stride, packed...), testWalkable, transparent)
		require.NoError(t, err)
		assert.Equal(t, tc.stride*2, bmp.Width)
		assert.Equal(t, tc.rows, bmp.Height)
		assert.Equal(t, tc.stride*2, bmp.Image.Bounds().Dx())
		assert.Equal(t, tc.rows, bmp.Image.Bounds().Dy())
		assert.Equal(t, tc.stride*2*tc.rows*4, bmp.SizeBytes())
	}
}

func TestDecode_Deterministic(t *testing.T) {
	g := Grid{
		BytesPerRow: 4,
		Packed: []byte{
			0x12, 0x30, 0x45, 0x01,
			0x21, 0x11, 0x00, 0x22,
			0x10, 0x02, 0x53, 0x12,
		},
		Heights: [][]int{
			{0, 5, 41, 0, 90, 0, 0, 0},
			{21, 0, 0, 0, -21, 0, 44, 0},
			{63, 0, 0, 0, 0, 0, 82, 0},
		},
	}
	a, err := DecodeWithOptions(context.Background(), g, testWalkable, transparent, DecodeOptions{Workers: 1})
	require.NoError(t, err)
	b, err := DecodeWithOptions(context.Background(), g, testWalkable, transparent, DecodeOptions{Workers: 8})
	require.NoError(t, err)
	c, err := Decode(g, testWalkable, transparent)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a.Image.Pix, b.Image.Pix))
	assert.True(t, bytes.Equal(a.Image.Pix, c.Image.Pix))
}

func TestDecode_RowSkew(t *testing.T) {
	g := flatGrid(2,
		0x00, 0x00,
		0x11, 0x11,
		0x00, 0x00,
	)
	// Row 2 sits 21 units up, so it reads from row 1.
	for x := range g.Heights[2] {
		g.Heights[2][x] = RowSkewDivisor
	}

	bmp, err := Decode(g, testWalkable, transparent)
	require.NoError(t, err)
	for x := 0; x < 4; x++ {
		assert.Equal(t, transparent, pixel(bmp, x, 0))
		assert.Equal(t, testWalkable, pixel(bmp, x, 1))
		assert.Equal(t, testWalkable, pixel(bmp, x, 2))
	}
}

func TestDecode_RowSkewNegativeHeight(t *testing.T) {
	g := flatGrid(1,
		0x00,
		0x11,
	)
	g.Heights[0][0] = -RowSkewDivisor

	bmp, err := Decode(g, testWalkable, transparent)
	require.NoError(t, err)
	assert.Equal(t, testWalkable, pixel(bmp, 0, 0))
	assert.Equal(t, testWalkable, pixel(bmp, 1, 0))
}

func TestDecode_RowSkewOutOfRangeIgnored(t *testing.T) {
	g := flatGrid(1,
		0x11,
		0x00,
	)
	// Row 0 would move to row -1; the correction is skipped.
	g.Heights[0][0] = RowSkewDivisor

	bmp, err := Decode(g, testWalkable, transparent)
	require.NoError(t, err)
	assert.Equal(t, testWalkable, pixel(bmp, 0, 0))
}

func TestDecode_ColumnSkew(t *testing.T) {
	g := flatGrid(2, 0x11, 0x00)
	// Pixel pair (2,3) reads its height from column 2 and shifts one byte left.
	g.Heights[0][2] = ColumnSkewDivisor

	bmp, err := Decode(g, testWalkable, transparent)
	require.NoError(t, err)
	for x := 0; x < 4; x++ {
		assert.Equal(t, testWalkable, pixel(bmp, x, 0), "pixel %d", x)
	}
}

func TestDecode_HeightIndexedByPixelColumn(t *testing.T) {
	g := flatGrid(2, 0x11, 0x00)
	// Column 1 belongs to byte 0 but is never read as a height.
	g.Heights[0][1] = ColumnSkewDivisor
	g.Heights[0][3] = ColumnSkewDivisor

	bmp, err := Decode(g, testWalkable, transparent)
	require.NoError(t, err)
	assert.Equal(t, transparent, pixel(bmp, 2, 0))
	assert.Equal(t, transparent, pixel(bmp, 3, 0))
}

func TestDecode_ColumnSkewOutOfRangeIgnored(t *testing.T) {
	g := flatGrid(1, 0x11)
	g.Heights[0][0] = ColumnSkewDivisor

	bmp, err := Decode(g, testWalkable, transparent)
	require.NoError(t, err)
	assert.Equal(t, testWalkable, pixel(bmp, 0, 0))
}

func TestDecode_MalformedGrid(t *testing.T) {
	cases := map[string]Grid{
		"zero stride":     {BytesPerRow: 0, Packed: []byte{1}},
		"ragged packed":   {BytesPerRow: 2, Packed: []byte{1, 1, 1}, Heights: [][]int{{0, 0, 0, 0}}},
		"missing heights": {BytesPerRow: 1, Packed: []byte{1, 1}, Heights: [][]int{{0, 0}}},
		"short heights":   {BytesPerRow: 2, Packed: []byte{1, 1}, Heights: [][]int{{0, 0}}},
	}
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(g, testWalkable, transparent)
			assert.ErrorIs(t, err, ErrGridShape)
		})
	}
}

func TestDecode_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DecodeWithOptions(ctx, flatGrid(1, 0x11, 0x11), testWalkable, transparent, DecodeOptions{Workers: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGrid_HeightAt(t *testing.T) {
	g := flatGrid(1, 0x11)
	g.Heights[0][1] = 7

	assert.Equal(t, 7, g.HeightAt(1, 0))
	assert.Equal(t, 0, g.HeightAt(5, 0))
	assert.Equal(t, 0, g.HeightAt(0, -1))
}
