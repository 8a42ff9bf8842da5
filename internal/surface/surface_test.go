package surface

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGB(t *testing.T) {
	assert.Equal(t, Color(16), RGB(0, 0, 0))
	assert.Equal(t, Color(231), RGB(255, 255, 255))
	assert.Equal(t, Color(196), RGB(255, 0, 0))
	assert.Equal(t, Color(21), RGB(0, 0, 255))
}

func TestBufferHorizontalLine(t *testing.T) {
	b := NewBuffer(10, 5, 256, true)
	b.MoveTo(0, 0)
	b.LineTo(4, 0, 7, 0)

	for x := 0; x <= 4; x++ {
		assert.Equal(t, Cell{Rune: glyphTop, Fg: 7, Bg: 0}, b.Cell(x, 0), "x=%d", x)
	}
	assert.Equal(t, Cell{}, b.Cell(5, 0))
	assert.Equal(t, 5, b.Count(7))
}

func TestBufferVerticalLineMergesHalves(t *testing.T) {
	b := NewBuffer(10, 5, 256, true)
	b.MoveTo(2, 0)
	b.LineTo(2, 1, 3, 0)

	assert.Equal(t, glyphBoth, b.Cell(2, 0).Rune)
	assert.Equal(t, glyphTop, b.Cell(2, 1).Rune)
}

func TestBufferLineDifferentColourReplacesHalf(t *testing.T) {
	b := NewBuffer(4, 2, 256, true)
	b.MoveTo(0, 0)
	b.LineTo(3, 0, 1, 0)
	b.MoveTo(0, 0.5)
	b.LineTo(3, 0.5, 2, 0)

	assert.Equal(t, Cell{Rune: glyphBottom, Fg: 2}, b.Cell(1, 0))
}

func TestBufferLineClipped(t *testing.T) {
	b := NewBuffer(10, 5, 256, true)
	b.MoveTo(-100, 1)
	b.LineTo(100, 1, 4, 0)

	for x := 0; x < 10; x++ {
		assert.Equal(t, glyphTop, b.Cell(x, 1).Rune, "x=%d", x)
	}
	assert.Equal(t, 10, b.Count(4))

	b.MoveTo(-50, -50)
	b.LineTo(-10, -20, 5, 0)
	assert.Zero(t, b.Count(5))
}

func TestBufferPenMovesWithLine(t *testing.T) {
	b := NewBuffer(10, 5, 256, true)
	b.MoveTo(0, 0)
	b.LineTo(3, 0, 1, 0)
	b.LineTo(3, 2, 1, 0)

	assert.Equal(t, glyphBoth, b.Cell(3, 1).Rune)
	assert.Equal(t, glyphTop, b.Cell(3, 2).Rune)
}

func TestBufferFillPolygon(t *testing.T) {
	b := NewBuffer(10, 5, 16, false)
	b.FillPolygon([][]orb.Point{{{1, 1}, {5, 1}, {5, 3}, {1, 3}}}, 2, 0)

	assert.Equal(t, 8, b.Count(2))
	for y := 1; y <= 2; y++ {
		for x := 1; x <= 4; x++ {
			assert.Equal(t, Cell{Rune: '#', Fg: 2}, b.Cell(x, y), "x=%d y=%d", x, y)
		}
	}
	assert.Equal(t, Cell{}, b.Cell(0, 1))
	assert.Equal(t, Cell{}, b.Cell(5, 1))
}

func TestBufferFillPolygonHole(t *testing.T) {
	b := NewBuffer(10, 10, 256, true)
	outer := []orb.Point{{0, 0}, {9, 0}, {9, 9}, {0, 9}, {0, 0}}
	hole := []orb.Point{{3, 3}, {6, 3}, {6, 6}, {3, 6}, {3, 3}}
	b.FillPolygon([][]orb.Point{outer, hole}, 2, 0)

	assert.Equal(t, '█', b.Cell(1, 1).Rune)
	assert.Equal(t, Cell{}, b.Cell(4, 4))
}

func TestBufferFillPolygonOffSurface(t *testing.T) {
	b := NewBuffer(4, 4, 256, true)
	b.FillPolygon([][]orb.Point{{{-10, -10}, {20, -10}, {20, 20}, {-10, 20}}}, 2, 0)
	assert.Equal(t, 16, b.Count(2))

	b.FillPolygon(nil, 3, 0)
	assert.Zero(t, b.Count(3))
}

func TestBufferPrintAt(t *testing.T) {
	b := NewBuffer(5, 2, 256, true)
	b.PrintAt("abc", -1, 0, 9, 1)
	b.PrintAt("xyz", 3, 1, 9, 1)
	b.PrintAt("nope", 0, 2, 9, 1)

	assert.Equal(t, "bc   \n   xy", b.String())
	assert.Equal(t, Cell{Rune: 'b', Fg: 9, Bg: 1}, b.Cell(0, 0))
}

func TestBufferBlitSkipsEmptyCells(t *testing.T) {
	b := NewBuffer(4, 3, 256, true)
	b.PrintAt("....", 0, 1, 0, 0)
	rows := [][]Cell{
		{{Rune: '▀', Fg: 1, Bg: 2}, {}},
		{{Rune: '▀', Fg: 3, Bg: 4}, {Rune: '▀', Fg: 5, Bg: 6}},
	}
	b.Blit(rows, 2, 1)

	assert.Equal(t, Cell{Rune: '▀', Fg: 1, Bg: 2}, b.Cell(2, 1))
	assert.Equal(t, Cell{Rune: '.'}, b.Cell(3, 1))
	assert.Equal(t, Cell{Rune: '▀', Fg: 5, Bg: 6}, b.Cell(3, 2))
}

func TestCentre(t *testing.T) {
	b := NewBuffer(11, 3, 256, true)
	Centre(b, "abc", 1, 1, 0)

	require.Equal(t, "           \n    abc    \n           ", b.String())
}
