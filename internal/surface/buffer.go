package surface

import (
	"strings"

	"github.com/paulmach/orb"
)

// Buffer is an in-memory Surface. It backs headless rendering and tests.
type Buffer struct {
	colors int
	cells  [][]Cell
	canvas canvas
}

// NewBuffer returns a blank width x height buffer.
func NewBuffer(width, height, colors int, unicode bool) *Buffer {
	b := &Buffer{colors: colors, cells: make([][]Cell, height)}
	for y := range b.cells {
		b.cells[y] = make([]Cell, width)
	}
	b.canvas = canvas{
		width:   width,
		height:  height,
		unicode: unicode,
		get:     b.cell,
		set:     b.setCell,
	}
	return b
}

func (b *Buffer) Width() int    { return b.canvas.width }
func (b *Buffer) Height() int   { return b.canvas.height }
func (b *Buffer) Colors() int   { return b.colors }
func (b *Buffer) Unicode() bool { return b.canvas.unicode }

func (b *Buffer) MoveTo(x, y float64) { b.canvas.moveTo(x, y) }

func (b *Buffer) LineTo(x, y float64, fg, bg Color) { b.canvas.lineTo(x, y, fg, bg) }

func (b *Buffer) FillPolygon(rings [][]orb.Point, fg, bg Color) {
	b.canvas.fillPolygon(rings, fg, bg)
}

func (b *Buffer) PrintAt(text string, x, y int, fg, bg Color) {
	b.canvas.printAt(text, x, y, fg, bg)
}

func (b *Buffer) Blit(rows [][]Cell, x, y int) { b.canvas.blit(rows, x, y) }

// Cell returns the cell at (x, y), or the zero cell when out of range.
func (b *Buffer) Cell(x, y int) Cell {
	c, _ := b.cell(x, y)
	return c
}

// Count returns how many cells have foreground fg and a non-blank rune.
func (b *Buffer) Count(fg Color) int {
	n := 0
	for _, row := range b.cells {
		for _, c := range row {
			if c.Rune != 0 && c.Fg == fg {
				n++
			}
		}
	}
	return n
}

// String renders the buffer as plain text, one line per row.
func (b *Buffer) String() string {
	var sb strings.Builder
	for y, row := range b.cells {
		if y > 0 {
			sb.WriteByte('\n')
		}
		for _, c := range row {
			if c.Rune == 0 {
				sb.WriteByte(' ')
				continue
			}
			sb.WriteRune(c.Rune)
		}
	}
	return sb.String()
}

func (b *Buffer) cell(x, y int) (Cell, bool) {
	if y < 0 || y >= len(b.cells) || x < 0 || x >= len(b.cells[y]) {
		return Cell{}, false
	}
	return b.cells[y][x], true
}

func (b *Buffer) setCell(x, y int, c Cell) {
	if y < 0 || y >= len(b.cells) || x < 0 || x >= len(b.cells[y]) {
		return
	}
	b.cells[y][x] = c
}
