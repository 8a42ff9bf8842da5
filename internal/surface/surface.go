package surface

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
)

// Color is a terminal palette index: 0-15 for the basic colours, 16-255 for
// the extended xterm palette.
type Color int

// Cell is one character cell of pre-rendered output.
type Cell struct {
	Rune rune
	Fg   Color
	Bg   Color
}

// Surface is a cell-addressable coloured output. Coordinates are in cells
// with the origin at the top-left corner. Drawing outside the surface is
// clipped silently.
type Surface interface {
	Width() int
	Height() int
	// Colors is the number of colours the surface can show.
	Colors() int
	// Unicode reports whether block and line glyphs can be displayed.
	Unicode() bool

	MoveTo(x, y float64)
	LineTo(x, y float64, fg, bg Color)
	FillPolygon(rings [][]orb.Point, fg, bg Color)
	PrintAt(text string, x, y int, fg, bg Color)
	Blit(rows [][]Cell, x, y int)
}

// RGB maps a 24-bit colour onto the xterm 6x6x6 colour cube.
func RGB(r, g, b uint8) Color {
	level := func(v uint8) int {
		return int(math.Round(float64(v) / 255 * 5))
	}
	return Color(16 + 36*level(r) + 6*level(g) + level(b))
}

// Line glyphs give two dots of vertical resolution per cell.
const (
	glyphTop    = '\''
	glyphBottom = '.'
	glyphBoth   = ':'
)

const (
	halfTop = 1 << iota
	halfBottom
)

func halves(r rune) int {
	switch r {
	case glyphTop:
		return halfTop
	case glyphBottom:
		return halfBottom
	case glyphBoth:
		return halfTop | halfBottom
	default:
		return 0
	}
}

func lineGlyph(mask int) rune {
	switch mask {
	case halfTop:
		return glyphTop
	case halfBottom:
		return glyphBottom
	default:
		return glyphBoth
	}
}

// canvas holds the pen position and rasterization shared by the surfaces.
// get and set address whole cells; both ignore out of range coordinates.
type canvas struct {
	width, height int
	unicode       bool
	penX, penY    float64
	get           func(x, y int) (Cell, bool)
	set           func(x, y int, c Cell)
}

func (c *canvas) moveTo(x, y float64) {
	c.penX, c.penY = x, y
}

// lineTo draws from the pen to (x, y) at double vertical resolution and
// leaves the pen at the end point.
func (c *canvas) lineTo(x, y float64, fg, bg Color) {
	from := orb.Point{c.penX, c.penY * 2}
	to := orb.Point{x, y * 2}
	c.penX, c.penY = x, y

	bound := orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{float64(c.width), float64(2 * c.height)}}
	for _, part := range clip.LineString(bound, orb.LineString{from, to}) {
		for i := 1; i < len(part); i++ {
			c.segment(part[i-1], part[i], fg, bg)
		}
	}
}

func (c *canvas) segment(a, b orb.Point, fg, bg Color) {
	x0, y0 := int(math.Round(a[0])), int(math.Round(a[1]))
	x1, y1 := int(math.Round(b[0])), int(math.Round(b[1]))

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	e := dx + dy
	for {
		c.plotHalf(x0, y0, fg, bg)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func (c *canvas) visibleHalf(x, y2 int) bool {
	return x >= 0 && x < c.width && y2 >= 0 && y2 < 2*c.height
}

func (c *canvas) plotHalf(x, y2 int, fg, bg Color) {
	if !c.visibleHalf(x, y2) {
		return
	}
	y := y2 / 2
	mask := halfTop
	if y2%2 == 1 {
		mask = halfBottom
	}
	if cur, ok := c.get(x, y); ok && cur.Fg == fg {
		mask |= halves(cur.Rune)
	}
	c.set(x, y, Cell{Rune: lineGlyph(mask), Fg: fg, Bg: bg})
}

// fillPolygon fills rings with the even-odd rule, sampling each row at the
// cell center.
func (c *canvas) fillPolygon(rings [][]orb.Point, fg, bg Color) {
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, ring := range rings {
		for _, p := range ring {
			minY = math.Min(minY, p[1])
			maxY = math.Max(maxY, p[1])
		}
	}
	if math.IsInf(minY, 1) {
		return
	}

	fill := '#'
	if c.unicode {
		fill = '█'
	}

	top := max(0, int(math.Floor(minY)))
	bottom := min(c.height-1, int(math.Ceil(maxY)))
	var xs []float64
	for y := top; y <= bottom; y++ {
		yc := float64(y) + 0.5
		xs = xs[:0]
		for _, ring := range rings {
			n := len(ring)
			for i := 0; i < n; i++ {
				a, b := ring[i], ring[(i+1)%n]
				if (a[1] <= yc) == (b[1] <= yc) {
					continue
				}
				xs = append(xs, a[0]+(yc-a[1])*(b[0]-a[0])/(b[1]-a[1]))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			from := max(0, int(math.Ceil(xs[i]-0.5)))
			to := min(c.width-1, int(math.Floor(xs[i+1]-0.5)))
			for x := from; x <= to; x++ {
				c.set(x, y, Cell{Rune: fill, Fg: fg, Bg: bg})
			}
		}
	}
}

func (c *canvas) printAt(text string, x, y int, fg, bg Color) {
	if y < 0 || y >= c.height {
		return
	}
	for _, r := range text {
		if x >= 0 && x < c.width {
			c.set(x, y, Cell{Rune: r, Fg: fg, Bg: bg})
		}
		x++
	}
}

func (c *canvas) blit(rows [][]Cell, x, y int) {
	for i, row := range rows {
		if y+i < 0 || y+i >= c.height {
			continue
		}
		for j, cell := range row {
			if cell.Rune == 0 || x+j < 0 || x+j >= c.width {
				continue
			}
			c.set(x+j, y+i, cell)
		}
	}
}

// Centre prints text centered horizontally on row y.
func Centre(s Surface, text string, y int, fg, bg Color) {
	s.PrintAt(text, (s.Width()-len([]rune(text)))/2, y, fg, bg)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
