package surface

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/paulmach/orb"
)

// Screen is a Surface drawing into a tcell terminal screen. Width and height
// are sampled by Sync so one frame sees a stable size.
type Screen struct {
	screen tcell.Screen
	canvas canvas
}

// NewScreen initializes the terminal. Callers must call Fini when done.
func NewScreen() (*Screen, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize screen: %w", err)
	}
	return WrapScreen(screen), nil
}

// WrapScreen adapts an already initialized tcell screen.
func WrapScreen(screen tcell.Screen) *Screen {
	s := &Screen{screen: screen}
	s.canvas = canvas{
		unicode: screen.CanDisplay('█', false),
		get:     s.cell,
		set:     s.setCell,
	}
	s.Sync()
	return s
}

// Terminal exposes the underlying screen for event polling.
func (s *Screen) Terminal() tcell.Screen { return s.screen }

// Sync refreshes the cached size after a resize.
func (s *Screen) Sync() {
	s.canvas.width, s.canvas.height = s.screen.Size()
}

// Show flushes the frame to the terminal.
func (s *Screen) Show() { s.screen.Show() }

func (s *Screen) Fini() { s.screen.Fini() }

func (s *Screen) Width() int    { return s.canvas.width }
func (s *Screen) Height() int   { return s.canvas.height }
func (s *Screen) Colors() int   { return s.screen.Colors() }
func (s *Screen) Unicode() bool { return s.canvas.unicode }

func (s *Screen) MoveTo(x, y float64) { s.canvas.moveTo(x, y) }

func (s *Screen) LineTo(x, y float64, fg, bg Color) { s.canvas.lineTo(x, y, fg, bg) }

func (s *Screen) FillPolygon(rings [][]orb.Point, fg, bg Color) {
	s.canvas.fillPolygon(rings, fg, bg)
}

func (s *Screen) PrintAt(text string, x, y int, fg, bg Color) {
	s.canvas.printAt(text, x, y, fg, bg)
}

func (s *Screen) Blit(rows [][]Cell, x, y int) { s.canvas.blit(rows, x, y) }

func (s *Screen) cell(x, y int) (Cell, bool) {
	if x < 0 || x >= s.canvas.width || y < 0 || y >= s.canvas.height {
		return Cell{}, false
	}
	r, _, style, _ := s.screen.GetContent(x, y)
	fg, bg, _ := style.Decompose()
	return Cell{Rune: r, Fg: paletteIndex(fg), Bg: paletteIndex(bg)}, true
}

func (s *Screen) setCell(x, y int, c Cell) {
	style := tcell.StyleDefault.
		Foreground(tcell.PaletteColor(int(c.Fg))).
		Background(tcell.PaletteColor(int(c.Bg)))
	s.screen.SetContent(x, y, c.Rune, nil, style)
}

func paletteIndex(c tcell.Color) Color {
	if c.Valid() && c&tcell.ColorIsRGB == 0 {
		return Color(c - tcell.ColorValid)
	}
	return -1
}
