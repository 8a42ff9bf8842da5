// Package renderer draws cached tiles onto a character surface.
package renderer

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"asciimap/internal/cache"
	"asciimap/internal/geo"
	"asciimap/internal/surface"
	"asciimap/internal/tile"
)

// LoadingText is shown while no tile can be drawn.
const LoadingText = " Loading - please wait... "

const (
	backgroundRich  surface.Color = 253
	backgroundBasic surface.Color = 0
	loadingColor    surface.Color = 1
)

type Renderer struct {
	satellite bool
}

func New(satellite bool) *Renderer {
	return &Renderer{satellite: satellite}
}

// Background is the colour the frame is cleared with.
func Background(s surface.Surface) surface.Color {
	if s.Unicode() && s.Colors() >= 256 {
		return backgroundRich
	}
	return backgroundBasic
}

// Render draws entries around view and returns the number of tiles drawn.
// When nothing could be drawn a loading message is shown instead.
func (r *Renderer) Render(s surface.Surface, view geo.View, entries []cache.Entry) int {
	count := 0
	if len(entries) > 0 {
		bg := Background(s)
		blank := strings.Repeat(".", s.Width())
		for y := 0; y < s.Height(); y++ {
			s.PrintAt(blank, 0, y, bg, bg)
		}
		count = r.drawTiles(s, view, entries, bg)
	}

	if count == 0 {
		surface.Centre(s, LoadingText, s.Height()/2, loadingColor, backgroundBasic)
	}
	return count
}

// frame holds what one pass needs to place tiles on the surface.
type frame struct {
	s             surface.Surface
	size          float64
	width, height int
	bg            surface.Color
}

// origin converts a tile's offset from the view center into surface cells.
func (f frame) origin(x, y float64) (float64, float64) {
	return (x + float64(f.width/4)) * 2, y + float64(f.height/2)
}

func (f frame) visible(left, top float64) bool {
	return !(left > float64(f.width) || left+f.size*2 < 0 || top > float64(f.height) || top+f.size < 0)
}

func (r *Renderer) drawTiles(s surface.Surface, view geo.View, entries []cache.Entry, bg surface.Color) int {
	kind := tile.Vector
	if r.satellite {
		kind = tile.Raster
	}

	sorted := make([]cache.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Key.Kind == kind && e.Key.Z == view.Zoom {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key.X < sorted[j].Key.X })

	f := frame{s: s, size: view.Size, width: s.Width(), height: s.Height(), bg: bg}
	xOffset := float64(view.PixelX())
	yOffset := float64(view.PixelY())

	count := 0
	for _, layer := range FeaturesFor(view.Zoom, r.satellite) {
		color := LayerColor(layer.Name, s.Colors())
		for _, e := range sorted {
			x := float64(e.Key.X)*f.size - xOffset
			y := float64(e.Key.Y)*f.size - yOffset
			switch p := e.Payload.(type) {
			case *tile.RasterTile:
				left, top := f.origin(x, y)
				s.Blit(p.Rows, int(left), int(top))
				count++
			case *tile.VectorTile:
				count += f.drawLayer(p, layer, color, x, y)
			}
		}
	}
	return count
}

// drawLayer draws the matching features of one layer of a tile whose top
// left corner is (x, y) pixels from the view center.
func (f frame) drawLayer(vt *tile.VectorTile, layer FeatureLayer, color surface.Color, x, y float64) int {
	xo, yo := f.origin(x, y)
	if !f.visible(xo, yo) {
		return 0
	}

	l, ok := vt.Layer(layer.Name)
	if !ok {
		return 0
	}

	p := projection{xo: xo, yo: yo, size: f.size, extent: l.Extent}
	for _, feature := range l.Features {
		if !layer.Match(feature) {
			continue
		}
		f.drawFeature(feature, outlineOnly(layer.Name, feature), p, color)
	}
	return 1
}

// projection maps tile local coordinates onto the surface.
type projection struct {
	xo, yo, size, extent float64
}

func (p projection) point(pt orb.Point) orb.Point {
	return orb.Point{
		p.xo + pt[0]*p.size*2/p.extent,
		p.yo + (p.extent-pt[1])*p.size/p.extent,
	}
}

func (p projection) ring(ring []orb.Point) []orb.Point {
	out := make([]orb.Point, len(ring))
	for i, pt := range ring {
		out[i] = p.point(pt)
	}
	return out
}

// outlineOnly reports features drawn as outlines. Building layers are dense
// and filling them is too slow to animate.
func outlineOnly(layer string, f *geojson.Feature) bool {
	if layer == "building" {
		return true
	}
	typ, _ := f.Properties["type"].(string)
	return strings.Contains(typ, "building")
}

func (f frame) drawFeature(feature *geojson.Feature, outline bool, p projection, color surface.Color) {
	switch g := feature.Geometry.(type) {
	case orb.Polygon:
		f.drawPolygon(g, outline, p, color)
	case orb.MultiPolygon:
		for _, poly := range g {
			f.drawPolygon(poly, outline, p, color)
		}
	case orb.LineString:
		f.drawLine(p.ring(g), color)
	case orb.MultiLineString:
		for _, ls := range g {
			f.drawLine(p.ring(ls), color)
		}
	case orb.Point:
		f.drawLabel(feature, p.point(g), color)
	case orb.MultiPoint:
		for _, pt := range g {
			f.drawLabel(feature, p.point(pt), color)
		}
	}
}

func (f frame) drawPolygon(poly orb.Polygon, outline bool, p projection, color surface.Color) {
	rings := make([][]orb.Point, len(poly))
	for i, r := range poly {
		rings[i] = p.ring(r)
	}
	if !outline {
		f.s.FillPolygon(rings, color, f.bg)
		return
	}
	for _, r := range rings {
		f.drawLine(r, color)
	}
}

func (f frame) drawLine(coords []orb.Point, color surface.Color) {
	for i, pt := range coords {
		if i == 0 {
			f.s.MoveTo(pt[0], pt[1])
			continue
		}
		f.s.LineTo(pt[0], pt[1], color, f.bg)
	}
}

// drawLabel centers the feature's English name, or its local name, on pt.
func (f frame) drawLabel(feature *geojson.Feature, pt orb.Point, color surface.Color) {
	name, ok := feature.Properties["name_en"].(string)
	if !ok {
		if name, ok = feature.Properties["name"].(string); !ok {
			return
		}
	}
	text := " " + name + " "
	f.s.PrintAt(text, int(pt[0]-float64(utf8.RuneCountInString(text))/2), int(pt[1]), color, f.bg)
}
