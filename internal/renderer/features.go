package renderer

import (
	"slices"

	"github.com/paulmach/orb/geojson"

	"asciimap/internal/surface"
	"asciimap/internal/tile"
)

// FeatureLayer selects features from one vector tile layer. An empty filter
// matches everything.
type FeatureLayer struct {
	Name string
	// Classes match the "class" property.
	Classes []string
	// GeomTypes and Types together form the type filter: a feature passes
	// when its geometry type or its "type" property is listed.
	GeomTypes []tile.GeomType
	Types     []string
}

// Match reports whether f passes the layer filters. Features missing a
// filtered property never match.
func (l FeatureLayer) Match(f *geojson.Feature) bool {
	if len(l.Classes) > 0 {
		class, ok := f.Properties["class"].(string)
		if !ok || !slices.Contains(l.Classes, class) {
			return false
		}
	}
	if len(l.GeomTypes) > 0 || len(l.Types) > 0 {
		if slices.Contains(l.GeomTypes, tile.GeometryType(f.Geometry)) {
			return true
		}
		typ, ok := f.Properties["type"].(string)
		if !ok || !slices.Contains(l.Types, typ) {
			return false
		}
	}
	return true
}

var (
	water       = FeatureLayer{Name: "water"}
	marineLabel = FeatureLayer{Name: "marine_label", GeomTypes: []tile.GeomType{tile.GeomPoint}}
	admin       = FeatureLayer{Name: "admin"}
	countryLbl  = FeatureLayer{Name: "country_label"}
	stateLabel  = FeatureLayer{Name: "state_label"}
	placeLabel  = FeatureLayer{Name: "place_label", Types: []string{"city", "town"}}
)

var (
	lowZoom = []FeatureLayer{water, marineLabel}

	midZoom = []FeatureLayer{
		admin,
		water,
		{Name: "road", Classes: []string{"motorway"}},
		countryLbl,
		marineLabel,
		stateLabel,
		placeLabel,
	}

	regionZoom = []FeatureLayer{
		admin,
		water,
		{Name: "road", Classes: []string{"motorway", "motorway_link", "trunk"}},
		countryLbl,
		marineLabel,
		stateLabel,
		placeLabel,
	}

	majorRoads = []string{"motorway", "motorway_link", "trunk", "primary", "secondary"}
	allRoads   = append(slices.Clone(majorRoads), "tertiary", "link", "street", "tunnel")

	streetZoom = []FeatureLayer{
		{Name: "landuse", Classes: []string{"agriculture", "grass", "park"}},
		water,
		{Name: "waterway", Classes: []string{"river", "canal"}},
		{Name: "building"},
		{Name: "road", Classes: majorRoads},
		{Name: "poi_label"},
	}

	detailZoom = []FeatureLayer{
		streetZoom[0],
		water,
		streetZoom[2],
		streetZoom[3],
		{Name: "road", Classes: allRoads},
		{Name: "poi_label"},
	}
)

// FeaturesFor returns the layers drawn at zoom, in drawing order. Satellite
// mode has a single pass that blits the raster tiles.
func FeaturesFor(zoom int, satellite bool) []FeatureLayer {
	switch {
	case satellite:
		return []FeatureLayer{water}
	case zoom <= 2:
		return lowZoom
	case zoom <= 7:
		return midZoom
	case zoom <= 10:
		return regionZoom
	case zoom <= 14:
		return streetZoom
	default:
		return detailZoom
	}
}

// Palette256 colours layers on surfaces with at least 256 colours.
var Palette256 = map[string]surface.Color{
	"landuse":       193,
	"water":         153,
	"waterway":      153,
	"marine_label":  12,
	"admin":         7,
	"country_label": 9,
	"state_label":   1,
	"place_label":   0,
	"building":      252,
	"road":          15,
	"poi_label":     8,
}

// Basic terminal colours.
const (
	Black surface.Color = iota
	Red
	Green
	Yellow
	Blue
	Magenta
	Cyan
	White
)

// Palette16 colours layers on basic colour surfaces.
var Palette16 = map[string]surface.Color{
	"landuse":       Green,
	"water":         Blue,
	"waterway":      Blue,
	"marine_label":  Blue,
	"admin":         White,
	"country_label": Red,
	"state_label":   Red,
	"place_label":   Yellow,
	"building":      White,
	"road":          White,
	"poi_label":     Red,
}

// LayerColor picks the palette by the surface colour depth.
func LayerColor(name string, colors int) surface.Color {
	if colors >= 256 {
		return Palette256[name]
	}
	return Palette16[name]
}
