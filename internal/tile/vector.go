package tile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// ErrDecode marks a payload that could not be decoded. It is never fatal:
// the tile is dropped and requested again on a later scan.
var ErrDecode = errors.New("tile decode failed")

// GeomType is the vector tile geometry type code.
type GeomType int

const (
	GeomUnknown GeomType = iota
	GeomPoint
	GeomLine
	GeomPolygon
)

// GeometryType classifies g into its vector tile geometry type.
func GeometryType(g orb.Geometry) GeomType {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return GeomPoint
	case orb.LineString, orb.MultiLineString:
		return GeomLine
	case orb.Polygon, orb.MultiPolygon:
		return GeomPolygon
	default:
		return GeomUnknown
	}
}

// Layer is one named layer of a vector tile. Feature coordinates are tile
// local in [0, Extent] with y pointing up.
type Layer struct {
	Name     string
	Extent   float64
	Features []*geojson.Feature
}

// VectorTile is the decoded form of a vector tile.
type VectorTile struct {
	Layers map[string]*Layer
}

func (v *VectorTile) Kind() Kind { return Vector }

// Layer returns the named layer. Not every layer is present in every tile.
func (v *VectorTile) Layer(name string) (*Layer, bool) {
	l, ok := v.Layers[name]
	return l, ok
}

// DecodeVector decodes a Mapbox Vector Tile, gzipped or not.
func DecodeVector(data []byte) (*VectorTile, error) {
	var (
		layers mvt.Layers
		err    error
	)
	if isGzipped(data) {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	vt := &VectorTile{Layers: make(map[string]*Layer, len(layers))}
	for _, l := range layers {
		extent := float64(l.Extent)
		flip := func(p orb.Point) orb.Point {
			return orb.Point{p[0], extent - p[1]}
		}
		features := make([]*geojson.Feature, 0, len(l.Features))
		for _, f := range l.Features {
			if f.Geometry == nil {
				continue
			}
			f.Geometry = project.Geometry(f.Geometry, flip)
			if f.Properties == nil {
				f.Properties = geojson.Properties{}
			}
			features = append(features, f)
		}
		vt.Layers[l.Name] = &Layer{Name: l.Name, Extent: extent, Features: features}
	}
	return vt, nil
}

type vectorDoc struct {
	Layers map[string]layerDoc `json:"layers"`
}

type layerDoc struct {
	Extent   float64                    `json:"extent"`
	Features *geojson.FeatureCollection `json:"features"`
}

// MarshalVector serializes a decoded tile for the disk cache.
func MarshalVector(v *VectorTile) ([]byte, error) {
	doc := vectorDoc{Layers: make(map[string]layerDoc, len(v.Layers))}
	for name, l := range v.Layers {
		fc := geojson.NewFeatureCollection()
		fc.Features = l.Features
		doc.Layers[name] = layerDoc{Extent: l.Extent, Features: fc}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vector tile: %w", err)
	}
	return data, nil
}

// UnmarshalVector reads a tile written by MarshalVector.
func UnmarshalVector(data []byte) (*VectorTile, error) {
	var doc vectorDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	vt := &VectorTile{Layers: make(map[string]*Layer, len(doc.Layers))}
	for name, l := range doc.Layers {
		layer := &Layer{Name: name, Extent: l.Extent}
		if l.Features != nil {
			layer.Features = l.Features.Features
		}
		vt.Layers[name] = layer
	}
	return vt, nil
}

func isGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
