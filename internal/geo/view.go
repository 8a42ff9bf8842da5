package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	// BaseTileSize is the apparent tile size in text lines at rest. A tile is
	// twice as many columns wide since terminal cells are about twice as tall
	// as they are wide.
	BaseTileSize = 64.0
	// ZoomInSize and ZoomOutSize are the thresholds at which an animated zoom
	// folds into the next or previous zoom level.
	ZoomInSize  = BaseTileSize * 2
	ZoomOutSize = BaseTileSize / 2
)

var (
	ErrLatitude  = errors.New("latitude out of range")
	ErrLongitude = errors.New("longitude is not finite")
	ErrZoom      = errors.New("zoom level out of range")
)

// Point is a geographic coordinate. Longitude is not wrapped.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// NewPoint validates lat and lon and returns the point. Longitude may be
// any finite value.
func NewPoint(lat, lon float64) (Point, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Point{}, fmt.Errorf("%w: %v", ErrLatitude, lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return Point{}, fmt.Errorf("%w: %v", ErrLongitude, lon)
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// View is a camera over the map: a center, an integer zoom level and the
// current apparent tile size used while animating between levels.
type View struct {
	Lat  float64 `json:"latitude"`
	Lon  float64 `json:"longitude"`
	Zoom int     `json:"zoom"`
	Size float64 `json:"tile_size"`
}

// NewView returns a view at rest (base tile size) after validating its fields.
func NewView(lat, lon float64, zoom int) (View, error) {
	p, err := NewPoint(lat, lon)
	if err != nil {
		return View{}, err
	}
	if zoom < MinZoom || zoom > MaxZoom {
		return View{}, fmt.Errorf("%w: %d", ErrZoom, zoom)
	}
	return View{Lat: p.Lat, Lon: p.Lon, Zoom: zoom, Size: BaseTileSize}, nil
}

// Center returns the view's center point.
func (v View) Center() Point {
	return Point{Lat: v.Lat, Lon: v.Lon}
}

// PixelX returns the x offset of the view center in the overall map,
// truncated to a whole pixel.
func (v View) PixelX() int {
	return int(LonToPixelX(v.Lon, v.Zoom, v.Size))
}

// PixelY returns the y offset of the view center in the overall map,
// truncated to a whole pixel.
func (v View) PixelY() int {
	return int(LatToPixelY(v.Lat, v.Zoom, v.Size))
}
