// Package animator moves the drawn view toward a target one tick at a time:
// zoom out when far away, slide across, then zoom back in.
package animator

import (
	"math"

	"asciimap/internal/geo"
)

const (
	// Steps is the number of ticks one full zoom level takes.
	Steps = 6

	// farDistance is the distance in pixels beyond which the view zooms out
	// before panning further.
	farDistance = geo.BaseTileSize / 4

	// latStep is how far latitude moves per tick, in pixels.
	latStep = 2
)

// ZoomStep is the per-tick tile size ratio.
var ZoomStep = math.Exp(math.Ln2 / Steps)

// Animator advances a view toward its target. In satellite mode a whole zoom
// level is crossed per tick since raster tiles cannot be rescaled smoothly.
type Animator struct {
	satellite bool
}

func New(satellite bool) *Animator {
	return &Animator{satellite: satellite}
}

// Step performs one tick, updating cur in place. It reports whether anything
// changed, in which case another tick should follow.
func (a *Animator) Step(cur *geo.View, desired geo.View) bool {
	changed := false

	xStart := float64(cur.PixelX())
	yStart := float64(cur.PixelY())
	xEnd := float64(int(geo.LonToPixelX(desired.Lon, cur.Zoom, cur.Size)))
	yEnd := float64(int(geo.LatToPixelY(desired.Lat, cur.Zoom, cur.Size)))

	if math.Hypot(xEnd-xStart, yEnd-yStart) > farDistance {
		a.zoom(cur, true)
		changed = true
	} else if cur.Zoom != desired.Zoom {
		a.zoom(cur, desired.Zoom < cur.Zoom)
		changed = true
	}

	if cur.Lon != desired.Lon {
		changed = true
		step := 360 / math.Pow(2, float64(cur.Zoom)) / cur.Size * 2
		if desired.Lon < cur.Lon {
			cur.Lon = math.Max(cur.Lon-step, desired.Lon)
		} else {
			cur.Lon = math.Min(cur.Lon+step, desired.Lon)
		}
	}

	if cur.Lat != desired.Lat {
		changed = true
		if desired.Lat < cur.Lat {
			cur.Lat = math.Max(geo.IncLatitude(cur.Lat, latStep, cur.Zoom, cur.Size), desired.Lat)
		} else {
			cur.Lat = math.Min(geo.IncLatitude(cur.Lat, -latStep, cur.Zoom, cur.Size), desired.Lat)
		}
	}

	return changed
}

// zoom scales the tile size by one step, folding into the neighboring zoom
// level when the size crosses a threshold.
func (a *Animator) zoom(cur *geo.View, out bool) {
	step := ZoomStep
	if a.satellite {
		step = 2
	}
	if out {
		step = 1 / step
	}

	cur.Size *= step
	switch {
	case cur.Size <= geo.ZoomOutSize:
		if cur.Zoom > geo.MinZoom {
			cur.Zoom--
			cur.Size = geo.BaseTileSize
		} else {
			cur.Size = geo.ZoomOutSize
		}
	case cur.Size >= geo.ZoomInSize:
		if cur.Zoom < geo.MaxZoom {
			cur.Zoom++
			cur.Size = geo.BaseTileSize
		} else {
			cur.Size = geo.ZoomInSize
		}
	}
}
