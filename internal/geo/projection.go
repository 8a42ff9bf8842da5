package geo

import "math"

const (
	// MinZoom and MaxZoom bound every zoom level the engine requests or draws.
	MinZoom = 0
	MaxZoom = 20

	// LatLimit keeps latitudes away from the poles where the transform diverges.
	LatLimit = 85.0
)

// LonToPixelX converts a longitude to the x position in the overall map.
func LonToPixelX(lon float64, zoom int, tileSize float64) float64 {
	return (180 + lon) * math.Pow(2, float64(zoom)) * tileSize / 360
}

// LatToPixelY converts a latitude to the y position in the overall map.
// The argument to tan is in radians built from degrees, which is not the
// textbook Web Mercator form. Tile keys and on-screen alignment depend on it.
func LatToPixelY(lat float64, zoom int, tileSize float64) float64 {
	return (180 - 180/math.Pi*math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))) *
		math.Pow(2, float64(zoom)) * tileSize / 360
}

// PixelXToLon is the inverse of LonToPixelX.
func PixelXToLon(x float64, zoom int, tileSize float64) float64 {
	return x*360/math.Pow(2, float64(zoom))/tileSize - 180
}

// PixelYToLat is the inverse of LatToPixelY.
func PixelYToLat(y float64, zoom int, tileSize float64) float64 {
	return 360/math.Pi*math.Atan(math.Exp((180-y*360/math.Pow(2, float64(zoom))/tileSize)*math.Pi/180)) - 90
}

// IncLatitude shifts lat by delta pixels (text lines) at the given zoom and
// tile size. A positive delta moves south.
func IncLatitude(lat, delta float64, zoom int, tileSize float64) float64 {
	return PixelYToLat(LatToPixelY(lat, zoom, tileSize)+delta, zoom, tileSize)
}

// TileCount is the number of tiles along each axis at zoom z.
func TileCount(z int) int {
	return 1 << uint(z)
}
