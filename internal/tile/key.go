package tile

import (
	"fmt"

	"github.com/paulmach/orb/maptile"

	"asciimap/internal/geo"
)

// Kind tells vector tiles from raster (satellite) tiles.
type Kind int

const (
	Vector Kind = iota
	Raster
)

func (k Kind) String() string {
	switch k {
	case Vector:
		return "vector"
	case Raster:
		return "raster"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Ext is the file extension used for the persisted form of the tile.
func (k Kind) Ext() string {
	if k == Raster {
		return "jpg"
	}
	return "json"
}

// KindFromExt maps a cache file extension back to a Kind.
func KindFromExt(ext string) (Kind, bool) {
	switch ext {
	case "json":
		return Vector, true
	case "jpg":
		return Raster, true
	default:
		return 0, false
	}
}

// Key identifies one tile. Keys are comparable and used as map keys.
type Key struct {
	X    int
	Y    int
	Z    int
	Kind Kind
}

// Valid reports whether the key lies inside the tile grid for its zoom.
func (k Key) Valid() bool {
	if k.Z < geo.MinZoom || k.Z > geo.MaxZoom {
		return false
	}
	n := geo.TileCount(k.Z)
	return k.X >= 0 && k.X < n && k.Y >= 0 && k.Y < n
}

// FileName is the name of the tile in the disk cache: {z}.{x}.{y}.{ext}.
func (k Key) FileName() string {
	return fmt.Sprintf("%d.%d.%d.%s", k.Z, k.X, k.Y, k.Kind.Ext())
}

// MapTile converts a valid key to an orb map tile.
func (k Key) MapTile() maptile.Tile {
	return maptile.New(uint32(k.X), uint32(k.Y), maptile.Zoom(k.Z))
}

func (k Key) String() string {
	return fmt.Sprintf("%s %d/%d/%d", k.Kind, k.Z, k.X, k.Y)
}

// Payload is decoded tile content held in the tile cache. Payloads are not
// modified once cached.
type Payload interface {
	Kind() Kind
}
