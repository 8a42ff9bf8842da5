// Package source fetches raw tile bytes from upstream providers.
package source

import (
	"context"
	"errors"

	"asciimap/internal/tile"
)

// ErrNotFound reports a tile the provider does not have. The fetcher skips
// such tiles and asks again on a later scan.
var ErrNotFound = errors.New("tile not found")

// Source returns the raw payload of one tile: a vector tile (possibly
// gzipped) or image bytes for raster tiles.
type Source interface {
	Fetch(ctx context.Context, key tile.Key) ([]byte, error)
}
