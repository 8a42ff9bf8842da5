package fetcher

import (
	"context"
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"

	"asciimap/internal/geo"
	"asciimap/internal/tile"
)

// SeedKeys lists the tiles covering bound at each zoom, zoom by zoom in
// column order. A bound whose Min.X is east of Max.X crosses the
// antimeridian.
func SeedKeys(bound orb.Bound, zooms []int, kind tile.Kind) []tile.Key {
	boxes := []orb.Bound{bound}
	if bound.Min.X() > bound.Max.X() {
		boxes = []orb.Bound{
			{Min: orb.Point{-180, bound.Min.Y()}, Max: bound.Max},
			{Min: bound.Min, Max: orb.Point{180, bound.Max.Y()}},
		}
	}

	var keys []tile.Key
	for _, z := range zooms {
		if z < geo.MinZoom || z > geo.MaxZoom {
			continue
		}
		for _, box := range boxes {
			clamped := orb.Bound{
				Min: orb.Point{math.Max(-180, box.Min.X()), math.Max(-geo.LatLimit, box.Min.Y())},
				Max: orb.Point{math.Min(180-1e-8, box.Max.X()), math.Min(geo.LatLimit, box.Max.Y())},
			}
			minTile := maptile.At(clamped.Min, maptile.Zoom(z))
			maxTile := maptile.At(clamped.Max, maptile.Zoom(z))
			// Tile rows grow southwards.
			minTile.Y, maxTile.Y = maxTile.Y, minTile.Y

			for x := minTile.X; x <= maxTile.X; x++ {
				for y := minTile.Y; y <= maxTile.Y; y++ {
					keys = append(keys, tile.Key{X: int(x), Y: int(y), Z: z, Kind: kind})
				}
			}
		}
	}
	return keys
}

type SeedResult struct {
	Cached  int
	Fetched int
	Missing int
}

// Seed loads keys one after another so that they end up in the disk cache.
// Tiles the source lacks or that do not decode are counted as missing; any
// other failure stops seeding.
func Seed(ctx context.Context, loader *Loader, keys []tile.Key, logger *zap.Logger, progress func(tile.Key)) (SeedResult, error) {
	var res SeedResult
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		_, origin, err := loader.Load(ctx, key)
		switch {
		case err == nil && origin == originDisk:
			res.Cached++
		case err == nil:
			res.Fetched++
		case recoverable(err):
			res.Missing++
			logger.Debug("Tile not seeded", zap.Stringer("tile", key), zap.Error(err))
		default:
			return res, &FatalError{Key: key, Diagnostic: err.Error(), Err: err}
		}

		if progress != nil {
			progress(key)
		}
	}
	return res, nil
}

// IsFatal reports whether err ended a scan or a seed run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
