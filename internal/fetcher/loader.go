package fetcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"asciimap/internal/cache"
	"asciimap/internal/source"
	"asciimap/internal/tile"
)

const (
	originDisk    = "disk"
	originNetwork = "network"
)

// Loader produces decoded tiles, preferring the disk cache over the source.
// Vector tiles are stored on disk in their decoded JSON form, raster tiles
// as the original image bytes.
type Loader struct {
	disk   cache.Cache
	src    source.Source
	raster tile.RasterDecoder
	logger *zap.Logger
}

func NewLoader(disk cache.Cache, src source.Source, raster tile.RasterDecoder, logger *zap.Logger) *Loader {
	return &Loader{
		disk:   disk,
		src:    src,
		raster: raster,
		logger: logger,
	}
}

// Load returns the payload for key and where it came from. Errors wrapping
// tile.ErrDecode or source.ErrNotFound are recoverable; anything else is not.
func (l *Loader) Load(ctx context.Context, key tile.Key) (tile.Payload, string, error) {
	if data, ok := l.disk.Get(key); ok {
		payload, err := l.decodeStored(key, data)
		if err == nil {
			return payload, originDisk, nil
		}
		l.logger.Warn("Ignoring unreadable cached tile",
			zap.Stringer("tile", key),
			zap.Error(err))
	}

	data, err := l.src.Fetch(ctx, key)
	if err != nil {
		return nil, "", err
	}

	switch key.Kind {
	case tile.Vector:
		vt, err := tile.DecodeVector(data)
		if err != nil {
			return nil, "", err
		}
		stored, err := tile.MarshalVector(vt)
		if err != nil {
			return nil, "", err
		}
		if err := l.disk.Set(key, stored); err != nil {
			return nil, "", fmt.Errorf("failed to cache tile: %w", err)
		}
		return vt, originNetwork, nil
	case tile.Raster:
		rt, err := l.decodeRaster(data)
		if err != nil {
			return nil, "", err
		}
		if err := l.disk.Set(key, data); err != nil {
			return nil, "", fmt.Errorf("failed to cache tile: %w", err)
		}
		return rt, originNetwork, nil
	default:
		return nil, "", fmt.Errorf("unknown tile kind %d", int(key.Kind))
	}
}

func (l *Loader) decodeStored(key tile.Key, data []byte) (tile.Payload, error) {
	if key.Kind == tile.Raster {
		return l.decodeRaster(data)
	}
	return tile.UnmarshalVector(data)
}

func (l *Loader) decodeRaster(data []byte) (*tile.RasterTile, error) {
	if l.raster == nil {
		return nil, errors.New("no raster decoder configured")
	}
	return l.raster.DecodeRaster(data)
}

// recoverable reports whether err only skips the tile for this scan.
func recoverable(err error) bool {
	return errors.Is(err, tile.ErrDecode) || errors.Is(err, source.ErrNotFound)
}
