// Package fetcher keeps the tile cache filled around the current view.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"asciimap/internal/cache"
	"asciimap/internal/geo"
	"asciimap/internal/tile"
)

// Viewport is the live view state the worker reads while scanning.
type Viewport interface {
	View() geo.View
	// ScreenSize is the size in cells of the surface last drawn to.
	ScreenSize() (width, height int)
}

// FatalError is a failure during a scan that ends the session.
type FatalError struct {
	Key        tile.Key
	Diagnostic string
	Err        error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s - tile loc: %d %d %d", e.Diagnostic, e.Key.X, e.Key.Y, e.Key.Z)
}

func (e *FatalError) Unwrap() error { return e.Err }

// neighbor is an offset from the center tile.
type neighbor struct{ dx, dy, dz int }

// neighbors lists the tiles fetched around the center, most relevant first.
var neighbors = []neighbor{
	{0, 0, 0},
	{1, 0, 0},
	{0, 1, 0},
	{-1, 0, 0},
	{0, -1, 0},
	{0, 0, -1},
	{0, 0, 1},
	{1, 1, 0},
	{1, -1, 0},
	{-1, -1, 0},
	{-1, 1, 0},
}

type Options struct {
	Cache    *cache.TileCache
	Loader   *Loader
	Viewport Viewport
	Kind     tile.Kind
	Metrics  *Metrics
	Logger   *zap.Logger
	// OnTile is called after each tile is inserted into the cache.
	OnTile func(tile.Key)
}

// Worker scans the neighborhood of the view whenever it is woken and loads
// missing tiles one at a time.
type Worker struct {
	cache    *cache.TileCache
	loader   *Loader
	viewport Viewport
	kind     tile.Kind
	metrics  *Metrics
	logger   *zap.Logger
	onTile   func(tile.Key)

	wake  chan struct{}
	fatal *atomic.Error
	scans *atomic.Int64
}

func New(opts Options) *Worker {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OnTile == nil {
		opts.OnTile = func(tile.Key) {}
	}
	return &Worker{
		cache:    opts.Cache,
		loader:   opts.Loader,
		viewport: opts.Viewport,
		kind:     opts.Kind,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		onTile:   opts.OnTile,
		wake:     make(chan struct{}, 1),
		fatal:    atomic.NewError(nil),
		scans:    atomic.NewInt64(0),
	}
}

// Wake requests a scan. Requests made while a scan is pending coalesce.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Fatal returns the first fatal failure recorded, or nil.
func (w *Worker) Fatal() *FatalError {
	var fe *FatalError
	if errors.As(w.fatal.Load(), &fe) {
		return fe
	}
	return nil
}

// Scans is the number of scans started so far.
func (w *Worker) Scans() int64 { return w.scans.Load() }

// Run waits for wake signals and scans until ctx is done. It stops early
// once a fatal failure has been recorded.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.wake:
		}

		w.Scan(ctx)
		if fe := w.Fatal(); fe != nil {
			return fe
		}
	}
}

// Scan visits the neighbor tiles of the current view once.
func (w *Worker) Scan(ctx context.Context) {
	start := time.Now()
	scanID := uuid.New().String()
	w.scans.Inc()
	w.metrics.scans.Inc()
	defer func() {
		w.metrics.scanDuration.Observe(time.Since(start).Seconds())
	}()

	view := w.viewport.View()
	width, height := w.viewport.ScreenSize()
	zoom := view.Zoom
	size := view.Size
	xOffset := view.PixelX()
	yOffset := view.PixelY()
	centerX := int(math.Floor(float64(xOffset) / size))
	centerY := int(math.Floor(float64(yOffset) / size))

	log := w.logger.With(zap.String("scan_id", scanID), zap.Int("zoom", zoom))
	log.Debug("Scanning tiles", zap.Int("center_x", centerX), zap.Int("center_y", centerY))

	for _, nb := range neighbors {
		if ctx.Err() != nil {
			return
		}
		// The captured view is stale once the zoom level moves on.
		if w.viewport.View().Zoom != zoom {
			w.metrics.aborted.Inc()
			log.Debug("Zoom changed, abandoning scan")
			return
		}

		key := tile.Key{X: centerX + nb.dx, Y: centerY + nb.dy, Z: zoom + nb.dz, Kind: w.kind}
		if !key.Valid() {
			continue
		}

		if nb.dz == 0 && !visible(key, size, xOffset, yOffset, width, height) {
			continue
		}

		if w.cache.Contains(key) {
			continue
		}

		if err := w.fetch(ctx, key); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.fail(key, err)
			log.Error("Tile fetch failed", zap.Stringer("tile", key), zap.Error(err))
			return
		}
	}
}

// fetch loads one tile into the cache. Recoverable failures are logged and
// swallowed; a panic is turned into an error.
func (w *Worker) fetch(ctx context.Context, key tile.Key) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	payload, origin, err := w.loader.Load(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, tile.ErrDecode):
		w.metrics.decodeFailed(key.Kind)
		w.logger.Warn("Dropping undecodable tile", zap.Stringer("tile", key), zap.Error(err))
		return nil
	case recoverable(err):
		w.metrics.tileNotFound(key.Kind)
		w.logger.Debug("Tile not available", zap.Stringer("tile", key))
		return nil
	default:
		return err
	}

	if evicted := w.cache.Insert(key, payload); evicted != nil {
		w.logger.Debug("Evicted tile", zap.Stringer("tile", evicted.Key))
	}
	w.metrics.tileLoaded(key.Kind, origin)
	w.onTile(key)
	return nil
}

func (w *Worker) fail(key tile.Key, err error) {
	if w.fatal.Load() != nil {
		return
	}
	w.fatal.Store(&FatalError{Key: key, Diagnostic: err.Error(), Err: err})
}

// visible reports whether a tile at the current zoom overlaps the screen.
func visible(key tile.Key, size float64, xOffset, yOffset, width, height int) bool {
	top := float64(key.Y)*size - float64(yOffset) + float64(height/2)
	left := (float64(key.X)*size - float64(xOffset) + float64(width/4)) * 2
	return !(left > float64(width) || left+size*2 < 0 || top > float64(height) || top+size < 0)
}
