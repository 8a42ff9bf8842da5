// Package engine wires the tile cache, fetcher, animator and renderer into
// a map that a host draws once per frame.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"asciimap/internal/animator"
	"asciimap/internal/cache"
	"asciimap/internal/fetcher"
	"asciimap/internal/geo"
	"asciimap/internal/renderer"
	"asciimap/internal/surface"
	"asciimap/internal/tile"
)

var (
	ErrNotReady         = errors.New("map engine is not ready")
	ErrReadinessTimeout = errors.New("map engine did not become ready in time")
	ErrAlreadyStarted   = errors.New("map engine already started")
)

type EventType int

const (
	// ViewChanged is sent after an animation tick moved the view.
	ViewChanged EventType = iota
	// TileLoaded is sent from the fetch worker after a tile entered the cache.
	TileLoaded
)

type Event struct {
	Type EventType
	View geo.View
	Tile tile.Key
}

// Listener receives engine events. TileLoaded events arrive on the fetch
// worker's goroutine, so listeners must not block.
type Listener func(Event)

type Options struct {
	// Start is where the map is centered before any target is set.
	Start     geo.View
	Satellite bool
	// Tiles defaults to a cache of cache.DefaultCapacity entries.
	Tiles     *cache.TileCache
	Loader    *fetcher.Loader
	Metrics   *fetcher.Metrics
	Logger    *zap.Logger
	Listeners []Listener
}

// Engine owns the current and desired view. The host calls RenderFrame on
// every tick; tiles are loaded in the background between frames.
type Engine struct {
	mu            sync.Mutex
	view          geo.View
	desired       geo.View
	width, height int

	tiles     *cache.TileCache
	worker    *fetcher.Worker
	animator  *animator.Animator
	renderer  *renderer.Renderer
	listeners []Listener
	logger    *zap.Logger

	started *atomic.Bool
	ready   *atomic.Bool
	frames  *atomic.Int64
	done    chan struct{}
}

func New(opts Options) (*Engine, error) {
	if opts.Loader == nil {
		return nil, errors.New("engine requires a tile loader")
	}
	start, err := geo.NewView(opts.Start.Lat, opts.Start.Lon, opts.Start.Zoom)
	if err != nil {
		return nil, fmt.Errorf("invalid start view: %w", err)
	}
	if opts.Tiles == nil {
		opts.Tiles = cache.NewTileCache(cache.DefaultCapacity)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	kind := tile.Vector
	if opts.Satellite {
		kind = tile.Raster
	}

	e := &Engine{
		view:      start,
		desired:   start,
		tiles:     opts.Tiles,
		animator:  animator.New(opts.Satellite),
		renderer:  renderer.New(opts.Satellite),
		listeners: append([]Listener(nil), opts.Listeners...),
		logger:    opts.Logger,
		started:   atomic.NewBool(false),
		ready:     atomic.NewBool(false),
		frames:    atomic.NewInt64(0),
		done:      make(chan struct{}),
	}
	e.worker = fetcher.New(fetcher.Options{
		Cache:    opts.Tiles,
		Loader:   opts.Loader,
		Viewport: e,
		Kind:     kind,
		Metrics:  opts.Metrics,
		Logger:   opts.Logger,
		OnTile: func(key tile.Key) {
			e.notify(Event{Type: TileLoaded, Tile: key})
		},
	})
	return e, nil
}

// Start launches the fetch worker. It runs until ctx is cancelled or a
// fatal failure is recorded.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	go func() {
		defer close(e.done)
		err := e.worker.Run(ctx)
		var fe *fetcher.FatalError
		if errors.As(err, &fe) {
			e.logger.Error("Tile fetcher stopped", zap.Error(fe))
			return
		}
		e.logger.Debug("Tile fetcher stopped", zap.Error(err))
	}()

	e.ready.Store(true)
	view := e.View()
	e.logger.Info("Map engine started",
		zap.Float64("lat", view.Lat),
		zap.Float64("lon", view.Lon),
		zap.Int("zoom", view.Zoom),
		zap.Int("tile_capacity", e.tiles.Capacity()))
	return nil
}

func (e *Engine) Ready() bool { return e.ready.Load() }

// Done is closed once the fetch worker has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

// WaitReady blocks until the engine is ready or timeout elapses.
func (e *Engine) WaitReady(ctx context.Context, timeout time.Duration) error {
	if e.Ready() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w after %s", ErrReadinessTimeout, timeout)
		case <-ticker.C:
			if e.Ready() {
				return nil
			}
		}
	}
}

// SetTarget sets where the map animates to.
func (e *Engine) SetTarget(lat, lon float64, zoom int) error {
	target, err := geo.NewView(lat, lon, zoom)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.desired = target
	e.mu.Unlock()

	e.worker.Wake()
	return nil
}

// ForceCenter jumps to lat/lon without animating. The zoom is unchanged.
func (e *Engine) ForceCenter(lat, lon float64) error {
	p, err := geo.NewPoint(lat, lon)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.view.Lat, e.view.Lon = p.Lat, p.Lon
	e.desired.Lat, e.desired.Lon = p.Lat, p.Lon
	e.mu.Unlock()

	e.worker.Wake()
	return nil
}

// View returns the view currently drawn. It also lets the fetch worker
// follow the map.
func (e *Engine) View() geo.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// Target returns the view being animated to.
func (e *Engine) Target() geo.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.desired
}

// ScreenSize is the size of the surface drawn to last.
func (e *Engine) ScreenSize() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}

// Settled reports whether the view has reached its target.
func (e *Engine) Settled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view == e.desired
}

// Frames counts RenderFrame calls that drew a frame.
func (e *Engine) Frames() int64 { return e.frames.Load() }

// Scans counts neighbor scans completed by the fetch worker.
func (e *Engine) Scans() int64 { return e.worker.Scans() }

// Err returns the failure that ended the session, if any.
func (e *Engine) Err() error {
	if fe := e.worker.Fatal(); fe != nil {
		return fe
	}
	return nil
}

// RenderFrame advances the animation by one tick and draws the cached tiles
// onto s. It returns the number of tiles drawn. Once the fetcher has failed
// every call returns its *fetcher.FatalError.
func (e *Engine) RenderFrame(s surface.Surface) (int, error) {
	if fe := e.worker.Fatal(); fe != nil {
		return 0, fe
	}
	if !e.Ready() {
		return 0, ErrNotReady
	}

	e.mu.Lock()
	resized := e.width != s.Width() || e.height != s.Height()
	e.width, e.height = s.Width(), s.Height()
	moved := e.animator.Step(&e.view, e.desired)
	view := e.view
	e.mu.Unlock()

	if moved || resized {
		e.worker.Wake()
	}
	if moved {
		e.notify(Event{Type: ViewChanged, View: view})
	}

	count := e.renderer.Render(s, view, e.tiles.Snapshot())
	e.frames.Inc()
	return count, nil
}

func (e *Engine) notify(ev Event) {
	for _, l := range e.listeners {
		l(ev)
	}
}
