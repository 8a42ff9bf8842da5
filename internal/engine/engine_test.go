package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"asciimap/internal/cache"
	"asciimap/internal/fetcher"
	"asciimap/internal/geo"
	"asciimap/internal/surface"
	"asciimap/internal/tile"
)

type countingSource struct {
	mu    sync.Mutex
	calls map[tile.Key]int
	data  []byte
	err   error
}

func (s *countingSource) Fetch(_ context.Context, key tile.Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[tile.Key]int)
	}
	s.calls[key]++
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

func (s *countingSource) maxCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c > n {
			n = c
		}
	}
	return n
}

func waterTile(t *testing.T) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Polygon{{{0, 0}, {4096, 0}, {4096, 4096}, {0, 4096}, {0, 0}}}))
	data, err := mvt.Marshal(mvt.NewLayers(map[string]*geojson.FeatureCollection{"water": fc}))
	require.NoError(t, err)
	return data
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func newEngine(t *testing.T, src *countingSource, listeners ...Listener) *Engine {
	t.Helper()
	disk, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	start, err := geo.NewView(0, 0, 5)
	require.NoError(t, err)

	e, err := New(Options{
		Start:     start,
		Loader:    fetcher.NewLoader(disk, src, nil, zap.NewNop()),
		Logger:    zap.NewNop(),
		Listeners: listeners,
	})
	require.NoError(t, err)
	return e
}

func start(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() {
		cancel()
		<-e.Done()
	})
}

// settle renders frames until the view stops moving.
func settle(t *testing.T, e *Engine, s surface.Surface) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		before := e.View()
		_, err := e.RenderFrame(s)
		require.NoError(t, err)
		if e.View() == before {
			return
		}
	}
	t.Fatal("view did not settle")
}

func TestRenderFrameConvergesOnTarget(t *testing.T) {
	src := &countingSource{data: waterTile(t)}
	rec := &recorder{}
	e := newEngine(t, src, rec.listen)
	start(t, e)
	b := surface.NewBuffer(80, 24, 256, true)

	require.NoError(t, e.SetTarget(28.367571, -16.718861, 10))
	settle(t, e, b)

	view := e.View()
	assert.Equal(t, 10, view.Zoom)
	assert.Equal(t, geo.BaseTileSize, view.Size)
	assert.InDelta(t, 28.367571, view.Lat, 1e-9)
	assert.InDelta(t, -16.718861, view.Lon, 1e-9)
	assert.True(t, e.Settled())
	assert.Positive(t, rec.count(ViewChanged))

	for i := 0; i < 5; i++ {
		_, err := e.RenderFrame(b)
		require.NoError(t, err)
		assert.Equal(t, view, e.View(), "view must stay put once settled")
	}

	require.Eventually(t, func() bool {
		n, err := e.RenderFrame(b)
		return err == nil && n > 0
	}, 5*time.Second, 10*time.Millisecond, "tiles for the target were never drawn")
	assert.Positive(t, rec.count(TileLoaded))
	assert.Positive(t, b.Count(153))
	assert.Positive(t, e.Scans())
	assert.Greater(t, e.Frames(), int64(5))
	assert.Equal(t, 1, src.maxCalls(), "no tile is fetched twice")
}

func TestRenderFrameBeforeStart(t *testing.T) {
	e := newEngine(t, &countingSource{})
	_, err := e.RenderFrame(surface.NewBuffer(10, 10, 256, true))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Zero(t, e.Frames())
}

func TestWaitReady(t *testing.T) {
	e := newEngine(t, &countingSource{})

	err := e.WaitReady(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrReadinessTimeout)

	start(t, e)
	assert.True(t, e.Ready())
	assert.NoError(t, e.WaitReady(context.Background(), time.Second))
	assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyStarted)
}

func TestWaitReadyHonoursContext(t *testing.T) {
	e := newEngine(t, &countingSource{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.WaitReady(ctx, time.Minute), context.Canceled)
}

func TestForceCenterSkipsAnimation(t *testing.T) {
	e := newEngine(t, &countingSource{data: waterTile(t)})
	start(t, e)

	require.NoError(t, e.ForceCenter(40.4168, -3.7038))
	view := e.View()
	assert.Equal(t, 40.4168, view.Lat)
	assert.Equal(t, -3.7038, view.Lon)
	assert.Equal(t, 5, view.Zoom)
	assert.Equal(t, view, e.Target())

	_, err := e.RenderFrame(surface.NewBuffer(80, 24, 256, true))
	require.NoError(t, err)
	assert.Equal(t, view, e.View())
}

func TestInvalidTargetsAreRejected(t *testing.T) {
	e := newEngine(t, &countingSource{})
	before := e.Target()

	assert.ErrorIs(t, e.SetTarget(0, 0, 21), geo.ErrZoom)
	assert.ErrorIs(t, e.SetTarget(95, 0, 3), geo.ErrLatitude)
	assert.ErrorIs(t, e.ForceCenter(-91, 0), geo.ErrLatitude)
	assert.ErrorIs(t, e.SetTarget(math.NaN(), 0, 5), geo.ErrLatitude)
	assert.ErrorIs(t, e.SetTarget(0, math.Inf(1), 5), geo.ErrLongitude)
	assert.ErrorIs(t, e.ForceCenter(0, math.NaN()), geo.ErrLongitude)
	assert.Equal(t, before, e.Target())
	assert.Equal(t, before, e.View())
}

func TestFetchFailureIsFatal(t *testing.T) {
	e := newEngine(t, &countingSource{err: errors.New("connection reset")})
	start(t, e)
	b := surface.NewBuffer(80, 24, 256, true)

	var err error
	require.Eventually(t, func() bool {
		_, err = e.RenderFrame(b)
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)

	var fe *fetcher.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 5, fe.Key.Z)
	assert.Contains(t, fe.Error(), "connection reset")

	_, again := e.RenderFrame(b)
	assert.Equal(t, err, again, "the failure ends the session")
	assert.Equal(t, err, e.Err())

	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("fetch worker still running")
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	disk := cache.NewNoopCache()
	_, err = New(Options{
		Start:  geo.View{Zoom: 25},
		Loader: fetcher.NewLoader(disk, &countingSource{}, nil, zap.NewNop()),
	})
	assert.ErrorIs(t, err, geo.ErrZoom)
}
