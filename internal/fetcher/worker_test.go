package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"asciimap/internal/cache"
	"asciimap/internal/geo"
	"asciimap/internal/source"
	"asciimap/internal/surface"
	"asciimap/internal/tile"
)

type fakeViewport struct {
	mu            sync.Mutex
	view          geo.View
	width, height int
}

func (v *fakeViewport) View() geo.View {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.view
}

func (v *fakeViewport) ScreenSize() (int, int) { return v.width, v.height }

func (v *fakeViewport) setZoom(z int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view.Zoom = z
}

type fakeSource struct {
	mu      sync.Mutex
	calls   []tile.Key
	payload func(key tile.Key) ([]byte, error)
}

func (s *fakeSource) Fetch(_ context.Context, key tile.Key) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, key)
	s.mu.Unlock()
	return s.payload(key)
}

func (s *fakeSource) Calls() []tile.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tile.Key(nil), s.calls...)
}

func (s *fakeSource) count(key tile.Key) int {
	n := 0
	for _, k := range s.Calls() {
		if k == key {
			n++
		}
	}
	return n
}

type stubRaster struct{ err error }

func (d stubRaster) DecodeRaster(data []byte) (*tile.RasterTile, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &tile.RasterTile{Rows: [][]surface.Cell{{{Rune: '▀', Fg: 1, Bg: 2}}}}, nil
}

func vectorBytes(t *testing.T) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {100, 100}}))
	data, err := mvt.Marshal(mvt.NewLayers(map[string]*geojson.FeatureCollection{"road": fc}))
	require.NoError(t, err)
	return data
}

type harness struct {
	viewport *fakeViewport
	src      *fakeSource
	disk     cache.Cache
	tiles    *cache.TileCache
	metrics  *Metrics
	worker   *Worker
	inserted []tile.Key
}

func newHarness(t *testing.T, view geo.View, kind tile.Kind, payload func(tile.Key) ([]byte, error)) *harness {
	t.Helper()
	disk, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		viewport: &fakeViewport{view: view, width: 80, height: 24},
		src:      &fakeSource{payload: payload},
		disk:     disk,
		tiles:    cache.NewTileCache(cache.DefaultCapacity),
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	h.worker = New(Options{
		Cache:    h.tiles,
		Loader:   NewLoader(disk, h.src, stubRaster{}, zap.NewNop()),
		Viewport: h.viewport,
		Kind:     kind,
		Metrics:  h.metrics,
		Logger:   zap.NewNop(),
		OnTile:   func(k tile.Key) { h.inserted = append(h.inserted, k) },
	})
	return h
}

func mustView(t *testing.T, lat, lon float64, zoom int) geo.View {
	t.Helper()
	v, err := geo.NewView(lat, lon, zoom)
	require.NoError(t, err)
	return v
}

func vk(x, y, z int) tile.Key { return tile.Key{X: x, Y: y, Z: z, Kind: tile.Vector} }

func TestScanFetchesVisibleNeighborsInOrder(t *testing.T) {
	data := vectorBytes(t)
	h := newHarness(t, mustView(t, 0, 0, 2), tile.Vector, func(tile.Key) ([]byte, error) { return data, nil })

	h.worker.Scan(context.Background())

	want := []tile.Key{vk(2, 2, 2), vk(1, 2, 2), vk(2, 1, 2), vk(2, 2, 3), vk(1, 1, 2)}
	assert.Equal(t, want, h.src.Calls())
	assert.Equal(t, want, h.inserted)
	assert.Equal(t, 5, h.tiles.Len())
	assert.True(t, h.disk.Has(vk(2, 2, 2)))
	assert.Equal(t, float64(5), testutil.ToFloat64(h.metrics.loaded.WithLabelValues("vector", originNetwork)))
	assert.Nil(t, h.worker.Fatal())
}

func TestScanDoesNotRefetchCachedTiles(t *testing.T) {
	data := vectorBytes(t)
	h := newHarness(t, mustView(t, 0, 0, 2), tile.Vector, func(tile.Key) ([]byte, error) { return data, nil })

	h.worker.Scan(context.Background())
	h.worker.Scan(context.Background())

	assert.Len(t, h.src.Calls(), 5)
	assert.Equal(t, 1, h.src.count(vk(2, 2, 2)))
	assert.Equal(t, int64(2), h.worker.Scans())
}

func TestScanSkipsTilesOffTheGrid(t *testing.T) {
	data := vectorBytes(t)
	h := newHarness(t, mustView(t, 0, 0, 0), tile.Vector, func(tile.Key) ([]byte, error) { return data, nil })

	h.worker.Scan(context.Background())

	assert.Equal(t, []tile.Key{vk(0, 0, 0), vk(0, 0, 1)}, h.src.Calls())
}

func TestScanPrefersDiskCache(t *testing.T) {
	h := newHarness(t, mustView(t, 0, 0, 0), tile.Vector, func(tile.Key) ([]byte, error) {
		return nil, source.ErrNotFound
	})
	vt, err := tile.DecodeVector(vectorBytes(t))
	require.NoError(t, err)
	stored, err := tile.MarshalVector(vt)
	require.NoError(t, err)
	require.NoError(t, h.disk.Set(vk(0, 0, 0), stored))

	h.worker.Scan(context.Background())

	assert.Equal(t, []tile.Key{vk(0, 0, 1)}, h.src.Calls())
	require.True(t, h.tiles.Contains(vk(0, 0, 0)))
	p, _ := h.tiles.Get(vk(0, 0, 0))
	assert.Equal(t, tile.Vector, p.Kind())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.loaded.WithLabelValues("vector", originDisk)))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.notFound.WithLabelValues("vector")))
	assert.Nil(t, h.worker.Fatal())
}

func TestScanUnreadableDiskEntryFallsBackToSource(t *testing.T) {
	data := vectorBytes(t)
	h := newHarness(t, mustView(t, 0, 0, 0), tile.Vector, func(tile.Key) ([]byte, error) { return data, nil })
	require.NoError(t, h.disk.Set(vk(0, 0, 0), []byte("{truncated")))

	h.worker.Scan(context.Background())

	assert.Equal(t, 1, h.src.count(vk(0, 0, 0)))
	assert.True(t, h.tiles.Contains(vk(0, 0, 0)))
}

func TestScanDropsUndecodableTileAndRetriesLater(t *testing.T) {
	data := vectorBytes(t)
	corrupt := vk(2, 2, 2)
	h := newHarness(t, mustView(t, 0, 0, 2), tile.Vector, func(k tile.Key) ([]byte, error) {
		if k == corrupt {
			return []byte{0x1f, 0x8b, 0x00, 0x01}, nil
		}
		return data, nil
	})

	h.worker.Scan(context.Background())
	assert.False(t, h.tiles.Contains(corrupt))
	assert.False(t, h.disk.Has(corrupt))
	assert.Equal(t, 4, h.tiles.Len(), "the rest of the scan still runs")
	assert.Nil(t, h.worker.Fatal())

	h.worker.Scan(context.Background())
	assert.Equal(t, 2, h.src.count(corrupt))
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.decodeFailures.WithLabelValues("vector")))
	assert.Nil(t, h.worker.Fatal())
}

func TestScanAbortsWhenZoomChanges(t *testing.T) {
	data := vectorBytes(t)
	var h *harness
	h = newHarness(t, mustView(t, 0, 0, 2), tile.Vector, func(tile.Key) ([]byte, error) {
		h.viewport.setZoom(3)
		return data, nil
	})

	h.worker.Scan(context.Background())

	assert.Equal(t, []tile.Key{vk(2, 2, 2)}, h.src.Calls())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.aborted))
}

func TestScanRecordsFatalError(t *testing.T) {
	data := vectorBytes(t)
	boom := errors.New("connection reset")
	h := newHarness(t, mustView(t, 0, 0, 2), tile.Vector, func(k tile.Key) ([]byte, error) {
		if k == vk(1, 2, 2) {
			return nil, boom
		}
		return data, nil
	})

	h.worker.Scan(context.Background())

	fe := h.worker.Fatal()
	require.NotNil(t, fe)
	assert.Equal(t, vk(1, 2, 2), fe.Key)
	assert.ErrorIs(t, fe, boom)
	assert.Contains(t, fe.Error(), "tile loc: 1 2 2")
	assert.Equal(t, []tile.Key{vk(2, 2, 2), vk(1, 2, 2)}, h.src.Calls(), "scan stops at the failure")
}

func TestScanRecoversPanic(t *testing.T) {
	h := newHarness(t, mustView(t, 0, 0, 0), tile.Vector, func(tile.Key) ([]byte, error) {
		panic("unexpected payload")
	})

	h.worker.Scan(context.Background())

	fe := h.worker.Fatal()
	require.NotNil(t, fe)
	assert.Contains(t, fe.Diagnostic, "unexpected payload")
	assert.Equal(t, vk(0, 0, 0), fe.Key)
}

func TestScanRasterTiles(t *testing.T) {
	h := newHarness(t, mustView(t, 0, 0, 0), tile.Raster, func(tile.Key) ([]byte, error) {
		return []byte{0xff, 0xd8, 0xff}, nil
	})

	h.worker.Scan(context.Background())

	key := tile.Key{X: 0, Y: 0, Z: 0, Kind: tile.Raster}
	p, ok := h.tiles.Get(key)
	require.True(t, ok)
	assert.Equal(t, tile.Raster, p.Kind())
	raw, ok := h.disk.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, raw)
}

func TestLoaderRasterDecodeFailureIsNotStored(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	src := &fakeSource{payload: func(tile.Key) ([]byte, error) { return []byte("junk"), nil }}
	l := NewLoader(fc, src, stubRaster{err: tile.ErrDecode}, zap.NewNop())

	key := tile.Key{Kind: tile.Raster}
	_, _, err = l.Load(context.Background(), key)
	assert.ErrorIs(t, err, tile.ErrDecode)
	assert.True(t, recoverable(err))
	assert.False(t, fc.Has(key))
}

func TestRunCoalescesWakeups(t *testing.T) {
	data := vectorBytes(t)
	h := newHarness(t, mustView(t, 0, 0, 0), tile.Vector, func(tile.Key) ([]byte, error) { return data, nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	h.worker.Wake()
	require.Eventually(t, func() bool { return h.tiles.Len() == 2 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 10; i++ {
		h.worker.Wake()
	}
	require.Eventually(t, func() bool { return len(h.worker.wake) == 0 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, h.worker.Scans(), int64(3))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRunStopsOnFatalError(t *testing.T) {
	h := newHarness(t, mustView(t, 0, 0, 0), tile.Vector, func(tile.Key) ([]byte, error) {
		return nil, errors.New("dns failure")
	})

	h.worker.Wake()
	err := h.worker.Run(context.Background())

	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, vk(0, 0, 0), fe.Key)
}

func TestVisible(t *testing.T) {
	assert.True(t, visible(vk(2, 2, 2), 64, 128, 128, 80, 24))
	assert.False(t, visible(vk(3, 2, 2), 64, 128, 128, 80, 24))
	assert.False(t, visible(vk(2, 3, 2), 64, 128, 128, 80, 24))
	assert.True(t, visible(vk(1, 1, 2), 64, 128, 128, 80, 24))
}
