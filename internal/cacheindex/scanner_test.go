package cacheindex

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"asciimap/internal/tile"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		want tile.Key
		ok   bool
	}{
		{"10.493.428.json", tile.Key{X: 493, Y: 428, Z: 10, Kind: tile.Vector}, true},
		{"3.1.2.jpg", tile.Key{X: 1, Y: 2, Z: 3, Kind: tile.Raster}, true},
		{"3.1.2.JPG", tile.Key{X: 1, Y: 2, Z: 3, Kind: tile.Raster}, true},
		{"3.9.2.jpg", tile.Key{}, false},
		{"3.1.2.png", tile.Key{}, false},
		{"3.1.json", tile.Key{}, false},
		{"a.1.2.json", tile.Key{}, false},
		{"10.493.428.json.tmp", tile.Key{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseName(tt.name)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestScanAndStats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "5.1.1.json", `{"layers":{}}`)
	writeFile(t, dir, "4.0.0.json", `{"layers":{}}`)
	writeFile(t, dir, "5.1.1.jpg", "jpeg")
	writeFile(t, dir, "notes.txt", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	s := New(dir, zap.NewNop())
	require.NoError(t, s.Scan())

	tiles := s.GetTiles()
	require.Len(t, tiles, 3)
	assert.Equal(t, "4.0.0.json", tiles[0].Name)
	assert.Equal(t, tile.Key{X: 1, Y: 1, Z: 5, Kind: tile.Vector}, tiles[1].Key)
	assert.Equal(t, tile.Raster, tiles[2].Key.Kind)
	assert.Equal(t, []string{"notes.txt"}, s.GetOther())

	st := s.Stats()
	assert.Equal(t, 3, st.Tiles)
	assert.Equal(t, int64(13+13+4), st.Bytes)
	assert.Equal(t, map[string]int{"vector": 2, "raster": 1}, st.ByKind)
	assert.Equal(t, map[int]int{4: 1, 5: 2}, st.ByZoom)
	assert.Equal(t, 1, st.Other)
}

func TestScanMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	assert.Error(t, s.Scan())
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "5.1.1.json", `{"layers":{}}`)
	writeFile(t, dir, "5.1.2.json", `{"layers":`)
	writeFile(t, dir, "5.1.3.json.tmp", `{}`)
	writeFile(t, dir, "5.1.1.jpg", "good")
	writeFile(t, dir, "5.1.2.jpg", "bad")
	writeFile(t, dir, "README", "keep")

	s := New(dir, zap.NewNop())
	s.validateRaster = func(path string) error {
		if filepath.Base(path) == "5.1.2.jpg" {
			return errors.New("not a jpeg")
		}
		return nil
	}

	removed, err := s.Prune()
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	assert.FileExists(t, filepath.Join(dir, "5.1.1.json"))
	assert.FileExists(t, filepath.Join(dir, "5.1.1.jpg"))
	assert.FileExists(t, filepath.Join(dir, "README"))
	assert.NoFileExists(t, filepath.Join(dir, "5.1.2.json"))
	assert.NoFileExists(t, filepath.Join(dir, "5.1.2.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "5.1.3.json.tmp"))
	assert.Len(t, s.GetTiles(), 2)
}
