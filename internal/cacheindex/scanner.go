package cacheindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"asciimap/internal/tile"
)

// TileInfo describes one tile file in the disk cache.
type TileInfo struct {
	Key     tile.Key  `json:"key"`
	Name    string    `json:"name"`
	Bytes   int64     `json:"bytes"`
	ModTime time.Time `json:"mod_time"`
}

// Stats summarizes the disk cache.
type Stats struct {
	Tiles  int            `json:"tiles"`
	Bytes  int64          `json:"bytes"`
	ByKind map[string]int `json:"by_kind"`
	ByZoom map[int]int    `json:"by_zoom"`
	Other  int            `json:"other_files"`
}

// Scanner inventories the tile cache directory for operator commands. The
// map engine never deletes cache files itself.
type Scanner struct {
	cacheDir string
	logger   *zap.Logger
	tiles    []TileInfo
	other    []string

	// validateRaster checks a raster file can be opened. Replaced in tests.
	validateRaster func(path string) error
}

func New(cacheDir string, logger *zap.Logger) *Scanner {
	return &Scanner{
		cacheDir:       cacheDir,
		logger:         logger,
		validateRaster: loadRaster,
	}
}

// ParseName reverses tile.Key.FileName.
func ParseName(name string) (tile.Key, bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 4 {
		return tile.Key{}, false
	}
	kind, ok := tile.KindFromExt(strings.ToLower(parts[3]))
	if !ok {
		return tile.Key{}, false
	}
	var nums [3]int
	for i, p := range parts[:3] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return tile.Key{}, false
		}
		nums[i] = n
	}
	key := tile.Key{Z: nums[0], X: nums[1], Y: nums[2], Kind: kind}
	return key, key.Valid()
}

func (s *Scanner) Scan() error {
	s.tiles = []TileInfo{}
	s.other = []string{}

	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := s.getFilePath(entry.Name())
		key, ok := ParseName(entry.Name())
		if !ok {
			s.other = append(s.other, entry.Name())
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("Error getting file info", zap.String("path", path), zap.Error(err))
			continue
		}

		s.tiles = append(s.tiles, TileInfo{
			Key:     key,
			Name:    entry.Name(),
			Bytes:   info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(s.tiles, func(i, j int) bool {
		a, b := s.tiles[i].Key, s.tiles[j].Key
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Kind < b.Kind
	})
	return nil
}

func (s *Scanner) GetTiles() []TileInfo {
	return s.tiles
}

// GetOther lists files that are not tiles, such as leftover temp files.
func (s *Scanner) GetOther() []string {
	return s.other
}

func (s *Scanner) Stats() Stats {
	st := Stats{
		ByKind: map[string]int{},
		ByZoom: map[int]int{},
		Other:  len(s.other),
	}
	for _, t := range s.tiles {
		st.Tiles++
		st.Bytes += t.Bytes
		st.ByKind[t.Key.Kind.String()]++
		st.ByZoom[t.Key.Z]++
	}
	return st
}

// Prune deletes tiles that can no longer be decoded and stray temp files
// left by interrupted writes. It returns the number of files removed.
func (s *Scanner) Prune() (int, error) {
	if err := s.Scan(); err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range s.other {
		if !strings.HasSuffix(name, ".tmp") {
			continue
		}
		if s.remove(name, "Deleted leftover temp file") {
			removed++
		}
	}

	kept := s.tiles[:0]
	for _, t := range s.tiles {
		if err := s.validate(t); err != nil {
			s.logger.Warn("Invalid tile file", zap.String("name", t.Name), zap.Error(err))
			if s.remove(t.Name, "Deleted invalid tile file") {
				removed++
				continue
			}
		}
		kept = append(kept, t)
	}
	s.tiles = kept

	return removed, nil
}

func (s *Scanner) validate(t TileInfo) error {
	path := s.getFilePath(t.Name)
	if t.Key.Kind == tile.Raster {
		return s.validateRaster(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = tile.UnmarshalVector(data)
	return err
}

func (s *Scanner) remove(name, msg string) bool {
	path := s.getFilePath(name)
	if err := os.Remove(path); err != nil {
		s.logger.Warn("Failed to delete file", zap.String("path", path), zap.Error(err))
		return false
	}
	s.logger.Info(msg, zap.String("path", path))
	return true
}

func (s *Scanner) getFilePath(filename string) string {
	return filepath.Join(s.cacheDir, filename)
}

// loadRaster opens a cached satellite tile to confirm it is a readable JPEG.
func loadRaster(path string) error {
	opts := vips.DefaultJpegloadOptions()
	opts.Access = vips.AccessSequential
	image, err := vips.NewJpegload(path, opts)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	image.Close()
	return nil
}
