package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"asciimap/internal/tile"
)

// FileCache implements file-based cache
// Structure: {cacheDir}/{z}.{x}.{y}.{ext}
type FileCache struct {
	mu       sync.RWMutex
	cacheDir string
}

func NewFileCache(cacheDir string) (*FileCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileCache{
		cacheDir: cacheDir,
	}, nil
}

// Dir is the directory holding the tile files.
func (c *FileCache) Dir() string { return c.cacheDir }

func (c *FileCache) buildFilePath(key tile.Key) string {
	return filepath.Join(c.cacheDir, key.FileName())
}

func (c *FileCache) Get(key tile.Key) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.buildFilePath(key))
	if err != nil {
		return nil, false
	}

	return data, true
}

func (c *FileCache) Has(key tile.Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, err := os.Stat(c.buildFilePath(key))
	return err == nil && info.Mode().IsRegular()
}

func (c *FileCache) Set(key tile.Key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	filePath := c.buildFilePath(key)

	// Write atomically
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, value, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to store %s: %w", filePath, err)
	}
	return nil
}

// Remove deletes one tile file. Missing files are not an error.
func (c *FileCache) Remove(key tile.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.buildFilePath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove tile: %w", err)
	}
	return nil
}

func (c *FileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.cacheDir); err != nil {
		return fmt.Errorf("failed to clear cache directory: %w", err)
	}

	return os.MkdirAll(c.cacheDir, 0755)
}
