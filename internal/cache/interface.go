package cache

import "asciimap/internal/tile"

// Cache is the second-level store of raw tile bytes, surviving restarts.
// Entries are never expired by the engine.
type Cache interface {
	Get(key tile.Key) ([]byte, bool)
	Set(key tile.Key, value []byte) error
	Has(key tile.Key) bool // Check if tile exists without reading it (lightweight check)
	Clear() error
}
