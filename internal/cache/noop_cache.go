package cache

import "asciimap/internal/tile"

// NoopCache disables the disk cache: every tile goes to the source.
type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(key tile.Key) ([]byte, bool) {
	return nil, false
}

func (c *NoopCache) Set(key tile.Key, value []byte) error {
	return nil
}

func (c *NoopCache) Has(key tile.Key) bool {
	return false
}

func (c *NoopCache) Clear() error {
	return nil
}
