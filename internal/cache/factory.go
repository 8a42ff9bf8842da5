package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// NewCache creates the disk cache based on the cache type
func NewCache(cacheType, cacheFileDir string, log *zap.Logger) (Cache, error) {
	switch cacheType {
	case "file":
		log.Info("Using file cache", zap.String("cache_dir", cacheFileDir))
		return NewFileCache(cacheFileDir)
	case "disabled":
		log.Info("Disk cache disabled")
		return NewNoopCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: file, disabled)", cacheType)
	}
}
