package main

import (
	"fmt"
	"os"

	"github.com/cshum/vipsgen/vips"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"asciimap/internal/cache"
	"asciimap/internal/config"
	"asciimap/internal/fetcher"
	"asciimap/internal/geo"
	"asciimap/internal/logger"
	"asciimap/internal/source"
	"asciimap/internal/tile"
)

var rootCmd = &cobra.Command{
	Use:          "asciimap",
	Short:        "World map in the terminal",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds a logger. Commands that own the
// terminal log to the configured file, the others to stderr.
func setup(toFile bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logFile := ""
	if toFile {
		logFile = cfg.LogFile
	}
	log, err := logger.New(cfg.LogLevel, logFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// startVips initializes libvips for raster decoding. The returned func
// shuts it down.
func startVips(cfg *config.Config, log *zap.Logger) func() {
	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024,
		MaxCacheFiles:    0,
		MaxCacheSize:     0,
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	})

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)
	return vips.Shutdown
}

// newSource opens the configured upstream tile provider.
func newSource(cfg *config.Config, kind tile.Kind, log *zap.Logger) (source.Source, func() error, error) {
	switch cfg.TileSource {
	case "mbtiles":
		src, err := source.NewMBTilesSource(cfg.MBTilesPath, kind)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using mbtiles source", zap.String("path", cfg.MBTilesPath))
		return src, src.Close, nil
	default:
		src := source.NewHTTPSource(source.HTTPOptions{
			VectorURL: cfg.VectorURL,
			RasterURL: cfg.RasterURL,
			Token:     cfg.AccessToken,
			Timeout:   cfg.HTTPTimeout,
			Retries:   cfg.HTTPRetries,
			Backoff:   cfg.HTTPBackoff,
		}, log)
		if cfg.AccessToken == "" {
			log.Warn("No access token configured, only cached tiles will load")
		}
		return src, func() error { return nil }, nil
	}
}

// newLoader wires the disk cache, source and raster decoder together.
func newLoader(cfg *config.Config, kind tile.Kind, unicode bool, log *zap.Logger) (*fetcher.Loader, func() error, error) {
	disk, err := cache.NewCache(cfg.CacheType, cfg.CacheDir, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	src, closeSrc, err := newSource(cfg, kind, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tile source: %w", err)
	}

	var raster tile.RasterDecoder
	if kind == tile.Raster {
		raster = tile.NewVipsDecoder(int(geo.BaseTileSize), unicode)
	}
	return fetcher.NewLoader(disk, src, raster, log), closeSrc, nil
}

func modeKind(satellite bool) tile.Kind {
	if satellite {
		return tile.Raster
	}
	return tile.Vector
}
