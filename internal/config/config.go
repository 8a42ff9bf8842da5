package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"asciimap/internal/cache"
	"asciimap/internal/geo"
	"asciimap/internal/source"
)

// PathEnv names the optional config file. Environment variables override
// values read from it.
const PathEnv = "ASCIIMAP_CONFIG"

type Config struct {
	AccessToken     string
	TileSource      string
	VectorURL       string
	RasterURL       string
	MBTilesPath     string
	HTTPTimeout     time.Duration
	HTTPRetries     int
	HTTPBackoff     time.Duration
	CacheType       string
	CacheDir        string
	CacheTiles      int
	Satellite       bool
	StartLat        float64
	StartLon        float64
	StartZoom       int
	FrameInterval   time.Duration
	ReadyTimeout    time.Duration
	LogLevel        string
	LogFile         string
	ControlAddr     string
	ControlToken    string
	AllowedOrigin   string
	VipsMaxCacheMB  int
	VipsConcurrency int
}

// File is the layout of the config file. Durations are strings such as
// "250ms" and unset pointers keep the default.
type File struct {
	Tiles struct {
		Token     string `toml:"token" yaml:"token"`
		Source    string `toml:"source" yaml:"source"`
		VectorURL string `toml:"vector_url" yaml:"vector_url"`
		RasterURL string `toml:"raster_url" yaml:"raster_url"`
		MBTiles   string `toml:"mbtiles" yaml:"mbtiles"`
		Timeout   string `toml:"timeout" yaml:"timeout"`
		Retries   int    `toml:"retries" yaml:"retries"`
		Backoff   string `toml:"backoff" yaml:"backoff"`
	} `toml:"tiles" yaml:"tiles"`

	Cache struct {
		Type  string `toml:"type" yaml:"type"`
		Dir   string `toml:"dir" yaml:"dir"`
		Tiles int    `toml:"tiles" yaml:"tiles"`
	} `toml:"cache" yaml:"cache"`

	Map struct {
		Satellite     *bool    `toml:"satellite" yaml:"satellite"`
		Latitude      *float64 `toml:"latitude" yaml:"latitude"`
		Longitude     *float64 `toml:"longitude" yaml:"longitude"`
		Zoom          *int     `toml:"zoom" yaml:"zoom"`
		FrameInterval string   `toml:"frame_interval" yaml:"frame_interval"`
		ReadyTimeout  string   `toml:"ready_timeout" yaml:"ready_timeout"`
	} `toml:"map" yaml:"map"`

	Log struct {
		Level string `toml:"level" yaml:"level"`
		File  string `toml:"file" yaml:"file"`
	} `toml:"log" yaml:"log"`

	Control struct {
		Addr          string `toml:"addr" yaml:"addr"`
		Token         string `toml:"token" yaml:"token"`
		AllowedOrigin string `toml:"allowed_origin" yaml:"allowed_origin"`
	} `toml:"control" yaml:"control"`
}

func defaults() *Config {
	return &Config{
		TileSource:      "http",
		VectorURL:       source.DefaultVectorURL,
		RasterURL:       source.DefaultRasterURL,
		HTTPTimeout:     10 * time.Second,
		HTTPRetries:     3,
		HTTPBackoff:     500 * time.Millisecond,
		CacheType:       "file",
		CacheDir:        "mapscache",
		CacheTiles:      cache.DefaultCapacity,
		StartLat:        51.4778,
		StartLon:        -0.0015,
		StartZoom:       5,
		FrameInterval:   50 * time.Millisecond,
		ReadyTimeout:    5 * time.Second,
		LogLevel:        "info",
		LogFile:         "asciimap.log",
		VipsMaxCacheMB:  64,
		VipsConcurrency: 1,
	}
}

// Load builds the configuration from defaults, the file named by
// ASCIIMAP_CONFIG and the environment, in increasing precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(PathEnv); path != "" {
		f, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.apply(f); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	cfg.AccessToken = getEnv("MAPBOX_ACCESS_TOKEN", cfg.AccessToken)
	cfg.TileSource = getEnv("TILE_SOURCE", cfg.TileSource)
	cfg.VectorURL = getEnv("VECTOR_URL", cfg.VectorURL)
	cfg.RasterURL = getEnv("RASTER_URL", cfg.RasterURL)
	cfg.MBTilesPath = getEnv("MBTILES_PATH", cfg.MBTilesPath)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.HTTPRetries = getEnvInt("HTTP_RETRIES", cfg.HTTPRetries)
	cfg.HTTPBackoff = getEnvDuration("HTTP_BACKOFF", cfg.HTTPBackoff)
	cfg.CacheType = getEnv("CACHE", cfg.CacheType)
	cfg.CacheDir = getEnv("CACHE_DIR", cfg.CacheDir)
	cfg.CacheTiles = getEnvInt("CACHE_MEMORY_TILES", cfg.CacheTiles)
	cfg.Satellite = getEnvBool("SATELLITE", cfg.Satellite)
	cfg.StartLat = getEnvFloat("START_LAT", cfg.StartLat)
	cfg.StartLon = getEnvFloat("START_LON", cfg.StartLon)
	cfg.StartZoom = getEnvInt("START_ZOOM", cfg.StartZoom)
	cfg.FrameInterval = getEnvDuration("FRAME_INTERVAL", cfg.FrameInterval)
	cfg.ReadyTimeout = getEnvDuration("READY_TIMEOUT", cfg.ReadyTimeout)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.ControlAddr = getEnv("CONTROL_ADDR", cfg.ControlAddr)
	cfg.ControlToken = getEnv("CONTROL_TOKEN", cfg.ControlToken)
	cfg.AllowedOrigin = getEnv("ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.VipsMaxCacheMB = getEnvInt("VIPS_MAX_CACHE_MB", cfg.VipsMaxCacheMB)
	cfg.VipsConcurrency = getEnvInt("VIPS_CONCURRENCY", cfg.VipsConcurrency)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile decodes a .toml, .yaml or .yml config file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (supported: .toml, .yaml, .yml)", ext)
	}
	return &f, nil
}

func (c *Config) apply(f *File) error {
	setString(&c.AccessToken, f.Tiles.Token)
	setString(&c.TileSource, f.Tiles.Source)
	setString(&c.VectorURL, f.Tiles.VectorURL)
	setString(&c.RasterURL, f.Tiles.RasterURL)
	setString(&c.MBTilesPath, f.Tiles.MBTiles)
	setInt(&c.HTTPRetries, f.Tiles.Retries)
	setString(&c.CacheType, f.Cache.Type)
	setString(&c.CacheDir, f.Cache.Dir)
	setInt(&c.CacheTiles, f.Cache.Tiles)
	setString(&c.LogLevel, f.Log.Level)
	setString(&c.LogFile, f.Log.File)
	setString(&c.ControlAddr, f.Control.Addr)
	setString(&c.ControlToken, f.Control.Token)
	setString(&c.AllowedOrigin, f.Control.AllowedOrigin)

	if f.Map.Satellite != nil {
		c.Satellite = *f.Map.Satellite
	}
	if f.Map.Latitude != nil {
		c.StartLat = *f.Map.Latitude
	}
	if f.Map.Longitude != nil {
		c.StartLon = *f.Map.Longitude
	}
	if f.Map.Zoom != nil {
		c.StartZoom = *f.Map.Zoom
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"tiles.timeout", f.Tiles.Timeout, &c.HTTPTimeout},
		{"tiles.backoff", f.Tiles.Backoff, &c.HTTPBackoff},
		{"map.frame_interval", f.Map.FrameInterval, &c.FrameInterval},
		{"map.ready_timeout", f.Map.ReadyTimeout, &c.ReadyTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.TileSource {
	case "http":
	case "mbtiles":
		if c.MBTilesPath == "" {
			return fmt.Errorf("MBTILES_PATH is required for the mbtiles source")
		}
	default:
		return fmt.Errorf("unknown tile source: %s (supported: http, mbtiles)", c.TileSource)
	}
	if c.CacheType != "file" && c.CacheType != "disabled" {
		return fmt.Errorf("unknown cache type: %s (supported: file, disabled)", c.CacheType)
	}
	if c.CacheTiles < 1 || c.CacheTiles > cache.DefaultCapacity {
		return fmt.Errorf("memory cache must hold 1 to %d tiles, got %d", cache.DefaultCapacity, c.CacheTiles)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be positive, got %s", c.FrameInterval)
	}
	if _, err := c.StartView(); err != nil {
		return fmt.Errorf("invalid start location: %w", err)
	}
	return nil
}

// StartView is the view the map opens on.
func (c *Config) StartView() (geo.View, error) {
	return geo.NewView(c.StartLat, c.StartLon, c.StartZoom)
}

func (c *Config) IsControlPublic() bool {
	return strings.TrimSpace(c.ControlToken) == ""
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
