package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"asciimap/internal/cache"
	"asciimap/internal/engine"
	"asciimap/internal/fetcher"
	"asciimap/internal/geo"
	httphandlers "asciimap/internal/http"
	"asciimap/internal/surface"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Show the map in the terminal",
	Long: `Show the map in the terminal.

Keys: arrows pan, + and - zoom, q or Esc quits. With --lat/--lon the map
animates from the configured start location to the given target.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMap(cmd)
	},
}

func init() {
	runCmd.Flags().Bool("satellite", false, "show satellite imagery instead of vector maps")
	runCmd.Flags().Float64("lat", 0, "target latitude")
	runCmd.Flags().Float64("lon", 0, "target longitude")
	runCmd.Flags().Int("zoom", 10, "target zoom level")
}

func runMap(cmd *cobra.Command) error {
	cfg, log, err := setup(true)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cmd.Flags().Changed("satellite") {
		cfg.Satellite, _ = cmd.Flags().GetBool("satellite")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	screen, err := surface.NewScreen()
	if err != nil {
		return err
	}
	defer screen.Fini()

	if cfg.Satellite {
		defer startVips(cfg, log)()
	}

	loader, closeSrc, err := newLoader(cfg, modeKind(cfg.Satellite), screen.Unicode(), log)
	if err != nil {
		return err
	}
	defer closeSrc()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	start, err := cfg.StartView()
	if err != nil {
		return err
	}

	term := screen.Terminal()
	eng, err := engine.New(engine.Options{
		Start:     start,
		Satellite: cfg.Satellite,
		Tiles:     cache.NewTileCache(cfg.CacheTiles),
		Loader:    loader,
		Metrics:   fetcher.NewMetrics(reg),
		Logger:    log,
		Listeners: []engine.Listener{
			func(ev engine.Event) {
				// Redraw as soon as a tile arrives.
				if ev.Type == engine.TileLoaded {
					_ = term.PostEvent(tcell.NewEventInterrupt(nil))
				}
			},
		},
	})
	if err != nil {
		return err
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}
	if err := eng.WaitReady(ctx, cfg.ReadyTimeout); err != nil {
		return err
	}

	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		zoom, _ := cmd.Flags().GetInt("zoom")
		if err := eng.SetTarget(lat, lon, zoom); err != nil {
			return fmt.Errorf("invalid target: %w", err)
		}
	}

	if cfg.ControlAddr != "" {
		server := &http.Server{
			Addr:    cfg.ControlAddr,
			Handler: httphandlers.New(cfg, log, eng).Routes(reg),
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Control server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("Control server forced to shutdown", zap.Error(err))
			}
		}()
		log.Info("Control server started", zap.String("addr", cfg.ControlAddr))
	}

	return loop(ctx, screen, eng, cfg.FrameInterval)
}

// loop draws a frame on every tick, key press and tile arrival until the
// user quits or the engine fails.
func loop(ctx context.Context, screen *surface.Screen, eng *engine.Engine, interval time.Duration) error {
	term := screen.Terminal()
	events := make(chan tcell.Event)
	go func() {
		for {
			ev := term.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				screen.Sync()
				term.Clear()
			case *tcell.EventKey:
				if quit := handleKey(eng, ev); quit {
					return nil
				}
			}
		case <-ticker.C:
		}

		if _, err := eng.RenderFrame(screen); err != nil {
			return err
		}
		screen.Show()
	}
}

func handleKey(eng *engine.Engine, ev *tcell.EventKey) bool {
	target := eng.Target()
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyLeft:
		target = panTarget(target, -1, 0)
	case tcell.KeyRight:
		target = panTarget(target, 1, 0)
	case tcell.KeyUp:
		target = panTarget(target, 0, -1)
	case tcell.KeyDown:
		target = panTarget(target, 0, 1)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q', 'Q':
			return true
		case '+', '=':
			target.Zoom = min(target.Zoom+1, geo.MaxZoom)
		case '-', '_':
			target.Zoom = max(target.Zoom-1, geo.MinZoom)
		default:
			return false
		}
	default:
		return false
	}
	// Targets produced here are always in range.
	_ = eng.SetTarget(target.Lat, target.Lon, target.Zoom)
	return false
}

// panTarget moves v by whole tiles at its zoom level. Positive dy moves
// south.
func panTarget(v geo.View, dx, dy int) geo.View {
	v.Lon += float64(dx) * 360 / float64(geo.TileCount(v.Zoom))
	if dy != 0 {
		lat := geo.IncLatitude(v.Lat, float64(dy)*geo.BaseTileSize, v.Zoom, geo.BaseTileSize)
		v.Lat = math.Max(-geo.LatLimit, math.Min(geo.LatLimit, lat))
	}
	return v
}
