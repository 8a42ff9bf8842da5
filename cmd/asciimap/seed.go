package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"asciimap/internal/fetcher"
	"asciimap/internal/geo"
	"asciimap/internal/tile"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Download tiles for an area into the disk cache",
	Example: `  asciimap seed --bbox -18.2,27.6,-13.3,29.5 --zooms 5-12
  asciimap seed --satellite --zooms 0-3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd)
	},
}

func init() {
	seedCmd.Flags().String("bbox", "-180,-85,180,85", "area as min_lon,min_lat,max_lon,max_lat")
	seedCmd.Flags().String("zooms", "0-5", "zoom range such as 3-8, or a single level")
	seedCmd.Flags().Bool("satellite", false, "seed satellite imagery instead of vector tiles")
}

func runSeed(cmd *cobra.Command) error {
	cfg, log, err := setup(false)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.CacheType != "file" {
		return fmt.Errorf("seeding needs the file cache, got %q", cfg.CacheType)
	}

	bboxFlag, _ := cmd.Flags().GetString("bbox")
	bound, err := parseBound(bboxFlag)
	if err != nil {
		return err
	}
	zoomsFlag, _ := cmd.Flags().GetString("zooms")
	zooms, err := parseZooms(zoomsFlag)
	if err != nil {
		return err
	}
	satellite := cfg.Satellite
	if cmd.Flags().Changed("satellite") {
		satellite, _ = cmd.Flags().GetBool("satellite")
	}

	if satellite {
		defer startVips(cfg, log)()
	}

	kind := modeKind(satellite)
	loader, closeSrc, err := newLoader(cfg, kind, true, log)
	if err != nil {
		return err
	}
	defer closeSrc()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys := fetcher.SeedKeys(bound, zooms, kind)
	log.Info("Seeding tiles",
		zap.Int("tiles", len(keys)),
		zap.Stringer("kind", kind),
		zap.Ints("zooms", zooms))

	bar := progressbar.Default(int64(len(keys)), "Seeding tiles")
	res, err := fetcher.Seed(ctx, loader, keys, log, func(tile.Key) { _ = bar.Add(1) })
	_ = bar.Finish()

	return reportSeed(cmd.OutOrStdout(), log, res, err)
}

// reportSeed prints the counts of a seed run. An interrupted run is not an
// error. A failed tile is logged with its key and returned.
func reportSeed(out io.Writer, log *zap.Logger, res fetcher.SeedResult, err error) error {
	fmt.Fprintf(out, "fetched %d, already cached %d, missing %d\n", res.Fetched, res.Cached, res.Missing)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(out, "interrupted")
		return nil
	case fetcher.IsFatal(err):
		log.Error("Seeding stopped", zap.Error(err))
		return err
	default:
		return err
	}
}

// parseBound reads min_lon,min_lat,max_lon,max_lat.
func parseBound(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox needs 4 comma separated numbers, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	if v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox min latitude %v is north of max latitude %v", v[1], v[3])
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// parseZooms reads "z" or "from-to".
func parseZooms(s string) ([]int, error) {
	from, to, found := strings.Cut(s, "-")
	if !found {
		to = from
	}
	lo, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return nil, fmt.Errorf("invalid zoom range %q: %w", s, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return nil, fmt.Errorf("invalid zoom range %q: %w", s, err)
	}
	if lo < geo.MinZoom || hi > geo.MaxZoom || lo > hi {
		return nil, fmt.Errorf("zoom range %q must lie within %d-%d", s, geo.MinZoom, geo.MaxZoom)
	}

	zooms := make([]int, 0, hi-lo+1)
	for z := lo; z <= hi; z++ {
		zooms = append(zooms, z)
	}
	return zooms, nil
}
