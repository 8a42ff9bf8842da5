package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"asciimap/internal/cache"
	"asciimap/internal/cacheindex"
	"asciimap/internal/tile"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the disk tile cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the cached tiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(false)
		if err != nil {
			return err
		}
		defer log.Sync()

		scanner := cacheindex.New(cfg.CacheDir, log)
		if err := scanner.Scan(); err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(scanner.Stats())
		}
		list, _ := cmd.Flags().GetBool("list")
		writeStats(cmd.OutOrStdout(), cfg.CacheDir, scanner, list)
		return nil
	},
}

// writeStats prints the cache summary. With list every tile and stray file
// is printed as well.
func writeStats(out io.Writer, dir string, scanner *cacheindex.Scanner, list bool) {
	st := scanner.Stats()
	fmt.Fprintf(out, "%s: %d tiles, %d bytes\n", dir, st.Tiles, st.Bytes)
	kinds := make([]string, 0, len(st.ByKind))
	for kind := range st.ByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(out, "  %-7s %d\n", kind, st.ByKind[kind])
	}
	zooms := make([]int, 0, len(st.ByZoom))
	for z := range st.ByZoom {
		zooms = append(zooms, z)
	}
	sort.Ints(zooms)
	for _, z := range zooms {
		fmt.Fprintf(out, "  zoom %-2d %d\n", z, st.ByZoom[z])
	}
	if st.Other > 0 {
		fmt.Fprintf(out, "  %d other files\n", st.Other)
	}

	if !list {
		return
	}
	for _, t := range scanner.GetTiles() {
		fmt.Fprintf(out, "%s\t%d\t%s\n", t.Name, t.Bytes, t.ModTime.Format(time.RFC3339))
	}
	for _, name := range scanner.GetOther() {
		fmt.Fprintf(out, "%s\t(not a tile)\n", name)
	}
}

var cacheRemoveCmd = &cobra.Command{
	Use:     "remove FILE...",
	Short:   "Delete single tiles so they are fetched again",
	Example: "  asciimap cache remove 10.464.427.json 10.464.428.jpg",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(false)
		if err != nil {
			return err
		}
		defer log.Sync()

		disk, err := cache.NewFileCache(cfg.CacheDir)
		if err != nil {
			return err
		}
		removed, err := removeTiles(disk, args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d tiles\n", removed)
		return nil
	},
}

// removeTiles deletes the tiles named like the cache files, e.g.
// "10.464.427.json". Names that are not tiles are rejected before anything
// is deleted.
func removeTiles(disk *cache.FileCache, names []string) (int, error) {
	keys := make([]tile.Key, 0, len(names))
	for _, name := range names {
		key, ok := cacheindex.ParseName(filepath.Base(name))
		if !ok {
			return 0, fmt.Errorf("not a tile file name: %q", name)
		}
		keys = append(keys, key)
	}

	removed := 0
	for _, key := range keys {
		if !disk.Has(key) {
			continue
		}
		if err := disk.Remove(key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete unreadable tiles and leftover temp files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(false)
		if err != nil {
			return err
		}
		defer log.Sync()
		defer startVips(cfg, log)()

		removed, err := cacheindex.New(cfg.CacheDir, log).Prune()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d files\n", removed)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached tile",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(false)
		if err != nil {
			return err
		}
		defer log.Sync()

		disk, err := cache.NewFileCache(cfg.CacheDir)
		if err != nil {
			return err
		}
		if err := disk.Clear(); err != nil {
			return err
		}
		log.Info("Cache cleared", zap.String("cache_dir", cfg.CacheDir))
		return nil
	},
}

func init() {
	cacheStatsCmd.Flags().Bool("json", false, "print the summary as JSON")
	cacheStatsCmd.Flags().Bool("list", false, "also list every file")
	cacheCmd.AddCommand(cacheStatsCmd, cacheRemoveCmd, cachePruneCmd, cacheClearCmd)
}
