package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // Register sqlite3 database driver

	"asciimap/internal/tile"
)

// MBTilesSource serves tiles from an offline .mbtiles archive. Archives use
// TMS row numbering, so y is flipped on lookup.
type MBTilesSource struct {
	db   *sql.DB
	kind tile.Kind
}

// NewMBTilesSource opens the archive at dsn holding tiles of the given kind.
func NewMBTilesSource(dsn string, kind tile.Kind) (*MBTilesSource, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mbtiles: %w", err)
	}
	return NewMBTilesSourceWithDatabase(db, kind), nil
}

func NewMBTilesSourceWithDatabase(db *sql.DB, kind tile.Kind) *MBTilesSource {
	return &MBTilesSource{db: db, kind: kind}
}

// Close gracefully tears down the mbtiles connection.
func (s *MBTilesSource) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *MBTilesSource) Fetch(ctx context.Context, key tile.Key) ([]byte, error) {
	if key.Kind != s.kind {
		return nil, ErrNotFound
	}

	row := (1 << key.Z) - 1 - key.Y
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT tile_data FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=? LIMIT 1",
		key.Z, key.X, row,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read tile %d/%d/%d: %w", key.Z, key.X, key.Y, err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}
