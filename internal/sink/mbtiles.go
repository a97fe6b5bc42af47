// Package sink provides example storage collaborators for the consumer
// side of the engine's contract: the engine never persists tiles itself,
// so these implementations are reference collaborators a caller can use to
// persist yielded tiles and check for existing ones. Nothing in this
// module imports this package; cmd/tiledl does not wire it in.
package sink

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 database/sql driver
)

// MBTilesSink writes tiles into an mbtiles-format sqlite database, batching
// writes into transactions of batchSize tiles, and doubles as a presence
// check for resuming an interrupted run (§6 "Persistence (collaborator)").
// One database is assumed to hold tiles for a single service; no service
// name is stored or checked.
type MBTilesSink struct {
	db         *sql.DB
	batchSize  int
	batchCount int
	txn        *sql.Tx
	hasSchema  bool
}

// NewMBTilesSink opens (or creates) an mbtiles database at dsn.
func NewMBTilesSink(dsn string, batchSize int) (*MBTilesSink, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &MBTilesSink{db: db, batchSize: batchSize}, nil
}

// Close flushes any open transaction and closes the database.
func (s *MBTilesSink) Close() error {
	var err error
	if s.txn != nil {
		err = s.txn.Commit()
		s.txn = nil
	}
	if s.db != nil {
		if closeErr := s.db.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

func (s *MBTilesSink) createSchema() error {
	if s.hasSchema {
		return nil
	}
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS map (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_id TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS map_index ON map (zoom_level, tile_column, tile_row);
		CREATE TABLE IF NOT EXISTS images (
			tile_data BLOB NOT NULL,
			tile_id TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS images_id ON images (tile_id);
		CREATE VIEW IF NOT EXISTS tiles AS
		SELECT
			map.zoom_level AS zoom_level,
			map.tile_column AS tile_column,
			map.tile_row AS tile_row,
			images.tile_data AS tile_data
		FROM map
		JOIN images ON images.tile_id = map.tile_id;
		PRAGMA synchronous=OFF;
	`); err != nil {
		return err
	}
	s.hasSchema = true
	return nil
}

// Save writes one tile, storing its row inverted to TMS convention the
// way the mbtiles spec requires regardless of the scheme the tile was
// fetched under (the caller is responsible for tracking which grid-space
// (z,x,y) this corresponds to via its own bookkeeping).
func (s *MBTilesSink) Save(z, x, y uint32, data []byte) error {
	if err := s.createSchema(); err != nil {
		return err
	}
	if s.txn == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		s.txn = tx
	}

	hash := md5.Sum(data)
	tileID := hex.EncodeToString(hash[:])
	invertedY := uint32(math.Pow(2, float64(z))) - 1 - y

	if _, err := s.txn.Exec("INSERT OR REPLACE INTO images (tile_id, tile_data) VALUES (?, ?);", tileID, data); err != nil {
		return err
	}
	if _, err := s.txn.Exec("INSERT OR REPLACE INTO map (zoom_level, tile_column, tile_row, tile_id) VALUES (?, ?, ?, ?);", z, x, invertedY, tileID); err != nil {
		return err
	}

	s.batchCount++
	if s.batchCount%s.batchSize == 0 {
		if err := s.txn.Commit(); err != nil {
			return err
		}
		s.txn = nil
	}
	return nil
}

// Has reports whether a tile already exists in the database. Its (z, x, y)
// signature is not tiledl.ExistingTiles itself; a caller wraps it (e.g.
// with tiledl.ExistingTilesFunc) to resume a run.
func (s *MBTilesSink) Has(z, x, y uint32) bool {
	invertedY := uint32(math.Pow(2, float64(z))) - 1 - y
	var tileID string
	err := s.db.QueryRow("SELECT tile_id FROM map WHERE zoom_level=? AND tile_column=? AND tile_row=? LIMIT 1", z, x, invertedY).Scan(&tileID)
	return err == nil
}

// VisitAll runs visitor over every stored tile, for listing or export.
func (s *MBTilesSink) VisitAll(visitor func(z, x, y uint32, data []byte)) error {
	rows, err := s.db.Query("SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var z, x, y uint32
		var data []byte
		if err := rows.Scan(&z, &x, &y, &data); err != nil {
			return fmt.Errorf("sink: scanning mbtiles row: %w", err)
		}
		visitor(z, x, y, data)
	}
	return rows.Err()
}
