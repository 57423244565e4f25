// Package serverstore is the SQLite-backed keyed store behind the
// persistent chunk pool: a single chunks(x, y, content) table with
// upsert-on-save semantics, exactly the shape spec.md describes as "any
// keyed store with upsert and range-free equality lookup".
package serverstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/Garmelon/wot/internal/grid"
)

// Store wraps a SQLite database holding one row per persisted chunk.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the chunk database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite does its own internal locking; serialize writers

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS chunks (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			content TEXT NOT NULL,
			PRIMARY KEY (x, y)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init chunk store schema: %w", err)
	}
	return nil
}

// SaveMany upserts the given position -> canonical image pairs.
func (s *Store) SaveMany(images map[grid.ChunkPos]string) error {
	if len(images) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO chunks (x, y, content) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	defer stmt.Close()

	for pos, image := range images {
		if _, err := stmt.Exec(pos.X, pos.Y, image); err != nil {
			return fmt.Errorf("save chunk %s: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	return nil
}

// LoadMany fetches the canonical images for the requested positions.
// Positions with no row in the store are simply absent from the
// result; the caller decides how to treat a miss.
func (s *Store) LoadMany(positions []grid.ChunkPos) (map[grid.ChunkPos]string, error) {
	out := make(map[grid.ChunkPos]string, len(positions))
	if len(positions) == 0 {
		return out, nil
	}

	stmt, err := s.db.Prepare("SELECT content FROM chunks WHERE x = ? AND y = ?")
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer stmt.Close()

	for _, pos := range positions {
		var content string
		err := stmt.QueryRow(pos.X, pos.Y).Scan(&content)
		switch {
		case err == nil:
			out[pos] = content
		case err == sql.ErrNoRows:
			// not persisted yet; caller creates an empty chunk
		default:
			return nil, fmt.Errorf("load chunk %s: %w", pos, err)
		}
	}
	return out, nil
}

// RemoveEmpty deletes every row whose content is entirely spaces, i.e.
// chunks that have gone back to empty and no longer need persisting.
func (s *Store) RemoveEmpty() error {
	emptyImage := emptyImage()
	if _, err := s.db.Exec("DELETE FROM chunks WHERE content = ?", emptyImage); err != nil {
		return fmt.Errorf("remove empty chunks: %w", err)
	}
	return nil
}

func emptyImage() string {
	buf := make([]byte, grid.Width*grid.Height)
	for i := range buf {
		buf[i] = ' '
	}
	return string(buf)
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive, for use by health
// checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
