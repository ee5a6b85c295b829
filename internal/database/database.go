// Package database archives the latest analysis run in a SQLite file. Each
// archive call replaces the previous run's rows.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the archive's file name inside the data directory.
const FileName = "relocstat.db"

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// pragmas are applied to every new archive connection.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
}

// Open opens the archive at archivePath, creating the file and its parent
// directory when missing, and brings the schema up to date.
func Open(archivePath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	conn, err := sql.Open("sqlite", archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	// One writer; ArchiveRun holds a single transaction for the whole run.
	conn.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating archive schema: %w", err)
	}
	return &DB{conn: conn, path: archivePath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the archive file path.
func (db *DB) Path() string {
	return db.path
}
