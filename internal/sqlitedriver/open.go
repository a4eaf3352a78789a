package sqlitedriver

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// DriverName is the database/sql driver name registered by this package.
const DriverName = "sqlite3"

// BusyTimeoutMillis is how long a connection waits on a locked database
// before returning SQLITE_BUSY.
const BusyTimeoutMillis = 5000

// Open opens (creating if needed) the SQLite database at path and applies
// WAL journaling, foreign keys and a busy timeout. The special path
// ":memory:" opens a private in-memory database limited to one connection.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	inMemory := path == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	if inMemory {
		// every new connection would see a fresh empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", BusyTimeoutMillis),
		"PRAGMA foreign_keys = ON",
	}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}
