// Package sqlitedriver registers the SQLite database/sql driver used by the
// training store under the name "sqlite3" and opens store databases with the
// pragmas the store relies on.
//
// With CGO (the default on macOS/Linux) the driver is go-sqlcipher, which can
// encrypt the store with PRAGMA key. Without CGO it falls back to the pure-Go
// modernc.org/sqlite driver, which has no encryption support.
//
// Import this package for its side effects, or call Open:
//
//	import _ "github.com/teradata-labs/liverl/internal/sqlitedriver"
package sqlitedriver
