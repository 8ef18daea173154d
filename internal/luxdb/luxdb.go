// Package luxdb persists decoded photometric evidence and derived
// illuminance estimates in SQLite, keyed by optional recording
// sessions. It also carries the schema migrations and the admin
// surface for inspecting and backing up the database.
package luxdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle for the luxmeter database.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// connection pragmas. No migrations run; use OpenAndMigrate to bring
// the schema current, or NewWithMigrationCheck to refuse a stale one.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// Pragmas bind to the connection they run on. Cap the pool at one
	// so they hold for every query, and so concurrent writers queue in
	// Go instead of surfacing SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &DB{DB: sqlDB, path: path}, nil
}

// OpenAndMigrate opens the database and applies all pending migrations
// from the bundled migration files.
func OpenAndMigrate(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}

	fsys, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := db.MigrateUp(fsys); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// NewWithMigrationCheck opens the database and, when checkMigrations is
// set, fails if the schema is behind the bundled migrations instead of
// silently running against it.
func NewWithMigrationCheck(path string, checkMigrations bool) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}

	if checkMigrations {
		fsys, err := getMigrationsFS()
		if err != nil {
			db.Close()
			return nil, err
		}
		if _, err := db.CheckAndPromptMigrations(fsys); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// Path returns the filesystem path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// applyPragmas sets the connection pragmas every luxmeter database
// runs with: WAL journaling, a 5s lock wait, NORMAL sync (safe under
// WAL), in-memory temp tables, and enforced foreign keys.
func applyPragmas(db *sql.DB) error {
	// journal_mode returns the resulting mode; scan it to verify WAL
	// actually took (it silently stays "memory" on :memory: databases).
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to set journal_mode: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return nil
}
