package luxdb

import (
	"embed"
	"io/fs"
	"os"
)

// DevMode selects the on-disk migrations directory instead of the
// embedded copy, so schema changes can be iterated without rebuilding.
var DevMode bool

//go:embed migrations/*.sql
var migrationsFS embed.FS

// getMigrationsFS returns the migration source with the .sql files at
// its root: the embedded copy in production, or the working-tree
// directory when DevMode is set.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/luxdb/migrations"), nil
	}
	return fs.Sub(migrationsFS, "migrations")
}
