// Package migrations embeds the notesnook schema into the binary.
//
// Importing this package registers the files with the database package, so
// Connection.Migrate works without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/Keekuk/notesnook/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
