// Package migrations embeds the SQL schema for the telemetry journal.
//
// Importing this package for side effects registers the files with the
// database package, so Migrate works without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/jimi-tracker/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
