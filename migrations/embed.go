// Package migrations embeds the SQL schema into the binary so the gateway
// can migrate its account database without files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/obsgate/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
