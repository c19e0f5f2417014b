// Package migrations embeds the SQL schema migrations into the binary.
//
// Files follow the YYYYMMDD_HHMMSS_description.{up,down}.sql naming and are
// applied with database.DB.Migrate(ctx, migrations.FS).
package migrations

import "embed"

// FS holds every migration file at its root.
//
//go:embed *.sql
var FS embed.FS
