package configstore

import "embed"

// migrationFS embeds the SQL migrations applied to the SQLite-backed Store
// so the compiled binary never depends on migration files existing on disk.
//
//go:embed migrations/*.sql
var migrationFS embed.FS
