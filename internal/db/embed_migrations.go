package db

import "embed"

// MigrationFS holds the numbered up/down schema files read by internal/db/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
