package migrations

import "embed"

// Files holds the SQL migrations, named NNN_description.sql and applied in
// lexical order by store.ApplyMigrations.
//
//go:embed *.sql
var Files embed.FS
