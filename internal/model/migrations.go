package model

import "embed"

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the schema migrations and their root directory, in the
// shape store.Options expects.
func Migrations() (embed.FS, string) {
	return migrationFS, "migrations"
}
