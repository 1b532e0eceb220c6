// Package migrations holds the PostgreSQL schema as golang-migrate files.
// SQLite deployments use GORM AutoMigrate instead.
package migrations

import "embed"

// FS contains every *.up.sql and *.down.sql file of this directory
//
//go:embed *.sql
var FS embed.FS
