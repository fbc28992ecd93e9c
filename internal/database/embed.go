package database

import "embed"

// MigrationsFS holds the schema migrations shipped with the binary.
//
//go:embed migrations/*.up.sql
var MigrationsFS embed.FS

// MigrationsDir is the directory inside MigrationsFS.
const MigrationsDir = "migrations"
