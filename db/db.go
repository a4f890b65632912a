package db

import "embed"

// Migrations holds the schema migrations applied by internal/db.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// SeedFiles holds idempotent seed data (groups, permissions, default settings).
//
//go:embed seed/*.sql
var SeedFiles embed.FS
