package db

import "embed"

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embedMigrations embed.FS
