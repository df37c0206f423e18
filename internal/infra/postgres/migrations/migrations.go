// Package migrations holds the bun migrations for the quiz catalog and game history.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
