// Package sniperdb holds all the migrations for the trade ledger database
package sniperdb

import "github.com/uptrace/bun/migrate"

// Migrations is the registered migration set, applied by cmd/sniper/migrate.
var Migrations = migrate.NewMigrations()
