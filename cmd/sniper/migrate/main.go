package main

import (
	"context"
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"

	"github.com/apmfree78/snipper-sub000/pkg/config"
	"github.com/apmfree78/snipper-sub000/pkg/migrations/sniperdb"
	"github.com/apmfree78/snipper-sub000/pkg/pgutil"
	mghelper "github.com/apmfree78/snipper-sub000/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	ctx := context.Background()
	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for trade ledger database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, sniperdb.Migrations)
	if err := mghelper.RunMigrations(ctx, migrator, flag.Args()...); err != nil {
		mghelper.Exitf("%v", err)
	}
}
