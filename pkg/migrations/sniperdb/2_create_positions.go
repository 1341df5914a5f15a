package sniperdb

import (
	"context"
	"log"

	mghelper "github.com/apmfree78/snipper-sub000/pkg/pgutil/migrations"
	"github.com/apmfree78/snipper-sub000/pkg/tradestore"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating positions table...")
		if err := mghelper.CreateSchema(ctx, db, &tradestore.PositionDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &tradestore.PositionDao{}, "state", "closed_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping positions table...")
		return mghelper.DropTables(ctx, db, &tradestore.PositionDao{})
	})
}
