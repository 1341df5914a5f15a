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
		log.Println("creating trades table...")
		if err := mghelper.CreateSchema(ctx, db, &tradestore.TradeDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &tradestore.TradeDao{}, "token_address", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping trades table...")
		return mghelper.DropTables(ctx, db, &tradestore.TradeDao{})
	})
}
