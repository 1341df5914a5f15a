package migrations

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/apmfree78/snipper-sub000/pkg/config"
	"github.com/apmfree78/snipper-sub000/pkg/pgutil"
)

type fillDao struct {
	bun.BaseModel `bun:"table:fills"`
	ID            int64  `bun:",pk,autoincrement"`
	Token         string `bun:",notnull,type:varchar(42)"`
	Bucket        int    `bun:",nullzero"`
}

func TestConnectDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     5432,
		User:     "sniper",
		Password: "sniper",
		Database: "sniper",
		SSLMode:  "disable",
	}

	db, err := pgutil.ConnectDB(context.Background(), cfg)
	if err == nil {
		db.Close()
		t.Error("ConnectDB() should fail with invalid host")
	}
}

func TestCreateSchemaAndDropTables(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &fillDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	pgutil.AssertTableExists(t, db, "fills")

	// idempotent
	if err := CreateSchema(ctx, db, &fillDao{}); err != nil {
		t.Errorf("CreateSchema() second call failed: %v", err)
	}

	if err := DropTables(ctx, db, &fillDao{}); err != nil {
		t.Fatalf("DropTables() failed: %v", err)
	}
	pgutil.AssertTableNotExists(t, db, "fills")

	if err := DropTables(ctx, db, &fillDao{}); err != nil {
		t.Errorf("DropTables() second call failed: %v", err)
	}
}

func TestCreateModelIndexes(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &fillDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	if err := CreateModelIndexes(ctx, db, &fillDao{}, "token", "bucket"); err != nil {
		t.Fatalf("CreateModelIndexes() failed: %v", err)
	}
	pgutil.AssertIndexExists(t, db, "idx_fills_token")
	pgutil.AssertIndexExists(t, db, "idx_fills_bucket")

	if err := CreateModelIndexes(ctx, db, &fillDao{}, "token"); err != nil {
		t.Errorf("CreateModelIndexes() second call failed: %v", err)
	}
}

func TestIndexName_NilModel(t *testing.T) {
	if _, err := indexName(nil, nil, "token"); err == nil {
		t.Fatal("expected error for nil model")
	}
}

func TestRun(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	set := migrate.NewMigrations()
	set.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return CreateSchema(ctx, db, &fillDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		return DropTables(ctx, db, &fillDao{})
	})
	migrator := migrate.NewMigrator(db, set)

	var out bytes.Buffer
	for _, cmd := range []string{"init", "up", "status"} {
		if err := Run(ctx, migrator, &out, cmd); err != nil {
			t.Fatalf("Run(%s) failed: %v", cmd, err)
		}
	}
	pgutil.AssertTableExists(t, db, "fills")
	if !strings.Contains(out.String(), "applied") {
		t.Errorf("unexpected output: %q", out.String())
	}

	out.Reset()
	if err := Run(ctx, migrator, &out, "up"); err != nil {
		t.Fatalf("Run(up) second call failed: %v", err)
	}
	if !strings.Contains(out.String(), "up to date") {
		t.Errorf("expected up to date, got %q", out.String())
	}

	if err := Run(ctx, migrator, &out, "down"); err != nil {
		t.Fatalf("Run(down) failed: %v", err)
	}
	pgutil.AssertTableNotExists(t, db, "fills")
}

func TestRun_BadCommand(t *testing.T) {
	var out bytes.Buffer
	if err := Run(context.Background(), nil, &out); err == nil {
		t.Fatal("expected error when no command is given")
	}
	if err := Run(context.Background(), nil, &out, "sideways"); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestCommands(t *testing.T) {
	got := strings.Join(Commands(), ",")
	if got != "down,init,status,up" {
		t.Fatalf("Commands() = %s", got)
	}
}
