// Package migrations drives the ledger schema migrations and the bun helpers they use.
package migrations

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

const usageText = `Usage:
  sniper-migrate [-config file] <command>

Commands:
  init     create the bun migration bookkeeping tables
  up       apply every pending ledger migration
  down     roll back the most recent migration group
  status   list applied and pending migrations

`

// Usage prints the command line help and exits.
func Usage() {
	fmt.Fprint(os.Stderr, usageText)
	flag.PrintDefaults()
	os.Exit(2)
}

// Exitf prints a formatted error followed by the usage text and exits.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	Usage()
}

type command func(ctx context.Context, m *migrate.Migrator, out io.Writer) error

var commands = map[string]command{
	"init": func(ctx context.Context, m *migrate.Migrator, out io.Writer) error {
		if err := m.Init(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "migration tables ready")
		return nil
	},
	"up": func(ctx context.Context, m *migrate.Migrator, out io.Writer) error {
		return withLock(ctx, m, func() error {
			group, err := m.Migrate(ctx)
			if err != nil {
				return err
			}
			if group.IsZero() {
				fmt.Fprintln(out, "ledger schema is up to date")
				return nil
			}
			fmt.Fprintf(out, "applied %s\n", group)
			return nil
		})
	},
	"down": func(ctx context.Context, m *migrate.Migrator, out io.Writer) error {
		return withLock(ctx, m, func() error {
			group, err := m.Rollback(ctx)
			if err != nil {
				return err
			}
			if group.IsZero() {
				fmt.Fprintln(out, "nothing to roll back")
				return nil
			}
			fmt.Fprintf(out, "rolled back %s\n", group)
			return nil
		})
	},
	"status": func(ctx context.Context, m *migrate.Migrator, out io.Writer) error {
		ms, err := m.MigrationsWithStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "applied:  %s\n", ms.Applied())
		fmt.Fprintf(out, "pending:  %s\n", ms.Unapplied())
		fmt.Fprintf(out, "last group: %s\n", ms.LastGroup())
		return nil
	},
}

// Commands lists the supported command names.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunMigrations executes the command named by args[0] and reports progress to stdout.
func RunMigrations(ctx context.Context, migrator *migrate.Migrator, args ...string) error {
	return Run(ctx, migrator, os.Stdout, args...)
}

// Run is RunMigrations with an explicit output writer.
func Run(ctx context.Context, migrator *migrate.Migrator, out io.Writer, args ...string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command provided, expected one of %s", strings.Join(Commands(), ", "))
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd(ctx, migrator, out)
}

func withLock(ctx context.Context, m *migrate.Migrator, fn func() error) error {
	if err := m.Lock(ctx); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if err := m.Unlock(ctx); err != nil {
			log.Printf("release migration lock: %v", err)
		}
	}()
	return fn()
}

// CreateSchema creates a table for each model unless it already exists.
func CreateSchema(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %s: %w", reflect.TypeOf(model), err)
		}
	}
	return nil
}

// DropTables drops each model's table, cascading to dependents.
func DropTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %s: %w", reflect.TypeOf(model), err)
		}
	}
	return nil
}

// CreateModelIndexes adds one idx_<table>_<column> index per column.
func CreateModelIndexes(ctx context.Context, db bun.IDB, model any, columns ...string) error {
	for _, column := range columns {
		name, err := indexName(db, model, column)
		if err != nil {
			return err
		}
		if _, err := db.NewCreateIndex().
			Model(model).
			Index(name).
			Column(column).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

func indexName(db bun.IDB, model any, column string) (string, error) {
	if model == nil {
		return "", fmt.Errorf("model cannot be nil")
	}
	table := db.NewCreateIndex().Model(model).GetTableName()
	if table == "" {
		return "", fmt.Errorf("no table name for model %T", model)
	}
	table = strings.NewReplacer(`"`, "", ".", "_").Replace(table)
	return "idx_" + table + "_" + column, nil
}
