package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/charge"
	"github.com/openconreg/conreg/internal/clock"
	"github.com/openconreg/conreg/internal/config"
	"github.com/openconreg/conreg/internal/detail"
	"github.com/openconreg/conreg/internal/importer"
	importerdomain "github.com/openconreg/conreg/internal/importer/domain"
	"github.com/openconreg/conreg/internal/membership"
	"github.com/openconreg/conreg/internal/migration"
	"github.com/openconreg/conreg/internal/observability"
	"github.com/openconreg/conreg/internal/reservation"
	"github.com/openconreg/conreg/internal/transfer"
	"github.com/openconreg/conreg/internal/user"
	"github.com/openconreg/conreg/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "migrate":
		runOnce(migration.Module)
	case "import":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		runOnce(
			migration.Module,
			fx.Invoke(importCSV(os.Args[2])),
		)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: conreg migrate | conreg import <export.csv>")
}

// baseModules wires the shared infrastructure and every ledger domain.
func baseModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		user.Module,
		membership.Module,
		reservation.Module,
		charge.Module,
		transfer.Module,
		detail.Module,
		importer.Module,
	)
}

// runOnce starts the app, lets the fx.Invoke hooks do their work during
// startup and shuts back down.
func runOnce(extra ...fx.Option) {
	opts := append([]fx.Option{baseModules()}, extra...)
	app := fx.New(opts...)

	ctx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := app.Stop(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func importCSV(path string) func(svc importerdomain.Service, log *zap.Logger) error {
	return func(svc importerdomain.Service, log *zap.Logger) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		rows, err := importer.ParseCSV(f)
		if err != nil {
			return err
		}

		results := svc.ImportAll(context.Background(), rows)
		failed := 0
		for _, result := range results {
			if result.OK {
				continue
			}
			failed++
			for _, msg := range result.Errors {
				fmt.Fprintf(os.Stderr, "line %d: %s\n", result.Line, msg)
			}
		}
		log.Info("import summary",
			zap.String("file", path),
			zap.Int("rows", len(results)),
			zap.Int("failed", failed),
		)
		if failed > 0 {
			return fmt.Errorf("%d of %d rows failed", failed, len(results))
		}
		return nil
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
