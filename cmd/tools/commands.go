package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/restmodel"
	"github.com/lychee-technology/restmodel/factory"
	"github.com/lychee-technology/restmodel/internal"
	"github.com/lychee-technology/restmodel/internal/export"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var errFixtureRequired = errors.New("--fixture is required")

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the graph tables",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pool, err := factory.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := internal.Migrate(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, "Database migrated successfully.")
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Migrate, then copy a fixture graph into the database keeping its ids",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("fixture")
			if path == "" {
				return errFixtureRequired
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := internal.LoadFixtureFile(path)
			if err != nil {
				return err
			}
			pool, err := factory.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := internal.Migrate(ctx, pool); err != nil {
				return err
			}
			if err := internal.Seed(ctx, pool, store); err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "Seeded %s.\n", path)
			return nil
		},
	}
}

func compileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "collection",
			Usage: "wrap the document in an array",
		},
		&cli.StringFlag{
			Name:  "root-key",
			Usage: "wrap the document in an object under this key",
		},
	}
}

func compileCommand() *cli.Command {
	return &cli.Command{
		Name:  "compile",
		Usage: "Print the JSON Schema of a representation",
		Flags: append(compileFlags(), &cli.Int64Flag{
			Name:     "representation",
			Aliases:  []string{"r"},
			Usage:    "representation id",
			Required: true,
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closeFn, err := openService(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			schema, err := svc.CompileSchema(ctx, cmd.Int64("representation"), compileOptions(cmd))
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return fmt.Errorf("encode schema: %w", err)
			}
			fmt.Fprintln(cmd.Root().Writer, string(out))
			return nil
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check a fixture graph and compile every representation in it",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("fixture")
			if path == "" {
				return errFixtureRequired
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := internal.LoadFixtureFile(path)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}

			svc := internal.NewModelService(store, internal.NewLocalGenerator(cfg.Generator.Seed), nil, cfg)
			f := store.Snapshot()
			for _, rep := range f.Representations {
				if _, err := svc.CompileSchema(ctx, rep.ID, restmodel.CompileOptions{}); err != nil {
					return fmt.Errorf("representation %d (%s): %w", rep.ID, rep.Name, err)
				}
			}
			fmt.Fprintf(cmd.Root().Writer, "%s: %d resources, %d representations, %d routes, %d pickers ok\n",
				path, len(f.Resources), len(f.Representations), len(f.Routes), len(f.MockPickers))
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Compile representations and upload the documents to S3",
		Flags: append(compileFlags(),
			&cli.Int64SliceFlag{
				Name:     "representation",
				Aliases:  []string{"r"},
				Usage:    "representation ids to export",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "bucket",
				Usage:   "target bucket (overrides export.bucket)",
				Sources: cli.EnvVars("RESTMODEL_EXPORT_BUCKET"),
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if bucket := cmd.String("bucket"); bucket != "" {
				cfg.Export.Bucket = bucket
			}
			publisher, err := export.NewS3Publisher(ctx, cfg.Export)
			if err != nil {
				return err
			}

			svc, closeFn, err := openService(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			locations, err := export.PublishSchemas(ctx, svc, publisher, cmd.Int64Slice("representation"), compileOptions(cmd))
			for _, loc := range locations {
				fmt.Fprintln(cmd.Root().Writer, loc)
			}
			return err
		},
	}
}

func loadConfig(cmd *cli.Command) (*restmodel.Config, error) {
	cfg, err := restmodel.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func compileOptions(cmd *cli.Command) restmodel.CompileOptions {
	return restmodel.CompileOptions{
		IsCollection: cmd.Bool("collection"),
		RootKey:      cmd.String("root-key"),
	}
}

// openService builds a ModelService over the fixture when one is given, else
// over the configured database.
func openService(ctx context.Context, cmd *cli.Command) (restmodel.ModelService, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if path := cmd.String("fixture"); path != "" {
		svc, err := factory.NewMemoryModelService(cfg, path)
		if err != nil {
			return nil, nil, err
		}
		return svc, func() {}, nil
	}

	pool, err := factory.NewPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := factory.NewModelServiceWithConfig(ctx, cfg, pool, nil)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return svc, closer(pool), nil
}

func closer(pool *pgxpool.Pool) func() {
	return func() {
		pool.Close()
		zap.S().Debugw("database pool closed")
	}
}
