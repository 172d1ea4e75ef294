package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		logger.Sugar().Errorf("%v", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "restmodel-tools",
		Usage: "Operate on the restmodel entity graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				Sources: cli.EnvVars("RESTMODEL_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "fixture",
				Aliases: []string{"f"},
				Usage:   "read the graph from a YAML/JSON fixture instead of the database",
				Sources: cli.EnvVars("RESTMODEL_FIXTURE"),
			},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			seedCommand(),
			compileCommand(),
			validateCommand(),
			exportCommand(),
		},
	}
}
