// Command rattler-build-go renders a recipe through the Parser, Variant
// Matrix Expander and Output Planner (spec.md §1) and prints the resulting
// build plan. It is a thin driver: all real work lives in internal/pipeline
// and the recipe/variantconfig/variantexpand/planner packages, matching the
// teacher's main-wires-library shape (Azure-dalec/cmd/frontend/main.go).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/prefix-dev/rattler-build-go/internal/rlog"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cmd := &cli.Command{
		Name:  "rattler-build-go",
		Usage: "render and plan conda-ecosystem build recipes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "logrus level: trace, debug, info, warn, error",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level, err := logrus.ParseLevel(cmd.String("log-level"))
			if err != nil {
				return ctx, cli.Exit(fmt.Sprintf("invalid --log-level: %v", err), 1)
			}
			logger := logrus.New()
			logger.SetLevel(level)
			rlog.L = logger
			return rlog.WithLogger(ctx, logger), nil
		},
		Commands: []*cli.Command{
			planCommand(),
			sourceCacheCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
