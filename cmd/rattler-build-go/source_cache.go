package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/prefix-dev/rattler-build-go/internal/rlog"
	"github.com/prefix-dev/rattler-build-go/sourcecache"
)

func sourceCacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "source-cache",
		Usage: "operate on the source cache directory (spec.md §4.6)",
		Commands: []*cli.Command{
			{
				Name:  "clean",
				Usage: "evict entries whose last_accessed predates --max-age",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Required: true,
						Usage:    "source cache root directory",
					},
					&cli.DurationFlag{
						Name:  "max-age",
						Value: 30 * 24 * time.Hour,
						Usage: "entries not accessed within this duration are evicted",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					c := sourcecache.New(cmd.String("dir"), rlog.G(ctx))
					return c.Cleanup(cmd.Duration("max-age"))
				},
			},
		},
	}
}
