// Package prunecmder provides the prune command for deleting old transcripts.
package prunecmder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstream/cmd/chunkstream/serve/backend"
	"github.com/papercomputeco/chunkstream/pkg/cliui"
	"github.com/papercomputeco/chunkstream/pkg/config"
	"github.com/papercomputeco/chunkstream/pkg/logger"
)

type pruneCommander struct {
	olderThan time.Duration
	debug     bool

	cfg *config.Config
}

var pruneFlags = []string{
	config.FlagSQLite,
	config.FlagPostgres,
}

const pruneLongDesc string = `Delete recorded transcripts older than a given age.

Transcripts are removed from the configured SQLite or PostgreSQL store based
on when their exchange started.

Examples:
  chunkstream prune --older-than 720h
  chunkstream prune --older-than 24h --sqlite ./transcripts.db`

const pruneShortDesc string = "Delete old transcripts"

func NewPruneCmd() *cobra.Command {
	cmder := &pruneCommander{}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: pruneShortDesc,
		Long:  pruneLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, pruneFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, cmd)
		},
	}

	cmd.Flags().DurationVar(&cmder.olderThan, "older-than", 0, "Delete transcripts that started longer ago than this (e.g. 720h)")
	_ = cmd.MarkFlagRequired("older-than")
	config.AddFlags(cmd, config.Flags, pruneFlags...)

	return cmd
}

func (c *pruneCommander) run(ctx context.Context, cmd *cobra.Command) error {
	if c.olderThan <= 0 {
		return errors.New("--older-than must be positive")
	}
	if c.cfg.Storage.SQLitePath == "" && c.cfg.Storage.PostgresDSN == "" {
		return errors.New("no persistent storage configured: set --sqlite or --postgres")
	}

	l := logger.New(
		logger.WithPretty(true),
		logger.WithDebug(c.debug),
		logger.WithWriter(cmd.ErrOrStderr()),
	)

	driver, err := backend.NewStorageDriver(ctx, c.cfg.Storage, l)
	if err != nil {
		return err
	}
	defer driver.Close()

	cutoff := time.Now().Add(-c.olderThan)
	n, err := driver.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted %s %s\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(fmt.Sprintf("%d transcripts", n)),
		cliui.DimStyle.Render("started before "+cutoff.Format(time.RFC3339)),
	)
	return nil
}
