// Package apicmder provides the chunkstream API server cobra command.
package apicmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstream/api"
	"github.com/papercomputeco/chunkstream/cmd/chunkstream/serve/backend"
	"github.com/papercomputeco/chunkstream/pkg/config"
)

type apiCommander struct {
	debug bool

	cfg    *config.Config
	logger *slog.Logger
}

var apiFlags = []string{
	config.FlagAPIListenStandalone,
	config.FlagDisableMCP,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagMaxBuffer,
}

const apiLongDesc string = `Run the chunkstream API server for inspecting recorded transcripts
and decoding captured streams. An MCP endpoint is served at /mcp.`

const apiShortDesc string = "Run the chunkstream API server"

func NewAPICmd() *cobra.Command {
	cmder := &apiCommander{}

	cmd := &cobra.Command{
		Use:   "api",
		Short: apiShortDesc,
		Long:  apiLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, apiFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddFlags(cmd, config.Flags, apiFlags...)

	return cmd
}

func (c *apiCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.logger = backend.NewLogger(c.debug)

	driver, err := backend.NewStorageDriver(ctx, c.cfg.Storage, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	server, err := api.NewServer(backend.APIConfig(c.cfg, c.cfg.API.Listen), driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	defer server.Shutdown()

	c.logger.Info("starting api server",
		"listen", c.cfg.API.Listen,
		"mcp", !c.cfg.API.DisableMCP,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}
