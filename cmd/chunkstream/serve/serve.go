// Package servecmder provides the serve command with subcommands for running services.
package servecmder

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
	apicmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/serve/api"
	proxycmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/serve/proxy"
	"github.com/papercomputeco/chunkstream/pkg/config"
	"github.com/papercomputeco/chunkstream/proxy"
)

type ServeCommander struct {
	proxyListen string
	apiListen   string
	debug       bool

	cfg    *config.Config
	logger *slog.Logger
}

// Flags bound to viper by the combined serve command.
var serveFlags = []string{
	config.FlagProxyListen,
	config.FlagAPIListen,
	config.FlagUpstream,
	config.FlagWorkers,
	config.FlagQueueSize,
	config.FlagDisableMCP,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagStrictTrailing,
	config.FlagMaxBuffer,
}

const serveLongDesc string = `Run chunkstream services.

Use subcommands to run individual services or all services together:
  chunkstream serve          Run both proxy and API server together
  chunkstream serve api      Run just the API server
  chunkstream serve proxy    Run just the proxy server

Both services share one transcript store. PostgreSQL is used when a DSN is
configured, then SQLite, and otherwise transcripts are kept in memory.`

const serveShortDesc string = "Run chunkstream services"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)
			cmder.cfg = config.FromViper(v)
			cmder.proxyListen = cmder.cfg.Proxy.Listen
			cmder.apiListen = cmder.cfg.API.Listen
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

	config.AddFlags(cmd, config.Flags, serveFlags...)

	cmd.AddCommand(apicmder.NewAPICmd())
	cmd.AddCommand(proxycmder.NewProxyCmd())

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.logger = backend.NewLogger(c.debug)

	driver, err := backend.NewStorageDriver(ctx, c.cfg.Storage, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := backend.NewPublisher(c.cfg.EventStream, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	p, err := proxy.New(backend.ProxyConfig(c.cfg, c.proxyListen, publisher), driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	c.logger.Info("starting proxy",
		"proxy_addr", c.proxyListen,
		"upstream", c.cfg.Proxy.Upstream,
	)

	apiServer, err := api.NewServer(backend.APIConfig(c.cfg, c.apiListen), driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	defer apiServer.Shutdown()

	c.logger.Info("starting api server",
		"api_addr", c.apiListen,
	)

	errChan := make(chan error, 2)

	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
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
