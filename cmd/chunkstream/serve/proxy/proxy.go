// Package proxycmder provides the proxy server command.
package proxycmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstream/cmd/chunkstream/serve/backend"
	"github.com/papercomputeco/chunkstream/pkg/config"
	"github.com/papercomputeco/chunkstream/proxy"
)

type proxyCommander struct {
	debug bool

	cfg    *config.Config
	logger *slog.Logger
}

var proxyFlags = []string{
	config.FlagProxyListenStandalone,
	config.FlagUpstream,
	config.FlagWorkers,
	config.FlagQueueSize,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagStrictTrailing,
	config.FlagMaxBuffer,
}

const proxyLongDesc string = `Run the proxy server.

The proxy forwards every request to the configured upstream unchanged.
Chat completion exchanges are recorded as transcripts: streamed responses are
decoded chunk by chunk as they pass through, without delaying or altering the
bytes the client receives.

Recorded transcripts are published to Kafka when brokers are configured.`

const proxyShortDesc string = "Run the chunkstream proxy server"

func NewProxyCmd() *cobra.Command {
	cmder := &proxyCommander{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: proxyShortDesc,
		Long:  proxyLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, proxyFlags)
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

	config.AddFlags(cmd, config.Flags, proxyFlags...)

	return cmd
}

func (c *proxyCommander) run(ctx context.Context) error {
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

	p, err := proxy.New(backend.ProxyConfig(c.cfg, c.cfg.Proxy.Listen, publisher), driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	c.logger.Info("starting proxy server",
		"listen", c.cfg.Proxy.Listen,
		"upstream", c.cfg.Proxy.Upstream,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- p.Run()
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
