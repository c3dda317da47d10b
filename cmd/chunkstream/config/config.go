// Package configcmder provides the config command for managing persistent
// chunkstream configuration stored in the .chunkstream/ directory.
package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstream/pkg/cliui"
	"github.com/papercomputeco/chunkstream/pkg/config"
	"github.com/papercomputeco/chunkstream/pkg/dotdir"
)

const configLongDesc string = `Manage persistent chunkstream configuration.

Configuration is stored as config.toml in the .chunkstream/ directory and
provides default values for command flags. CLI flags and CHUNKSTREAM_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.base_url, client.model, client.timeout,
  proxy.upstream, proxy.listen, proxy.workers, proxy.queue_size,
  api.listen, api.disable_mcp,
  storage.sqlite_path, storage.postgres_dsn,
  eventstream.kafka_brokers, eventstream.kafka_topic,
  decoder.skip_malformed, decoder.strict_trailing, decoder.max_buffer

Use subcommands to manage configuration values:
  chunkstream config init [preset]          Write a fresh config file
  chunkstream config set <key> <value>      Set a configuration value
  chunkstream config get <key>              Get a configuration value
  chunkstream config list                   List all configuration values

Examples:
  chunkstream config init ollama
  chunkstream config set proxy.upstream https://api.openai.com
  chunkstream config set decoder.skip_malformed true
  chunkstream config get client.model
  chunkstream config list`

const configShortDesc string = "Manage persistent chunkstream configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// openConfiger resolves the config file. With create set, a missing
// .chunkstream/ directory is created first so the file can be written.
func openConfiger(configDir string, create bool) (*config.Configer, error) {
	if create {
		if _, err := dotdir.NewManager().Init(configDir); err != nil {
			return nil, err
		}
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

func printTarget(cmd *cobra.Command, cfger *config.Configer) {
	out := cmd.OutOrStdout()
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(out, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
