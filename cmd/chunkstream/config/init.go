package configcmder

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstream/pkg/cliui"
	"github.com/papercomputeco/chunkstream/pkg/config"
)

const initLongDesc string = `Write a fresh config file from a preset.

Presets:
  openai    Proxy api.openai.com (default)
  ollama    Proxy a local Ollama server and chat with llama3.2

An existing config file is only replaced with --force.

Examples:
  chunkstream config init
  chunkstream config init ollama --config-dir ./.chunkstream`

const initShortDesc string = "Write a fresh config file from a preset"

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:       "init [preset]",
		Short:     initShortDesc,
		Long:      initLongDesc,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: config.ValidPresetNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			preset := "openai"
			if len(args) == 1 {
				preset = args[0]
			}
			return runInit(cmd, preset, configDir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, preset, configDir string, force bool) error {
	cfg, err := config.PresetConfig(preset)
	if err != nil {
		return err
	}

	cfger, err := openConfiger(configDir, true)
	if err != nil {
		return err
	}

	target := cfger.GetTarget()
	if _, err := os.Stat(target); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to replace it)", target)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Wrote %s preset to %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(preset),
		cliui.DimStyle.Render(target),
	)
	return nil
}
