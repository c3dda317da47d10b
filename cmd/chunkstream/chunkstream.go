// Package chunkstreamcmder is the root chunkstream command.
package chunkstreamcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/chat"
	configcmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/config"
	decodecmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/decode"
	prunecmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/prune"
	servecmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/serve"
	versioncmder "github.com/papercomputeco/chunkstream/cmd/version"
)

const chunkstreamLongDesc string = `chunkstream decodes streaming chat completions.

It records OpenAI compatible chat completion streams as they pass through a
proxy, and decodes captured streams on the command line.

Run services using:
  chunkstream serve api      Run the API server
  chunkstream serve proxy    Run the proxy server
  chunkstream serve          Run both servers together

Work with streams using:
  chunkstream chat           Stream chat completions from the terminal
  chunkstream decode         Decode captured streams
  chunkstream prune          Delete old transcripts`

const chunkstreamShortDesc string = "chunkstream - streaming chat completion decoder"

func NewChunkstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chunkstream",
		Short:        chunkstreamShortDesc,
		Long:         chunkstreamLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .chunkstream/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(decodecmder.NewDecodeCmd())
	cmd.AddCommand(prunecmder.NewPruneCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
