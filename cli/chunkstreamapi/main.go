package main

import (
	"os"

	apicmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/serve/api"
)

func main() {
	cmd := apicmder.NewAPICmd()
	cmd.Use = "chunkstreamapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .chunkstream/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
