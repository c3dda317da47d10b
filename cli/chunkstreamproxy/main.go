package main

import (
	"os"

	proxycmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/serve/proxy"
)

func main() {
	cmd := proxycmder.NewProxyCmd()
	cmd.Use = "chunkstreamproxy"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .chunkstream/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
