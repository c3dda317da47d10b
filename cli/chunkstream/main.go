package main

import (
	"os"

	chunkstreamcmder "github.com/papercomputeco/chunkstream/cmd/chunkstream"
)

func main() {
	cmd := chunkstreamcmder.NewChunkstreamCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
