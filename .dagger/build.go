package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/chunkstream/internal/dagger"
)

// binaries are the main packages shipped by a build.
var binaries = []string{
	"./cli/chunkstream",
	"./cli/chunkstreamproxy",
	"./cli/chunkstreamapi",
}

// Build and return directory of go binaries
func (c *Chunkstream) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	outputs := dag.Directory()

	// The sqlite driver needs CGO, so each platform is built natively.
	for _, goarch := range []string{"amd64", "arm64"} {
		path := fmt.Sprintf("linux/%s/", goarch)

		build := c.goContainer().
			WithEnvVariable("GOOS", "linux").
			WithEnvVariable("GOARCH", goarch)
		for _, bin := range binaries {
			build = build.WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, bin})
		}

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (c *Chunkstream) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	const utilsPkg = "github.com/papercomputeco/chunkstream/pkg/utils"

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X '%s.Version=%s'", utilsPkg, version),
		fmt.Sprintf("-X '%s.Sha=%s'", utilsPkg, commit),
		fmt.Sprintf("-X '%s.Buildtime=%s'", utilsPkg, time.Now().UTC().Format(time.RFC3339)),
	}

	return c.Build(ctx, strings.Join(ldflags, " "))
}
