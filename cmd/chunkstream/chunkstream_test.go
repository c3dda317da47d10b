package chunkstreamcmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	chunkstreamcmder "github.com/papercomputeco/chunkstream/cmd/chunkstream"
)

var _ = Describe("NewChunkstreamCmd", func() {
	It("registers every subcommand", func() {
		cmd := chunkstreamcmder.NewChunkstreamCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("chat", "config", "decode", "prune", "serve", "version"))
	})

	It("declares the global flags", func() {
		cmd := chunkstreamcmder.NewChunkstreamCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("gives serve its api and proxy subcommands", func() {
		cmd := chunkstreamcmder.NewChunkstreamCmd()
		serve, _, err := cmd.Find([]string{"serve"})
		Expect(err).NotTo(HaveOccurred())

		names := []string{}
		for _, sub := range serve.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ConsistOf("api", "proxy"))
	})

	It("registers the standalone listen flag on each service", func() {
		cmd := chunkstreamcmder.NewChunkstreamCmd()
		for _, path := range [][]string{{"serve", "api"}, {"serve", "proxy"}} {
			sub, _, err := cmd.Find(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(sub.Flags().Lookup("listen")).NotTo(BeNil())
			Expect(sub.Flags().ShorthandLookup("l")).NotTo(BeNil())
		}
	})

	It("runs the version command", func() {
		cmd := chunkstreamcmder.NewChunkstreamCmd()
		cmd.SetArgs([]string{"version"})
		Expect(cmd.Execute()).To(Succeed())
	})
})
