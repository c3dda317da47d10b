package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/config"
	"github.com/papercomputeco/chunkstream/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has init, set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("init", "set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var configDir string

	BeforeEach(func() {
		configDir = filepath.Join(GinkgoT().TempDir(), ".chunkstream")
	})

	newCmd := func(args ...string) (*cobra.Command, *bytes.Buffer) {
		cmd := configcmder.NewConfigCmd()
		cmd.PersistentFlags().String("config-dir", configDir, "")

		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(GinkgoWriter)
		cmd.SetArgs(args)
		return cmd, out
	}

	loadConfig := func() *config.Config {
		cfger, err := config.NewConfiger(configDir)
		Expect(err).NotTo(HaveOccurred())
		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			cmd, _ := newCmd("set", "proxy.upstream", "http://localhost:11434")
			Expect(cmd.Execute()).To(Succeed())

			_, err := os.Stat(filepath.Join(configDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(loadConfig().Proxy.Upstream).To(Equal("http://localhost:11434"))
		})

		It("rejects unknown keys", func() {
			cmd, _ := newCmd("set", "invalid_key", "value")
			Expect(cmd.Execute()).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			cmd, _ := newCmd("set", "proxy.upstream")
			Expect(cmd.Execute()).To(HaveOccurred())
		})

		It("rejects invalid uint values", func() {
			cmd, _ := newCmd("set", "proxy.workers", "not-a-number")
			Expect(cmd.Execute()).To(HaveOccurred())
		})

		It("rejects invalid durations", func() {
			cmd, _ := newCmd("set", "client.timeout", "soon")
			Expect(cmd.Execute()).To(HaveOccurred())
		})

		It("sets bool values", func() {
			cmd, _ := newCmd("set", "decoder.skip_malformed", "true")
			Expect(cmd.Execute()).To(Succeed())
			Expect(loadConfig().Decoder.SkipMalformed).To(BeTrue())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			setCmd, _ := newCmd("set", "client.model", "llama3.2")
			Expect(setCmd.Execute()).To(Succeed())

			getCmd, out := newCmd("get", "client.model")
			Expect(getCmd.Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("llama3.2"))
		})

		It("shows the default for an unset key", func() {
			getCmd, out := newCmd("get", "proxy.listen")
			Expect(getCmd.Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring(":8080"))
		})

		It("rejects unknown keys", func() {
			cmd, _ := newCmd("get", "invalid_key")
			Expect(cmd.Execute()).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			cmd, _ := newCmd("get")
			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			cmd, out := newCmd("list")
			Expect(cmd.Execute()).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
		})

		It("rejects any arguments", func() {
			cmd, _ := newCmd("list", "extra")
			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})

	Describe("init subcommand", func() {
		It("writes the default preset", func() {
			cmd, _ := newCmd("init")
			Expect(cmd.Execute()).To(Succeed())
			Expect(loadConfig().Proxy.Upstream).To(Equal("https://api.openai.com"))
		})

		It("writes a named preset", func() {
			cmd, _ := newCmd("init", "ollama")
			Expect(cmd.Execute()).To(Succeed())

			cfg := loadConfig()
			Expect(cfg.Proxy.Upstream).To(Equal("http://localhost:11434"))
			Expect(cfg.Client.Model).To(Equal("llama3.2"))
		})

		It("refuses to replace a config file without --force", func() {
			cmd, _ := newCmd("init")
			Expect(cmd.Execute()).To(Succeed())

			cmd, _ = newCmd("init", "ollama")
			Expect(cmd.Execute()).To(MatchError(ContainSubstring("already exists")))

			cmd, _ = newCmd("init", "ollama", "--force")
			Expect(cmd.Execute()).To(Succeed())
			Expect(loadConfig().Client.Model).To(Equal("llama3.2"))
		})

		It("rejects unknown presets", func() {
			cmd, _ := newCmd("init", "anthropic")
			Expect(cmd.Execute()).To(MatchError(ContainSubstring("unknown preset")))
		})
	})
})
