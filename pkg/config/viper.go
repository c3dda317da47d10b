package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/chunkstream/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CHUNKSTREAM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CHUNKSTREAM_PROXY_LISTEN, CHUNKSTREAM_API_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: CHUNKSTREAM_PROXY_LISTEN, CHUNKSTREAM_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("CHUNKSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Client
	v.SetDefault("client.base_url", d.Client.BaseURL)
	v.SetDefault("client.model", d.Client.Model)
	v.SetDefault("client.timeout", d.Client.Timeout)

	// Proxy
	v.SetDefault("proxy.upstream", d.Proxy.Upstream)
	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("proxy.workers", d.Proxy.Workers)
	v.SetDefault("proxy.queue_size", d.Proxy.QueueSize)

	// API
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.disable_mcp", d.API.DisableMCP)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Event stream
	v.SetDefault("eventstream.kafka_brokers", d.EventStream.KafkaBrokers)
	v.SetDefault("eventstream.kafka_topic", d.EventStream.KafkaTopic)

	// Decoder
	v.SetDefault("decoder.skip_malformed", d.Decoder.SkipMalformed)
	v.SetDefault("decoder.strict_trailing", d.Decoder.StrictTrailing)
	v.SetDefault("decoder.max_buffer", d.Decoder.MaxBuffer)
}

// FromViper assembles a Config from the resolved values in v, so callers see
// the full precedence chain in one struct.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Client: ClientConfig{
			BaseURL: v.GetString("client.base_url"),
			Model:   v.GetString("client.model"),
			Timeout: v.GetString("client.timeout"),
		},
		Proxy: ProxyConfig{
			Upstream:  v.GetString("proxy.upstream"),
			Listen:    v.GetString("proxy.listen"),
			Workers:   v.GetUint("proxy.workers"),
			QueueSize: v.GetUint("proxy.queue_size"),
		},
		API: APIConfig{
			Listen:     v.GetString("api.listen"),
			DisableMCP: v.GetBool("api.disable_mcp"),
		},
		Storage: StorageConfig{
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		EventStream: EventStreamConfig{
			KafkaBrokers: v.GetString("eventstream.kafka_brokers"),
			KafkaTopic:   v.GetString("eventstream.kafka_topic"),
		},
		Decoder: DecoderConfig{
			SkipMalformed:  v.GetBool("decoder.skip_malformed"),
			StrictTrailing: v.GetBool("decoder.strict_trailing"),
			MaxBuffer:      v.GetInt("decoder.max_buffer"),
		},
	}
}

// KafkaBrokerList splits the comma separated broker setting.
func (c *EventStreamConfig) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
