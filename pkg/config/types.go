package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent chunkstream configuration stored as
// config.toml in the .chunkstream/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Client      ClientConfig      `toml:"client"`
	Proxy       ProxyConfig       `toml:"proxy"`
	API         APIConfig         `toml:"api"`
	Storage     StorageConfig     `toml:"storage"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Decoder     DecoderConfig     `toml:"decoder"`
}

// ClientConfig holds settings for commands that talk to a chat completions
// endpoint directly (e.g. chunkstream chat). BaseURL is a full URL including
// the API version path.
type ClientConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
	Model   string `toml:"model,omitempty"`
	Timeout string `toml:"timeout,omitempty"`
}

// ProxyConfig holds proxy-specific settings.
type ProxyConfig struct {
	Upstream  string `toml:"upstream,omitempty"`
	Listen    string `toml:"listen,omitempty"`
	Workers   uint   `toml:"workers,omitempty"`
	QueueSize uint   `toml:"queue_size,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen     string `toml:"listen,omitempty"`
	DisableMCP bool   `toml:"disable_mcp,omitempty"`
}

// StorageConfig holds shared storage settings used by both proxy and API.
// PostgresDSN wins over SQLitePath when both are set. With neither,
// transcripts are kept in memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// EventStreamConfig holds transcript event publishing settings. Publishing
// is disabled while KafkaBrokers is empty.
type EventStreamConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// DecoderConfig holds the stream decoder policies.
type DecoderConfig struct {
	SkipMalformed  bool `toml:"skip_malformed,omitempty"`
	StrictTrailing bool `toml:"strict_trailing,omitempty"`
	MaxBuffer      int  `toml:"max_buffer,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func boolKey(key string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func uintKey(key string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.base_url": {
		get: func(c *Config) string { return c.Client.BaseURL },
		set: func(c *Config, v string) error { c.Client.BaseURL = v; return nil },
	},
	"client.model": {
		get: func(c *Config) string { return c.Client.Model },
		set: func(c *Config, v string) error { c.Client.Model = v; return nil },
	},
	"client.timeout": {
		get: func(c *Config) string { return c.Client.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for client.timeout: %w", err)
			}
			c.Client.Timeout = v
			return nil
		},
	},
	"proxy.upstream": {
		get: func(c *Config) string { return c.Proxy.Upstream },
		set: func(c *Config, v string) error { c.Proxy.Upstream = v; return nil },
	},
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"proxy.workers":    uintKey("proxy.workers", func(c *Config) *uint { return &c.Proxy.Workers }),
	"proxy.queue_size": uintKey("proxy.queue_size", func(c *Config) *uint { return &c.Proxy.QueueSize }),
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"api.disable_mcp": boolKey("api.disable_mcp", func(c *Config) *bool { return &c.API.DisableMCP }),
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"eventstream.kafka_brokers": {
		get: func(c *Config) string { return c.EventStream.KafkaBrokers },
		set: func(c *Config, v string) error { c.EventStream.KafkaBrokers = v; return nil },
	},
	"eventstream.kafka_topic": {
		get: func(c *Config) string { return c.EventStream.KafkaTopic },
		set: func(c *Config, v string) error { c.EventStream.KafkaTopic = v; return nil },
	},
	"decoder.skip_malformed":  boolKey("decoder.skip_malformed", func(c *Config) *bool { return &c.Decoder.SkipMalformed }),
	"decoder.strict_trailing": boolKey("decoder.strict_trailing", func(c *Config) *bool { return &c.Decoder.StrictTrailing }),
	"decoder.max_buffer": {
		get: func(c *Config) string {
			if c.Decoder.MaxBuffer == 0 {
				return ""
			}
			return strconv.Itoa(c.Decoder.MaxBuffer)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for decoder.max_buffer: %q", v)
			}
			c.Decoder.MaxBuffer = n
			return nil
		},
	},
}

// ClientTimeout parses Client.Timeout, falling back to the default for an
// empty or invalid value.
func (c *Config) ClientTimeout() time.Duration {
	d, err := time.ParseDuration(c.Client.Timeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultClientTimeout)
	}
	return d
}
