package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --upstream
// on both "chunkstream serve" and "chunkstream serve proxy").
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "proxy.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagProxyListen    = "proxy-listen"
	FlagAPIListen      = "api-listen"
	FlagUpstream       = "upstream"
	FlagWorkers        = "workers"
	FlagQueueSize      = "queue-size"
	FlagDisableMCP     = "disable-mcp"
	FlagSQLite         = "sqlite"
	FlagPostgres       = "postgres"
	FlagKafkaBrokers   = "kafka-brokers"
	FlagKafkaTopic     = "kafka-topic"
	FlagBaseURL        = "base-url"
	FlagModel          = "model"
	FlagTimeout        = "timeout"
	FlagSkipMalformed  = "skip-malformed"
	FlagStrictTrailing = "strict-trailing"
	FlagMaxBuffer      = "max-buffer"

	// Standalone subcommand variants use "listen" as the flag name
	// but bind to different viper keys depending on the service.
	FlagProxyListenStandalone = "proxy-listen-standalone"
	FlagAPIListenStandalone   = "api-listen-standalone"
)

// Flags is the registry of every flag shared across commands.
var Flags = FlagSet{
	FlagProxyListen:           {Name: "proxy-listen", Shorthand: "p", ViperKey: "proxy.listen", Description: "Address for proxy to listen on"},
	FlagAPIListen:             {Name: "api-listen", Shorthand: "a", ViperKey: "api.listen", Description: "Address for API server to listen on"},
	FlagProxyListenStandalone: {Name: "listen", Shorthand: "l", ViperKey: "proxy.listen", Description: "Address for proxy to listen on"},
	FlagAPIListenStandalone:   {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for API server to listen on"},
	FlagUpstream:              {Name: "upstream", Shorthand: "u", ViperKey: "proxy.upstream", Description: "Upstream chat completions API root"},
	FlagWorkers:               {Name: "workers", ViperKey: "proxy.workers", Description: "Number of transcript persistence workers"},
	FlagQueueSize:             {Name: "queue-size", ViperKey: "proxy.queue_size", Description: "Capacity of the transcript persistence queue"},
	FlagDisableMCP:            {Name: "disable-mcp", ViperKey: "api.disable_mcp", Description: "Serve the MCP endpoint without tools"},
	FlagSQLite:                {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database (default: in-memory)"},
	FlagPostgres:              {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string (takes precedence over --sqlite)"},
	FlagKafkaBrokers:          {Name: "kafka-brokers", ViperKey: "eventstream.kafka_brokers", Description: "Comma separated Kafka brokers for transcript events (default: disabled)"},
	FlagKafkaTopic:            {Name: "kafka-topic", ViperKey: "eventstream.kafka_topic", Description: "Kafka topic for transcript events"},
	FlagBaseURL:               {Name: "base-url", ViperKey: "client.base_url", Description: "Chat completions API base URL"},
	FlagModel:                 {Name: "model", Shorthand: "m", ViperKey: "client.model", Description: "Model name"},
	FlagTimeout:               {Name: "timeout", ViperKey: "client.timeout", Description: "Timeout for non-streaming requests"},
	FlagSkipMalformed:         {Name: "skip-malformed", ViperKey: "decoder.skip_malformed", Description: "Skip frames that fail to decode instead of stopping"},
	FlagStrictTrailing:        {Name: "strict-trailing", ViperKey: "decoder.strict_trailing", Description: "Treat a stream ending inside a frame as an error"},
	FlagMaxBuffer:             {Name: "max-buffer", ViperKey: "decoder.max_buffer", Description: "Largest incomplete frame in bytes (0: unbounded)"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddFlags registers each registry flag on cmd with a type matching its
// default value. Values are read back through viper after
// BindRegisteredFlags, so no target variables are needed.
func AddFlags(cmd *cobra.Command, fs FlagSet, registryKeys ...string) {
	v := viper.New()
	setViperDefaults(v)

	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		switch v.Get(def.ViperKey).(type) {
		case bool:
			AddBoolFlag(cmd, fs, registryKey, new(bool))
		case int:
			AddIntFlag(cmd, fs, registryKey, new(int))
		case uint:
			AddUintFlag(cmd, fs, registryKey, new(uint))
		default:
			AddStringFlag(cmd, fs, registryKey, new(string))
		}
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}
