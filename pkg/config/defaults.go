package config

const (
	defaultClientBaseURL = "http://localhost:8080/v1"
	defaultClientModel   = "gpt-4o-mini"
	defaultClientTimeout = "2m"

	defaultUpstream    = "https://api.openai.com"
	defaultProxyListen = ":8080"
	defaultAPIListen   = ":8081"

	defaultKafkaTopic = "chunkstream.streams"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			BaseURL: defaultClientBaseURL,
			Model:   defaultClientModel,
			Timeout: defaultClientTimeout,
		},
		Proxy: ProxyConfig{
			Upstream: defaultUpstream,
			Listen:   defaultProxyListen,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
