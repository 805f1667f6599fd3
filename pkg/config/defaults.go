package config

const (
	defaultProvider    = "ollama"
	defaultUpstream    = "http://localhost:11434"
	defaultRelayListen = ":8080"

	defaultClientRelayTarget = "http://localhost:8080"

	defaultStorageDriver = "sqlite"

	defaultEventStreamTopic = "spool.sessions"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Relay: RelayConfig{
			Provider: defaultProvider,
			Upstream: defaultUpstream,
			Listen:   defaultRelayListen,
		},
		Client: ClientConfig{
			RelayTarget: defaultClientRelayTarget,
		},
		EventStream: EventStreamConfig{
			Topic: defaultEventStreamTopic,
		},
	}
}
