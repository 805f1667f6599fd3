package relay

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the upstream LLM provider URL (e.g., "https://api.openai.com")
	UpstreamURL string

	// Provider specifies the streaming format decoded records are
	// interpreted as (e.g., "anthropic", "openai", "ollama").
	Provider string

	// NumWorkers is the number of capture workers (0 = default).
	NumWorkers uint

	// QueueSize is the capture queue capacity (0 = default).
	QueueSize uint
}
