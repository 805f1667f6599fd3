// Package record interprets decoded stream records. The decoder treats
// payloads as opaque JSON; this package is the downstream consumer that
// folds them into assembled message content and token usage, dispatching on
// the provider's streaming shape.
package record

import "strings"

// Supported provider streaming formats.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Usage captures token accounting accumulated across a stream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	// Cache token counts (Anthropic prompt caching)
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Accumulator folds decoded stream records into content text and usage.
// Extraction is best-effort: records that don't match the provider's shape
// are counted but otherwise ignored.
//
// An Accumulator belongs to a single stream session and is not safe for
// concurrent use.
type Accumulator struct {
	provider string
	content  strings.Builder
	usage    Usage
	model    string
	count    int
}

// NewAccumulator creates an Accumulator for the given provider format.
func NewAccumulator(provider string) *Accumulator {
	return &Accumulator{provider: provider}
}

// Add folds one decoded record value into the accumulator.
func (a *Accumulator) Add(value any) {
	a.count++

	chunk, ok := value.(map[string]any)
	if !ok {
		return
	}

	if a.model == "" {
		if m, ok := chunk["model"].(string); ok {
			a.model = m
		}
	}

	a.addContent(chunk)
	a.addUsage(chunk)
}

// Content returns the message text assembled so far.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// Usage returns accumulated usage with TotalTokens finalized.
func (a *Accumulator) Usage() Usage {
	u := a.usage
	if u.PromptTokens > 0 || u.CompletionTokens > 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// Model returns the model name from the first record that carried one.
func (a *Accumulator) Model() string {
	return a.model
}

// Count returns the number of records added.
func (a *Accumulator) Count() int {
	return a.count
}

func (a *Accumulator) addContent(chunk map[string]any) {
	switch a.provider {
	case ProviderOllama:
		// Ollama NDJSON: message.content
		if msg, ok := chunk["message"].(map[string]any); ok {
			if c, ok := msg["content"].(string); ok {
				a.content.WriteString(c)
			}
		}
	case ProviderOpenAI:
		// OpenAI SSE: choices[0].delta.content
		if choices, ok := chunk["choices"].([]any); ok && len(choices) > 0 {
			if choice, ok := choices[0].(map[string]any); ok {
				if delta, ok := choice["delta"].(map[string]any); ok {
					if c, ok := delta["content"].(string); ok {
						a.content.WriteString(c)
					}
				}
			}
		}
	case ProviderAnthropic:
		// Anthropic SSE: content_block_delta events carry delta.text
		if delta, ok := chunk["delta"].(map[string]any); ok {
			if text, ok := delta["text"].(string); ok {
				a.content.WriteString(text)
			}
		}
	}
}

// addUsage extracts token usage from a record.
// Anthropic splits usage across message_start (input tokens) and
// message_delta (output tokens). OpenAI includes usage in the final chunk.
// Ollama includes it in the final NDJSON line.
func (a *Accumulator) addUsage(chunk map[string]any) {
	switch a.provider {
	case ProviderAnthropic:
		chunkType, _ := chunk["type"].(string)
		switch chunkType {
		case "message_start":
			// message.usage.{input_tokens, cache_creation_input_tokens, cache_read_input_tokens}
			if msg, ok := chunk["message"].(map[string]any); ok {
				if u, ok := msg["usage"].(map[string]any); ok {
					inputTokens := jsonInt(u, "input_tokens")
					cacheCreation := jsonInt(u, "cache_creation_input_tokens")
					cacheRead := jsonInt(u, "cache_read_input_tokens")
					a.usage.PromptTokens = inputTokens + cacheCreation + cacheRead
					a.usage.CacheCreationInputTokens = cacheCreation
					a.usage.CacheReadInputTokens = cacheRead
				}
			}
		case "message_delta":
			// usage.output_tokens
			if u, ok := chunk["usage"].(map[string]any); ok {
				a.usage.CompletionTokens = jsonInt(u, "output_tokens")
			}
		}
	case ProviderOpenAI:
		// OpenAI includes usage in the final chunk
		if u, ok := chunk["usage"].(map[string]any); ok {
			a.usage.PromptTokens = jsonInt(u, "prompt_tokens")
			a.usage.CompletionTokens = jsonInt(u, "completion_tokens")
		}
	case ProviderOllama:
		// Ollama includes usage in the final NDJSON line (done=true)
		if done, ok := chunk["done"].(bool); ok && done {
			a.usage.PromptTokens = jsonInt(chunk, "prompt_eval_count")
			a.usage.CompletionTokens = jsonInt(chunk, "eval_count")
		}
	}
}

// jsonInt extracts an integer from a JSON map, handling float64 JSON number
// representation.
func jsonInt(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}
