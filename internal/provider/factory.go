package provider

import "fmt"

const (
	APIAnthropic = "anthropic-messages"
	APIOpenAI    = "openai-chat"
	APIMock      = "mock"
)

// Config mirrors config.ProviderConfig to avoid a circular import.
type Config struct {
	ID        string
	API       string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// FromConfig creates a Provider from a config entry. The api field selects
// the wire format:
//   - "anthropic-messages" -> Anthropic Messages API
//   - "openai-chat"        -> OpenAI-compatible chat completions (OpenAI, OVH, Ollama, vLLM, etc.)
//   - "mock"               -> deterministic offline provider
func FromConfig(cfg Config) (Provider, error) {
	switch cfg.API {
	case APIAnthropic:
		return NewAnthropicProvider(cfg.ID, cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	case APIOpenAI, "":
		return NewOpenAIProvider(cfg.ID, cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	case APIMock:
		return NewMockProvider(cfg.ID), nil
	default:
		return nil, fmt.Errorf("unknown api type %q for provider %q (supported: %s, %s, %s)",
			cfg.API, cfg.ID, APIAnthropic, APIOpenAI, APIMock)
	}
}
