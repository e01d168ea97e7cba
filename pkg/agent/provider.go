package agent

import (
	"context"
	"fmt"
	"strings"
)

// Provider is an LLM API endpoint. Implementations are stateless and safe
// for concurrent use across sessions.
type Provider interface {
	// Complete makes one completion call.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider family name.
	Name() string
}

// NewProvider creates a provider by family name. The base URL override is
// honored by OpenAI-compatible endpoints (DeepSeek, local gateways).
func NewProvider(name, apiKey, baseURL string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKey, baseURL), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// InferProvider guesses the provider family from a model name. Anything that
// is not a Claude model is assumed to speak the OpenAI wire format.
func InferProvider(model string) string {
	if strings.HasPrefix(model, "claude") {
		return "anthropic"
	}
	return "openai"
}
