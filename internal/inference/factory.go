package inference

import (
	"context"
	"fmt"
	"time"
)

// Settings selects and configures a provider.
type Settings struct {
	Provider string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewClient builds the client for the configured provider.
func NewClient(ctx context.Context, s Settings) (Client, error) {
	switch s.Provider {
	case "", "anthropic":
		if s.APIKey == "" {
			return nil, ErrNoAPIKey
		}
		return NewAnthropicClient(AnthropicConfig{APIKey: s.APIKey, BaseURL: s.BaseURL, Timeout: s.Timeout}), nil
	case "gemini":
		return NewGeminiClient(ctx, s.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, s.Provider)
	}
}
