// Package llm talks to text-generation models for report writing.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/pulse/internal/config"
	"github.com/ignite/pulse/internal/pkg/logger"
)

const category = "llm"

// ErrNoAPIKey is returned when no text-generation key is configured.
var ErrNoAPIKey = errors.New("text generation API key not configured: add it in settings")

// Request is one system+user exchange.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Client completes a single request and returns the model's text.
type Client interface {
	// Ready reports ErrNoAPIKey when Complete could not authenticate.
	Ready(ctx context.Context) error
	Complete(ctx context.Context, req Request) (string, error)
}

// KeySource returns the current API key, or "" when none is set.
type KeySource func(ctx context.Context) (string, error)

// StaticKey returns a KeySource for a fixed key.
func StaticKey(key string) KeySource {
	return func(context.Context) (string, error) { return key, nil }
}

// New returns the client for cfg.LLM.Provider.
func New(ctx context.Context, cfg *config.Config, keys KeySource, log logger.Func) (Client, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg.LLM, keys, log), nil
	case "bedrock":
		return NewBedrockClient(ctx, cfg.Bedrock, log)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
