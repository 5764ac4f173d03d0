// Package llm wraps the OpenAI-compatible chat completion API behind a small
// interface so services can be tested against fakes.
package llm

import (
	"context"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient captures the ability to perform chat completions.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Option customizes the client configuration.
type Option func(*openai.ClientConfig)

// WithBaseURL overrides the default API base URL (useful for tests and
// OpenAI-compatible gateways).
func WithBaseURL(url string) Option {
	return func(cfg *openai.ClientConfig) {
		if url != "" {
			cfg.BaseURL = url
		}
	}
}

// WithHTTPClient overrides the internal HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *openai.ClientConfig) {
		cfg.HTTPClient = hc
	}
}

// NewClient constructs a chat client with sane defaults.
func NewClient(apiKey string, opts ...Option) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return openai.NewClientWithConfig(cfg)
}
