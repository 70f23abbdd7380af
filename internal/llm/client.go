// Package llm provides the generation-call boundary: a chat-completion
// client interface, an OpenAI-backed implementation, an optional local GGUF
// backend behind the llamacpp build tag, a mock for tests, and a
// retry wrapper that decodes schema-validated JSON responses. The generation
// call is treated as an unreliable external service: callers own a
// deterministic fallback for every request.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrPermanent marks failures that retrying cannot fix (bad request,
// authentication). Wrapped by client implementations; checked by Retry.
var ErrPermanent = errors.New("permanent llm error")

// Request is one blocking chat-completion call.
type Request struct {
	// Model is the model identifier for this role's call.
	Model string
	// System is the system role text.
	System string
	// User is the user prompt.
	User string
	// Temperature defaults to 0.3 when zero-valued via DefaultTemperature.
	Temperature float64
}

// DefaultTemperature is applied when a request leaves Temperature unset.
const DefaultTemperature = 0.3

// Client is the minimal completion interface every generation role uses.
type Client interface {
	// Complete sends one request and returns the raw response text.
	Complete(ctx context.Context, req Request) (string, error)

	// Available reports whether the client is configured to handle
	// requests (credentials present, endpoint known).
	Available() bool
}

// ClientConfig configures a concrete client.
type ClientConfig struct {
	// Provider identifies the backend: "openai", "local", or "mock".
	Provider string
	// APIKey is the provider credential.
	APIKey string
	// BaseURL overrides the endpoint for OpenAI-compatible servers.
	BaseURL string
	// Timeout bounds one request.
	Timeout time.Duration
	// Local holds the local-provider settings; only read when Provider is
	// "local".
	Local LocalConfig
}

// New creates a client for the configured provider. Unknown providers get a
// mock client, which keeps offline runs and tests deterministic.
func New(config ClientConfig) Client {
	switch config.Provider {
	case "openai":
		return NewOpenAIClient(config)
	case "local":
		return NewLocalClient(config.Local)
	default:
		return NewMockClient()
	}
}
