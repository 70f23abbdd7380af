//go:build !llamacpp

package llm

import (
	"context"
	"fmt"
)

// LocalClient is a stub implementation used when the llamacpp build tag is not set.
// It returns Available()=false so callers fall back to other providers.
type LocalClient struct {
	modelPath string
}

// LocalConfig configures the local LLM client.
type LocalConfig struct {
	// LibPath is the directory containing yzma shared libraries (.so/.dylib).
	// Falls back to YZMA_LIB env var at runtime.
	LibPath string

	// ModelPath is the path to the GGUF model file for text generation.
	ModelPath string

	// GPULayers is the number of layers to offload to GPU (0 = CPU only).
	GPULayers int

	// ContextSize is the context window size in tokens.
	ContextSize int

	// MaxTokens caps the number of generated tokens per completion.
	MaxTokens int
}

// NewLocalClient creates a new LocalClient. In the stub build (without llamacpp tag),
// this client is always unavailable.
func NewLocalClient(cfg LocalConfig) *LocalClient {
	return &LocalClient{
		modelPath: cfg.ModelPath,
	}
}

// Complete returns an error because the local client is not available in
// stub builds.
func (c *LocalClient) Complete(_ context.Context, _ Request) (string, error) {
	return "", fmt.Errorf("local LLM not available: build with -tags llamacpp")
}

// Available returns false because the local LLM is not compiled in without
// the llamacpp build tag.
func (c *LocalClient) Available() bool {
	return false
}

// Close is a no-op for the stub client.
func (c *LocalClient) Close() error {
	return nil
}
