//go:build llamacpp

package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// Package-level library initialization. llama.Load() and llama.Init() are
// process-global operations that must only happen once.
var (
	libOnce    sync.Once
	libLoadErr error
)

func loadLib(libPath string) error {
	libOnce.Do(func() {
		if err := llama.Load(libPath); err != nil {
			libLoadErr = fmt.Errorf("loading yzma shared library from %q: %w", libPath, err)
			return
		}
		llama.LogSet(llama.LogSilent())
		llama.Init()
	})
	return libLoadErr
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

// LocalClient implements Client using a local GGUF model via
// hybridgroup/yzma (purego). All model access is serialized via mutex;
// a llama context is created per Complete call and freed immediately.
type LocalClient struct {
	libPath     string
	modelPath   string
	gpuLayers   int
	contextSize int
	maxTokens   int

	mu      sync.Mutex
	model   llama.Model
	vocab   llama.Vocab
	loaded  bool
	loadErr error
	once    sync.Once
}

// NewLocalClient creates a LocalClient. The model is not loaded until
// first use.
func NewLocalClient(cfg LocalConfig) *LocalClient {
	ctxSize := cfg.ContextSize
	if ctxSize <= 0 {
		ctxSize = 4096
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &LocalClient{
		libPath:     cfg.LibPath,
		modelPath:   cfg.ModelPath,
		gpuLayers:   cfg.GPULayers,
		contextSize: ctxSize,
		maxTokens:   maxTokens,
	}
}

// resolveLibPath returns the effective library path, falling back to YZMA_LIB.
func (c *LocalClient) resolveLibPath() string {
	if c.libPath != "" {
		return c.libPath
	}
	return os.Getenv("YZMA_LIB")
}

// loadModel lazy-loads the model on first use.
func (c *LocalClient) loadModel() error {
	c.once.Do(func() {
		if c.modelPath == "" {
			c.loadErr = fmt.Errorf("no model path configured")
			return
		}
		libPath := c.resolveLibPath()
		if libPath == "" {
			c.loadErr = fmt.Errorf("no library path configured (set llm.lib_path or YZMA_LIB)")
			return
		}

		if err := loadLib(libPath); err != nil {
			c.loadErr = err
			return
		}

		modelParams := llama.ModelDefaultParams()
		modelParams.NGpuLayers = int32(c.gpuLayers)

		model, err := llama.ModelLoadFromFile(c.modelPath, modelParams)
		if err != nil {
			c.loadErr = fmt.Errorf("loading model %s: %w", c.modelPath, err)
			return
		}
		if model == 0 {
			c.loadErr = fmt.Errorf("loading model %s: returned null handle", c.modelPath)
			return
		}

		c.model = model
		c.vocab = llama.ModelGetVocab(model)
		c.loaded = true
	})
	return c.loadErr
}

// Complete implements Client.Complete with greedy sampling. The system and
// user texts are folded into one prompt; models served this way are
// expected to emit bare JSON, which the shared brace-extraction fallback
// still tolerates.
func (c *LocalClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := c.loadModel(); err != nil {
		return "", fmt.Errorf("local complete: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	prompt := req.System + "\n\n" + req.User
	tokens := llama.Tokenize(c.vocab, prompt, true, true)

	ctxParams := llama.ContextDefaultParams()
	ctxParams.NCtx = uint32(len(tokens) + c.maxTokens)
	if int(ctxParams.NCtx) > c.contextSize {
		ctxParams.NCtx = uint32(c.contextSize)
	}
	ctxParams.NBatch = uint32(len(tokens))

	lctx, err := llama.InitFromModel(c.model, ctxParams)
	if err != nil {
		return "", fmt.Errorf("creating completion context: %w", err)
	}
	defer func() { _ = llama.Free(lctx) }()

	sampler := llama.SamplerChainInit(llama.SamplerChainDefaultParams())
	defer llama.SamplerFree(sampler)
	llama.SamplerChainAdd(sampler, llama.SamplerInitGreedy())

	var out strings.Builder
	batch := llama.BatchGetOne(tokens)
	buf := make([]byte, 256)

	for generated := 0; generated < c.maxTokens; generated++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if _, err := llama.Decode(lctx, batch); err != nil {
			return "", fmt.Errorf("decoding tokens: %w", err)
		}

		token := llama.SamplerSample(sampler, lctx, -1)
		if llama.VocabIsEog(c.vocab, token) {
			break
		}

		n := llama.TokenToPiece(c.vocab, token, buf, 0, true)
		if n > 0 {
			out.Write(buf[:n])
		}

		batch = llama.BatchGetOne([]llama.Token{token})
	}

	return out.String(), nil
}

// Available reports whether both the library directory and the model file
// exist on disk. Cheap: does not load the model or library.
func (c *LocalClient) Available() bool {
	libPath := c.resolveLibPath()
	if libPath == "" || c.modelPath == "" {
		return false
	}
	if info, err := os.Stat(libPath); err != nil || !info.IsDir() {
		return false
	}
	if _, err := os.Stat(c.modelPath); err != nil {
		return false
	}
	return true
}

// Close releases the model resources. Safe to call multiple times.
// Does NOT call llama.Close() — that's process-global.
func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		_ = llama.ModelFree(c.model)
		c.model = 0
		c.vocab = 0
		c.loaded = false
		c.once = sync.Once{}
	}
	return nil
}
