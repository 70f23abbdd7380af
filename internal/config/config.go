// Package config provides unified configuration loading for homesim.
// It supports loading from YAML files with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all homesim configuration settings.
type Config struct {
	// Run names the current run; output file names embed it.
	Run RunConfig `json:"run" yaml:"run"`

	// Simulation controls the simulated day range and slot width.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Memory controls the shared household memory store.
	Memory MemoryConfig `json:"memory" yaml:"memory"`

	// LLM configures the generation-call boundary.
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Models selects a model per generation role.
	Models ModelsConfig `json:"models" yaml:"models"`

	// Paths locates the input and output files.
	Paths PathsConfig `json:"paths" yaml:"paths"`

	// Logging configures operational log verbosity.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// RunConfig identifies a run.
type RunConfig struct {
	Name string `json:"name" yaml:"name"`
}

// SimulationConfig fixes the simulated period. The schedule normalization
// pass and the timeline builder both read the same day range, so there is a
// single source of truth for how many slots a run produces.
type SimulationConfig struct {
	// StartDay is the first simulated day as an MM-DD key, e.g. "09-01".
	StartDay string `json:"start_day" yaml:"start_day"`

	// Days is the number of consecutive days to simulate.
	Days int `json:"days" yaml:"days"`

	// BaseYear anchors MM-DD keys to absolute timestamps.
	BaseYear int `json:"base_year" yaml:"base_year"`

	// StepMinutes is the sub-slot width within an hour. Fixed at 15 in
	// practice; kept configurable for experiments.
	StepMinutes int `json:"step_minutes" yaml:"step_minutes"`

	// BackupEveryN copies the simulation log into a backups directory
	// after every N appended records. 0 disables periodic backups; the
	// atomic per-append flush still applies either way.
	BackupEveryN int `json:"backup_every_n,omitempty" yaml:"backup_every_n,omitempty"`
}

// MemoryConfig tunes the decaying shared memory.
type MemoryConfig struct {
	// DecayPerHour is subtracted from every item weight at each
	// hour-boundary crossing of the merged timeline.
	DecayPerHour float64 `json:"decay_per_hour" yaml:"decay_per_hour"`

	// Floor is the minimum weight; decay clamps here and never deletes.
	Floor float64 `json:"floor" yaml:"floor"`

	// TopK bounds retrieval, not storage.
	TopK int `json:"top_k" yaml:"top_k"`
}

// LLMConfig configures the chat-completion client shared by all roles.
type LLMConfig struct {
	// Provider identifies the backend: "openai", "local", or "mock".
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key. Supports ${VAR} syntax for env vars.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Timeout is the maximum duration to wait for one response.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxRetries bounds retries on timeout or schema-validation failure.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// ModelPath is the GGUF model file for the "local" provider.
	ModelPath string `json:"model_path,omitempty" yaml:"model_path,omitempty"`

	// LibPath is the yzma shared-library directory for the "local"
	// provider. Falls back to the YZMA_LIB env var when empty.
	LibPath string `json:"lib_path,omitempty" yaml:"lib_path,omitempty"`

	// GPULayers is the number of model layers offloaded to GPU by the
	// "local" provider (0 = CPU only).
	GPULayers int `json:"gpu_layers,omitempty" yaml:"gpu_layers,omitempty"`

	// ContextSize is the "local" provider's context window in tokens.
	ContextSize int `json:"context_size,omitempty" yaml:"context_size,omitempty"`
}

// RedactedAPIKey returns the API key with most characters masked.
// Shows first 4 and last 4 characters, e.g. "sk-a...xyz9".
func (c LLMConfig) RedactedAPIKey() string {
	if c.APIKey == "" {
		return ""
	}
	if len(c.APIKey) < 12 {
		return "(set)"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}

// String implements fmt.Stringer to prevent accidental API key logging.
func (c LLMConfig) String() string {
	return fmt.Sprintf("LLMConfig{Provider:%s, APIKey:%s, Timeout:%s}",
		c.Provider, c.RedactedAPIKey(), c.Timeout)
}

// ModelsConfig names the model used by each generation role.
type ModelsConfig struct {
	Context       string `json:"context" yaml:"context"`
	Rewrite       string `json:"rewrite" yaml:"rewrite"`
	VAGenerative  string `json:"va_generative" yaml:"va_generative"`
	VARClassifier string `json:"va_r_classifier" yaml:"va_r_classifier"`
	VARResponse   string `json:"va_r_response" yaml:"va_r_response"`
	SelfEval      string `json:"self_eval" yaml:"self_eval"`
	ObserverEval  string `json:"observer_eval" yaml:"observer_eval"`
}

// PathsConfig locates inputs and outputs. All persistence is flat JSON.
type PathsConfig struct {
	Environment   string `json:"environment" yaml:"environment"`
	FamilyProfile string `json:"family_profile" yaml:"family_profile"`
	LogDir        string `json:"log_dir" yaml:"log_dir"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	// Level sets verbosity: "info" (default), "debug", or "trace".
	// "trace" includes full prompt/response content.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with the reference deployment's settings.
func Default() *Config {
	return &Config{
		Run: RunConfig{Name: "default_run"},
		Simulation: SimulationConfig{
			StartDay:    "09-01",
			Days:        7,
			BaseYear:    2025,
			StepMinutes: 15,
		},
		Memory: MemoryConfig{
			DecayPerHour: 0.05,
			Floor:        0.2,
			TopK:         8,
		},
		LLM: LLMConfig{
			Provider:   "openai",
			APIKey:     "${OPENAI_API_KEY}",
			Timeout:    60 * time.Second,
			MaxRetries: 2,
		},
		Models: ModelsConfig{
			Context:       "gpt-4o-mini",
			Rewrite:       "gpt-4o-mini",
			VAGenerative:  "gpt-4o-mini",
			VARClassifier: "gpt-4o-mini",
			VARResponse:   "gpt-4o-mini",
			SelfEval:      "gpt-4o",
			ObserverEval:  "gpt-4o",
		},
		Paths: PathsConfig{
			Environment:   "data/generated/environment.json",
			FamilyProfile: "data/generated/family_profile.json",
			LogDir:        "data/logs",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// SimulationLogPath is where the run's interaction log lives.
func (c *Config) SimulationLogPath() string {
	return filepath.Join(c.Paths.LogDir, "simulation_log_"+c.Run.Name+".json")
}

// EvalResultPath is where the observer-annotated log is written.
func (c *Config) EvalResultPath() string {
	return filepath.Join(c.Paths.LogDir, "eval_result_"+c.Run.Name+".json")
}

// MemoryHistoryPath is where the flattened memory export is written.
func (c *Config) MemoryHistoryPath() string {
	return filepath.Join(c.Paths.LogDir, "memory_history.json")
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. An unreadable or malformed file is an error: silently
// simulating with wrong settings would poison a whole run.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFromFile(path)
}

// LoadFromFile reads configuration from a specific YAML file.
// ${VAR} references are expanded from the environment before parsing.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	config := Default()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}

	return config, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Simulation.Days <= 0 {
		return fmt.Errorf("simulation.days must be positive, got %d", c.Simulation.Days)
	}
	if c.Simulation.StepMinutes <= 0 || 60%c.Simulation.StepMinutes != 0 {
		return fmt.Errorf("simulation.step_minutes must evenly divide an hour, got %d", c.Simulation.StepMinutes)
	}
	if c.Memory.DecayPerHour < 0 {
		return fmt.Errorf("memory.decay_per_hour must be non-negative, got %f", c.Memory.DecayPerHour)
	}
	if c.Memory.Floor < 0 || c.Memory.Floor > 1 {
		return fmt.Errorf("memory.floor must be in [0,1], got %f", c.Memory.Floor)
	}
	if c.Memory.TopK <= 0 {
		return fmt.Errorf("memory.top_k must be positive, got %d", c.Memory.TopK)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be non-negative, got %d", c.LLM.MaxRetries)
	}
	return nil
}
