// Package config loads agentloop settings from YAML, .env files and
// environment variable overrides, mirroring the nested section layout of
// the runtime components.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MemoryConfig tunes the context window manager.
type MemoryConfig struct {
	MaxContextTokens     int     `yaml:"max_context_tokens"`
	CompressionThreshold float64 `yaml:"compression_threshold"`
	TargetRatio          float64 `yaml:"target_ratio"`
	DecayFactor          float64 `yaml:"decay_factor"`
	KeepRecent           int     `yaml:"keep_recent"`
	SummaryMaxTokens     int     `yaml:"summary_max_tokens"`
}

// AgentConfig tunes the loop itself.
type AgentConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	IterationTimeout time.Duration `yaml:"iteration_timeout"`
	MaxParallelTools int           `yaml:"max_parallel_tools"`
	ToolCallTimeout  time.Duration `yaml:"tool_call_timeout"`
}

// QueueConfig selects and sizes the queue backend.
type QueueConfig struct {
	Backend        string        `yaml:"backend"` // memory, redis, postgres
	MaxSize        int           `yaml:"max_size"`
	MessageTTL     time.Duration `yaml:"message_ttl"`
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`
	RedisURL       string        `yaml:"redis_url"`
	PostgresURL    string        `yaml:"postgres_url"`
}

// ModelConfig selects the model adapter. Name empty means the adapter's
// default model id.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // anthropic, openai
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// CheckpointConfig selects the checkpoint sink.
type CheckpointConfig struct {
	Backend     string `yaml:"backend"` // memory, postgres
	PostgresURL string `yaml:"postgres_url"`
}

// PipelineConfig tunes the middleware chain.
type PipelineConfig struct {
	RateRPS    float64       `yaml:"rate_rps"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Config is the root settings object.
type Config struct {
	Memory     MemoryConfig     `yaml:"memory"`
	Agent      AgentConfig      `yaml:"agent"`
	Queue      QueueConfig      `yaml:"queue"`
	Model      ModelConfig      `yaml:"model"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Memory: MemoryConfig{
			MaxContextTokens:     128000,
			CompressionThreshold: 0.92,
			TargetRatio:          0.3,
			DecayFactor:          0.95,
			KeepRecent:           4,
			SummaryMaxTokens:     500,
		},
		Agent: AgentConfig{
			MaxIterations:    10,
			IterationTimeout: 300 * time.Second,
			MaxParallelTools: 5,
			ToolCallTimeout:  30 * time.Second,
		},
		Queue: QueueConfig{
			Backend:        "memory",
			MaxSize:        10000,
			MessageTTL:     time.Hour,
			DequeueTimeout: time.Second,
		},
		Model: ModelConfig{
			Provider:    "anthropic",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Checkpoint: CheckpointConfig{
			Backend: "memory",
		},
		Pipeline: PipelineConfig{
			RateRPS:    10,
			MaxRetries: 3,
			RetryDelay: 100 * time.Millisecond,
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. An empty path skips the file. A .env file in the working
// directory is folded into the environment first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv folds AGENTLOOP_-prefixed environment variables over the loaded
// values. Unparseable values are ignored in favor of the existing setting.
func (c *Config) applyEnv() {
	envInt("AGENTLOOP_MAX_CONTEXT_TOKENS", &c.Memory.MaxContextTokens)
	envFloat("AGENTLOOP_COMPRESSION_THRESHOLD", &c.Memory.CompressionThreshold)
	envFloat("AGENTLOOP_TARGET_RATIO", &c.Memory.TargetRatio)
	envFloat("AGENTLOOP_DECAY_FACTOR", &c.Memory.DecayFactor)
	envInt("AGENTLOOP_KEEP_RECENT", &c.Memory.KeepRecent)

	envInt("AGENTLOOP_MAX_ITERATIONS", &c.Agent.MaxIterations)
	envDuration("AGENTLOOP_ITERATION_TIMEOUT", &c.Agent.IterationTimeout)
	envInt("AGENTLOOP_MAX_PARALLEL_TOOLS", &c.Agent.MaxParallelTools)
	envDuration("AGENTLOOP_TOOL_CALL_TIMEOUT", &c.Agent.ToolCallTimeout)

	envString("AGENTLOOP_QUEUE_BACKEND", &c.Queue.Backend)
	envInt("AGENTLOOP_QUEUE_MAX_SIZE", &c.Queue.MaxSize)
	envDuration("AGENTLOOP_MESSAGE_TTL", &c.Queue.MessageTTL)
	envString("AGENTLOOP_REDIS_URL", &c.Queue.RedisURL)
	envString("AGENTLOOP_POSTGRES_URL", &c.Queue.PostgresURL)

	envString("AGENTLOOP_MODEL_PROVIDER", &c.Model.Provider)
	envString("AGENTLOOP_MODEL_NAME", &c.Model.Name)
	envInt("AGENTLOOP_MODEL_MAX_TOKENS", &c.Model.MaxTokens)

	envString("AGENTLOOP_CHECKPOINT_BACKEND", &c.Checkpoint.Backend)
	envString("AGENTLOOP_CHECKPOINT_POSTGRES_URL", &c.Checkpoint.PostgresURL)

	envFloat("AGENTLOOP_RATE_RPS", &c.Pipeline.RateRPS)
	envInt("AGENTLOOP_MAX_RETRIES", &c.Pipeline.MaxRetries)
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.Memory.MaxContextTokens <= 0 {
		return fmt.Errorf("memory.max_context_tokens must be positive")
	}
	if c.Memory.CompressionThreshold <= 0 || c.Memory.CompressionThreshold > 1 {
		return fmt.Errorf("memory.compression_threshold must be in (0, 1]")
	}
	if c.Memory.TargetRatio <= 0 || c.Memory.TargetRatio >= c.Memory.CompressionThreshold {
		return fmt.Errorf("memory.target_ratio must be in (0, compression_threshold)")
	}
	if c.Memory.DecayFactor <= 0 || c.Memory.DecayFactor > 1 {
		return fmt.Errorf("memory.decay_factor must be in (0, 1]")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if c.Agent.MaxParallelTools <= 0 {
		return fmt.Errorf("agent.max_parallel_tools must be positive")
	}
	switch c.Queue.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("queue.backend %q is not supported", c.Queue.Backend)
	}
	switch c.Model.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("model.provider %q is not supported", c.Model.Provider)
	}
	switch c.Checkpoint.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("checkpoint.backend %q is not supported", c.Checkpoint.Backend)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
