// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Stage names a pipeline stage that calls the completion endpoint.
type Stage string

const (
	StagePlanning  Stage = "planning"
	StageRetrieval Stage = "retrieval"
	StageAnalysis  Stage = "analysis"
	StageReport    Stage = "report"
)

// Stages lists every model-backed stage in pipeline order.
var Stages = []Stage{StagePlanning, StageRetrieval, StageAnalysis, StageReport}

// ModelProfile holds the static generation parameters for one stage.
type ModelProfile struct {
	// Model is the completion model identifier
	// (e.g. "accounts/fireworks/models/llama-v3p1-70b-instruct").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// Temperature controls sampling randomness (0-1).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// MaxTokens is the completion token budget.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// TopP is the nucleus sampling parameter (default 0.9).
	TopP float64 `json:"top_p" yaml:"top_p" mapstructure:"top_p"`

	PresencePenalty  float64 `json:"presence_penalty" yaml:"presence_penalty" mapstructure:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty" yaml:"frequency_penalty" mapstructure:"frequency_penalty"`
}

// GenerationConfig holds settings for the completion client shared by all stages.
type GenerationConfig struct {
	// Endpoint is the completions URL.
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// APIKey is the completion credential. Required.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Timeout bounds each request attempt (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxAttempts is the total attempt budget for 429 and transport failures (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// RetryBaseDelay seeds the exponential backoff (default 2s).
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay" mapstructure:"retry_base_delay"`

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// Profiles maps each stage to its generation parameters.
	Profiles map[Stage]ModelProfile `json:"profiles" yaml:"profiles" mapstructure:"profiles"`
}

// RankerConfig holds settings for the embedding-based relevance ranker.
type RankerConfig struct {
	// Endpoint is the embeddings URL.
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// APIKey is the embedding credential. When empty, ranking is a no-op.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	Model string `json:"model" yaml:"model" mapstructure:"model"`
	Task  string `json:"task" yaml:"task" mapstructure:"task"`

	// TopK is the number of documents kept after ranking (default 5).
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// MemoryBackend selects where session memory is persisted between runs.
type MemoryBackend string

const (
	MemoryInProcess MemoryBackend = "memory"
	MemoryFile      MemoryBackend = "file"
	MemorySQLite    MemoryBackend = "sqlite"
	MemoryRedis     MemoryBackend = "redis"
)

// MemoryConfig holds session memory persistence settings.
type MemoryConfig struct {
	// Backend selects the persister: memory, file, sqlite, or redis.
	Backend MemoryBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Path is the file or SQLite database path.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// RedisAddr is the Redis host:port for the redis backend.
	RedisAddr string `json:"redis_addr" yaml:"redis_addr" mapstructure:"redis_addr"`

	// RedisKey is the key holding the serialized store.
	RedisKey string `json:"redis_key" yaml:"redis_key" mapstructure:"redis_key"`
}

// ServerConfig holds settings for the HTTP host.
type ServerConfig struct {
	// Addr is the listen address (default "0.0.0.0:8000").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// Config groups all settings for the deep-research pipeline.
type Config struct {
	Generation GenerationConfig `json:"generation" yaml:"generation" mapstructure:"generation"`
	Ranker     RankerConfig     `json:"ranker" yaml:"ranker" mapstructure:"ranker"`
	Memory     MemoryConfig     `json:"memory" yaml:"memory" mapstructure:"memory"`
	Server     ServerConfig     `json:"server" yaml:"server" mapstructure:"server"`

	// Debug enables verbose diagnostics.
	Debug bool `json:"debug" yaml:"debug" mapstructure:"debug"`
}

const (
	largeModel = "accounts/fireworks/models/llama-v3p1-70b-instruct"
	smallModel = "accounts/fireworks/models/llama-v3p1-8b-instruct"
)

// DefaultProfiles returns the stock per-stage generation profiles.
func DefaultProfiles() map[Stage]ModelProfile {
	profile := func(model string, temp float64, tokens int) ModelProfile {
		return ModelProfile{Model: model, Temperature: temp, MaxTokens: tokens, TopP: 0.9}
	}
	return map[Stage]ModelProfile{
		StagePlanning:  profile(largeModel, 0.2, 4096),
		StageRetrieval: profile(smallModel, 0.1, 2048),
		StageAnalysis:  profile(largeModel, 0.3, 4096),
		StageReport:    profile(largeModel, 0.2, 8192),
	}
}

// DefaultConfig returns a Config populated with the stock defaults.
// Credentials are left empty.
func DefaultConfig() Config {
	return Config{
		Generation: GenerationConfig{
			Endpoint:       "https://api.fireworks.ai/inference/v1/completions",
			Timeout:        60 * time.Second,
			MaxAttempts:    3,
			RetryBaseDelay: 2 * time.Second,
			Profiles:       DefaultProfiles(),
		},
		Ranker: RankerConfig{
			Endpoint: "https://api.jina.ai/v1/embeddings",
			Model:    "jina-embeddings-v3",
			Task:     "text-matching",
			TopK:     5,
			Timeout:  30 * time.Second,
		},
		Memory: MemoryConfig{
			Backend:  MemoryInProcess,
			Path:     "deep-research-memory.db",
			RedisKey: "deep-research:memory",
		},
		Server: ServerConfig{
			Addr:            "0.0.0.0:8000",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Profile returns the profile for stage: every non-zero configured field
// laid over the stock default. A partial override such as a temperature
// alone keeps the default model and token budget.
func (c GenerationConfig) Profile(stage Stage) ModelProfile {
	p := DefaultProfiles()[stage]
	o, ok := c.Profiles[stage]
	if !ok {
		return p
	}
	if o.Model != "" {
		p.Model = o.Model
	}
	if o.Temperature != 0 {
		p.Temperature = o.Temperature
	}
	if o.MaxTokens != 0 {
		p.MaxTokens = o.MaxTokens
	}
	if o.TopP != 0 {
		p.TopP = o.TopP
	}
	if o.PresencePenalty != 0 {
		p.PresencePenalty = o.PresencePenalty
	}
	if o.FrequencyPenalty != 0 {
		p.FrequencyPenalty = o.FrequencyPenalty
	}
	return p
}
