// Package config loads the server's environment-variable configuration into
// a single typed, immutable value constructed once at boot. No component
// reads os.Getenv directly; a *Config is threaded through ServerContext into
// every handler, matching the "avoid process-wide mutables beyond
// configuration" guidance for this codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode controls which tools the dispatcher exposes.
type Mode string

const (
	ModeAgent  Mode = "AGENT"
	ModeManual Mode = "MANUAL"
	ModeAll    Mode = "ALL"
)

// Config holds every environment variable spec.md §6 recognizes.
type Config struct {
	ServerPort int
	ServerAPIKey string
	Mode         Mode

	Parallelism  int
	EnsembleSize int

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	AnthropicAPIKey   string
	AnthropicModel    string
	OpenAIAPIKey      string
	OpenAIModel       string

	EmbeddingsProvider  string
	EmbeddingsModel     string
	EmbeddingsDimension int

	DBPath string

	IdempotencyEnabled             bool
	IdempotencyTTL                 time.Duration
	IdempotencyCleanupInterval     time.Duration
	IdempotencyRetryOnFailure      bool
	IdempotencyRetryWindowSeconds  int
	IdempotencyMaxRetries          int

	SessionTimeout         time.Duration
	SessionCleanupInterval time.Duration

	AuthJWKSURL      string
	AuthExpectedAud  string
	RequireHTTPS     bool
	AllowNoAPIKey    bool
	RateLimitMaxReqs int

	RedisURL string

	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
	MaxRetries        int

	SubAgentTimeout time.Duration
	SynthesisTimeout time.Duration
	JobTimeout       time.Duration

	ProgressTokenInterval int
}

// Load reads the process environment and returns a validated Config. Unset
// variables take the defaults documented in spec.md.
func Load() (*Config, error) {
	c := &Config{
		ServerPort:        envInt("SERVER_PORT", 3000),
		ServerAPIKey:      os.Getenv("SERVER_API_KEY"),
		Mode:              Mode(envString("MODE", string(ModeAll))),
		Parallelism:       envInt("PARALLELISM", 4),
		EnsembleSize:      envInt("ENSEMBLE_SIZE", 2),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: envString("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:    envString("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       envString("OPENAI_MODEL", "gpt-4o-mini"),

		EmbeddingsProvider:  envString("EMBEDDINGS_PROVIDER", "local"),
		EmbeddingsModel:     os.Getenv("EMBEDDINGS_MODEL"),
		EmbeddingsDimension: envInt("EMBEDDINGS_DIMENSION", 384),

		DBPath: envString("DB_PATH", "./researchAgentDB"),

		IdempotencyEnabled:            envBool("IDEMPOTENCY_ENABLED", true),
		IdempotencyTTL:                time.Duration(envInt("IDEMPOTENCY_TTL_SECONDS", 3600)) * time.Second,
		IdempotencyCleanupInterval:    time.Duration(envInt("IDEMPOTENCY_CLEANUP_INTERVAL_MS", 600000)) * time.Millisecond,
		IdempotencyRetryOnFailure:     envBool("IDEMPOTENCY_RETRY_ON_FAILURE", true),
		IdempotencyRetryWindowSeconds: envInt("IDEMPOTENCY_RETRY_WINDOW_SECONDS", 300),
		IdempotencyMaxRetries:         envInt("IDEMPOTENCY_MAX_RETRIES", 3),

		SessionTimeout:         time.Duration(envInt("MCP_SESSION_TIMEOUT_SECONDS", 3600)) * time.Second,
		SessionCleanupInterval: time.Duration(envInt("MCP_SESSION_CLEANUP_INTERVAL_SECONDS", 600)) * time.Second,

		AuthJWKSURL:      os.Getenv("AUTH_JWKS_URL"),
		AuthExpectedAud:  os.Getenv("AUTH_EXPECTED_AUD"),
		RequireHTTPS:     envBool("REQUIRE_HTTPS", false),
		AllowNoAPIKey:    envBool("ALLOW_NO_API_KEY", false),
		RateLimitMaxReqs: envInt("RATE_LIMIT_MAX_REQUESTS", 120),

		RedisURL: os.Getenv("REDIS_URL"),

		LeaseDuration:     60 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		MaxRetries:        envInt("MAX_JOB_ATTEMPTS", 5),

		SubAgentTimeout:  90 * time.Second,
		SynthesisTimeout: 300 * time.Second,
		JobTimeout:       600 * time.Second,

		ProgressTokenInterval: 50,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeAgent, ModeManual, ModeAll:
	default:
		return fmt.Errorf("invalid MODE %q: must be one of AGENT, MANUAL, ALL", c.Mode)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("PARALLELISM must be positive, got %d", c.Parallelism)
	}
	if c.EnsembleSize <= 0 {
		return fmt.Errorf("ENSEMBLE_SIZE must be positive, got %d", c.EnsembleSize)
	}
	if c.EmbeddingsDimension <= 0 {
		return fmt.Errorf("EMBEDDINGS_DIMENSION must be positive, got %d", c.EmbeddingsDimension)
	}
	return nil
}

// MaxInflightSubAgents is ENSEMBLE_SIZE × PARALLELISM, the bounded executor
// concurrency cap described in spec.md §4.4.
func (c *Config) MaxInflightSubAgents() int { return c.EnsembleSize * c.Parallelism }

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
	}
	return def
}
