package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the crewd orchestrator
type Config struct {
	// Server configuration
	HTTPPort int    `env:"CREWD_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"CREWD_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// ProfilesFile is the YAML file with worker profiles and workflow
	// definitions. Empty means no static catalog.
	ProfilesFile string `env:"CREWD_PROFILES_FILE"`

	// Redis configuration. Redis is optional: when Addr is empty the
	// event bus and override store fall back to in-memory adapters.
	Redis RedisConfig

	// LLM configuration
	LLM LLMConfig

	// Worker configuration
	Workers WorkerConfig

	// Workflow run limits
	Workflow WorkflowConfig

	// Job registry configuration
	Jobs JobConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// OverrideTTL bounds how long stored profile overrides live.
	OverrideTTL time.Duration `env:"REDIS_OVERRIDE_TTL" envDefault:"168h"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	APIKey    string `env:"LLM_API_KEY"`
	MaxTokens int64  `env:"LLM_MAX_TOKENS" envDefault:"4096"`
}

// WorkerConfig holds worker lifecycle configuration
type WorkerConfig struct {
	SpawnTimeout    time.Duration `env:"WORKER_SPAWN_TIMEOUT" envDefault:"60s"`
	SendTimeout     time.Duration `env:"WORKER_SEND_TIMEOUT" envDefault:"120s"`
	MonitorInterval time.Duration `env:"WORKER_MONITOR_INTERVAL" envDefault:"30s"`
	// RepoContext is optional text injected into every worker's identity
	// prompt.
	RepoContext string `env:"WORKER_REPO_CONTEXT"`
}

// WorkflowConfig holds default workflow run limits
type WorkflowConfig struct {
	MaxSteps      int           `env:"WORKFLOW_MAX_STEPS" envDefault:"12"`
	MaxTaskChars  int           `env:"WORKFLOW_MAX_TASK_CHARS" envDefault:"20000"`
	MaxCarryChars int           `env:"WORKFLOW_MAX_CARRY_CHARS" envDefault:"24000"`
	StepTimeout   time.Duration `env:"WORKFLOW_STEP_TIMEOUT" envDefault:"300s"`
}

// JobConfig holds job registry retention configuration
type JobConfig struct {
	Retention time.Duration `env:"JOB_RETENTION" envDefault:"24h"`
	MaxJobs   int           `env:"JOB_MAX_JOBS" envDefault:"200"`
}

// TimeoutConfig holds process-level timeouts
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key is required")
	}

	if c.Jobs.MaxJobs < 1 {
		return fmt.Errorf("job table cap must be at least 1")
	}
	if c.Workflow.MaxSteps < 1 {
		return fmt.Errorf("workflow max steps must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
