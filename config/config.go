package config

import (
	"time"

	"github.com/helmsman-ai/helmsman/agent"
	"github.com/helmsman-ai/helmsman/internal/database"
	"github.com/helmsman-ai/helmsman/sandbox"
	"github.com/helmsman-ai/helmsman/types"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server" env:"SERVER"`
	Database database.Config `yaml:"database" env:"DATABASE"`
	Redis    RedisConfig     `yaml:"redis" env:"REDIS"`
	Sandbox  SandboxConfig   `yaml:"sandbox" env:"SANDBOX"`
	Model    ModelConfig     `yaml:"model" env:"MODEL"`
	Summary  SummaryConfig   `yaml:"summary" env:"SUMMARY"`
	Secrets  SecretsConfig   `yaml:"secrets" env:"SECRETS"`
	Log      LogConfig       `yaml:"log" env:"LOG"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    int           `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// RedisConfig configures the optional redis connection. Redis is only
// required when the summary store type is "redis".
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// SandboxConfig configures the docker execution environment.
type SandboxConfig struct {
	Image           string        `yaml:"image" env:"IMAGE"`
	ContainerPrefix string        `yaml:"container_prefix" env:"CONTAINER_PREFIX"`
	MaxMemoryMB     int           `yaml:"max_memory_mb" env:"MAX_MEMORY_MB"`
	MaxCPUPercent   int           `yaml:"max_cpu_percent" env:"MAX_CPU_PERCENT"`
	NetworkEnabled  bool          `yaml:"network_enabled" env:"NETWORK_ENABLED"`
	ExecTimeout     time.Duration `yaml:"exec_timeout" env:"EXEC_TIMEOUT"`
}

// ModelConfig configures the upstream chat-completions endpoint agents
// respond through.
type ModelConfig struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" env:"MODEL"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxToolHops int           `yaml:"max_tool_hops" env:"MAX_TOOL_HOPS"`
	// ImageModel drives generate_image_and_show_it_to_user.
	ImageModel string `yaml:"image_model" env:"IMAGE_MODEL"`
}

// SummaryConfig configures cross-session chat summary storage.
type SummaryConfig struct {
	Type        string        `yaml:"type" env:"TYPE"`
	TokenBudget int           `yaml:"token_budget" env:"TOKEN_BUDGET"`
	TTL         time.Duration `yaml:"ttl" env:"TTL"`
}

// SecretsConfig holds credentials. These are never written to YAML in
// deployments; the env override path is the supported source.
type SecretsConfig struct {
	ModelAPIKey   string `yaml:"model_api_key" env:"MODEL_API_KEY"`
	WolframAppID  string `yaml:"wolfram_app_id" env:"WOLFRAM_APP_ID"`
	TavilyAPIKey  string `yaml:"tavily_api_key" env:"TAVILY_API_KEY"`
	JWTSigningKey string `yaml:"jwt_signing_key" env:"JWT_SIGNING_KEY"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// DockerConfig maps the sandbox section onto the provider's config type.
func (c SandboxConfig) DockerConfig() sandbox.DockerConfig {
	return sandbox.DockerConfig{
		Image:           c.Image,
		ContainerPrefix: c.ContainerPrefix,
		MaxMemoryMB:     c.MaxMemoryMB,
		MaxCPUPercent:   c.MaxCPUPercent,
		NetworkEnabled:  c.NetworkEnabled,
		ExecTimeout:     c.ExecTimeout,
	}
}

// ResponderConfig maps the model section onto the responder's config type.
func (c *Config) ResponderConfig() agent.HTTPResponderConfig {
	return agent.HTTPResponderConfig{
		BaseURL:     c.Model.BaseURL,
		APIKey:      c.Secrets.ModelAPIKey,
		Model:       c.Model.Model,
		Temperature: c.Model.Temperature,
		Timeout:     c.Model.Timeout,
		MaxToolHops: c.Model.MaxToolHops,
	}
}

// SummaryStoreConfig maps the summary section onto the store factory's
// config type.
func (c SummaryConfig) SummaryStoreConfig() agent.SummaryStoreConfig {
	return agent.SummaryStoreConfig{
		Type:        agent.SummaryStoreType(c.Type),
		TokenBudget: c.TokenBudget,
		TTL:         c.TTL,
	}
}

// Validate checks structural invariants and required secrets. Missing
// secrets are reported as config errors so startup fails fast instead of
// surfacing as tool failures mid-session.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return types.NewConfigError(types.ErrInvalidConfig, "server.http_port out of range")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		return types.NewConfigError(types.ErrInvalidConfig, "server.metrics_port out of range")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return types.NewConfigError(types.ErrInvalidConfig, "database.driver must be sqlite, postgres or mysql")
	}
	switch agent.SummaryStoreType(c.Summary.Type) {
	case agent.SummaryStoreMemory, agent.SummaryStoreGorm, agent.SummaryStoreRedis, "":
	default:
		return types.NewConfigError(types.ErrInvalidConfig, "summary.type must be memory, gorm or redis")
	}
	if c.Secrets.ModelAPIKey == "" {
		return types.NewConfigError(types.ErrMissingSecret, "secrets.model_api_key is required")
	}
	if c.Secrets.JWTSigningKey == "" {
		return types.NewConfigError(types.ErrMissingSecret, "secrets.jwt_signing_key is required")
	}
	return nil
}
