package config

import (
	"time"

	"github.com/helmsman-ai/helmsman/internal/database"
)

// DefaultConfig returns the configuration used when no file or environment
// overrides are present. Secrets have no defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		Database: database.DefaultConfig(),
		Redis:    DefaultRedisConfig(),
		Sandbox:  DefaultSandboxConfig(),
		Model:    DefaultModelConfig(),
		Summary:  DefaultSummaryConfig(),
		Log:      DefaultLogConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Image:           "python:3.12-slim",
		ContainerPrefix: "helmsman_sbx_",
		MaxMemoryMB:     512,
		MaxCPUPercent:   100,
		NetworkEnabled:  false,
		ExecTimeout:     60 * time.Second,
	}
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o",
		Temperature: 0.7,
		Timeout:     2 * time.Minute,
		MaxToolHops: 16,
		ImageModel:  "gpt-image-1",
	}
}

func DefaultSummaryConfig() SummaryConfig {
	return SummaryConfig{
		Type:        "gorm",
		TokenBudget: 512,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
