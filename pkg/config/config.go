// Package config loads and validates CodeFRAME's process configuration from
// environment variables: a struct with validator tags, checked in one pass
// before anything else starts. The configuration surface is a short flat
// list of env vars rather than a nested registry, so loading is a single
// env-var pass rather than a YAML-registry load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// DeploymentMode gates whether local-path projects are permitted.
type DeploymentMode string

const (
	DeploymentSelfHosted DeploymentMode = "self_hosted"
	DeploymentHosted     DeploymentMode = "hosted"
)

// Config is the fully-resolved, validated process configuration.
type Config struct {
	DatabasePath        string         `validate:"required"`
	WorkspacesRoot       string         `validate:"required"`
	BackendBind          string         `validate:"required"`
	MaxConcurrentAgents  int            `validate:"required,min=1"`
	TaskTimeout          time.Duration  `validate:"required"`
	SessionTimeout       time.Duration  `validate:"required"`
	WatchdogMax          int            `validate:"required,min=1"`
	DeploymentMode       DeploymentMode `validate:"required,oneof=self_hosted hosted"`
	ProviderAPIKey       string
	SubscriberQueueSize  int            `validate:"required,min=1"`
	GraceMillis          time.Duration  `validate:"required"`
	MaxDiscoveryQuestions int           `validate:"required,min=1"`
}

var validate = validator.New()

// Load reads recognized environment variables, applies defaults, and
// validates the result. Call once at process startup, after
// godotenv.Load() has populated the environment from an optional .env file.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:          getEnv("DATABASE_PATH", "codeframe.db"),
		WorkspacesRoot:        getEnv("WORKSPACES_ROOT", "./workspaces"),
		BackendBind:           getEnv("BACKEND_BIND", "0.0.0.0:8080"),
		MaxConcurrentAgents:   getEnvInt("MAX_CONCURRENT_AGENTS", 5),
		TaskTimeout:           getEnvSeconds("TASK_TIMEOUT_SEC", 600),
		SessionTimeout:        getEnvSeconds("SESSION_TIMEOUT_SEC", 7200),
		WatchdogMax:           getEnvInt("WATCHDOG_MAX", 1000),
		DeploymentMode:        DeploymentMode(getEnv("DEPLOYMENT_MODE", string(DeploymentSelfHosted))),
		ProviderAPIKey:        os.Getenv("PROVIDER_API_KEY"),
		SubscriberQueueSize:   getEnvInt("SUBSCRIBER_QUEUE_SIZE", 256),
		GraceMillis:           time.Duration(getEnvInt("GRACE_MS", 15000)) * time.Millisecond,
		MaxDiscoveryQuestions: getEnvInt("MAX_DISCOVERY_QUESTIONS", 12),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// AllowsLocalPath reports whether the current deployment mode permits
// source_type=local_path projects. Hosted deployments forbid it (403):
// a hosted deployment has no meaningful local filesystem to read from.
func (c *Config) AllowsLocalPath() bool {
	return c.DeploymentMode != DeploymentHosted
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defSeconds)) * time.Second
}
