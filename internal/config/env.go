package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds secrets read from the environment.
type Env struct {
	HCloudToken      string `env:"HCLOUD_TOKEN"`
	PostgresPassword string `env:"K3SFORM_POSTGRES_PASSWORD"`
	// S3 credentials for the outputs bucket. Empty values use the default
	// AWS credential chain.
	S3AccessKey string `env:"K3SFORM_S3_ACCESS_KEY"`
	S3SecretKey string `env:"K3SFORM_S3_SECRET_KEY"`
}

// LoadEnv parses Env from the process environment.
func LoadEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return e, nil
}

// RequireToken returns an error when HCLOUD_TOKEN is missing.
func (e Env) RequireToken() error {
	if e.HCloudToken == "" {
		return fmt.Errorf("HCLOUD_TOKEN environment variable is required")
	}
	return nil
}

// Timeouts bounds every blocking operation.
//
// Environment variables (defaults in parentheses):
//   - K3SFORM_TIMEOUT_SERVER_CREATE (10m)
//   - K3SFORM_TIMEOUT_DELETE (5m)
//   - K3SFORM_TIMEOUT_SSH_CONNECT (5m)
//   - K3SFORM_TIMEOUT_SSH_COMMAND (10m)
//   - K3SFORM_TIMEOUT_API_READY (5m)
//   - K3SFORM_TIMEOUT_RELEASE (10m)
//   - K3SFORM_RETRY_MAX_ATTEMPTS (5)
//   - K3SFORM_RETRY_INITIAL_DELAY (1s)
type Timeouts struct {
	ServerCreate      time.Duration `env:"K3SFORM_TIMEOUT_SERVER_CREATE" envDefault:"10m"`
	Delete            time.Duration `env:"K3SFORM_TIMEOUT_DELETE" envDefault:"5m"`
	SSHConnect        time.Duration `env:"K3SFORM_TIMEOUT_SSH_CONNECT" envDefault:"5m"`
	SSHCommand        time.Duration `env:"K3SFORM_TIMEOUT_SSH_COMMAND" envDefault:"10m"`
	APIReady          time.Duration `env:"K3SFORM_TIMEOUT_API_READY" envDefault:"5m"`
	Release           time.Duration `env:"K3SFORM_TIMEOUT_RELEASE" envDefault:"10m"`
	RetryMaxAttempts  int           `env:"K3SFORM_RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryInitialDelay time.Duration `env:"K3SFORM_RETRY_INITIAL_DELAY" envDefault:"1s"`
}

// LoadTimeouts reads Timeouts from the environment.
func LoadTimeouts() (*Timeouts, error) {
	t, err := env.ParseAs[Timeouts]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse timeouts: %w", err)
	}
	return &t, nil
}

// DefaultTimeouts returns the timeouts used when the environment is empty.
func DefaultTimeouts() *Timeouts {
	return &Timeouts{
		ServerCreate:      10 * time.Minute,
		Delete:            5 * time.Minute,
		SSHConnect:        5 * time.Minute,
		SSHCommand:        10 * time.Minute,
		APIReady:          5 * time.Minute,
		Release:           10 * time.Minute,
		RetryMaxAttempts:  5,
		RetryInitialDelay: time.Second,
	}
}
