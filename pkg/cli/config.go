package cli

import (
	"context"
	"time"

	pcontext "github.com/censor-ci/censor/pkg/context"
)

// Config holds the global flags of the command line
type Config struct {
	ConfigFile string
	EnvFile    string
	Verbosity  string
	Version    string
}

// NewConfig creates a CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		EnvFile: ".env",
		Version: "dev",
	}
}

// RuntimeConfig carries per-invocation state into commands
type RuntimeConfig struct {
	Config    *Config
	Context   context.Context
	StartTime time.Time
	RequestID string
}

// NewRuntimeConfig creates a runtime configuration whose context carries
// a fresh request id
func NewRuntimeConfig(cfg *Config, ctx context.Context) *RuntimeConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	id := pcontext.GenerateRequestID()
	return &RuntimeConfig{
		Config:    cfg,
		Context:   pcontext.WithStartTime(pcontext.WithRequestID(ctx, id), time.Now()),
		StartTime: time.Now(),
		RequestID: id,
	}
}

// WithTimeout creates a new context with timeout
func (rc *RuntimeConfig) WithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(rc.Context, timeout)
}
