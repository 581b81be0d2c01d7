package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

type Config struct {
	Logger *slog.Logger

	// ProjectURL and ServiceKey are the Supabase project credentials every
	// tool invocation uses.
	ProjectURL string
	ServiceKey string

	// HTTPClient overrides the outbound transport, mainly for tests.
	HTTPClient *http.Client

	Version           string
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	AllowedTokens     []string // Bearer tokens allowed for MCP endpoint authentication
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.ProjectURL == "" {
		return fmt.Errorf("project URL is required")
	}
	if c.ServiceKey == "" {
		return fmt.Errorf("service key is required")
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
