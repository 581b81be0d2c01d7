// Package config resolves the Supabase project credentials from the
// environment. Both the URL and the key accept two env var aliases.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// ProjectURL is the Supabase project base URL, without a trailing slash.
	ProjectURL string

	// ServiceKey is the privileged (service-role) API key.
	ServiceKey string
}

// Load reads credentials from the environment, consulting a .env file first
// when one exists in the working directory. Missing values are fatal for the
// request-handling cycle, so Load errors out rather than defaulting.
func Load() (Config, error) {
	// Best effort; a missing .env file is the normal deployed case.
	_ = godotenv.Load()

	url := firstEnv("SUPABASE_URL", "SUPABASE_PROJECT_URL")
	if url == "" {
		return Config{}, fmt.Errorf("missing Supabase URL: set SUPABASE_URL or SUPABASE_PROJECT_URL")
	}

	key := firstEnv("SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_KEY")
	if key == "" {
		return Config{}, fmt.Errorf("missing Supabase key: set SUPABASE_SERVICE_ROLE_KEY or SUPABASE_KEY")
	}

	return Config{
		ProjectURL: strings.TrimRight(url, "/"),
		ServiceKey: key,
	}, nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
