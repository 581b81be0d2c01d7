package server

import (
	"log/slog"
	"net/http"

	"github.com/GoodFinds/mcp-supabase/internal/supabase"
)

// backend hands out a fresh client per tool invocation. The server keeps no
// connection state between calls; reuse lives in the shared http.Client's
// connection pool.
type backend struct {
	log        *slog.Logger
	projectURL string
	serviceKey string
	http       *http.Client
}

func (b *backend) client() (*supabase.Client, error) {
	return supabase.New(supabase.Config{
		Logger:     b.log,
		ProjectURL: b.projectURL,
		APIKey:     b.serviceKey,
		HTTPClient: b.http,
	})
}
