package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GoodFinds/mcp-supabase/internal/metrics"
)

type Server struct {
	cfg        Config
	mcpServer  *mcp.Server
	httpServer *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "Supabase MCP Server",
		Version: cfg.Version,
	}, nil)

	b := &backend{
		log:        cfg.Logger,
		projectURL: cfg.ProjectURL,
		serviceKey: cfg.ServiceKey,
		http:       cfg.HTTPClient,
	}

	registrations := []struct {
		name string
		fn   func(*slog.Logger, *mcp.Server, *backend) error
	}{
		{"query", RegisterQueryTool},
		{"insert", RegisterInsertTool},
		{"update", RegisterUpdateTool},
		{"delete", RegisterDeleteTool},
		{"rpc", RegisterRpcTool},
		{"list_tables", RegisterListTablesTool},
		{"get_table_schema", RegisterTableSchemaTool},
	}
	for _, reg := range registrations {
		if err := reg.fn(cfg.Logger, mcpServer, b); err != nil {
			return nil, fmt.Errorf("failed to register %s tool: %w", reg.name, err)
		}
	}

	s := &Server{
		cfg:       cfg,
		mcpServer: mcpServer,
	}

	mux := http.NewServeMux()
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return mcpServer
	}, &mcp.StreamableHTTPOptions{
		Stateless: true, // Auto-initialize sessions, no manual initialize required
	})

	// Apply authentication middleware to MCP endpoint if tokens are configured
	if len(cfg.AllowedTokens) > 0 {
		mux.Handle("/", s.authMiddleware(handler))
	} else {
		mux.Handle("/", handler)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// No warm-up state to wait for; the server is ready once listening.
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.cfg.Logger.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.cfg.Logger.Info("server: mcp streamable http listening",
		"listenAddr", s.cfg.ListenAddr,
	)

	select {
	case <-ctx.Done():
		s.cfg.Logger.Info("server: shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	case err := <-serveErrCh:
		return err
	}
}

// authMiddleware wraps an HTTP handler with Bearer token authentication
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			metrics.AuthFailuresTotal.WithLabelValues("missing_header").Inc()
			w.Header().Set("WWW-Authenticate", `Bearer`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("unauthorized: missing authorization header\n"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			metrics.AuthFailuresTotal.WithLabelValues("invalid_format").Inc()
			w.Header().Set("WWW-Authenticate", `Bearer`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("unauthorized: invalid authorization header format\n"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			metrics.AuthFailuresTotal.WithLabelValues("empty_token").Inc()
			w.Header().Set("WWW-Authenticate", `Bearer`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("unauthorized: empty token\n"))
			return
		}

		allowed := false
		for _, allowedToken := range s.cfg.AllowedTokens {
			if token == allowedToken {
				allowed = true
				break
			}
		}
		if !allowed {
			metrics.AuthFailuresTotal.WithLabelValues("invalid_token").Inc()
			w.Header().Set("WWW-Authenticate", `Bearer`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("unauthorized: invalid token\n"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
