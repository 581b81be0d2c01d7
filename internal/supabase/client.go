// Package supabase implements a minimal PostgREST client for Supabase
// projects: fluent query/mutation builders, RPC invocation, and structured
// error decoding. It covers the subset of the REST surface the MCP tools
// need, nothing more.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxIdleConnsPerHost = 9
	defaultDialTimeout         = 30 * time.Second
	defaultKeepAlive           = 180 * time.Second

	restPathPrefix = "/rest/v1"
)

type Config struct {
	Logger *slog.Logger

	// ProjectURL is the Supabase project base URL, e.g. https://xyz.supabase.co.
	ProjectURL string

	// APIKey is sent as both the apikey header and a bearer token.
	APIKey string

	// HTTPClient overrides the default transport when set.
	HTTPClient *http.Client
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.ProjectURL == "" {
		return fmt.Errorf("project URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	return nil
}

type Client struct {
	log     *slog.Logger
	restURL string
	apiKey  string
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate supabase client config: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTP()
	}

	return &Client{
		log:     cfg.Logger,
		restURL: strings.TrimRight(cfg.ProjectURL, "/") + restPathPrefix,
		apiKey:  cfg.APIKey,
		http:    httpClient,
	}, nil
}

// RestURL returns the PostgREST endpoint root without a trailing slash.
func (c *Client) RestURL() string {
	return c.restURL
}

func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Authorize sets the project credentials on an outgoing request. The key is
// sent both ways because PostgREST deployments differ in which header they
// honor for service-role access.
func (c *Client) Authorize(h http.Header) {
	h.Set("apikey", c.apiKey)
	h.Set("Authorization", "Bearer "+c.apiKey)
}

// From starts a builder against a table or view.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{client: c, table: table}
}

// Rpc invokes a stored function through the PostgREST rpc endpoint. A nil
// params value sends an empty argument object.
func (c *Client) Rpc(ctx context.Context, function string, params any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rpc params: %w", err)
	}

	url := c.restURL + "/rpc/" + function
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc request: %w", err)
	}
	c.Authorize(req.Header)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("supabase: calling rpc", "function", function)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rpc %s: %w", function, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rpc response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp.StatusCode, raw)
	}
	return raw, nil
}

// newHTTP returns a Client safe for concurrent use by multiple goroutines.
func newHTTP() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			IdleConnTimeout:     defaultDialTimeout,
			MaxConnsPerHost:     defaultMaxIdleConnsPerHost,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			Proxy:               http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   defaultDialTimeout,
				KeepAlive: defaultKeepAlive,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
