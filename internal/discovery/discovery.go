// Package discovery enumerates the base tables visible to the configured
// credentials. Three independent strategies are tried strictly in order and
// the first that yields a non-empty list wins: a privileged helper function,
// the PostgREST OpenAPI document, and the pg_tables catalog view. When all
// three come up empty the resolver reports a diagnostic instead of an error,
// since an unreachable catalog is an expected condition under least-privilege
// keys.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/GoodFinds/mcp-supabase/internal/supabase"
)

// TablesFunction is the well-known name of the zero-argument helper function
// tried first.
const TablesFunction = "get_tables"

// RemediationSQL creates TablesFunction with rights to read the catalog. It
// is included verbatim in the diagnostic when no strategy finds tables.
const RemediationSQL = `create or replace function get_tables()
returns table (table_name text)
language sql
security definer
as $$
  select table_name::text
  from information_schema.tables
  where table_schema = 'public'
    and table_type = 'BASE TABLE'
  order by table_name;
$$;`

type Config struct {
	Logger *slog.Logger
	Client *supabase.Client
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Client == nil {
		return fmt.Errorf("supabase client is required")
	}
	return nil
}

type Resolver struct {
	log    *slog.Logger
	client *supabase.Client
}

func New(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate discovery config: %w", err)
	}
	return &Resolver{log: cfg.Logger, client: cfg.Client}, nil
}

// Result is the terminal state of a discovery run. Diagnostic is set only
// when every strategy came up empty; that case carries no tables but is not
// an error.
type Result struct {
	Tables     []string
	Method     string
	Diagnostic string
}

// outcome is one strategy's verdict: found (non-empty tables), empty, or
// failed (err set).
type outcome struct {
	tables []string
	err    error
}

func (o outcome) found() bool { return len(o.tables) > 0 }

// ListTables runs the cascade. It never fails upward; every path resolves to
// a Result. Strategies run sequentially so a later one is only consulted
// once the earlier ones are confirmed empty or failed.
func (r *Resolver) ListTables(ctx context.Context) Result {
	strategies := []struct {
		name string
		run  func(context.Context) outcome
	}{
		{"rpc", r.viaFunction},
		{"openapi", r.viaOpenAPI},
		{"pg_tables", r.viaCatalog},
	}

	var lastErr error
	for _, s := range strategies {
		out := s.run(ctx)
		if out.found() {
			r.log.Debug("discovery: strategy succeeded", "strategy", s.name, "tables", len(out.tables))
			return Result{Tables: out.tables, Method: s.name}
		}
		if out.err != nil {
			r.log.Debug("discovery: strategy failed", "strategy", s.name, "error", out.err)
			lastErr = out.err
		}
	}

	diag := "No tables found."
	if lastErr != nil {
		diag = fmt.Sprintf("No tables found. Last error: %v.", lastErr)
	}
	diag += "\n\nIf the service role cannot read the catalog, create this helper function in the SQL editor and retry:\n\n" + RemediationSQL
	return Result{Diagnostic: diag}
}

// viaFunction calls the privileged helper. Any failure, including the
// function not existing, is swallowed into the outcome so the cascade moves
// on.
func (r *Resolver) viaFunction(ctx context.Context) outcome {
	raw, err := r.client.Rpc(ctx, TablesFunction, nil)
	if err != nil {
		return outcome{err: err}
	}

	var rows []any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return outcome{err: fmt.Errorf("failed to decode %s response: %w", TablesFunction, err)}
	}

	var tables []string
	for _, row := range rows {
		switch v := row.(type) {
		case string:
			tables = append(tables, v)
		case map[string]any:
			if name, ok := v["table_name"].(string); ok {
				tables = append(tables, name)
			} else if name, ok := v["tablename"].(string); ok {
				tables = append(tables, name)
			}
		}
	}
	return outcome{tables: tables}
}

// viaOpenAPI fetches the PostgREST root, which serves an OpenAPI document
// whose paths correspond to exposed tables. Works under least-privilege keys
// with no server-side setup.
func (r *Resolver) viaOpenAPI(ctx context.Context) outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.client.RestURL()+"/", nil)
	if err != nil {
		return outcome{err: fmt.Errorf("failed to create schema request: %w", err)}
	}
	r.client.Authorize(req.Header)

	resp, err := r.client.HTTPClient().Do(req)
	if err != nil {
		return outcome{err: fmt.Errorf("failed to fetch schema document: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return outcome{err: fmt.Errorf("schema endpoint returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcome{err: fmt.Errorf("failed to read schema document: %w", err)}
	}

	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return outcome{err: fmt.Errorf("failed to decode schema document: %w", err)}
	}

	var tables []string
	for path := range doc.Paths {
		if !strings.HasPrefix(path, "/") || path == "/" {
			continue
		}
		if strings.Contains(path, "{") || strings.HasPrefix(path, "/rpc/") {
			continue
		}
		tables = append(tables, strings.TrimPrefix(path, "/"))
	}
	sort.Strings(tables)
	return outcome{tables: tables}
}

// viaCatalog queries pg_tables directly. Commonly blocked by row security on
// hosted projects, hence last.
func (r *Resolver) viaCatalog(ctx context.Context) outcome {
	res, err := r.client.From("pg_tables").
		Select("tablename").
		Eq("schemaname", "public").
		Execute(ctx)
	if err != nil {
		return outcome{err: err}
	}

	rows, err := res.Rows()
	if err != nil {
		return outcome{err: err}
	}

	var tables []string
	for _, row := range rows {
		if name, ok := row["tablename"].(string); ok {
			tables = append(tables, name)
		}
	}
	return outcome{tables: tables}
}
