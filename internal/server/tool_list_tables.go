package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GoodFinds/mcp-supabase/internal/discovery"
)

type ListTablesInput struct{}

type listTablesEnvelope struct {
	Tables  []string `json:"tables"`
	Count   int      `json:"count"`
	Message string   `json:"message,omitempty"`
}

func RegisterListTablesTool(log *slog.Logger, server *mcp.Server, b *backend) error {
	req, err := jsonschema.For[ListTablesInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list_tables input schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tables",
		Description: "List the base tables in the public schema that are visible to the configured credentials.",
		InputSchema: req,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ListTablesInput) (*mcp.CallToolResult, any, error) {
		res := guard(log, "list_tables", func() *mcp.CallToolResult {
			return handleListTables(ctx, log, b)
		})
		return res, nil, nil
	})
	return nil
}

func handleListTables(ctx context.Context, log *slog.Logger, b *backend) *mcp.CallToolResult {
	log.Debug("list_tables: running list_tables tool")

	client, err := b.client()
	if err != nil {
		return errorf("%v", err)
	}

	resolver, err := discovery.New(discovery.Config{
		Logger: log,
		Client: client,
	})
	if err != nil {
		return errorf("%v", err)
	}

	result := resolver.ListTables(ctx)
	if result.Diagnostic != "" {
		// Expected under least-privilege keys; reported without the error
		// marker so callers treat it as advice, not a failure.
		return respond(listTablesEnvelope{
			Tables:  []string{},
			Count:   0,
			Message: result.Diagnostic,
		})
	}
	return respond(listTablesEnvelope{Tables: result.Tables, Count: len(result.Tables)})
}
