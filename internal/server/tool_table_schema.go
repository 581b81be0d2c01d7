package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type TableSchemaInput struct {
	Table string `json:"table" jsonschema:"Name of the table to describe."`
}

type tableSchemaEnvelope struct {
	Table  string           `json:"table"`
	Schema []map[string]any `json:"schema"`
}

func RegisterTableSchemaTool(log *slog.Logger, server *mcp.Server, b *backend) error {
	req, err := jsonschema.For[TableSchemaInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create get_table_schema input schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_table_schema",
		Description: "Describe the columns of a table in the public schema: name, data type, nullability, and default.",
		InputSchema: req,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in TableSchemaInput) (*mcp.CallToolResult, any, error) {
		res := guard(log, "get_table_schema", func() *mcp.CallToolResult {
			return handleTableSchema(ctx, log, b, in)
		})
		return res, nil, nil
	})
	return nil
}

func handleTableSchema(ctx context.Context, log *slog.Logger, b *backend, in TableSchemaInput) *mcp.CallToolResult {
	log.Debug("get_table_schema: running get_table_schema tool", "table", in.Table)

	client, err := b.client()
	if err != nil {
		return errorf("%v", err)
	}

	// Single catalog read, no fallback cascade: column metadata has no
	// OpenAPI equivalent worth parsing, so a failure surfaces directly.
	res, err := client.From("information_schema.columns").
		Select("column_name,data_type,is_nullable,column_default").
		Eq("table_schema", "public").
		Eq("table_name", in.Table).
		Order("ordinal_position", true).
		Execute(ctx)
	if err != nil {
		return errorf("could not read column metadata for table %q: %v. Inspect the table in the Supabase dashboard instead.", in.Table, err)
	}

	rows, err := res.Rows()
	if err != nil {
		return errorf("%v", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return respond(tableSchemaEnvelope{Table: in.Table, Schema: rows})
}
