package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type InsertInput struct {
	Table string `json:"table" jsonschema:"Name of the table to insert into."`
	Data  any    `json:"data" jsonschema:"A single row object or an array of row objects to insert."`
}

type insertEnvelope struct {
	Success       bool             `json:"success"`
	Data          []map[string]any `json:"data"`
	InsertedCount int              `json:"insertedCount"`
}

func RegisterInsertTool(log *slog.Logger, server *mcp.Server, b *backend) error {
	req, err := jsonschema.For[InsertInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create insert input schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "insert",
		Description: "Insert one or more rows into a table. Accepts a single row object or an array of rows.",
		InputSchema: req,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in InsertInput) (*mcp.CallToolResult, any, error) {
		res := guard(log, "insert", func() *mcp.CallToolResult {
			return handleInsert(ctx, log, b, in)
		})
		return res, nil, nil
	})
	return nil
}

func handleInsert(ctx context.Context, log *slog.Logger, b *backend, in InsertInput) *mcp.CallToolResult {
	log.Debug("insert: running insert tool", "table", in.Table)

	if in.Data == nil {
		return errorf("data is required")
	}

	// PostgREST accepts a single object or an array; normalizing to an array
	// keeps the returned representation a list either way.
	records, ok := in.Data.([]any)
	if !ok {
		records = []any{in.Data}
	}

	client, err := b.client()
	if err != nil {
		return errorf("%v", err)
	}

	res, err := client.From(in.Table).Insert(records).Execute(ctx)
	if err != nil {
		return backendErrorResult(err)
	}
	rows, err := res.Rows()
	if err != nil {
		return errorf("%v", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return respond(insertEnvelope{Success: true, Data: rows, InsertedCount: len(rows)})
}
