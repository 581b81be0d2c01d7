package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GoodFinds/mcp-supabase/internal/filter"
)

type DeleteInput struct {
	Table   string         `json:"table" jsonschema:"Name of the table to delete from."`
	Filters map[string]any `json:"filters" jsonschema:"Column filters selecting the rows to delete, combined with AND. Each value is either a literal (tested for equality) or an object {operator, value} with operator one of eq, neq, gt, gte, lt, lte, in."`
}

type deleteEnvelope struct {
	Success      bool             `json:"success"`
	Data         []map[string]any `json:"data"`
	DeletedCount int              `json:"deletedCount"`
}

func RegisterDeleteTool(log *slog.Logger, server *mcp.Server, b *backend) error {
	req, err := jsonschema.For[DeleteInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create delete input schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete",
		Description: "Delete rows matching the filters. Filters support eq, neq, gt, gte, lt, lte, and in.",
		InputSchema: req,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in DeleteInput) (*mcp.CallToolResult, any, error) {
		res := guard(log, "delete", func() *mcp.CallToolResult {
			return handleDelete(ctx, log, b, in)
		})
		return res, nil, nil
	})
	return nil
}

func handleDelete(ctx context.Context, log *slog.Logger, b *backend, in DeleteInput) *mcp.CallToolResult {
	log.Debug("delete: running delete tool", "table", in.Table)

	client, err := b.client()
	if err != nil {
		return errorf("%v", err)
	}

	fb := client.From(in.Table).Delete()
	filter.Apply(fb, in.Filters, filter.ProfileMutation)

	res, err := fb.Execute(ctx)
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
	return respond(deleteEnvelope{Success: true, Data: rows, DeletedCount: len(rows)})
}
