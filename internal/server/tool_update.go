package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GoodFinds/mcp-supabase/internal/filter"
)

type UpdateInput struct {
	Table   string         `json:"table" jsonschema:"Name of the table to update."`
	Filters map[string]any `json:"filters" jsonschema:"Column filters selecting the rows to update, combined with AND. Each value is either a literal (tested for equality) or an object {operator, value} with operator one of eq, neq, gt, gte, lt, lte, in."`
	Data    map[string]any `json:"data" jsonschema:"Column values to set on every matching row."`
}

type updateEnvelope struct {
	Success      bool             `json:"success"`
	Data         []map[string]any `json:"data"`
	UpdatedCount int              `json:"updatedCount"`
}

func RegisterUpdateTool(log *slog.Logger, server *mcp.Server, b *backend) error {
	req, err := jsonschema.For[UpdateInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create update input schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update",
		Description: "Update rows matching the filters. Filters support eq, neq, gt, gte, lt, lte, and in.",
		InputSchema: req,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in UpdateInput) (*mcp.CallToolResult, any, error) {
		res := guard(log, "update", func() *mcp.CallToolResult {
			return handleUpdate(ctx, log, b, in)
		})
		return res, nil, nil
	})
	return nil
}

func handleUpdate(ctx context.Context, log *slog.Logger, b *backend, in UpdateInput) *mcp.CallToolResult {
	log.Debug("update: running update tool", "table", in.Table)

	client, err := b.client()
	if err != nil {
		return errorf("%v", err)
	}

	fb := client.From(in.Table).Update(in.Data)
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
	return respond(updateEnvelope{Success: true, Data: rows, UpdatedCount: len(rows)})
}
