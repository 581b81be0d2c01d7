package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GoodFinds/mcp-supabase/internal/filter"
)

const defaultQueryLimit = 100

type QueryInput struct {
	Table   string         `json:"table" jsonschema:"Name of the table to query."`
	Select  string         `json:"select,omitempty" jsonschema:"Comma-separated columns to return. Defaults to all columns."`
	Filters map[string]any `json:"filters,omitempty" jsonschema:"Column filters, combined with AND. Each value is either a literal (tested for equality) or an object {operator, value} with operator one of eq, neq, gt, gte, lt, lte, like, ilike, in, is. Example: {\"age\": {\"operator\": \"gte\", \"value\": 18}}."`
	OrderBy string         `json:"orderBy,omitempty" jsonschema:"Sort specification as column.asc or column.desc, e.g. created_at.desc."`
	Limit   *int           `json:"limit,omitempty" jsonschema:"Maximum number of rows to return. Defaults to 100."`
	Offset  int            `json:"offset,omitempty" jsonschema:"Number of rows to skip. Defaults to 0."`
}

type queryEnvelope struct {
	Data  []map[string]any `json:"data"`
	Count int              `json:"count"`
}

func RegisterQueryTool(log *slog.Logger, server *mcp.Server, b *backend) error {
	req, err := jsonschema.For[QueryInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create query input schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query",
		Description: "Query rows from a table with optional column selection, filters, ordering, and pagination. Filters support eq, neq, gt, gte, lt, lte, like, ilike, in, and is.",
		InputSchema: req,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, any, error) {
		res := guard(log, "query", func() *mcp.CallToolResult {
			return handleQuery(ctx, log, b, in)
		})
		return res, nil, nil
	})
	return nil
}

func handleQuery(ctx context.Context, log *slog.Logger, b *backend, in QueryInput) *mcp.CallToolResult {
	log.Debug("query: running query tool", "table", in.Table)

	client, err := b.client()
	if err != nil {
		return errorf("%v", err)
	}

	fb := client.From(in.Table).Select(in.Select)
	filter.Apply(fb, in.Filters, filter.ProfileQuery)

	if in.OrderBy != "" {
		column, dir := splitOrderBy(in.OrderBy)
		fb.Order(column, dir != "desc")
	}

	limit := defaultQueryLimit
	if in.Limit != nil {
		limit = *in.Limit
	}
	fb.Limit(limit).Offset(in.Offset)

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
	return respond(queryEnvelope{Data: rows, Count: len(rows)})
}

// splitOrderBy parses "column.asc" / "column.desc"; a bare column sorts
// ascending.
func splitOrderBy(spec string) (column, direction string) {
	idx := strings.LastIndex(spec, ".")
	if idx < 0 {
		return spec, "asc"
	}
	return spec[:idx], spec[idx+1:]
}
