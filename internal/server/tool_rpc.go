package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type RpcInput struct {
	FunctionName string         `json:"functionName" jsonschema:"Name of the stored function to call."`
	Params       map[string]any `json:"params,omitempty" jsonschema:"Named arguments passed to the function. Defaults to no arguments."`
}

type rpcEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func RegisterRpcTool(log *slog.Logger, server *mcp.Server, b *backend) error {
	req, err := jsonschema.For[RpcInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create rpc input schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rpc",
		Description: "Call a Postgres stored function (remote procedure) with named arguments and return its result.",
		InputSchema: req,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in RpcInput) (*mcp.CallToolResult, any, error) {
		res := guard(log, "rpc", func() *mcp.CallToolResult {
			return handleRpc(ctx, log, b, in)
		})
		return res, nil, nil
	})
	return nil
}

func handleRpc(ctx context.Context, log *slog.Logger, b *backend, in RpcInput) *mcp.CallToolResult {
	log.Debug("rpc: running rpc tool", "function", in.FunctionName)

	client, err := b.client()
	if err != nil {
		return errorf("%v", err)
	}

	var params any
	if in.Params != nil {
		params = in.Params
	}

	raw, err := client.Rpc(ctx, in.FunctionName, params)
	if err != nil {
		return backendErrorResult(err)
	}

	// Void functions return an empty body; anything else is JSON.
	var data any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			data = string(raw)
		}
	}
	return respond(rpcEnvelope{Success: true, Data: data})
}
