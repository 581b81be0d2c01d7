package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/GoodFinds/mcp-supabase/internal/metrics"
	"github.com/GoodFinds/mcp-supabase/internal/supabase"
)

// Tool responses are always serialized JSON text. Backend failures become
// error-marked envelopes rather than protocol errors, so a bad request never
// tears down the connection.

func respond(v any) *mcp.CallToolResult {
	return envelope(v, false)
}

func respondError(v any) *mcp.CallToolResult {
	return envelope(v, true)
}

func envelope(v any, isError bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("failed to encode response: %v", err)}},
		}
	}
	return &mcp.CallToolResult{
		IsError: isError,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func errorf(format string, args ...any) *mcp.CallToolResult {
	return respondError(map[string]any{
		"error": fmt.Sprintf(format, args...),
	})
}

// backendErrorResult maps a client error into the {error, details} envelope,
// preserving the backend's message, detail payload, and hint when present.
func backendErrorResult(err error) *mcp.CallToolResult {
	var be *supabase.Error
	if !errors.As(err, &be) {
		return errorf("%v", err)
	}
	body := map[string]any{"error": be.Message}
	if be.Details != "" {
		body["details"] = be.Details
	}
	if be.Hint != "" {
		body["hint"] = be.Hint
	}
	if be.Code != "" {
		body["code"] = be.Code
	}
	return respondError(body)
}

// guard runs a tool handler with a catch-all: a panic is rendered as a
// generic error envelope carrying the message and stack. Per-tool metrics
// are recorded on the way out.
func guard(log *slog.Logger, name string, fn func() *mcp.CallToolResult) (res *mcp.CallToolResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("tool: recovered from panic", "tool", name, "panic", r)
			res = errorf("internal error in %s: %v\n%s", name, r, debug.Stack())
		}
		status := "success"
		if res != nil && res.IsError {
			status = "error"
		}
		metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
		metrics.ToolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()
	return fn()
}
