package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func testBackend(t *testing.T, handler http.Handler) *backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &backend{
		log:        testLogger(t),
		projectURL: srv.URL,
		serviceKey: "test-key",
	}
}

// decodeEnvelope unwraps the serialized text document every tool returns.
func decodeEnvelope(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "tool responses must be text content")
	require.NoError(t, json.Unmarshal([]byte(text.Text), v))
}

func TestMCP_Server_ToolQuery(t *testing.T) {
	t.Parallel()

	t.Run("compiles filters, ordering and pagination", func(t *testing.T) {
		t.Parallel()

		var gotQuery map[string][]string
		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			w.Write([]byte(`[{"id":1,"age":21},{"id":2,"age":34}]`))
		}))

		res := handleQuery(t.Context(), testLogger(t), b, QueryInput{
			Table: "users",
			Filters: map[string]any{
				"age": map[string]any{"operator": "gte", "value": float64(18)},
			},
			OrderBy: "created_at.desc",
			Limit:   intPtr(10),
			Offset:  0,
		})
		require.False(t, res.IsError)

		require.Equal(t, []string{"gte.18"}, gotQuery["age"])
		require.Equal(t, []string{"created_at.desc"}, gotQuery["order"])
		require.Equal(t, []string{"10"}, gotQuery["limit"])
		require.Equal(t, []string{"0"}, gotQuery["offset"])

		var env queryEnvelope
		decodeEnvelope(t, res, &env)
		require.Len(t, env.Data, 2)
		require.Equal(t, 2, env.Count)
	})

	t.Run("defaults limit to 100 and offset to 0", func(t *testing.T) {
		t.Parallel()

		var gotQuery map[string][]string
		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			w.Write([]byte(`[]`))
		}))

		res := handleQuery(t.Context(), testLogger(t), b, QueryInput{Table: "users"})
		require.False(t, res.IsError)
		require.Equal(t, []string{"100"}, gotQuery["limit"])
		require.Equal(t, []string{"0"}, gotQuery["offset"])
	})

	t.Run("empty result is an empty data list", func(t *testing.T) {
		t.Parallel()

		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`))
		}))

		res := handleQuery(t.Context(), testLogger(t), b, QueryInput{Table: "users"})
		require.False(t, res.IsError)

		var env queryEnvelope
		decodeEnvelope(t, res, &env)
		require.NotNil(t, env.Data)
		require.Equal(t, 0, env.Count)
	})

	t.Run("backend errors become error envelopes", func(t *testing.T) {
		t.Parallel()

		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"permission denied for table users","details":"RLS","code":"42501"}`))
		}))

		res := handleQuery(t.Context(), testLogger(t), b, QueryInput{Table: "users"})
		require.True(t, res.IsError)

		var env map[string]any
		decodeEnvelope(t, res, &env)
		require.Equal(t, "permission denied for table users", env["error"])
		require.Equal(t, "RLS", env["details"])
		require.Equal(t, "42501", env["code"])
	})
}

func TestMCP_Server_ToolInsert(t *testing.T) {
	t.Parallel()

	t.Run("array payload reports the inserted count", func(t *testing.T) {
		t.Parallel()

		var gotBody []byte
		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`[{"id":1},{"id":2},{"id":3}]`))
		}))

		res := handleInsert(t.Context(), testLogger(t), b, InsertInput{
			Table: "logs",
			Data: []any{
				map[string]any{"msg": "a"},
				map[string]any{"msg": "b"},
				map[string]any{"msg": "c"},
			},
		})
		require.False(t, res.IsError)

		var sent []map[string]any
		require.NoError(t, json.Unmarshal(gotBody, &sent))
		require.Len(t, sent, 3)

		var env insertEnvelope
		decodeEnvelope(t, res, &env)
		require.True(t, env.Success)
		require.Equal(t, 3, env.InsertedCount)
	})

	t.Run("single object is wrapped into an array", func(t *testing.T) {
		t.Parallel()

		var gotBody []byte
		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`[{"id":1}]`))
		}))

		res := handleInsert(t.Context(), testLogger(t), b, InsertInput{
			Table: "logs",
			Data:  map[string]any{"msg": "solo"},
		})
		require.False(t, res.IsError)

		var sent []map[string]any
		require.NoError(t, json.Unmarshal(gotBody, &sent))
		require.Len(t, sent, 1)

		var env insertEnvelope
		decodeEnvelope(t, res, &env)
		require.Equal(t, 1, env.InsertedCount)
	})

	t.Run("missing data is rejected", func(t *testing.T) {
		t.Parallel()

		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("backend must not be called")
		}))

		res := handleInsert(t.Context(), testLogger(t), b, InsertInput{Table: "logs"})
		require.True(t, res.IsError)
	})
}

func TestMCP_Server_ToolUpdate(t *testing.T) {
	t.Parallel()

	t.Run("patches matching rows", func(t *testing.T) {
		t.Parallel()

		var gotMethod string
		var gotQuery map[string][]string
		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotQuery = r.URL.Query()
			w.Write([]byte(`[{"id":5,"status":"done"}]`))
		}))

		res := handleUpdate(t.Context(), testLogger(t), b, UpdateInput{
			Table:   "tasks",
			Filters: map[string]any{"id": float64(5)},
			Data:    map[string]any{"status": "done"},
		})
		require.False(t, res.IsError)
		require.Equal(t, http.MethodPatch, gotMethod)
		require.Equal(t, []string{"eq.5"}, gotQuery["id"])

		var env updateEnvelope
		decodeEnvelope(t, res, &env)
		require.True(t, env.Success)
		require.Equal(t, 1, env.UpdatedCount)
	})
}

func TestMCP_Server_ToolDelete(t *testing.T) {
	t.Parallel()

	t.Run("bare scalar and structured equality compile identically", func(t *testing.T) {
		t.Parallel()

		var queries []string
		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			queries = append(queries, r.URL.Query().Encode())
			w.Write([]byte(`[{"id":5}]`))
		}))

		log := testLogger(t)
		res := handleDelete(t.Context(), log, b, DeleteInput{
			Table:   "users",
			Filters: map[string]any{"id": float64(5)},
		})
		require.False(t, res.IsError)

		res = handleDelete(t.Context(), log, b, DeleteInput{
			Table:   "users",
			Filters: map[string]any{"id": map[string]any{"operator": "eq", "value": float64(5)}},
		})
		require.False(t, res.IsError)

		require.Len(t, queries, 2)
		require.Equal(t, queries[0], queries[1])

		var env deleteEnvelope
		decodeEnvelope(t, res, &env)
		require.True(t, env.Success)
		require.Equal(t, 1, env.DeletedCount)
	})
}

func TestMCP_Server_ToolRpc(t *testing.T) {
	t.Parallel()

	t.Run("returns the function result", func(t *testing.T) {
		t.Parallel()

		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/rest/v1/rpc/add_numbers", r.URL.Path)
			w.Write([]byte(`42`))
		}))

		res := handleRpc(t.Context(), testLogger(t), b, RpcInput{
			FunctionName: "add_numbers",
			Params:       map[string]any{"a": float64(40), "b": float64(2)},
		})
		require.False(t, res.IsError)

		var env rpcEnvelope
		decodeEnvelope(t, res, &env)
		require.True(t, env.Success)
		require.Equal(t, float64(42), env.Data)
	})

	t.Run("void functions return no data", func(t *testing.T) {
		t.Parallel()

		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		res := handleRpc(t.Context(), testLogger(t), b, RpcInput{FunctionName: "fire_and_forget"})
		require.False(t, res.IsError)

		var env rpcEnvelope
		decodeEnvelope(t, res, &env)
		require.True(t, env.Success)
		require.Nil(t, env.Data)
	})

	t.Run("bad arguments surface the backend message", func(t *testing.T) {
		t.Parallel()

		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"function add_numbers(text) does not exist","hint":"check the argument types"}`))
		}))

		res := handleRpc(t.Context(), testLogger(t), b, RpcInput{FunctionName: "add_numbers"})
		require.True(t, res.IsError)

		var env map[string]any
		decodeEnvelope(t, res, &env)
		require.Equal(t, "function add_numbers(text) does not exist", env["error"])
		require.Equal(t, "check the argument types", env["hint"])
	})
}

func TestMCP_Server_ToolListTables(t *testing.T) {
	t.Parallel()

	t.Run("reports discovered tables", func(t *testing.T) {
		t.Parallel()

		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/rest/v1/rpc/get_tables" {
				w.Write([]byte(`[{"table_name":"users"},{"table_name":"logs"}]`))
				return
			}
			http.NotFound(w, r)
		}))

		res := handleListTables(t.Context(), testLogger(t), b)
		require.False(t, res.IsError)

		var env listTablesEnvelope
		decodeEnvelope(t, res, &env)
		require.Equal(t, []string{"users", "logs"}, env.Tables)
		require.Equal(t, 2, env.Count)
		require.Empty(t, env.Message)
	})

	t.Run("exhausted discovery is advice, not an error", func(t *testing.T) {
		t.Parallel()

		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))

		res := handleListTables(t.Context(), testLogger(t), b)
		require.False(t, res.IsError)

		var env listTablesEnvelope
		decodeEnvelope(t, res, &env)
		require.Empty(t, env.Tables)
		require.Contains(t, env.Message, "create or replace function get_tables()")
	})
}

func TestMCP_Server_ToolTableSchema(t *testing.T) {
	t.Parallel()

	t.Run("describes columns", func(t *testing.T) {
		t.Parallel()

		var gotQuery map[string][]string
		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			w.Write([]byte(`[{"column_name":"id","data_type":"bigint","is_nullable":"NO","column_default":null}]`))
		}))

		res := handleTableSchema(t.Context(), testLogger(t), b, TableSchemaInput{Table: "users"})
		require.False(t, res.IsError)
		require.Equal(t, []string{"eq.public"}, gotQuery["table_schema"])
		require.Equal(t, []string{"eq.users"}, gotQuery["table_name"])

		var env tableSchemaEnvelope
		decodeEnvelope(t, res, &env)
		require.Equal(t, "users", env.Table)
		require.Len(t, env.Schema, 1)
		require.Equal(t, "bigint", env.Schema[0]["data_type"])
	})

	t.Run("metadata failure suggests the dashboard", func(t *testing.T) {
		t.Parallel()

		b := testBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"permission denied"}`))
		}))

		res := handleTableSchema(t.Context(), testLogger(t), b, TableSchemaInput{Table: "users"})
		require.True(t, res.IsError)

		var env map[string]any
		decodeEnvelope(t, res, &env)
		require.Contains(t, env["error"], "dashboard")
	})
}

func TestMCP_Server_Guard(t *testing.T) {
	t.Parallel()

	t.Run("panic becomes an error envelope", func(t *testing.T) {
		t.Parallel()

		res := guard(testLogger(t), "query", func() *mcp.CallToolResult {
			panic("boom")
		})
		require.True(t, res.IsError)

		var env map[string]any
		decodeEnvelope(t, res, &env)
		require.Contains(t, env["error"], "boom")
	})
}

func intPtr(n int) *int { return &n }
