package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// QueryBuilder selects the verb for a table operation.
type QueryBuilder struct {
	client *Client
	table  string
}

// Select starts a read. Empty columns means all columns. The exact row count
// is requested alongside the data.
func (q *QueryBuilder) Select(columns string) *FilterBuilder {
	if columns == "" {
		columns = "*"
	}
	fb := newFilterBuilder(q.client, q.table, http.MethodGet, nil)
	fb.params.Set("select", columns)
	fb.prefer = append(fb.prefer, "count=exact")
	return fb
}

// Insert starts a write of one or more rows. The inserted representation is
// returned so callers can count affected rows.
func (q *QueryBuilder) Insert(records any) *FilterBuilder {
	fb := newFilterBuilder(q.client, q.table, http.MethodPost, records)
	fb.prefer = append(fb.prefer, "return=representation")
	return fb
}

// Update starts a partial update of all rows matching the filters applied to
// the returned builder.
func (q *QueryBuilder) Update(record any) *FilterBuilder {
	fb := newFilterBuilder(q.client, q.table, http.MethodPatch, record)
	fb.prefer = append(fb.prefer, "return=representation")
	return fb
}

// Delete starts a delete of all rows matching the filters applied to the
// returned builder.
func (q *QueryBuilder) Delete() *FilterBuilder {
	fb := newFilterBuilder(q.client, q.table, http.MethodDelete, nil)
	fb.prefer = append(fb.prefer, "return=representation")
	return fb
}

// FilterBuilder accumulates predicates, ordering and pagination for a single
// table operation. Predicates combine conjunctively; the same column may
// appear more than once.
type FilterBuilder struct {
	client *Client
	table  string
	method string
	body   any
	params url.Values
	prefer []string
}

func newFilterBuilder(client *Client, table, method string, body any) *FilterBuilder {
	return &FilterBuilder{
		client: client,
		table:  table,
		method: method,
		body:   body,
		params: url.Values{},
	}
}

func (f *FilterBuilder) filter(column, operator string, value any) *FilterBuilder {
	f.params.Add(column, operator+"."+formatValue(value))
	return f
}

func (f *FilterBuilder) Eq(column string, value any) *FilterBuilder {
	return f.filter(column, "eq", value)
}

func (f *FilterBuilder) Neq(column string, value any) *FilterBuilder {
	return f.filter(column, "neq", value)
}

func (f *FilterBuilder) Gt(column string, value any) *FilterBuilder {
	return f.filter(column, "gt", value)
}

func (f *FilterBuilder) Gte(column string, value any) *FilterBuilder {
	return f.filter(column, "gte", value)
}

func (f *FilterBuilder) Lt(column string, value any) *FilterBuilder {
	return f.filter(column, "lt", value)
}

func (f *FilterBuilder) Lte(column string, value any) *FilterBuilder {
	return f.filter(column, "lte", value)
}

func (f *FilterBuilder) Like(column string, value any) *FilterBuilder {
	return f.filter(column, "like", value)
}

func (f *FilterBuilder) Ilike(column string, value any) *FilterBuilder {
	return f.filter(column, "ilike", value)
}

func (f *FilterBuilder) Is(column string, value any) *FilterBuilder {
	return f.filter(column, "is", value)
}

// In applies a membership predicate. Slices become a PostgREST value list;
// a scalar becomes a single-element list.
func (f *FilterBuilder) In(column string, value any) *FilterBuilder {
	f.params.Add(column, "in."+formatInList(value))
	return f
}

// Order adds a sort key, e.g. Order("created_at", false) for descending.
func (f *FilterBuilder) Order(column string, ascending bool) *FilterBuilder {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	f.params.Add("order", column+"."+dir)
	return f
}

func (f *FilterBuilder) Limit(n int) *FilterBuilder {
	f.params.Set("limit", strconv.Itoa(n))
	return f
}

func (f *FilterBuilder) Offset(n int) *FilterBuilder {
	f.params.Set("offset", strconv.Itoa(n))
	return f
}

// Params exposes the accumulated query parameters. Used by tests to compare
// compiled predicate sets.
func (f *FilterBuilder) Params() url.Values {
	return f.params
}

// Result holds a successful PostgREST response. Data is the raw JSON body;
// Total is the exact row count from the Content-Range header, or -1 when the
// server did not report one.
type Result struct {
	Data  json.RawMessage
	Total int64
}

// Rows decodes the result body as a list of records. A JSON object body is
// wrapped into a single-element list.
func (r *Result) Rows() ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(r.Data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var row map[string]any
		if err := json.Unmarshal(r.Data, &row); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		return []map[string]any{row}, nil
	}
	var rows []map[string]any
	if err := json.Unmarshal(r.Data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return rows, nil
}

// Execute performs the accumulated operation against the backend.
func (f *FilterBuilder) Execute(ctx context.Context) (*Result, error) {
	var bodyReader io.Reader
	if f.body != nil {
		encoded, err := json.Marshal(f.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = strings.NewReader(string(encoded))
	}

	endpoint := f.client.restURL + "/" + f.table
	if len(f.params) > 0 {
		endpoint += "?" + f.params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, f.method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	f.client.Authorize(req.Header)
	if f.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(f.prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(f.prefer, ","))
	}

	f.client.log.Debug("supabase: executing request",
		"method", f.method,
		"table", f.table,
	)

	resp, err := f.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s on %s: %w", f.method, f.table, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp.StatusCode, raw)
	}

	return &Result{
		Data:  raw,
		Total: parseContentRange(resp.Header.Get("Content-Range")),
	}, nil
}

// formatValue renders a filter operand in PostgREST query syntax. JSON
// numbers arrive as float64; %v prints integral floats without a decimal
// point, matching what the database expects for integer columns.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatInList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return "(" + formatValue(v) + ")"
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			parts = append(parts, strconv.Quote(s))
			continue
		}
		parts = append(parts, formatValue(item))
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// parseContentRange extracts the total from a "0-9/42" style header.
func parseContentRange(header string) int64 {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return -1
	}
	total := header[idx+1:]
	if total == "*" || total == "" {
		return -1
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return -1
	}
	return n
}
