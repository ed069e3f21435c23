package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	preferRepresentation = "return=representation"
	preferMerge          = "return=representation,resolution=merge-duplicates"
	acceptSingleObject   = "application/vnd.pgrst.object+json"
)

// DatabaseClient handles PostgREST operations.
type DatabaseClient struct {
	client *Client
}

// From starts a query against table. Without a verb the query is a
// SELECT of every column.
func (d *DatabaseClient) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client:  d.client,
		table:   table,
		method:  http.MethodGet,
		columns: "*",
		params:  url.Values{},
		headers: map[string]string{},
	}
}

// RPC calls a Postgres function and returns the raw JSON result. An empty
// accessToken calls the function as the anon role.
func (d *DatabaseClient) RPC(ctx context.Context, fn string, params any, accessToken string) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	endpoint := d.client.restURL + "/rpc/" + url.PathEscape(fn)
	respBody, status, err := d.client.request(ctx, http.MethodPost, endpoint, body, nil, accessToken)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, parseError(respBody, status)
	}
	return respBody, nil
}

// QueryBuilder accumulates one PostgREST request. Builder methods mutate
// and return the receiver; a builder is not safe for reuse after Execute.
type QueryBuilder struct {
	client  *Client
	table   string
	method  string
	columns string
	params  url.Values
	orders  []string
	headers map[string]string

	body    []byte
	bodyErr error

	accessToken string
	serviceKey  bool
}

// Select sets the returned columns.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.method = http.MethodGet
	q.columns = columns
	return q
}

// Insert inserts one record or a slice of records.
func (q *QueryBuilder) Insert(data any) *QueryBuilder {
	return q.write(http.MethodPost, data, preferRepresentation)
}

// Upsert inserts records, merging on the onConflict columns.
func (q *QueryBuilder) Upsert(data any, onConflict string) *QueryBuilder {
	q.params.Set("on_conflict", onConflict)
	return q.write(http.MethodPost, data, preferMerge)
}

// Update patches the filtered rows with exactly the fields in data.
func (q *QueryBuilder) Update(data any) *QueryBuilder {
	return q.write(http.MethodPatch, data, preferRepresentation)
}

// Delete removes the filtered rows.
func (q *QueryBuilder) Delete() *QueryBuilder {
	q.method = http.MethodDelete
	q.headers["Prefer"] = preferRepresentation
	return q
}

func (q *QueryBuilder) write(method string, data any, prefer string) *QueryBuilder {
	q.method = method
	q.headers["Prefer"] = prefer
	if q.body, q.bodyErr = json.Marshal(data); q.bodyErr != nil {
		q.bodyErr = fmt.Errorf("marshal body: %w", q.bodyErr)
	}
	return q
}

func (q *QueryBuilder) filter(column string, op FilterOperator, operand string) *QueryBuilder {
	q.params.Add(column, string(op)+"."+operand)
	return q
}

// Eq filters column = value.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	return q.filter(column, OpEq, fmt.Sprint(value))
}

// Gte filters column >= value.
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder {
	return q.filter(column, OpGte, fmt.Sprint(value))
}

// Lte filters column <= value.
func (q *QueryBuilder) Lte(column string, value any) *QueryBuilder {
	return q.filter(column, OpLte, fmt.Sprint(value))
}

// ILike matches pattern case-insensitively; * is the wildcard.
func (q *QueryBuilder) ILike(column, pattern string) *QueryBuilder {
	return q.filter(column, OpILike, pattern)
}

// In filters column to one of values. Values containing list syntax are
// double-quoted.
func (q *QueryBuilder) In(column string, values []string) *QueryBuilder {
	items := make([]string, 0, len(values))
	for _, v := range values {
		if strings.ContainsAny(v, ",()\" ") {
			v = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
		}
		items = append(items, v)
	}
	return q.filter(column, OpIn, "("+strings.Join(items, ",")+")")
}

// Or adds a disjunction in raw PostgREST syntax, e.g.
// "title.ilike.*x*,region.eq.y".
func (q *QueryBuilder) Or(conditions string) *QueryBuilder {
	q.params.Add("or", "("+conditions+")")
	return q
}

// Order sorts by column, ascending unless a direction is given.
func (q *QueryBuilder) Order(column string, dir ...OrderDirection) *QueryBuilder {
	d := OrderAsc
	if len(dir) > 0 {
		d = dir[0]
	}
	q.orders = append(q.orders, column+"."+string(d))
	return q
}

// Limit caps the number of rows.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Offset skips n rows.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.params.Set("offset", strconv.Itoa(n))
	return q
}

// Single asks for one object; zero rows come back as PGRST116.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.headers["Accept"] = acceptSingleObject
	return q
}

// WithToken runs the query as the user owning token, so RLS applies.
func (q *QueryBuilder) WithToken(token string) *QueryBuilder {
	q.accessToken = token
	return q
}

// WithServiceKey runs the query with the service key, bypassing RLS.
func (q *QueryBuilder) WithServiceKey() *QueryBuilder {
	q.serviceKey = true
	return q
}

// Execute sends the request and returns the raw body.
func (q *QueryBuilder) Execute(ctx context.Context) ([]byte, error) {
	if q.bodyErr != nil {
		return nil, q.bodyErr
	}

	endpoint := q.endpoint()
	var (
		respBody []byte
		status   int
		err      error
	)
	if q.serviceKey {
		respBody, status, err = q.client.requestWithServiceKey(ctx, q.method, endpoint, q.body, q.headers)
	} else {
		respBody, status, err = q.client.request(ctx, q.method, endpoint, q.body, q.headers, q.accessToken)
	}
	switch {
	case err != nil:
		return nil, err
	case status >= 400:
		return nil, parseError(respBody, status)
	}
	return respBody, nil
}

// ExecuteInto sends the request and decodes a non-empty body into dest.
func (q *QueryBuilder) ExecuteInto(ctx context.Context, dest any) error {
	data, err := q.Execute(ctx)
	if err != nil || len(data) == 0 {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (q *QueryBuilder) endpoint() string {
	params := url.Values{}
	for k, v := range q.params {
		params[k] = v
	}
	// Writes only return rows when asked to, so select is sent alongside
	// a Prefer header.
	if q.columns != "" && (q.method == http.MethodGet || q.headers["Prefer"] != "") {
		params.Set("select", q.columns)
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}

	endpoint := q.client.restURL + "/" + url.PathEscape(q.table)
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	return endpoint
}
