// Package dataapi provides a query-builder client for the hosted relational
// data API. Tables are exposed as REST resources with filter, ordering, and
// representation semantics, plus a stored-procedure invocation endpoint.
package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const noRowsCode = "PGRST116"

var (
	// ErrNoRows is returned when a single-row query matches nothing.
	ErrNoRows = errors.New("dataapi: no rows")
	// ErrUnavailable wraps transport failures and remote 5xx responses.
	ErrUnavailable = errors.New("dataapi: service unavailable")
)

// Order directions for list queries.
const (
	Asc  = "asc"
	Desc = "desc"
)

// RemoteError carries the remote service's structured error payload.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	Details string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("dataapi: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("dataapi: %s (status %d)", e.Message, e.Status)
}

// IsNoRows reports whether the remote error is the expected-absence code.
func (e *RemoteError) IsNoRows() bool {
	return e != nil && e.Code == noRowsCode
}

// Client issues requests against the data API.
type Client struct {
	baseURL    string
	apiKey     string
	schema     string
	httpClient *http.Client
}

// ClientOption customises Client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithSchema selects a non-default schema for all requests.
func WithSchema(schema string) ClientOption {
	return func(c *Client) {
		schema = strings.TrimSpace(schema)
		if schema != "" {
			c.schema = schema
		}
	}
}

// NewClient constructs a Client for the given endpoint.
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("dataapi: base url is required")
	}

	client := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// From starts a query against the named table.
func (c *Client) From(table string) *Query {
	return &Query{
		client: c,
		table:  strings.TrimSpace(table),
		params: url.Values{},
	}
}

// RPC invokes the named stored procedure with the given parameters, decoding
// the result into out when non-nil.
func (c *Client) RPC(ctx context.Context, fn string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("dataapi: encode rpc params: %w", err)
	}
	return c.execute(ctx, http.MethodPost, "/rpc/"+url.PathEscape(fn), nil, bytes.NewReader(body), nil, out)
}

// Query accumulates filters before execution.
type Query struct {
	client  *Client
	table   string
	params  url.Values
	selects string
}

// Select names the columns to return.
func (q *Query) Select(columns string) *Query {
	q.selects = columns
	return q
}

// Eq adds an equality filter on the column.
func (q *Query) Eq(column, value string) *Query {
	q.params.Add(column, "eq."+value)
	return q
}

// Ilike adds a case-insensitive pattern filter on the column. The pattern
// uses SQL wildcards, e.g. "%term%".
func (q *Query) Ilike(column, pattern string) *Query {
	q.params.Add(column, "ilike."+pattern)
	return q
}

// Order sets the result ordering. Direction is Asc or Desc.
func (q *Query) Order(column, direction string) *Query {
	if direction != Desc {
		direction = Asc
	}
	q.params.Add("order", column+"."+direction)
	return q
}

// Limit caps the number of rows returned.
func (q *Query) Limit(n int) *Query {
	if n > 0 {
		q.params.Set("limit", fmt.Sprintf("%d", n))
	}
	return q
}

// Get executes the query and decodes the matching rows into out.
func (q *Query) Get(ctx context.Context, out any) error {
	return q.client.execute(ctx, http.MethodGet, "/"+url.PathEscape(q.table), q.queryParams(), nil, nil, out)
}

// Single executes the query expecting exactly one row. A zero-row result is
// reported as ErrNoRows.
func (q *Query) Single(ctx context.Context, out any) error {
	headers := http.Header{}
	headers.Set("Accept", "application/vnd.pgrst.object+json")
	err := q.client.execute(ctx, http.MethodGet, "/"+url.PathEscape(q.table), q.queryParams(), nil, headers, out)
	var remote *RemoteError
	if errors.As(err, &remote) && remote.IsNoRows() {
		return fmt.Errorf("%w: %s", ErrNoRows, q.table)
	}
	return err
}

// Insert writes one row and decodes the stored representation into out when
// non-nil.
func (q *Query) Insert(ctx context.Context, row, out any) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("dataapi: encode row: %w", err)
	}

	headers := http.Header{}
	if out != nil {
		headers.Set("Prefer", "return=representation")
		headers.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return q.client.execute(ctx, http.MethodPost, "/"+url.PathEscape(q.table), q.queryParams(), bytes.NewReader(body), headers, out)
}

func (q *Query) queryParams() url.Values {
	params := url.Values{}
	for key, values := range q.params {
		for _, value := range values {
			params.Add(key, value)
		}
	}
	if q.selects != "" {
		params.Set("select", q.selects)
	}
	return params
}

func (c *Client) execute(ctx context.Context, method, path string, params url.Values, body io.Reader, headers http.Header, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("dataapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.schema != "" {
		if method == http.MethodGet {
			req.Header.Set("Accept-Profile", c.schema)
		} else {
			req.Header.Set("Content-Profile", c.schema)
		}
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Set(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeRemoteError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dataapi: decode response: %w", err)
	}
	return nil
}

func decodeRemoteError(resp *http.Response) error {
	remote := &RemoteError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return remote
	}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return remote
	}

	if payload.Code != "" {
		remote.Code = payload.Code
	}
	if payload.Message != "" {
		remote.Message = payload.Message
	}
	remote.Details = payload.Details
	return remote
}
