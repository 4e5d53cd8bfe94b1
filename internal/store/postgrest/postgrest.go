// Package postgrest is a Repository backed by a hosted backend-as-a-service
// exposing the orders table over a PostgREST-style REST interface.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pavelpascari/ordermanager/internal/order"
	"github.com/pavelpascari/ordermanager/internal/store"
)

const defaultTable = "orders"

// APIError is a non-2xx answer from the REST interface.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("rest %d (%s): %s", e.Status, e.Code, msg)
	}

	return fmt.Sprintf("rest %d: %s", e.Status, msg)
}

type tokenKey struct{}

// WithAccessToken attaches the signed-in user's bearer token so row-level
// security evaluates against that user instead of the service key.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func accessToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Client talks to <baseURL>/rest/v1/<table>.
type Client struct {
	baseURL string
	apiKey  string
	table   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTable overrides the table name.
func WithTable(table string) Option {
	return func(c *Client) {
		c.table = table
	}
}

// New creates a Client for the project at baseURL using apiKey.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		table:   defaultTable,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

var _ store.Repository = (*Client)(nil)

// ListOrders implements store.Repository.
func (c *Client) ListOrders(ctx context.Context, ownerID string) ([]order.Row, error) {
	if ownerID == "" {
		return nil, store.Wrap(store.OpList, store.ErrMissingOwner)
	}

	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+ownerID)
	q.Set("order", "created_at.desc")

	req, err := c.newRequest(ctx, http.MethodGet, q, nil)
	if err != nil {
		return nil, store.Wrap(store.OpList, err)
	}

	var rows []order.Row
	if err := c.do(req, &rows); err != nil {
		return nil, store.Wrap(store.OpList, err)
	}

	return rows, nil
}

// InsertOrder implements store.Repository.
func (c *Client) InsertOrder(ctx context.Context, row order.Row) error {
	if row.UserID == "" {
		return store.Wrap(store.OpInsert, store.ErrMissingOwner)
	}

	body, err := json.Marshal(row)
	if err != nil {
		return store.Wrap(store.OpInsert, fmt.Errorf("encode row: %w", err))
	}

	req, err := c.newRequest(ctx, http.MethodPost, nil, bytes.NewReader(body))
	if err != nil {
		return store.Wrap(store.OpInsert, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	return store.Wrap(store.OpInsert, c.do(req, nil))
}

func (c *Client) newRequest(ctx context.Context, method string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + "/rest/v1/" + c.table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	token := accessToken(ctx)
	if token == "" {
		token = c.apiKey
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(raw, apiErr)
		if apiErr.Message == "" && len(raw) > 0 {
			apiErr.Message = strings.TrimSpace(string(raw))
		}

		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
