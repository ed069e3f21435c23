package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/waypoint-tourism/directory/internal/httputil"
)

const (
	maxResponseBytes  = 16 << 20 // 16 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// Client is the backend client.
type Client struct {
	config     Config
	httpClient *http.Client

	baseURL     string
	restURL     string
	authURL     string
	storageURL  string
	realtimeURL string

	auth     *AuthClient
	database *DatabaseClient
	storage  *StorageClient
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("anon key is required")
	}

	baseURL := strings.TrimRight(cfg.URL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid project URL %q", cfg.URL)
	}
	if parsed.User != nil {
		return nil, fmt.Errorf("project URL must not include user info")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if cfg.Resilience != nil {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = NewResilientTransport(base, *cfg.Resilience)
		httpClient = &wrapped
	}

	wsBase := baseURL
	switch parsed.Scheme {
	case "https":
		wsBase = "wss" + strings.TrimPrefix(baseURL, "https")
	case "http":
		wsBase = "ws" + strings.TrimPrefix(baseURL, "http")
	}

	c := &Client{
		config:      cfg,
		httpClient:  httpClient,
		baseURL:     baseURL,
		restURL:     baseURL + "/rest/v1",
		authURL:     baseURL + "/auth/v1",
		storageURL:  baseURL + "/storage/v1",
		realtimeURL: wsBase + "/realtime/v1/websocket",
	}
	c.auth = &AuthClient{client: c}
	c.database = &DatabaseClient{client: c}
	c.storage = &StorageClient{client: c}
	return c, nil
}

// Auth returns the auth client.
func (c *Client) Auth() *AuthClient {
	return c.auth
}

// Database returns the PostgREST client.
func (c *Client) Database() *DatabaseClient {
	return c.database
}

// From is shorthand for Database().From(table).
func (c *Client) From(table string) *QueryBuilder {
	return c.database.From(table)
}

// Storage returns the storage client.
func (c *Client) Storage() *StorageClient {
	return c.storage
}

// Realtime returns a new realtime client bound to this project.
func (c *Client) Realtime() *RealtimeClient {
	return NewRealtimeClient(c.realtimeURL, c.config.AnonKey)
}

// HasServiceKey reports whether admin operations are available.
func (c *Client) HasServiceKey() bool {
	return c.config.ServiceKey != ""
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// Internal HTTP Methods
// =============================================================================

// request performs an HTTP request. An empty token authorizes with the anon key.
func (c *Client) request(ctx context.Context, method, urlStr string, body []byte, headers map[string]string, token string) ([]byte, int, error) {
	if token == "" {
		token = c.config.AnonKey
	}
	return c.do(ctx, method, urlStr, body, headers, token)
}

// requestWithServiceKey performs an HTTP request with the service role key.
func (c *Client) requestWithServiceKey(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) ([]byte, int, error) {
	if c.config.ServiceKey == "" {
		return nil, 0, fmt.Errorf("service key not configured")
	}
	return c.do(ctx, method, urlStr, body, headers, c.config.ServiceKey)
}

func (c *Client) do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string, token string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("apikey", c.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.DefaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _, err := httputil.ReadAllWithLimit(resp.Body, maxErrorBodyBytes)
		if err != nil {
			return nil, resp.StatusCode, fmt.Errorf("read error response: %w", err)
		}
		return respBody, resp.StatusCode, nil
	}

	respBody, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}
