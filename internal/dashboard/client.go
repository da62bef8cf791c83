// Package dashboard provides a Go client for the game prototype dashboard API.
//
// Each method issues exactly one HTTP request and hands the decoded body back
// inside an APIResponse. There is no retry, caching or client-side validation:
// transport failures, non-2xx statuses and malformed JSON are returned as errors.
//
// # Usage
//
//	client := dashboard.NewClient(dashboard.Config{
//	    BaseURL: "http://127.0.0.1:17888",
//	})
//
//	snap, err := client.GetDashboard(ctx)
package dashboard

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
)

// DefaultBaseURL matches the default address of the bundled reference server.
const DefaultBaseURL = "http://127.0.0.1:17888"

// Config holds configuration for the dashboard API client.
type Config struct {
	// BaseURL is the API endpoint all paths are resolved against.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIToken is sent as a bearer token when non-empty. Optional.
	APIToken string

	// UserAgent overrides the User-Agent header. Optional.
	UserAgent string

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// Defaults to a client with 30s timeout.
	HTTPClient *http.Client
}

// Client is a dashboard API client. It is safe for concurrent use; the only
// state it holds is the immutable configuration.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a new dashboard API client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		config: cfg,
		http:   httpClient,
	}
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// --- Operations ---

// GetDashboard fetches the dashboard snapshot.
func (c *Client) GetDashboard(ctx context.Context) (*APIResponse[DashboardData], error) {
	return do[DashboardData](ctx, c, http.MethodGet, "/dashboard", nil)
}

// CreateGamePrototype posts a full prototype record and returns the server's copy.
func (c *Client) CreateGamePrototype(ctx context.Context, p GamePrototype) (*APIResponse[GamePrototype], error) {
	return do[GamePrototype](ctx, c, http.MethodPost, "/game-prototypes", p)
}

// UpdateGamePrototype patches the prototype with the given id.
func (c *Client) UpdateGamePrototype(ctx context.Context, id string, updates PrototypeUpdate) (*APIResponse[GamePrototype], error) {
	return do[GamePrototype](ctx, c, http.MethodPatch, "/game-prototypes/"+url.PathEscape(id), updates)
}

// EmitGameEvent posts an event against the prototype with the given id.
func (c *Client) EmitGameEvent(ctx context.Context, id string, event GameEvent) (*APIResponse[GameEvent], error) {
	return do[GameEvent](ctx, c, http.MethodPost, "/game-prototypes/"+url.PathEscape(id)+"/events", event)
}

// --- Core request method ---

// do sends a single request and decodes the response body into the envelope.
// A nil body sends no payload and no Content-Type.
func do[T any](ctx context.Context, c *Client, method, path string, body any) (*APIResponse[T], error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("dashboard: marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("dashboard: create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.setAuthHeaders(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashboard: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dashboard: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	var out APIResponse[T]
	if err := json.Unmarshal(respBody, &out.Data); err != nil {
		return nil, fmt.Errorf("dashboard: invalid response JSON: %w", err)
	}
	return &out, nil
}

func (c *Client) setAuthHeaders(h http.Header) {
	if c.config.APIToken != "" {
		h.Set("Authorization", "Bearer "+c.config.APIToken)
	}
	if c.config.UserAgent != "" {
		h.Set("User-Agent", c.config.UserAgent)
	}
}
