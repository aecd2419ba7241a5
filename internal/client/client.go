// Package client is a Go client for the cockpit HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cockpit/internal/job"
)

// maxBodySize bounds how much of a response the client reads.
const maxBodySize = 4 << 20

// Client calls a cockpit API server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the server at baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Start asks the server to admit a new job.
func (c *Client) Start(ctx context.Context) (*job.Info, error) {
	return c.info(ctx, "/start", "")
}

// Progress returns the status of job id, or of the current job when id is empty.
func (c *Client) Progress(ctx context.Context, id string) (*job.Info, error) {
	return c.info(ctx, "/progress", id)
}

// Kill force-terminates job id, or the current job when id is empty.
func (c *Client) Kill(ctx context.Context, id string) (*job.Info, error) {
	return c.info(ctx, "/kill", id)
}

// Output returns the result text of a finished job.
func (c *Client) Output(ctx context.Context, id string) (string, error) {
	body, err := c.get(ctx, "/output", id)
	return string(body), err
}

// Error returns the failure detail of a finished job.
func (c *Client) Error(ctx context.Context, id string) (string, error) {
	body, err := c.get(ctx, "/error", id)
	return string(body), err
}

// Ping checks that the server is alive.
func (c *Client) Ping(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/ping", "")
	if err != nil {
		return "", err
	}
	var msg string
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("decode ping response: %w", err)
	}
	return msg, nil
}

func (c *Client) info(ctx context.Context, path, id string) (*job.Info, error) {
	body, err := c.get(ctx, path, id)
	if err != nil {
		return nil, err
	}
	var info job.Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return &info, nil
}

func (c *Client) get(ctx context.Context, path, id string) ([]byte, error) {
	target := c.baseURL + path
	if id != "" {
		target += "?" + url.Values{"task_id": {id}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return nil, apiErr
	}
	return body, nil
}
