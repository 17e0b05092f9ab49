package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/roach88/cogd/internal/module"
)

// APIError is a response the client could not decode as a result.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("admin api: %s", http.StatusText(e.Status))
	}
	return fmt.Sprintf("admin api: %s: %s", http.StatusText(e.Status), e.Message)
}

// Client calls a running server's API.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the server at base, e.g.
// http://127.0.0.1:8089. A nil hc uses a client with a 30s timeout.
func NewClient(base string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid admin url %q", base)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc}, nil
}

// Health returns the server's health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var h HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", &h, http.StatusOK, http.StatusServiceUnavailable)
	return h, err
}

// List returns every known module.
func (c *Client) List(ctx context.Context) ([]module.Snapshot, error) {
	var resp ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/modules", &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Modules, nil
}

// Get returns one module.
func (c *Client) Get(ctx context.Context, id string) (module.Snapshot, error) {
	var snap module.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/modules/"+url.PathEscape(id), &snap, http.StatusOK)
	return snap, err
}

// LoadAll asks the server to load every enabled module.
func (c *Client) LoadAll(ctx context.Context) (*module.Report, error) {
	var report module.Report
	if err := c.do(ctx, http.MethodPost, "/api/v1/modules/load-all", &report, http.StatusOK, http.StatusMultiStatus); err != nil {
		return nil, err
	}
	return &report, nil
}

// Load, Unload and Reload return the server's result. A failed operation
// is reported in the result, not as an error.
func (c *Client) Load(ctx context.Context, id string) (module.Result, error) {
	return c.lifecycle(ctx, "load", id)
}

func (c *Client) Unload(ctx context.Context, id string) (module.Result, error) {
	return c.lifecycle(ctx, "unload", id)
}

func (c *Client) Reload(ctx context.Context, id string) (module.Result, error) {
	return c.lifecycle(ctx, "reload", id)
}

func (c *Client) lifecycle(ctx context.Context, op, id string) (module.Result, error) {
	var res module.Result
	err := c.do(ctx, http.MethodPost, "/api/v1/modules/"+url.PathEscape(id)+"/"+op, &res,
		http.StatusOK, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity)
	return res, err
}

// do sends the request and decodes the body into out when the status is
// one of accept.
func (c *Client) do(ctx context.Context, method, path string, out any, accept ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("admin api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read admin response: %w", err)
	}
	if !slices.Contains(accept, resp.StatusCode) {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &msg)
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode admin response: %w", err)
	}
	return nil
}
