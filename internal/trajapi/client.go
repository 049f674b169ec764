package trajapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/trajectory.editor/internal/httputil"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// StatusError is returned for a non-2xx backend response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, body)
}

// Client talks to the trajectory backend.
type Client struct {
	HTTPClient httputil.HTTPClient
	BaseURL    string
}

// NewClient creates a backend client. A nil httpClient gets a standard
// client with httputil.DefaultTimeout.
func NewClient(httpClient httputil.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	return &Client{
		HTTPClient: httpClient,
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// do sends a request and decodes a 2xx JSON body into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}

// Generate plans a trajectory without executing it.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.do(ctx, http.MethodPost, PathGenerate, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Run starts executing a trajectory on the controller.
func (c *Client) Run(ctx context.Context, req RunRequest) error {
	return c.do(ctx, http.MethodPost, PathRun, nil, req, nil)
}

// Status reports whether the backend is still executing.
func (c *Client) Status(ctx context.Context) (RunStatus, error) {
	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, PathRunStatus, nil, nil, &raw); err != nil {
		return RunStatus{}, err
	}
	var st RunStatus
	var running bool
	if v, ok := raw["running"]; ok && string(v) != "null" && json.Unmarshal(v, &running) == nil {
		st.Running = &running
	}
	return st, nil
}

// Stop asks the backend to halt execution.
func (c *Client) Stop(ctx context.Context, req RunRequest) error {
	return c.do(ctx, http.MethodPost, PathRunStop, nil, req, nil)
}

// ReadKey returns the JSON value stored under key.
func (c *Client) ReadKey(ctx context.Context, key string) (json.RawMessage, error) {
	k, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, PathKey, url.Values{"key": {string(k)}}, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// WriteKey stores val under key.
func (c *Client) WriteKey(ctx context.Context, key string, val interface{}) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encoding value for %s: %w", key, err)
	}
	return c.do(ctx, http.MethodPost, PathKey, nil, KeyWrite{Key: key, Val: data}, nil)
}
