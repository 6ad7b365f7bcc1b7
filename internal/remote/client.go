package remote

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
)

// ErrTransport marks network and protocol failures, as opposed to HTTP
// error statuses which are reported as *APIError.
var ErrTransport = errors.New("remote I/O failure")

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Endpoint, e.StatusCode, body)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	body       []byte
}

// Reader returns the body with the JSON magic prefix skipped. Bodies that do
// not start with the prefix are returned whole.
func (r *Response) Reader() io.Reader {
	return bytes.NewReader(bytes.TrimPrefix(r.body, JSONMagic))
}

// Decode unmarshals the JSON payload into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.NewDecoder(r.Reader()).Decode(v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// NewClient creates a client for the instance at baseURL.
func NewClient(baseURL, user, password string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		User:     user,
		Password: password,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	cp := *c
	cp.HTTPClient = httpClient
	return &cp
}

// WithPageSize returns a new client that requests n changes per query page.
func (c *Client) WithPageSize(n int) *Client {
	cp := *c
	cp.PageSize = n
	return &cp
}

// buildURL constructs a full authenticated API URL.
func (c *Client) buildURL(endpoint string, params url.Values) string {
	u := c.BaseURL + AuthPrefix + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Get issues a GET against endpoint.
func (c *Client) Get(ctx context.Context, endpoint string) (*Response, error) {
	return c.doRequest(ctx, http.MethodGet, endpoint, nil, "")
}

// Post issues a POST; a non-nil body is sent as compact JSON.
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.doJSON(ctx, http.MethodPost, endpoint, body)
}

// Put issues a PUT; a non-nil body is sent as compact JSON.
func (c *Client) Put(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.doJSON(ctx, http.MethodPut, endpoint, body)
}

// PutRaw issues a PUT with a raw octet-stream body.
func (c *Client) PutRaw(ctx context.Context, endpoint string, content []byte) (*Response, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("raw content for %s must not be empty", endpoint)
	}
	return c.doRequest(ctx, http.MethodPut, endpoint, content, "application/octet-stream")
}

// Delete issues a DELETE against endpoint.
func (c *Client) Delete(ctx context.Context, endpoint string) (*Response, error) {
	return c.doRequest(ctx, http.MethodDelete, endpoint, nil, "")
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body interface{}) (*Response, error) {
	if body == nil {
		return c.doRequest(ctx, method, endpoint, nil, "")
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.doRequest(ctx, method, endpoint, jsonBody, "application/json; charset=UTF-8")
}

// doRequest performs one authenticated request. There are no retries; the
// caller sees the first failure.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body []byte, contentType string) (*Response, error) {
	var params url.Values
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		var err error
		params, err = url.ParseQuery(endpoint[i+1:])
		if err != nil {
			return nil, fmt.Errorf("invalid query in %s: %w", endpoint, err)
		}
		endpoint = endpoint[:i]
	}
	return c.do(ctx, method, endpoint, c.buildURL(endpoint, params), body, contentType)
}

func (c *Client) do(ctx context.Context, method, endpoint, urlStr string, body []byte, contentType string) (*Response, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.User, c.Password)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	const maxResponseSize = 50 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s: %w", ErrTransport, method, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Method: method, Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, body: respBody}, nil
}

// escapeID escapes a project or group identifier as one path segment, so a
// name like "team/sub" becomes "team%2Fsub".
func escapeID(id string) string {
	return url.PathEscape(id)
}
