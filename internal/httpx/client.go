package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin JSON HTTP client shared by the ABC and MindBody clients.
// GETs are retried a bounded number of times on transient failures only;
// POSTs are never retried here (the callers are not idempotent).
type Client struct {
	base           string
	defaultHeaders map[string]string
	http           *http.Client
	getRetries     int
	retryBase      time.Duration
	sleep          func(time.Duration) // injectable for tests
}

// Response carries the decoded body and the raw status for callers that
// classify errors by status code.
type Response struct {
	Status int
	Body   []byte
}

// Success reports whether the status is in the 2xx range.
func (r *Response) Success() bool {
	return r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the response body into out. An empty body is not an error.
func (r *Response) Decode(out interface{}) error {
	if len(r.Body) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// New returns a Client rooted at base. defaultHeaders are sent on every
// request (auth headers for ABC, api-key headers for MindBody).
func New(base string, defaultHeaders map[string]string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		base:           strings.TrimRight(base, "/"),
		defaultHeaders: defaultHeaders,
		http:           &http.Client{Timeout: timeout},
		getRetries:     2,
		retryBase:      500 * time.Millisecond,
		sleep:          time.Sleep,
	}
}

// Get performs a GET with query params and per-call headers. Transient
// failures (timeouts, connection resets) are retried with exponential
// backoff; error responses are returned to the caller untouched.
func (c *Client) Get(ctx context.Context, path string, params map[string]string, headers map[string]string) (*Response, error) {
	u := c.base + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.getRetries; attempt++ {
		if attempt > 0 {
			c.sleep(c.retryBase << (attempt - 1))
		}
		resp, err := c.do(ctx, http.MethodGet, u, nil, headers)
		if err == nil {
			return resp, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Post performs a POST with a JSON-encoded body. Never retried.
func (c *Client) Post(ctx context.Context, path string, body interface{}, headers map[string]string) (*Response, error) {
	u := c.base + "/" + strings.TrimLeft(path, "/")
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	return c.do(ctx, http.MethodPost, u, rdr, headers)
}

func (c *Client) do(ctx context.Context, method, u string, body io.Reader, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: b}, nil
}

// IsTransient reports whether err is a timeout or connection-level failure,
// the only error class worth an immediate local retry. Error responses with
// a status code are never transient at this layer.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
