// Package apitest provides typed helpers for exercising restroute routers
// over real HTTP in tests.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bjaus/restroute"
	"github.com/bjaus/restroute/httphost"
)

// Client sends requests to an httptest.Server.
type Client struct {
	Server  *httptest.Server
	Headers http.Header
}

// NewClient starts a test server for h.
func NewClient(t testing.TB, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &Client{Server: srv, Headers: http.Header{}}
}

// Mount binds every source on a fresh httphost.Dispatcher and starts a
// test server for it.
func Mount(t testing.TB, opts []httphost.Option, sources ...interface{ Register(restroute.Dispatcher) error }) *Client {
	t.Helper()
	d := httphost.New(opts...)
	if err := d.Mount(sources...); err != nil {
		t.Fatalf("apitest: mount: %v", err)
	}
	return NewClient(t, d)
}

// WithHeader returns a copy of c sending the header on every request.
func (c *Client) WithHeader(name, value string) *Client {
	h := c.Headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(name, value)
	return &Client{Server: c.Server, Headers: h}
}

// Response holds a decoded response. Error is set when the body is the
// restroute error envelope.
type Response[T any] struct {
	Status  int
	Headers http.Header
	Body    *T
	Error   *ErrorBody
	Raw     []byte
}

// ErrorBody is the decoded error envelope.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId"`
	Details   map[string]any `json:"details"`
}

// Get sends a typed GET request.
func Get[Resp any](t testing.TB, c *Client, path string) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodGet, path, nil)
}

// Post sends a typed POST request with a JSON body.
func Post[Req, Resp any](t testing.TB, c *Client, path string, body *Req) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodPost, path, body)
}

// Put sends a typed PUT request with a JSON body.
func Put[Req, Resp any](t testing.TB, c *Client, path string, body *Req) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodPut, path, body)
}

// Patch sends a typed PATCH request with a JSON body.
func Patch[Req, Resp any](t testing.TB, c *Client, path string, body *Req) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodPatch, path, body)
}

// Delete sends a typed DELETE request.
func Delete[Resp any](t testing.TB, c *Client, path string) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodDelete, path, nil)
}

// Do sends method to path. A non-nil body is sent as JSON.
func Do[Resp any](t testing.TB, c *Client, method, path string, body any) *Response[Resp] {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("apitest: marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, c.Server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("apitest: create request: %v", err)
	}
	for k, v := range c.Headers {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("apitest: execute request: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.Errorf("apitest: close body: %v", closeErr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("apitest: read body: %v", err)
	}
	result := &Response[Resp]{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Raw:     raw,
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return result
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error *ErrorBody `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			result.Error = envelope.Error
			return result
		}
	}

	var decoded Resp
	if decErr := json.Unmarshal(raw, &decoded); decErr != nil && !errors.Is(decErr, io.EOF) {
		return result
	}
	result.Body = &decoded
	return result
}
