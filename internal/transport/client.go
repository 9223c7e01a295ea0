// Package transport sends single JSON requests to one upstream.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/snapp-incubator/conformer/internal/failure"
	"github.com/snapp-incubator/conformer/internal/jsonvalue"
	"github.com/snapp-incubator/conformer/internal/metrics"
)

// Client issues requests against a single base URL.
// It holds no state besides its configuration and is safe for concurrent use.
type Client struct {
	name    string
	baseURL string
	headers http.Header
	http    *http.Client
}

// Option configures a Client.
type Option func(c *Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request of the client. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithHeaders adds static headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			c.headers.Set(k, v)
		}
	}
}

// New returns a client named name (e.g. "reference") for baseURL.
func New(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: http.Header{},
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name is the upstream label of the client.
func (c *Client) Name() string { return c.name }

// BaseURL is the normalized base URL of the client.
func (c *Client) BaseURL() string { return c.baseURL }

// Response is a parsed upstream reply. Status codes are reported, not judged.
type Response struct {
	StatusCode int
	Raw        []byte
	Body       jsonvalue.Value
	Duration   time.Duration
}

// URL joins the base URL and endpoint with exactly one slash.
func (c *Client) URL(endpoint string) string {
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

// Request sends method to endpoint. For GET and DELETE a non-nil body is
// encoded as the query string; for POST, PUT and PATCH it is the JSON payload.
// Errors are *failure.Error of kind Transport or Serialization.
func (c *Client) Request(ctx context.Context, method, endpoint string, body jsonvalue.Value) (*Response, error) {
	method = strings.ToUpper(method)
	target := c.URL(endpoint)

	var payload io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
		if body != nil {
			query, err := EncodeQuery(body)
			if err != nil {
				return nil, failure.Serialization(c.name, method, endpoint, err)
			}
			if query != "" {
				sep := "?"
				if strings.Contains(target, "?") {
					sep = "&"
				}
				target += sep + query
			}
		}
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, failure.Serialization(c.name, method, endpoint, err)
			}
			payload = bytes.NewReader(b)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, failure.Transport(c.name, method, endpoint, err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	t := prometheus.NewTimer(metrics.HTTPReqDuration.WithLabelValues(method, c.name))
	res, err := c.http.Do(req)
	t.ObserveDuration()
	if err != nil {
		metrics.HTTPReqCounter.WithLabelValues("client_error", method, c.name).Inc()
		return nil, failure.Transport(c.name, method, endpoint, err)
	}
	defer func() { _ = res.Body.Close() }()

	metrics.HTTPReqCounter.WithLabelValues(strconv.Itoa(res.StatusCode), method, c.name).Inc()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, failure.Transport(c.name, method, endpoint, fmt.Errorf("reading response body: %w", err))
	}

	value, err := jsonvalue.Parse(raw)
	if err != nil {
		return nil, failure.Transport(c.name, method, endpoint,
			fmt.Errorf("status %d: %w: %s", res.StatusCode, err, snippet(raw)))
	}

	return &Response{
		StatusCode: res.StatusCode,
		Raw:        raw,
		Body:       value,
		Duration:   time.Since(start),
	}, nil
}

func snippet(raw []byte) string {
	const limit = 120
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "<empty body>"
	}
	if len(s) > limit {
		return strconv.Quote(s[:limit]) + "..."
	}
	return strconv.Quote(s)
}
