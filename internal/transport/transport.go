package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "tootline/0.1"
	maxBodyBytes     = 8 << 20
)

// Payload is a raw HTTP response.
type Payload struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Transport sends one request and returns the raw response. It never retries.
type Transport interface {
	Send(ctx context.Context, req *http.Request) (Payload, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req *http.Request) (Payload, error)

func (f Func) Send(ctx context.Context, req *http.Request) (Payload, error) { return f(ctx, req) }

// Error is a failure that produced no usable HTTP response.
type Error struct {
	Op  string
	URL string
	// Partial is set when headers arrived but the body could not be read.
	Partial bool
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// HTTP is the net/http backed Transport.
type HTTP struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
}

var _ Transport = (*HTTP)(nil)

// NewHTTP builds a transport with a per-request timeout.
func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{
		Client:    &http.Client{},
		Timeout:   timeout,
		UserAgent: DefaultUserAgent,
	}
}

func (t *HTTP) Send(ctx context.Context, req *http.Request) (Payload, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		ua := t.UserAgent
		if ua == "" {
			ua = DefaultUserAgent
		}
		req.Header.Set("User-Agent", ua)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return Payload{}, &Error{Op: req.Method, URL: redactURL(req), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Payload{}, &Error{Op: req.Method, URL: redactURL(req), Partial: true, Err: fmt.Errorf("read body: %w", err)}
	}
	return Payload{StatusCode: resp.StatusCode, Body: body, Header: resp.Header.Clone()}, nil
}

// redactURL drops the query string, which can carry codes or tokens.
func redactURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	u := *req.URL
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
