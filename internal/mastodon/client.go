package mastodon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"tootline/internal/domain"
	"tootline/internal/endpoint"
	"tootline/internal/response"
	"tootline/internal/transport"
)

// Client is a Mastodon REST client bound to one instance origin.
type Client struct {
	origin    *url.URL
	transport transport.Transport
	token     string
	logger    *slog.Logger
}

type Option func(*Client)

// WithToken authenticates requests with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for origin. origin should come from ParseOrigin.
func New(origin *url.URL, tr transport.Transport, opts ...Option) *Client {
	o := *origin
	o.Path, o.RawPath, o.RawQuery, o.Fragment = "", "", "", ""
	c := &Client{origin: &o, transport: tr}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Origin returns a copy of the instance origin.
func (c *Client) Origin() *url.URL {
	o := *c.origin
	return &o
}

// Authenticated returns a copy of c using token.
func (c *Client) Authenticated(token string) *Client {
	dup := *c
	dup.token = token
	return &dup
}

// Request is one call against the catalog.
type Request struct {
	Endpoint       endpoint.Endpoint
	Params         url.Values
	IdempotencyKey string
}

// Fetch performs req and classifies the response as T.
func Fetch[T any](ctx context.Context, c *Client, req Request) response.Result[T] {
	route, err := req.Endpoint.Resolve()
	if err != nil {
		c.logger.Error("endpoint catalog miss", "endpoint", req.Endpoint.String(), "error", err)
		return response.Failure[T](&response.FetchError{Kind: response.KindUnknown, Reason: "endpoint catalog miss", Cause: err})
	}
	httpReq, err := c.newRequest(ctx, route, req)
	if err != nil {
		return response.Failure[T](&response.FetchError{Kind: response.KindUnknown, Reason: "build request", Cause: err})
	}
	payload, err := c.transport.Send(ctx, httpReq)
	res := response.Classify[T](payload, err)
	if res.Err != nil {
		attrs := []any{"endpoint", req.Endpoint.String(), "kind", string(res.Err.Kind), "status", res.Err.StatusCode}
		switch res.Err.Kind {
		case response.KindDecodeError, response.KindUnexpectedResponseShape:
			c.logger.Warn("response did not match expected shape", append(attrs, "error", res.Err.Cause)...)
		default:
			c.logger.Debug("request failed", attrs...)
		}
	}
	return res
}

func (c *Client) newRequest(ctx context.Context, route endpoint.Route, req Request) (*http.Request, error) {
	target := strings.TrimRight(c.origin.String(), "/") + route.Path
	var body *strings.Reader
	if route.Method == http.MethodGet || route.Method == http.MethodDelete {
		if len(req.Params) > 0 {
			target += "?" + req.Params.Encode()
		}
		body = strings.NewReader("")
	} else {
		body = strings.NewReader(req.Params.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, route.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if route.Method != http.MethodGet && route.Method != http.MethodDelete {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	return httpReq, nil
}

type valuer interface {
	Values() (url.Values, error)
}

func fetchWith[T any](ctx context.Context, c *Client, e endpoint.Endpoint, params valuer, key string) response.Result[T] {
	var values url.Values
	if params != nil {
		v, err := params.Values()
		if err != nil {
			return response.Failure[T](&response.FetchError{Kind: response.KindUnknown, Reason: "invalid request", Cause: err})
		}
		values = v
	}
	return Fetch[T](ctx, c, Request{Endpoint: e, Params: values, IdempotencyKey: key})
}

// RegisterApp registers this client with the instance.
func (c *Client) RegisterApp(ctx context.Context, p endpoint.AppRegistration) response.Result[domain.Application] {
	return fetchWith[domain.Application](ctx, c, endpoint.New(endpoint.RegisterApp), p, "")
}

// ExchangeToken trades an authorization code for an access token.
func (c *Client) ExchangeToken(ctx context.Context, p endpoint.TokenRequest) response.Result[domain.Token] {
	return fetchWith[domain.Token](ctx, c, endpoint.New(endpoint.Token), p, "")
}

// RevokeToken invalidates an access token.
func (c *Client) RevokeToken(ctx context.Context, p endpoint.RevokeRequest) response.Result[domain.Empty] {
	return fetchWith[domain.Empty](ctx, c, endpoint.New(endpoint.Revoke), p, "")
}

func (c *Client) VerifyCredentials(ctx context.Context) response.Result[domain.Account] {
	return fetchWith[domain.Account](ctx, c, endpoint.New(endpoint.VerifyCredentials), nil, "")
}

func (c *Client) Account(ctx context.Context, id string) response.Result[domain.Account] {
	return fetchWith[domain.Account](ctx, c, endpoint.WithID(endpoint.Account, id), nil, "")
}

func (c *Client) AccountStatuses(ctx context.Context, id string, q endpoint.TimelineQuery) response.Result[[]domain.Status] {
	return fetchWith[[]domain.Status](ctx, c, endpoint.WithID(endpoint.AccountStatuses, id), q, "")
}

func (c *Client) HomeTimeline(ctx context.Context, q endpoint.TimelineQuery) response.Result[[]domain.Status] {
	return fetchWith[[]domain.Status](ctx, c, endpoint.New(endpoint.HomeTimeline), q, "")
}

func (c *Client) PublicTimeline(ctx context.Context, q endpoint.TimelineQuery) response.Result[[]domain.Status] {
	return fetchWith[[]domain.Status](ctx, c, endpoint.New(endpoint.PublicTimeline), q, "")
}

func (c *Client) Status(ctx context.Context, id string) response.Result[domain.Status] {
	return fetchWith[domain.Status](ctx, c, endpoint.WithID(endpoint.Status, id), nil, "")
}

func (c *Client) StatusContext(ctx context.Context, id string) response.Result[domain.Context] {
	return fetchWith[domain.Context](ctx, c, endpoint.WithID(endpoint.StatusContext, id), nil, "")
}

// PublishStatus posts a new status. key deduplicates retries server-side.
func (c *Client) PublishStatus(ctx context.Context, p endpoint.StatusParams, key string) response.Result[domain.Status] {
	return fetchWith[domain.Status](ctx, c, endpoint.New(endpoint.PublishStatus), p, key)
}

// EditStatus replaces the content of an existing status.
func (c *Client) EditStatus(ctx context.Context, id string, p endpoint.StatusParams, key string) response.Result[domain.Status] {
	return fetchWith[domain.Status](ctx, c, endpoint.WithID(endpoint.EditStatus, id), p, key)
}

func (c *Client) Instance(ctx context.Context) response.Result[domain.Instance] {
	return fetchWith[domain.Instance](ctx, c, endpoint.New(endpoint.Instance), nil, "")
}
