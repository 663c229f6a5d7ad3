package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"tootline/internal/domain"
	"tootline/internal/endpoint"
	"tootline/internal/response"
	"tootline/internal/transport"
)

func TestParseOrigin(t *testing.T) {
	good := map[string]string{
		"mastodon.social":           "https://mastodon.social",
		" Mastodon.Social ":         "https://mastodon.social",
		"https://example.org/":      "https://example.org",
		"http://localhost:3000":     "http://localhost:3000",
		"https://[::1]":             "https://[::1]",
		"social.example.co.uk:8443": "https://social.example.co.uk:8443",
	}
	for in, want := range good {
		u, err := ParseOrigin(in)
		if err != nil {
			t.Fatalf("ParseOrigin(%q): %v", in, err)
		}
		if u.String() != want {
			t.Fatalf("ParseOrigin(%q) = %q, want %q", in, u.String(), want)
		}
	}
	bad := []string{
		"",
		"   ",
		"ftp://example.org",
		"https://user:pw@example.org",
		"https://example.org/path",
		"example.org?x=1",
		"exa mple.org",
		"-bad.example",
		"https://example.org:99999",
		"https://",
	}
	for _, in := range bad {
		if _, err := ParseOrigin(in); !errors.Is(err, ErrInvalidDomain) {
			t.Fatalf("ParseOrigin(%q) should fail with ErrInvalidDomain, got %v", in, err)
		}
	}
}

func TestClientSendsFormAndHeaders(t *testing.T) {
	t.Parallel()

	var gotForm url.Values
	var gotAuth, gotKey, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/statuses" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		gotContentType = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(domain.Status{ID: "100", Content: "<p>hi</p>", Visibility: domain.VisibilityPrivate})
	}))
	t.Cleanup(srv.Close)

	origin, _ := url.Parse(srv.URL)
	c := New(origin, transport.NewHTTP(2*time.Second), WithToken("tok"))
	res := c.PublishStatus(context.Background(), endpoint.StatusParams{Status: "hi", Visibility: domain.VisibilityPrivate}, "key-1")
	st, err := res.Unwrap()
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if st.ID != "100" {
		t.Fatalf("status id = %q", st.ID)
	}
	if gotAuth != "Bearer tok" || gotKey != "key-1" {
		t.Fatalf("headers auth=%q key=%q", gotAuth, gotKey)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("content type = %q", gotContentType)
	}
	if gotForm.Get("status") != "hi" || gotForm.Get("visibility") != "private" {
		t.Fatalf("form = %v", gotForm)
	}
}

func TestClientQueryForGet(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`[{"id":"1"},{"id":"2"}]`))
	}))
	t.Cleanup(srv.Close)

	origin, _ := url.Parse(srv.URL)
	c := New(origin, transport.NewHTTP(2*time.Second))
	items, err := c.HomeTimeline(context.Background(), endpoint.TimelineQuery{Limit: 2, MaxID: "9"}).Unwrap()
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	if gotQuery.Get("limit") != "2" || gotQuery.Get("max_id") != "9" {
		t.Fatalf("query = %v", gotQuery)
	}
}

func TestStatusNotFoundIsMessage(t *testing.T) {
	fake := transport.Func(func(ctx context.Context, req *http.Request) (transport.Payload, error) {
		if req.URL.Path != "/api/v1/statuses/404" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		return transport.Payload{StatusCode: http.StatusNotFound, Body: []byte(`{"error":"Record not found"}`)}, nil
	})
	origin, _ := ParseOrigin("example.test")
	c := New(origin, fake)
	res := c.Status(context.Background(), "404")
	if res.OK() {
		t.Fatalf("expected failure")
	}
	if res.Err.Kind != response.KindMessage || res.Err.Reason != "Resource not found" {
		t.Fatalf("expected not-found message, got %+v", res.Err)
	}
}

func TestInvalidParamsSkipTransport(t *testing.T) {
	fake := transport.Func(func(ctx context.Context, req *http.Request) (transport.Payload, error) {
		t.Fatalf("transport should not be called")
		return transport.Payload{}, nil
	})
	origin, _ := ParseOrigin("example.test")
	c := New(origin, fake)
	res := c.ExchangeToken(context.Background(), endpoint.TokenRequest{})
	if res.OK() || res.Err.Kind != response.KindUnknown {
		t.Fatalf("expected invalid request failure, got %+v", res.Err)
	}
	res2 := c.Status(context.Background(), "")
	if res2.OK() || !errors.Is(res2.Err, endpoint.ErrMissingParameter) {
		t.Fatalf("expected catalog miss, got %+v", res2.Err)
	}
}

func TestAuthenticatedCopies(t *testing.T) {
	origin, _ := ParseOrigin("example.test")
	base := New(origin, transport.Func(nil))
	authed := base.Authenticated("abc")
	if base.token != "" || authed.token != "abc" {
		t.Fatalf("Authenticated must not mutate the receiver")
	}
}
