package tootlinesdk_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tootline/internal/auth"
	"tootline/internal/composer"
	"tootline/internal/domain"
	"tootline/internal/endpoint"
	"tootline/internal/response"
	"tootline/internal/secure"
	"tootline/internal/server"
	"tootline/internal/transport"
	tootlinesdk "tootline/sdk/go"
)

type echoPublisher struct{}

func (echoPublisher) PublishStatus(ctx context.Context, p endpoint.StatusParams, key string) response.Result[domain.Status] {
	return response.Success(domain.Status{ID: "7", Content: p.Status, Visibility: p.Visibility})
}

func (echoPublisher) EditStatus(ctx context.Context, id string, p endpoint.StatusParams, key string) response.Result[domain.Status] {
	return response.Success(domain.Status{ID: id, Content: p.Status, Visibility: p.Visibility})
}

func newClient(t *testing.T) *tootlinesdk.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	am := auth.New(secure.NewMemory(), transport.NewHTTP(time.Second), auth.Config{
		Rejected: auth.NewRejectionList("bad.example"),
	}, auth.WithLogger(logger))
	cm := composer.New(echoPublisher{}, composer.WithLogger(logger))
	h, err := server.New(server.Config{Auth: am, Composer: cm, JWTSecret: "sdk-secret", Logger: logger})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	token, err := server.SignToken("sdk-secret", "sdk", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tootlinesdk.New(srv.URL, token)
}

func TestComposeRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	count, err := c.Count(ctx, "@alice@example.social ", "hi")
	if err != nil || count.Count != len("@alice hi") || !count.Allowed {
		t.Fatalf("count: %+v %v", count, err)
	}

	s, err := c.StartDraft(ctx, tootlinesdk.Draft{Content: "hello", Visibility: "unlisted"})
	if err != nil || s.Phase != "editing" {
		t.Fatalf("start: %+v %v", s, err)
	}
	content := "hello again"
	if s, err = c.UpdateDraft(ctx, tootlinesdk.DraftUpdate{Content: &content}); err != nil || s.Remaining == nil {
		t.Fatalf("update: %+v %v", s, err)
	}
	s, err = c.Publish(ctx)
	if err != nil || s.Phase != "published" || s.Status == nil || s.Status.Content != content || s.Status.Visibility != "unlisted" {
		t.Fatalf("publish: %+v %v", s, err)
	}
	if s, err = c.Reset(ctx); err != nil || s.Phase != "initial" {
		t.Fatalf("reset: %+v %v", s, err)
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	c := newClient(t)
	_, err := c.Login(context.Background(), "bad.example")
	var apiErr *tootlinesdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden || apiErr.Code != "domain_rejected" {
		t.Fatalf("unexpected error %v", err)
	}

	c.BearerToken = ""
	_, err = c.AuthState(context.Background())
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
