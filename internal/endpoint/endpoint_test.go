package endpoint_test

import (
	"errors"
	"net/http"
	"testing"

	"tootline/internal/domain"
	"tootline/internal/endpoint"
)

func TestEveryKindResolves(t *testing.T) {
	for _, k := range endpoint.Kinds() {
		e := endpoint.New(k)
		r, err := e.Resolve()
		if errors.Is(err, endpoint.ErrMissingParameter) {
			r, err = endpoint.WithID(k, "42").Resolve()
		}
		if err != nil {
			t.Fatalf("resolve %s: %v", k, err)
		}
		if r.Path == "" || r.Method == "" {
			t.Fatalf("resolve %s: empty route %+v", k, r)
		}
	}
}

func TestResolvePaths(t *testing.T) {
	cases := []struct {
		e      endpoint.Endpoint
		method string
		path   string
	}{
		{endpoint.New(endpoint.RegisterApp), http.MethodPost, "/api/v1/apps"},
		{endpoint.New(endpoint.Token), http.MethodPost, "/oauth/token"},
		{endpoint.New(endpoint.Revoke), http.MethodPost, "/oauth/revoke"},
		{endpoint.New(endpoint.PublishStatus), http.MethodPost, "/api/v1/statuses"},
		{endpoint.WithID(endpoint.EditStatus, "109"), http.MethodPut, "/api/v1/statuses/109"},
		{endpoint.WithID(endpoint.StatusContext, "7"), http.MethodGet, "/api/v1/statuses/7/context"},
		{endpoint.WithID(endpoint.Account, "a/b"), http.MethodGet, "/api/v1/accounts/a%2Fb"},
	}
	for _, tc := range cases {
		r, err := tc.e.Resolve()
		if err != nil {
			t.Fatalf("resolve %s: %v", tc.e, err)
		}
		if r.Method != tc.method || r.Path != tc.path {
			t.Fatalf("resolve %s = %s %s, want %s %s", tc.e, r.Method, r.Path, tc.method, tc.path)
		}
	}
}

func TestUnknownKindFails(t *testing.T) {
	_, err := endpoint.New(endpoint.Kind(999)).Resolve()
	if !errors.Is(err, endpoint.ErrUnknownEndpoint) {
		t.Fatalf("expected ErrUnknownEndpoint, got %v", err)
	}
	_, err = endpoint.Endpoint{}.Resolve()
	if !errors.Is(err, endpoint.ErrUnknownEndpoint) {
		t.Fatalf("zero endpoint should not resolve, got %v", err)
	}
}

func TestMissingID(t *testing.T) {
	_, err := endpoint.New(endpoint.Status).Resolve()
	if !errors.Is(err, endpoint.ErrMissingParameter) {
		t.Fatalf("expected ErrMissingParameter, got %v", err)
	}
}

func TestStatusParamsPoll(t *testing.T) {
	v, err := endpoint.StatusParams{
		Status:      "vote!",
		Visibility:  domain.VisibilityUnlisted,
		Sensitive:   true,
		SpoilerText: "poll",
		Poll:        &domain.PollDraft{Options: []string{"a", "b"}, ExpiresIn: 3600, Multiple: true},
	}.Values()
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if got := v["poll[options][]"]; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("poll options = %v", got)
	}
	if v.Get("poll[expires_in]") != "3600" || v.Get("poll[multiple]") != "true" {
		t.Fatalf("poll fields = %v", v)
	}
	if v.Get("spoiler_text") != "poll" || v.Get("sensitive") != "true" {
		t.Fatalf("content warning fields = %v", v)
	}
}

func TestStatusParamsDropsSpoilerWhenNotSensitive(t *testing.T) {
	v, err := endpoint.StatusParams{Status: "hi", SpoilerText: "ignored"}.Values()
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if v.Has("spoiler_text") {
		t.Fatalf("spoiler_text should be omitted: %v", v)
	}
}

func TestParamValidation(t *testing.T) {
	if _, err := (endpoint.StatusParams{Poll: &domain.PollDraft{Options: []string{"only"}, ExpiresIn: 60}}).Values(); err == nil {
		t.Fatalf("expected single-option poll to fail")
	}
	if _, err := (endpoint.TokenRequest{ClientID: "id", ClientSecret: "s"}).Values(); err == nil {
		t.Fatalf("expected missing code to fail")
	}
	if _, err := (endpoint.TimelineQuery{Limit: 100}).Values(); err == nil {
		t.Fatalf("expected limit validation")
	}
	v, err := endpoint.TokenRequest{ClientID: "id", ClientSecret: "s", Code: " abc ", RedirectURI: "urn:x"}.Values()
	if err != nil {
		t.Fatalf("token values: %v", err)
	}
	if v.Get("grant_type") != "authorization_code" || v.Get("code") != "abc" {
		t.Fatalf("token values = %v", v)
	}
}
