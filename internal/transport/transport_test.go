package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSendReturnsPayload(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"error":"teapot"}`))
	}))
	t.Cleanup(srv.Close)

	tr := NewHTTP(time.Second)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/x", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	p, err := tr.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if p.StatusCode != http.StatusTeapot || string(p.Body) != `{"error":"teapot"}` {
		t.Fatalf("payload = %d %q", p.StatusCode, p.Body)
	}
	if gotUA != DefaultUserAgent || gotAccept != "application/json" {
		t.Fatalf("headers = %q %q", gotUA, gotAccept)
	}
}

func TestHTTPSendTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	tr := NewHTTP(50 * time.Millisecond)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/hang?code=secret", nil)
	_, err := tr.Send(context.Background(), req)
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !terr.Timeout() {
		t.Fatalf("expected timeout, got %v", terr.Err)
	}
	if terr.URL != srv.URL+"/hang" {
		t.Fatalf("query should be redacted, got %q", terr.URL)
	}
}

func TestFuncAdapter(t *testing.T) {
	called := false
	var tr Transport = Func(func(ctx context.Context, req *http.Request) (Payload, error) {
		called = true
		return Payload{StatusCode: 204}, nil
	})
	req, _ := http.NewRequest(http.MethodDelete, "https://example.test/", nil)
	p, err := tr.Send(context.Background(), req)
	if err != nil || !called || p.StatusCode != 204 {
		t.Fatalf("func adapter: %v %v %d", err, called, p.StatusCode)
	}
}
