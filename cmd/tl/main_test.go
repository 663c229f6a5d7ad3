package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"tootline/internal/domain"
)

func TestPostOptionsDraft(t *testing.T) {
	o := postOptions{
		mentions:    []string{"@alice", "bob@example.social", " "},
		visibility:  "unlisted",
		cw:          "spoilers",
		pollOptions: []string{"yes", "no"},
		pollExpires: time.Hour,
	}
	d, err := o.draft([]string{"hello", "world"})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if d.Content != "hello world" || d.Mentions != "@alice @bob@example.social " {
		t.Fatalf("unexpected text %q %q", d.Mentions, d.Content)
	}
	if d.Visibility != domain.VisibilityUnlisted || !d.Sensitive || d.SensitiveDisclaimer != "spoilers" {
		t.Fatalf("unexpected draft %+v", d)
	}
	if d.Poll == nil || d.Poll.ExpiresIn != 3600 {
		t.Fatalf("unexpected poll %+v", d.Poll)
	}
}

func TestPostOptionsFromLink(t *testing.T) {
	o := postOptions{link: "tootline://compose?reply_to=9&visibility=direct&participant=carol"}
	d, err := o.draft([]string{"hi"})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if d.InReplyToID != "9" || d.Visibility != domain.VisibilityDirect || d.Mentions != "@carol " || d.Content != "hi" {
		t.Fatalf("unexpected draft %+v", d)
	}
	if _, err := (postOptions{}).draft(nil); err == nil {
		t.Fatalf("expected error for empty post")
	}
	if _, err := (postOptions{visibility: "friends"}).draft([]string{"x"}); err == nil {
		t.Fatalf("expected visibility error")
	}
}

func TestEnsureEnvSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	added, err := ensureEnvSecret(path, "TOOTLINE_JWT_SECRET")
	if err != nil || !added {
		t.Fatalf("first call: %v %v", added, err)
	}
	env, err := godotenv.Read(path)
	if err != nil || len(env["TOOTLINE_JWT_SECRET"]) != 64 {
		t.Fatalf("unexpected env %v %v", env, err)
	}
	added, err = ensureEnvSecret(path, "TOOTLINE_JWT_SECRET")
	if err != nil || added {
		t.Fatalf("second call should keep the secret: %v %v", added, err)
	}
}
