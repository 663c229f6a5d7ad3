package composer_test

import (
	"strings"
	"testing"

	"tootline/internal/composer"
)

func TestCountReferenceExample(t *testing.T) {
	content := "Check this out: https://example.com/a/b/c @alice@instance.example"
	want := len("Check this out:  @alice") + composer.URLWeight
	if got := composer.Count("", content); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
	if want != 46 {
		t.Fatalf("reference arithmetic changed: %d", want)
	}
}

func TestCountPlainTextIsLength(t *testing.T) {
	for _, s := range []string{"", "hello", "no links or mentions here, just text.", "an @ sign alone", strings.Repeat("x", 600)} {
		if got := composer.Count("", s); got != len(s) {
			t.Fatalf("Count(%q) = %d, want %d", s, got, len(s))
		}
		if composer.Count("", s) != composer.Count("", s) {
			t.Fatalf("count not stable for %q", s)
		}
	}
}

func TestCountCases(t *testing.T) {
	cases := []struct {
		name     string
		mentions string
		content  string
		want     int
	}{
		{"mention field normalized", "@bob@remote.example ", "hi", len("@bob hi")},
		{"local mention untouched", "@bob ", "hi", len("@bob hi")},
		{"urls in mentions are not links", "http://a.example ", "x", len("http://a.example x")},
		{"two urls", "", "https://a.example and http://b.example/path?q=1", len(" and ") + 2*composer.URLWeight},
		{"same url twice", "", "https://a.example https://a.example", len(" ") + 2*composer.URLWeight},
		{"graphemes", "", "👍🏽 café", 6},
		{"dotted username", "", "@first.last@host.example", len("@first.last")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := composer.Count(tc.mentions, tc.content); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	p := composer.Policy{Limit: 10, Enforce: true}
	if !p.Allows("", "123456789") {
		t.Fatalf("9 of 10 should be allowed")
	}
	if p.Allows("", "1234567890") {
		t.Fatalf("a zero remainder blocks publishing")
	}
	if p.Remaining("", "123456789012") != -2 {
		t.Fatalf("unexpected remaining %d", p.Remaining("", "123456789012"))
	}
	p.Enforce = false
	if !p.Allows("", strings.Repeat("y", 50)) {
		t.Fatalf("unenforced policy must allow overage")
	}
}
