package deeplink_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"tootline/internal/composer"
	"tootline/internal/deeplink"
	"tootline/internal/domain"
)

func TestRoundTrip(t *testing.T) {
	cases := []deeplink.Context{
		{},
		{ReplyToID: "109"},
		{ForwardURI: "https://mastodon.example/@bob/1?x=1&y=2"},
		{Participants: []string{"@alice@remote.example", "@bob"}},
		{Visibility: domain.VisibilityDirect, Participants: []string{"@carol"}},
		{Poll: &domain.PollDraft{}},
		{Poll: &domain.PollDraft{Options: []string{"yes & no", "maybe=so"}, ExpiresIn: 86400, Multiple: true, HideTotals: true}},
		{
			ReplyToID:    "1",
			ForwardURI:   "https://a.example/s/2",
			Participants: []string{"@a", "@b@c.example"},
			Visibility:   domain.VisibilityUnlisted,
			Poll:         &domain.PollDraft{Options: []string{"x", "y", "z"}, ExpiresIn: 300},
		},
	}
	for _, c := range cases {
		link := deeplink.Build(c)
		if !strings.HasPrefix(link, "tootline://compose") {
			t.Fatalf("unexpected link %s", link)
		}
		got, err := deeplink.Parse(link)
		if err != nil {
			t.Fatalf("parse %s: %v", link, err)
		}
		if !reflect.DeepEqual(got, c.Normalize()) {
			t.Fatalf("round trip mismatch for %s:\n got %+v\nwant %+v", link, got, c.Normalize())
		}
	}
}

func TestRoundTripFromDraft(t *testing.T) {
	d := &composer.Draft{
		Content:     "ignored",
		Mentions:    "@alice @bob@remote.example ",
		Visibility:  domain.VisibilityPrivate,
		InReplyToID: "77",
		Poll:        &domain.PollDraft{Options: []string{"a", "b"}, ExpiresIn: 60},
	}
	c := deeplink.FromDraft(d)
	got, err := deeplink.Parse(deeplink.Build(c))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Fatalf("mismatch:\n got %+v\nwant %+v", got, c)
	}
	back := got.Draft()
	if back.Mentions != "@alice @bob@remote.example " || back.InReplyToID != "77" || back.Visibility != domain.VisibilityPrivate || len(back.Poll.Options) != 2 {
		t.Fatalf("unexpected draft %+v", back)
	}
}

func TestParseIsLenient(t *testing.T) {
	c, err := deeplink.Parse("tootline://compose?visibility=bogus&poll_option=a&poll_expires_in=soon&poll_multiple=maybe&reply_to=5&bad=%zz")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Visibility != "" || c.ReplyToID != "5" {
		t.Fatalf("unexpected context %+v", c)
	}
	if c.Poll == nil || c.Poll.ExpiresIn != 0 || c.Poll.Multiple || len(c.Poll.Options) != 1 {
		t.Fatalf("unexpected poll %+v", c.Poll)
	}

	c, err = deeplink.Parse("TOOTLINE://Compose")
	if err != nil || !reflect.DeepEqual(c, deeplink.Context{}) {
		t.Fatalf("expected empty context, got %+v %v", c, err)
	}
}

func TestParseRejectsOtherLinks(t *testing.T) {
	for _, raw := range []string{"https://compose?reply_to=1", "tootline://timeline", "::::"} {
		if _, err := deeplink.Parse(raw); !errors.Is(err, deeplink.ErrNotComposeLink) {
			t.Fatalf("%s: expected ErrNotComposeLink, got %v", raw, err)
		}
	}
}

func TestContextDraftAddsAtSigns(t *testing.T) {
	d := deeplink.Context{Participants: []string{"alice", " ", "@bob"}, ForwardURI: "https://x.example/1"}.Draft()
	if d.Mentions != "@alice @bob " || d.Content != "https://x.example/1" {
		t.Fatalf("unexpected draft %+v", d)
	}
}
