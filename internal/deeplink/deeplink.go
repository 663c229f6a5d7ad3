package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tootline/internal/composer"
	"tootline/internal/domain"
)

const (
	Scheme = "tootline"
	Host   = "compose"
)

const (
	keyReplyTo     = "reply_to"
	keyForward     = "forward"
	keyParticipant = "participant"
	keyVisibility  = "visibility"
	keyPoll        = "poll"
	keyPollOption  = "poll_option"
	keyPollExpires = "poll_expires_in"
	keyPollMulti   = "poll_multiple"
	keyPollHide    = "poll_hide_totals"
)

var ErrNotComposeLink = errors.New("not a compose link")

// Context is what a compose link carries into the composer.
type Context struct {
	ReplyToID    string            `json:"reply_to_id,omitempty"`
	ForwardURI   string            `json:"forward_uri,omitempty"`
	Participants []string          `json:"participants,omitempty"`
	Visibility   domain.Visibility `json:"visibility,omitempty"`
	Poll         *domain.PollDraft `json:"poll,omitempty"`
}

// Normalize makes empty slices nil so equal contexts compare equal.
func (c Context) Normalize() Context {
	if len(c.Participants) == 0 {
		c.Participants = nil
	}
	if c.Poll != nil {
		c.Poll = c.Poll.Clone()
		if len(c.Poll.Options) == 0 {
			c.Poll.Options = nil
		}
	}
	return c
}

// Build renders c as a tootline://compose URL.
func Build(c Context) string {
	q := url.Values{}
	if c.ReplyToID != "" {
		q.Set(keyReplyTo, c.ReplyToID)
	}
	if c.ForwardURI != "" {
		q.Set(keyForward, c.ForwardURI)
	}
	for _, p := range c.Participants {
		q.Add(keyParticipant, p)
	}
	if c.Visibility != "" {
		q.Set(keyVisibility, string(c.Visibility))
	}
	if c.Poll != nil {
		q.Set(keyPoll, "1")
		for _, opt := range c.Poll.Options {
			q.Add(keyPollOption, opt)
		}
		if c.Poll.ExpiresIn != 0 {
			q.Set(keyPollExpires, strconv.Itoa(c.Poll.ExpiresIn))
		}
		if c.Poll.Multiple {
			q.Set(keyPollMulti, "true")
		}
		if c.Poll.HideTotals {
			q.Set(keyPollHide, "true")
		}
	}
	u := url.URL{Scheme: Scheme, Host: Host, RawQuery: q.Encode()}
	return u.String()
}

// Parse reads a compose link. Missing or malformed parameters fall back to
// zero values; only a wrong scheme or host is an error.
func Parse(raw string) (Context, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Context{}, fmt.Errorf("%w: %v", ErrNotComposeLink, err)
	}
	if !strings.EqualFold(u.Scheme, Scheme) || !strings.EqualFold(u.Host, Host) {
		return Context{}, fmt.Errorf("%w: %s://%s", ErrNotComposeLink, u.Scheme, u.Host)
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		// keep whatever pairs did parse
		q = lenientQuery(u.RawQuery)
	}
	c := Context{
		ReplyToID:    q.Get(keyReplyTo),
		ForwardURI:   q.Get(keyForward),
		Participants: q[keyParticipant],
	}
	if v := q.Get(keyVisibility); v != "" {
		if vis, err := domain.ParseVisibility(v); err == nil {
			c.Visibility = vis
		}
	}
	if q.Has(keyPoll) || q.Has(keyPollOption) {
		p := &domain.PollDraft{Options: q[keyPollOption]}
		p.ExpiresIn, _ = strconv.Atoi(q.Get(keyPollExpires))
		p.Multiple, _ = strconv.ParseBool(q.Get(keyPollMulti))
		p.HideTotals, _ = strconv.ParseBool(q.Get(keyPollHide))
		c.Poll = p
	}
	return c.Normalize(), nil
}

func lenientQuery(raw string) url.Values {
	out := url.Values{}
	for _, pair := range strings.Split(raw, "&") {
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil || key == "" {
			continue
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		out.Add(key, val)
	}
	return out
}

// FromDraft captures the parts of a draft a compose link can carry.
func FromDraft(d *composer.Draft) Context {
	if d == nil {
		return Context{}
	}
	c := Context{
		ReplyToID:  d.InReplyToID,
		Visibility: d.Visibility,
		Poll:       d.Poll.Clone(),
	}
	for _, f := range strings.Fields(d.Mentions) {
		if strings.HasPrefix(f, "@") && len(f) > 1 {
			c.Participants = append(c.Participants, f)
		}
	}
	return c.Normalize()
}

// Draft turns the context into a composer draft. Participants become the
// mentions field; a forwarded URI seeds the content.
func (c Context) Draft() *composer.Draft {
	d := &composer.Draft{
		Content:     c.ForwardURI,
		Visibility:  c.Visibility,
		InReplyToID: c.ReplyToID,
		Poll:        c.Poll.Clone(),
	}
	var mentions []string
	for _, p := range c.Participants {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "@") {
			p = "@" + p
		}
		mentions = append(mentions, p)
	}
	if len(mentions) > 0 {
		d.Mentions = strings.Join(mentions, " ") + " "
	}
	return d
}
