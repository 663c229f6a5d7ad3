package domain

import (
	"fmt"
	"time"
)

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// ParseVisibility accepts the wire names; empty means public.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case "":
		return VisibilityPublic, nil
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityDirect:
		return Visibility(s), nil
	default:
		return "", fmt.Errorf("invalid visibility %q", s)
	}
}

// RegisteredApplication is the OAuth client identity presented to a server.
type RegisteredApplication struct {
	Name    string `yaml:"name" json:"name"`
	Website string `yaml:"website" json:"website,omitempty"`
}

// Application is the server's answer to an app registration.
type Application struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Website      string `json:"website,omitempty"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Token is replaced wholesale, never mutated.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	CreatedAt   int64  `json:"created_at"`
}

// String never prints the access token.
func (t Token) String() string {
	return fmt.Sprintf("Token{type=%s scope=%q created_at=%d access_token=[redacted]}", t.TokenType, t.Scope, t.CreatedAt)
}

func (t Token) GoString() string { return t.String() }

func (t Token) Created() time.Time {
	if t.CreatedAt == 0 {
		return time.Time{}
	}
	return time.Unix(t.CreatedAt, 0).UTC()
}

// Credentials are populated incrementally during the OAuth flow.
type Credentials struct {
	InstanceDomain string
	ClientID       string
	ClientSecret   string
	AccessToken    string
}

func (c Credentials) HasClient() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{domain=%s client=%t token=%t}", c.InstanceDomain, c.HasClient(), c.AccessToken != "")
}

// ServerError is the structured error body Mastodon returns.
type ServerError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e ServerError) Message() string {
	if e.Description != "" {
		return e.Error + ": " + e.Description
	}
	return e.Error
}

type Account struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Acct           string `json:"acct"`
	DisplayName    string `json:"display_name"`
	URL            string `json:"url"`
	Avatar         string `json:"avatar,omitempty"`
	Note           string `json:"note,omitempty"`
	FollowersCount int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
	StatusesCount  int    `json:"statuses_count"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type Mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
	URL      string `json:"url"`
}

type PollOption struct {
	Title      string `json:"title"`
	VotesCount *int   `json:"votes_count,omitempty"`
}

type Poll struct {
	ID         string       `json:"id"`
	ExpiresAt  *string      `json:"expires_at,omitempty" format:"date-time"`
	Expired    bool         `json:"expired"`
	Multiple   bool         `json:"multiple"`
	VotesCount int          `json:"votes_count"`
	Options    []PollOption `json:"options"`
}

// PollDraft is a poll being composed, before the server assigns an id.
type PollDraft struct {
	Options    []string `json:"options"`
	ExpiresIn  int      `json:"expires_in"`
	Multiple   bool     `json:"multiple,omitempty"`
	HideTotals bool     `json:"hide_totals,omitempty"`
}

func (p *PollDraft) Clone() *PollDraft {
	if p == nil {
		return nil
	}
	dup := *p
	dup.Options = append([]string(nil), p.Options...)
	return &dup
}

type Status struct {
	ID              string     `json:"id"`
	URI             string     `json:"uri"`
	URL             *string    `json:"url,omitempty"`
	CreatedAt       string     `json:"created_at" format:"date-time"`
	EditedAt        *string    `json:"edited_at,omitempty" format:"date-time"`
	Account         Account    `json:"account"`
	Content         string     `json:"content"`
	Visibility      Visibility `json:"visibility" enum:"public,unlisted,private,direct"`
	Sensitive       bool       `json:"sensitive"`
	SpoilerText     string     `json:"spoiler_text"`
	InReplyToID     *string    `json:"in_reply_to_id,omitempty"`
	Language        *string    `json:"language,omitempty"`
	Mentions        []Mention  `json:"mentions,omitempty"`
	Poll            *Poll      `json:"poll,omitempty"`
	Reblog          *Status    `json:"reblog,omitempty"`
	RepliesCount    int        `json:"replies_count"`
	ReblogsCount    int        `json:"reblogs_count"`
	FavouritesCount int        `json:"favourites_count"`
}

// Context holds the ancestors and descendants of a status.
type Context struct {
	Ancestors   []Status `json:"ancestors"`
	Descendants []Status `json:"descendants"`
}

// Instance covers the fields of /api/v1/instance the client consumes.
type Instance struct {
	URI           string `json:"uri"`
	Title         string `json:"title"`
	Description   string `json:"short_description,omitempty"`
	Version       string `json:"version"`
	Configuration struct {
		Statuses struct {
			MaxCharacters            int `json:"max_characters"`
			CharactersReservedPerURL int `json:"characters_reserved_per_url"`
		} `json:"statuses"`
	} `json:"configuration"`
}

// Empty decodes any successful body, including "{}".
type Empty struct{}
