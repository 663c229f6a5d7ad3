package endpoint

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"tootline/internal/domain"
)

// AppRegistration is the form for POST /api/v1/apps.
type AppRegistration struct {
	ClientName   string
	RedirectURIs string
	Scopes       string
	Website      string
}

func (p AppRegistration) Values() (url.Values, error) {
	if strings.TrimSpace(p.ClientName) == "" {
		return nil, errors.New("client_name is required")
	}
	if strings.TrimSpace(p.RedirectURIs) == "" {
		return nil, errors.New("redirect_uris is required")
	}
	v := url.Values{}
	v.Set("client_name", p.ClientName)
	v.Set("redirect_uris", p.RedirectURIs)
	if p.Scopes != "" {
		v.Set("scopes", p.Scopes)
	}
	if p.Website != "" {
		v.Set("website", p.Website)
	}
	return v, nil
}

// TokenRequest exchanges an authorization code for an access token.
type TokenRequest struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Code         string
	Scope        string
}

func (p TokenRequest) Values() (url.Values, error) {
	if p.ClientID == "" || p.ClientSecret == "" {
		return nil, errors.New("client credentials are required")
	}
	if strings.TrimSpace(p.Code) == "" {
		return nil, errors.New("authorization code is required")
	}
	v := url.Values{}
	v.Set("grant_type", "authorization_code")
	v.Set("client_id", p.ClientID)
	v.Set("client_secret", p.ClientSecret)
	v.Set("redirect_uri", p.RedirectURI)
	v.Set("code", strings.TrimSpace(p.Code))
	if p.Scope != "" {
		v.Set("scope", p.Scope)
	}
	return v, nil
}

// RevokeRequest invalidates an access token.
type RevokeRequest struct {
	ClientID     string
	ClientSecret string
	Token        string
}

func (p RevokeRequest) Values() (url.Values, error) {
	if p.ClientID == "" || p.ClientSecret == "" || p.Token == "" {
		return nil, errors.New("client credentials and token are required")
	}
	v := url.Values{}
	v.Set("client_id", p.ClientID)
	v.Set("client_secret", p.ClientSecret)
	v.Set("token", p.Token)
	return v, nil
}

// StatusParams is the form for publishing or editing a status.
type StatusParams struct {
	Status      string
	Visibility  domain.Visibility
	InReplyToID string
	SpoilerText string
	Sensitive   bool
	Language    string
	Poll        *domain.PollDraft
}

func (p StatusParams) Values() (url.Values, error) {
	if strings.TrimSpace(p.Status) == "" && p.Poll == nil {
		return nil, errors.New("status text is required")
	}
	v := url.Values{}
	v.Set("status", p.Status)
	if p.Visibility != "" {
		v.Set("visibility", string(p.Visibility))
	}
	if p.InReplyToID != "" {
		v.Set("in_reply_to_id", p.InReplyToID)
	}
	if p.Sensitive {
		v.Set("sensitive", "true")
		if p.SpoilerText != "" {
			v.Set("spoiler_text", p.SpoilerText)
		}
	}
	if p.Language != "" {
		v.Set("language", p.Language)
	}
	if p.Poll != nil {
		if len(p.Poll.Options) < 2 {
			return nil, errors.New("poll needs at least two options")
		}
		if p.Poll.ExpiresIn <= 0 {
			return nil, errors.New("poll expiry must be positive")
		}
		for _, opt := range p.Poll.Options {
			v.Add("poll[options][]", opt)
		}
		v.Set("poll[expires_in]", strconv.Itoa(p.Poll.ExpiresIn))
		if p.Poll.Multiple {
			v.Set("poll[multiple]", "true")
		}
		if p.Poll.HideTotals {
			v.Set("poll[hide_totals]", "true")
		}
	}
	return v, nil
}

// TimelineQuery pages through a timeline.
type TimelineQuery struct {
	Limit   int
	MaxID   string
	SinceID string
	MinID   string
	Local   bool
}

func (q TimelineQuery) Values() (url.Values, error) {
	v := url.Values{}
	if q.Limit < 0 || q.Limit > 40 {
		return nil, errors.New("limit must be between 0 and 40")
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.MaxID != "" {
		v.Set("max_id", q.MaxID)
	}
	if q.SinceID != "" {
		v.Set("since_id", q.SinceID)
	}
	if q.MinID != "" {
		v.Set("min_id", q.MinID)
	}
	if q.Local {
		v.Set("local", "true")
	}
	return v, nil
}
