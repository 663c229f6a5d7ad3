package server

import (
	"tootline/internal/auth"
	"tootline/internal/composer"
	"tootline/internal/domain"
	"tootline/internal/repo"
)

// Request payloads

type LoginRequest struct {
	Domain string `json:"domain" example:"mastodon.social"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

type PollRequest struct {
	Options    []string `json:"options" minItems:"2"`
	ExpiresIn  int      `json:"expires_in" minimum:"1"`
	Multiple   bool     `json:"multiple,omitempty"`
	HideTotals bool     `json:"hide_totals,omitempty"`
}

func (p *PollRequest) toDomain() *domain.PollDraft {
	if p == nil {
		return nil
	}
	return &domain.PollDraft{
		Options:    append([]string(nil), p.Options...),
		ExpiresIn:  p.ExpiresIn,
		Multiple:   p.Multiple,
		HideTotals: p.HideTotals,
	}
}

type DraftRequest struct {
	Content      string       `json:"content,omitempty"`
	Mentions     string       `json:"mentions,omitempty"`
	Visibility   string       `json:"visibility,omitempty" enum:"public,unlisted,private,direct"`
	Poll         *PollRequest `json:"poll,omitempty"`
	Sensitive    bool         `json:"sensitive,omitempty"`
	SpoilerText  string       `json:"spoiler_text,omitempty"`
	Language     string       `json:"language,omitempty"`
	InReplyToID  string       `json:"in_reply_to_id,omitempty"`
	EditStatusID string       `json:"edit_status_id,omitempty"`
}

func (r DraftRequest) toDraft() (*composer.Draft, error) {
	vis, err := domain.ParseVisibility(r.Visibility)
	if err != nil {
		return nil, err
	}
	return &composer.Draft{
		Content:             r.Content,
		Mentions:            r.Mentions,
		Visibility:          vis,
		Poll:                r.Poll.toDomain(),
		Sensitive:           r.Sensitive,
		SensitiveDisclaimer: r.SpoilerText,
		Language:            r.Language,
		InReplyToID:         r.InReplyToID,
		PublishedStatusID:   r.EditStatusID,
	}, nil
}

// UpdateDraftRequest emits one update event per field present.
type UpdateDraftRequest struct {
	Content     *string      `json:"content,omitempty"`
	Mentions    *string      `json:"mentions,omitempty"`
	Language    *string      `json:"language,omitempty"`
	Visibility  *string      `json:"visibility,omitempty" enum:"public,unlisted,private,direct"`
	Poll        *PollRequest `json:"poll,omitempty"`
	RemovePoll  bool         `json:"remove_poll,omitempty"`
	Sensitive   *bool        `json:"sensitive,omitempty"`
	SpoilerText *string      `json:"spoiler_text,omitempty"`
}

type CountRequest struct {
	Mentions string `json:"mentions,omitempty"`
	Content  string `json:"content"`
}

type LinkRequest struct {
	URL string `json:"url" example:"tootline://compose?reply_to=1"`
}

// Response payloads

type AuthStateResponse struct {
	Phase            string `json:"phase" enum:"signed_out,refreshing,signin_in_progress,authenticated"`
	Domain           string `json:"domain,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	Scope            string `json:"scope,omitempty"`
	Error            string `json:"error,omitempty"`
}

func mapAuthState(s auth.State) AuthStateResponse {
	out := AuthStateResponse{
		Phase:            string(s.Phase),
		Domain:           s.Domain,
		AuthorizationURL: s.AuthorizationURL,
	}
	if s.Token != nil {
		out.Scope = s.Token.Scope
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return out
}

type FlowErrorResponse struct {
	Kind    string `json:"kind" enum:"exceeds_character_limit,no_draft_supplied,unsupported_event_dispatch,mismatched_content,mastodon_error"`
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type StatusSummary struct {
	ID         string `json:"id"`
	URL        string `json:"url,omitempty"`
	Visibility string `json:"visibility"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at,omitempty"`
}

func mapStatus(s *domain.Status) *StatusSummary {
	if s == nil {
		return nil
	}
	out := &StatusSummary{ID: s.ID, Visibility: string(s.Visibility), Content: s.Content, CreatedAt: s.CreatedAt}
	if s.URL != nil {
		out.URL = *s.URL
	}
	return out
}

type ComposeStateResponse struct {
	Phase     string             `json:"phase" enum:"initial,editing,published,errored"`
	Draft     *composer.Draft    `json:"draft,omitempty"`
	Remaining *int               `json:"remaining,omitempty"`
	Status    *StatusSummary     `json:"status,omitempty"`
	Error     *FlowErrorResponse `json:"error,omitempty"`
}

func mapComposeState(s composer.State, policy composer.Policy) ComposeStateResponse {
	out := ComposeStateResponse{
		Phase:  string(s.Phase),
		Draft:  s.Draft,
		Status: mapStatus(s.Status),
	}
	if s.Draft != nil {
		rem := policy.Remaining(s.Draft.Mentions, s.Draft.Content)
		out.Remaining = &rem
	}
	if s.Err != nil {
		out.Error = &FlowErrorResponse{Kind: string(s.Err.Kind), Event: s.Err.Event, Message: s.Err.Error()}
	}
	return out
}

type CountResponse struct {
	Count     int  `json:"count"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Allowed   bool `json:"allowed"`
}

type TransitionResponse struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts"`
	Machine       string `json:"machine"`
	Event         string `json:"event"`
	From          string `json:"from"`
	To            string `json:"to"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func mapTransitions(items []repo.Transition) []TransitionResponse {
	out := make([]TransitionResponse, 0, len(items))
	for _, t := range items {
		out = append(out, TransitionResponse{
			ID:            t.ID,
			TS:            t.TS,
			Machine:       t.Machine,
			Event:         t.Event,
			From:          t.From,
			To:            t.To,
			Error:         t.Error,
			CorrelationID: t.CorrelationID,
		})
	}
	return out
}
