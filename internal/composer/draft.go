package composer

import (
	"tootline/internal/domain"
	"tootline/internal/endpoint"
)

// Draft is the post being composed.
type Draft struct {
	Content             string            `json:"content"`
	Mentions            string            `json:"mentions,omitempty"`
	Visibility          domain.Visibility `json:"visibility,omitempty"`
	Poll                *domain.PollDraft `json:"poll,omitempty"`
	Sensitive           bool              `json:"sensitive,omitempty"`
	SensitiveDisclaimer string            `json:"sensitive_disclaimer,omitempty"`
	Language            string            `json:"language,omitempty"`
	InReplyToID         string            `json:"in_reply_to_id,omitempty"`
	// PublishedStatusID marks an edit of an existing status.
	PublishedStatusID string `json:"published_status_id,omitempty"`
	IdempotencyKey    string `json:"idempotency_key,omitempty"`
}

func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	dup := *d
	dup.Poll = d.Poll.Clone()
	return &dup
}

func (d *Draft) IsEdit() bool { return d != nil && d.PublishedStatusID != "" }

// Text is the status body sent to the server.
func (d *Draft) Text() string { return d.Mentions + d.Content }

func (d *Draft) Count() int { return Count(d.Mentions, d.Content) }

// Params serializes the draft for the statuses endpoint.
func (d *Draft) Params() endpoint.StatusParams {
	return endpoint.StatusParams{
		Status:      d.Text(),
		Visibility:  d.Visibility,
		InReplyToID: d.InReplyToID,
		SpoilerText: d.SensitiveDisclaimer,
		Sensitive:   d.Sensitive,
		Language:    d.Language,
		Poll:        d.Poll,
	}
}
