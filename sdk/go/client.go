package tootlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal client for the tl serve control API.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: token,
		Timeout:     30 * time.Second,
	}
}

// AuthState mirrors the auth machine without its secrets.
type AuthState struct {
	Phase            string `json:"phase"`
	Domain           string `json:"domain,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	Scope            string `json:"scope,omitempty"`
	Error            string `json:"error,omitempty"`
}

type Poll struct {
	Options    []string `json:"options"`
	ExpiresIn  int      `json:"expires_in"`
	Multiple   bool     `json:"multiple,omitempty"`
	HideTotals bool     `json:"hide_totals,omitempty"`
}

// Draft starts a composer session.
type Draft struct {
	Content      string `json:"content,omitempty"`
	Mentions     string `json:"mentions,omitempty"`
	Visibility   string `json:"visibility,omitempty"`
	Poll         *Poll  `json:"poll,omitempty"`
	Sensitive    bool   `json:"sensitive,omitempty"`
	SpoilerText  string `json:"spoiler_text,omitempty"`
	Language     string `json:"language,omitempty"`
	InReplyToID  string `json:"in_reply_to_id,omitempty"`
	EditStatusID string `json:"edit_status_id,omitempty"`
}

// DraftUpdate changes only the fields that are set.
type DraftUpdate struct {
	Content     *string `json:"content,omitempty"`
	Mentions    *string `json:"mentions,omitempty"`
	Language    *string `json:"language,omitempty"`
	Visibility  *string `json:"visibility,omitempty"`
	Poll        *Poll   `json:"poll,omitempty"`
	RemovePoll  bool    `json:"remove_poll,omitempty"`
	Sensitive   *bool   `json:"sensitive,omitempty"`
	SpoilerText *string `json:"spoiler_text,omitempty"`
}

type FlowError struct {
	Kind    string `json:"kind"`
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type Status struct {
	ID         string `json:"id"`
	URL        string `json:"url,omitempty"`
	Visibility string `json:"visibility"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// ComposeState is the composer machine as the API reports it. The draft
// is kept raw so callers decode only what they need.
type ComposeState struct {
	Phase     string          `json:"phase"`
	Draft     json.RawMessage `json:"draft,omitempty"`
	Remaining *int            `json:"remaining,omitempty"`
	Status    *Status         `json:"status,omitempty"`
	Error     *FlowError      `json:"error,omitempty"`
}

type Count struct {
	Count     int  `json:"count"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Allowed   bool `json:"allowed"`
}

// Transition is one logged state-machine step.
type Transition struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts"`
	Machine       string `json:"machine"`
	Event         string `json:"event"`
	From          string `json:"from"`
	To            string `json:"to"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) AuthState(ctx context.Context) (AuthState, error) {
	var resp AuthState
	err := c.do(ctx, http.MethodGet, "auth/state", nil, &resp)
	return resp, err
}

// Login registers with an instance and returns the authorization URL.
func (c *Client) Login(ctx context.Context, domain string) (AuthState, error) {
	var resp AuthState
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]string{"domain": domain}, &resp)
	return resp, err
}

func (c *Client) SubmitCode(ctx context.Context, code string) (AuthState, error) {
	var resp AuthState
	err := c.do(ctx, http.MethodPost, "auth/code", map[string]string{"code": code}, &resp)
	return resp, err
}

func (c *Client) Logout(ctx context.Context) (AuthState, error) {
	var resp AuthState
	err := c.do(ctx, http.MethodPost, "auth/logout", nil, &resp)
	return resp, err
}

func (c *Client) CancelSignin(ctx context.Context) (AuthState, error) {
	var resp AuthState
	err := c.do(ctx, http.MethodPost, "auth/cancel", nil, &resp)
	return resp, err
}

func (c *Client) ComposeState(ctx context.Context) (ComposeState, error) {
	var resp ComposeState
	err := c.do(ctx, http.MethodGet, "compose/state", nil, &resp)
	return resp, err
}

func (c *Client) StartDraft(ctx context.Context, d Draft) (ComposeState, error) {
	var resp ComposeState
	err := c.do(ctx, http.MethodPost, "compose/draft", d, &resp)
	return resp, err
}

func (c *Client) UpdateDraft(ctx context.Context, u DraftUpdate) (ComposeState, error) {
	var resp ComposeState
	err := c.do(ctx, http.MethodPatch, "compose/draft", u, &resp)
	return resp, err
}

// Publish sends the draft. A rejected publish comes back as an errored
// state with Error set, not as an APIError.
func (c *Client) Publish(ctx context.Context) (ComposeState, error) {
	var resp ComposeState
	err := c.do(ctx, http.MethodPost, "compose/publish", nil, &resp)
	return resp, err
}

func (c *Client) Reset(ctx context.Context) (ComposeState, error) {
	var resp ComposeState
	err := c.do(ctx, http.MethodPost, "compose/reset", nil, &resp)
	return resp, err
}

func (c *Client) Recover(ctx context.Context) (ComposeState, error) {
	var resp ComposeState
	err := c.do(ctx, http.MethodPost, "compose/recover", nil, &resp)
	return resp, err
}

func (c *Client) Count(ctx context.Context, mentions, content string) (Count, error) {
	var resp Count
	err := c.do(ctx, http.MethodPost, "compose/count", map[string]string{"mentions": mentions, "content": content}, &resp)
	return resp, err
}

// ComposeFromLink starts a draft from a tootline://compose link.
func (c *Client) ComposeFromLink(ctx context.Context, link string) (ComposeState, error) {
	var resp ComposeState
	err := c.do(ctx, http.MethodPost, "compose/link", map[string]string{"url": link}, &resp)
	return resp, err
}

// Transitions returns recent transitions, newest first. machine may be empty.
func (c *Client) Transitions(ctx context.Context, machine string, limit int) ([]Transition, error) {
	q := url.Values{}
	if machine != "" {
		q.Set("machine", machine)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "transitions"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Transition
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var rdr io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		rdr = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
