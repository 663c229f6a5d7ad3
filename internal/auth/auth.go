package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"tootline/internal/domain"
	"tootline/internal/endpoint"
	"tootline/internal/events"
	"tootline/internal/mastodon"
	"tootline/internal/reducer"
	"tootline/internal/response"
	"tootline/internal/secure"
	"tootline/internal/transport"
)

type Phase string

const (
	PhaseSignedOut        Phase = "signed_out"
	PhaseRefreshing       Phase = "refreshing"
	PhaseSigninInProgress Phase = "signin_in_progress"
	PhaseAuthenticated    Phase = "authenticated"
)

var (
	ErrSigninInProgress     = errors.New("sign-in already in progress")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrNotSigningIn         = errors.New("no sign-in in progress")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrRefreshing           = errors.New("credentials are being restored")
	ErrDomainRejected       = errors.New("instance domain is rejected")
)

const (
	DefaultRedirectURI = "urn:ietf:wg:oauth:2.0:oob"
	DefaultAppName     = "tootline"
)

// DefaultScopes are requested when the config names none.
var DefaultScopes = []string{"read", "write", "follow"}

// State is the authentication state. Token is only set when authenticated.
type State struct {
	Phase            Phase         `json:"phase"`
	Domain           string        `json:"domain,omitempty"`
	AuthorizationURL string        `json:"authorization_url,omitempty"`
	Token            *domain.Token `json:"-"`
	// Err is the failure reported by the last transition, if any.
	Err error `json:"-"`
}

func (s State) Authenticated() bool { return s.Phase == PhaseAuthenticated && s.Token != nil }

// Event is accepted by the machine.
type Event interface {
	eventName() string
}

type StartOAuthFlow struct{ Domain string }

type ContinueOAuthFlow struct{ Code string }

type SignOut struct{}

type CancelSignin struct{}

type beginRestore struct{}

type finishRestore struct{}

func (StartOAuthFlow) eventName() string    { return "start_oauth_flow" }
func (ContinueOAuthFlow) eventName() string { return "continue_oauth_flow" }
func (SignOut) eventName() string           { return "sign_out" }
func (CancelSignin) eventName() string      { return "cancel_signin" }
func (beginRestore) eventName() string      { return "restore" }
func (finishRestore) eventName() string     { return "restored" }

type Config struct {
	App         domain.RegisteredApplication
	RedirectURI string
	Scopes      []string
	Rejected    *RejectionList
	// VerifyOnRestore checks a restored token against verify_credentials.
	VerifyOnRestore bool
}

func (c Config) withDefaults() Config {
	if c.App.Name == "" {
		c.App.Name = DefaultAppName
	}
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultRedirectURI
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if c.Rejected == nil {
		c.Rejected = NewRejectionList()
	}
	return c
}

type Option func(*Machine)

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithSink records every transition.
func WithSink(s events.Sink) Option {
	return func(m *Machine) { m.sink = s }
}

// Machine owns the credentials and drives the OAuth authorization-code flow.
type Machine struct {
	cfg       Config
	store     secure.Store
	transport transport.Transport
	log       *slog.Logger
	sink      events.Sink
	machine   *reducer.Machine[State, Event]
}

func New(store secure.Store, tr transport.Transport, cfg Config, opts ...Option) *Machine {
	m := &Machine{cfg: cfg.withDefaults(), store: store, transport: tr}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.machine = reducer.New(State{Phase: PhaseSignedOut}, m.step)
	return m
}

func (m *Machine) State() State { return m.machine.State() }

func (m *Machine) Subscribe(fn func(State)) func() { return m.machine.Subscribe(fn) }

// Cancel aborts the network call of the event in flight.
func (m *Machine) Cancel() bool { return m.machine.Cancel() }

// Restore loads persisted credentials. A stored token resumes the session;
// stored client credentials without a token resume a pending sign-in.
func (m *Machine) Restore(ctx context.Context) (State, error) {
	if _, err := m.machine.Emit(ctx, beginRestore{}); err != nil {
		return m.State(), err
	}
	return result(m.machine.Emit(ctx, finishRestore{}))
}

// StartOAuthFlow registers the client with domain and prepares the authorization URL.
func (m *Machine) StartOAuthFlow(ctx context.Context, instance string) (State, error) {
	s, err := m.machine.TryEmit(ctx, StartOAuthFlow{Domain: instance})
	if errors.Is(err, reducer.ErrBusy) {
		return s, fmt.Errorf("%w: %w", ErrSigninInProgress, err)
	}
	return result(s, err)
}

// ContinueOAuthFlow exchanges the authorization code for a token.
func (m *Machine) ContinueOAuthFlow(ctx context.Context, code string) (State, error) {
	return result(m.machine.TryEmit(ctx, ContinueOAuthFlow{Code: code}))
}

// SignOut revokes the token when possible and always clears local credentials.
func (m *Machine) SignOut(ctx context.Context) (State, error) {
	return result(m.machine.Emit(ctx, SignOut{}))
}

// CancelSignin aborts a pending sign-in and clears the partial credentials.
func (m *Machine) CancelSignin(ctx context.Context) (State, error) {
	m.machine.Cancel()
	return result(m.machine.Emit(ctx, CancelSignin{}))
}

// Client returns an authenticated client for the current session.
func (m *Machine) Client() (*mastodon.Client, error) {
	s := m.State()
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	origin, err := mastodon.ParseOrigin(s.Domain)
	if err != nil {
		return nil, err
	}
	return m.client(origin).Authenticated(s.Token.AccessToken), nil
}

func result(s State, err error) (State, error) {
	if err != nil {
		return s, err
	}
	return s, s.Err
}

func (m *Machine) client(origin *url.URL) *mastodon.Client {
	return mastodon.New(origin, m.transport, mastodon.WithLogger(m.log))
}

func (m *Machine) step(ctx context.Context, s State, e Event) (State, error) {
	next, err := m.reduce(ctx, s, e)
	m.record(ctx, s, next, e, err)
	return next, err
}

func (m *Machine) record(ctx context.Context, from, next State, e Event, err error) {
	to := next.Phase
	failure := next.Err
	if err != nil {
		to = from.Phase
		failure = err
	}
	dom := next.Domain
	if dom == "" {
		dom = from.Domain
	}
	attrs := []any{"event", e.eventName(), "from", string(from.Phase), "to", string(to)}
	if dom != "" {
		attrs = append(attrs, "domain", dom)
	}
	if failure != nil {
		m.log.Warn("auth transition failed", append(attrs, "error", failure)...)
	} else {
		m.log.Info("auth transition", attrs...)
	}
	if m.sink == nil {
		return
	}
	rec := events.Record{
		Machine:       events.MachineAuth,
		Event:         e.eventName(),
		From:          string(from.Phase),
		To:            string(to),
		Err:           failure,
		Detail:        events.Detail{"domain": dom},
		CorrelationID: uuid.NewString(),
	}
	if appendErr := m.sink.Append(context.WithoutCancel(ctx), rec); appendErr != nil {
		m.log.Warn("record auth transition", "error", appendErr)
	}
}

func (m *Machine) reduce(ctx context.Context, s State, e Event) (State, error) {
	switch ev := e.(type) {
	case beginRestore:
		if s.Phase != PhaseSignedOut {
			return s, fmt.Errorf("restore while %s", s.Phase)
		}
		return State{Phase: PhaseRefreshing}, nil
	case finishRestore:
		if s.Phase != PhaseRefreshing {
			return s, fmt.Errorf("finish restore while %s", s.Phase)
		}
		return m.restore(ctx), nil
	case StartOAuthFlow:
		if err := ensurePhase(s.Phase, PhaseSignedOut); err != nil {
			return s, err
		}
		return m.start(ctx, ev.Domain)
	case ContinueOAuthFlow:
		if err := ensurePhase(s.Phase, PhaseSigninInProgress); err != nil {
			return s, err
		}
		return m.exchange(ctx, s, ev.Code), nil
	case SignOut:
		return m.signOut(ctx), nil
	case CancelSignin:
		switch s.Phase {
		case PhaseSignedOut:
			return s, nil
		case PhaseSigninInProgress:
			if err := m.store.Flush(context.WithoutCancel(ctx)); err != nil {
				return State{Phase: PhaseSignedOut, Err: fmt.Errorf("flush credentials: %w", err)}, nil
			}
			return State{Phase: PhaseSignedOut}, nil
		}
		return s, ensurePhase(s.Phase, PhaseSigninInProgress)
	}
	return s, fmt.Errorf("unsupported auth event %T", e)
}

// ensurePhase explains why current does not accept an event that needs want.
func ensurePhase(current, want Phase) error {
	if current == want {
		return nil
	}
	switch current {
	case PhaseSigninInProgress:
		return ErrSigninInProgress
	case PhaseAuthenticated:
		return ErrAlreadyAuthenticated
	case PhaseRefreshing:
		return ErrRefreshing
	case PhaseSignedOut:
		return ErrNotSigningIn
	}
	return fmt.Errorf("invalid auth transition from %s", current)
}

func (m *Machine) checkDomain(instance string) (*url.URL, error) {
	origin, err := mastodon.ParseOrigin(instance)
	if err != nil {
		return nil, err
	}
	if m.cfg.Rejected.Rejects(origin.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrDomainRejected, origin.Hostname())
	}
	return origin, nil
}

func (m *Machine) start(ctx context.Context, instance string) (State, error) {
	origin, err := m.checkDomain(instance)
	if err != nil {
		return State{Phase: PhaseSignedOut}, err
	}
	dom := domainKey(origin)
	signedOut := func(err error) State {
		if flushErr := m.store.Flush(context.WithoutCancel(ctx)); flushErr != nil {
			err = errors.Join(err, fmt.Errorf("flush credentials: %w", flushErr))
		}
		return State{Phase: PhaseSignedOut, Err: err}
	}
	if err := m.store.Set(ctx, secure.KeyInstanceDomain, dom); err != nil {
		return signedOut(fmt.Errorf("persist domain: %w", err)), nil
	}
	res := m.client(origin).RegisterApp(ctx, endpoint.AppRegistration{
		ClientName:   m.cfg.App.Name,
		RedirectURIs: m.cfg.RedirectURI,
		Scopes:       strings.Join(m.cfg.Scopes, " "),
		Website:      m.cfg.App.Website,
	})
	if res.Err != nil {
		return signedOut(fmt.Errorf("register application: %w", res.Err)), nil
	}
	app := res.Value
	if app.ClientID == "" || app.ClientSecret == "" {
		return signedOut(errors.New("register application: server returned no client credentials")), nil
	}
	if err := m.store.Set(ctx, secure.KeyClientID, app.ClientID); err != nil {
		return signedOut(fmt.Errorf("persist client id: %w", err)), nil
	}
	if err := m.store.Set(ctx, secure.KeyClientSecret, app.ClientSecret); err != nil {
		return signedOut(fmt.Errorf("persist client secret: %w", err)), nil
	}
	return State{
		Phase:            PhaseSigninInProgress,
		Domain:           dom,
		AuthorizationURL: m.authorizationURL(origin, app.ClientID),
	}, nil
}

func (m *Machine) exchange(ctx context.Context, s State, code string) State {
	pending := s
	pending.Err = nil
	fail := func(err error) State {
		pending.Err = err
		return pending
	}
	creds, err := secure.LoadCredentials(ctx, m.store)
	if err != nil {
		return fail(fmt.Errorf("read credentials: %w", err))
	}
	origin, err := mastodon.ParseOrigin(creds.InstanceDomain)
	if err != nil {
		return fail(err)
	}
	res := m.client(origin).ExchangeToken(ctx, endpoint.TokenRequest{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURI:  m.cfg.RedirectURI,
		Code:         code,
		Scope:        strings.Join(m.cfg.Scopes, " "),
	})
	if res.Err != nil {
		return fail(fmt.Errorf("exchange authorization code: %w", res.Err))
	}
	token := res.Value
	if token.AccessToken == "" {
		return fail(errors.New("exchange authorization code: server returned no access token"))
	}
	if err := m.store.Set(ctx, secure.KeyAccessToken, token.AccessToken); err != nil {
		return fail(fmt.Errorf("persist token: %w", err))
	}
	return State{Phase: PhaseAuthenticated, Domain: domainKey(origin), Token: &token}
}

func (m *Machine) signOut(ctx context.Context) State {
	creds, err := secure.LoadCredentials(ctx, m.store)
	if err != nil {
		m.log.Warn("read credentials before sign-out", "error", err)
	}
	if creds.AccessToken != "" && creds.HasClient() {
		if origin, err := mastodon.ParseOrigin(creds.InstanceDomain); err == nil {
			res := m.client(origin).RevokeToken(ctx, endpoint.RevokeRequest{
				ClientID:     creds.ClientID,
				ClientSecret: creds.ClientSecret,
				Token:        creds.AccessToken,
			})
			if res.Err != nil {
				m.log.Warn("token revoke failed; clearing local credentials anyway", "domain", creds.InstanceDomain, "kind", string(res.Err.Kind), "status", res.Err.StatusCode)
			}
		}
	}
	if err := m.store.Flush(context.WithoutCancel(ctx)); err != nil {
		return State{Phase: PhaseSignedOut, Err: fmt.Errorf("flush credentials: %w", err)}
	}
	return State{Phase: PhaseSignedOut}
}

func (m *Machine) restore(ctx context.Context) State {
	creds, err := secure.LoadCredentials(ctx, m.store)
	if err != nil {
		return State{Phase: PhaseSignedOut, Err: fmt.Errorf("restore credentials: %w", err)}
	}
	if creds.InstanceDomain == "" {
		return State{Phase: PhaseSignedOut}
	}
	origin, err := m.checkDomain(creds.InstanceDomain)
	if err != nil {
		if flushErr := m.store.Flush(ctx); flushErr != nil {
			err = errors.Join(err, flushErr)
		}
		return State{Phase: PhaseSignedOut, Err: err}
	}
	dom := domainKey(origin)
	switch {
	case creds.AccessToken != "":
		token := &domain.Token{AccessToken: creds.AccessToken, TokenType: "Bearer", Scope: strings.Join(m.cfg.Scopes, " ")}
		if m.cfg.VerifyOnRestore {
			res := m.client(origin).Authenticated(token.AccessToken).VerifyCredentials(ctx)
			if res.Err != nil {
				if res.Err.Kind == response.KindServerError && res.Err.StatusCode == http.StatusUnauthorized {
					_ = m.store.Flush(ctx)
					return State{Phase: PhaseSignedOut, Err: fmt.Errorf("stored token rejected: %w", res.Err)}
				}
				m.log.Warn("could not verify restored token", "domain", dom, "kind", string(res.Err.Kind))
			}
		}
		return State{Phase: PhaseAuthenticated, Domain: dom, Token: token}
	case creds.HasClient():
		return State{Phase: PhaseSigninInProgress, Domain: dom, AuthorizationURL: m.authorizationURL(origin, creds.ClientID)}
	}
	// A domain without client credentials is a registration that never finished.
	if err := m.store.Flush(ctx); err != nil {
		return State{Phase: PhaseSignedOut, Err: fmt.Errorf("flush credentials: %w", err)}
	}
	return State{Phase: PhaseSignedOut}
}

func (m *Machine) authorizationURL(origin *url.URL, clientID string) string {
	base := strings.TrimRight(origin.String(), "/")
	cfg := oauth2.Config{
		ClientID:    clientID,
		RedirectURL: m.cfg.RedirectURI,
		Scopes:      m.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  base + endpoint.New(endpoint.Authorize).MustResolve().Path,
			TokenURL: base + endpoint.New(endpoint.Token).MustResolve().Path,
		},
	}
	return cfg.AuthCodeURL("")
}

// domainKey is the stored form of an origin: the bare host for https.
func domainKey(origin *url.URL) string {
	if origin.Scheme == "https" {
		return origin.Host
	}
	return origin.Scheme + "://" + origin.Host
}
