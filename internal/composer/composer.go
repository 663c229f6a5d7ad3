package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tootline/internal/domain"
	"tootline/internal/endpoint"
	"tootline/internal/events"
	"tootline/internal/reducer"
	"tootline/internal/response"
)

type Phase string

const (
	PhaseInitial   Phase = "initial"
	PhaseEditing   Phase = "editing"
	PhasePublished Phase = "published"
	PhaseErrored   Phase = "errored"
)

type ErrorKind string

const (
	KindExceedsCharacterLimit    ErrorKind = "exceeds_character_limit"
	KindNoDraftSupplied          ErrorKind = "no_draft_supplied"
	KindUnsupportedEventDispatch ErrorKind = "unsupported_event_dispatch"
	KindMismatchedContent        ErrorKind = "mismatched_content"
	KindMastodonError            ErrorKind = "mastodon_error"
)

// FlowError is why the composer is errored. Every kind is recoverable.
type FlowError struct {
	Kind  ErrorKind `json:"kind"`
	Event string    `json:"event,omitempty"`
	Cause error     `json:"-"`
}

func (e *FlowError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	case e.Event != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Event)
	}
	return string(e.Kind)
}

func (e *FlowError) Unwrap() error { return e.Cause }

// State is the composer state. Draft survives into errored.
type State struct {
	Phase  Phase          `json:"phase"`
	Draft  *Draft         `json:"draft,omitempty"`
	Status *domain.Status `json:"status,omitempty"`
	Err    *FlowError     `json:"error,omitempty"`
}

type Event interface {
	eventName() string
}

type StartDraft struct{ Draft *Draft }

type UpdateContent struct{ Content string }

type UpdateParticipants struct{ Mentions string }

type UpdateLocalizationCode struct{ Language string }

type UpdatePoll struct{ Poll *domain.PollDraft }

type UpdateVisibility struct{ Visibility domain.Visibility }

type UpdateContentWarning struct {
	Sensitive  bool
	Disclaimer string
}

type Publish struct{}

type Reset struct{}

// Recover returns an errored composer to editing its draft.
type Recover struct{}

func (StartDraft) eventName() string             { return "start_draft" }
func (UpdateContent) eventName() string          { return "update_content" }
func (UpdateParticipants) eventName() string     { return "update_participants" }
func (UpdateLocalizationCode) eventName() string { return "update_localization_code" }
func (UpdatePoll) eventName() string             { return "update_poll" }
func (UpdateVisibility) eventName() string       { return "update_visibility" }
func (UpdateContentWarning) eventName() string   { return "update_content_warning" }
func (Publish) eventName() string                { return "publish" }
func (Reset) eventName() string                  { return "reset" }
func (Recover) eventName() string                { return "recover" }

// Publisher sends statuses. *mastodon.Client satisfies it.
type Publisher interface {
	PublishStatus(ctx context.Context, p endpoint.StatusParams, key string) response.Result[domain.Status]
	EditStatus(ctx context.Context, id string, p endpoint.StatusParams, key string) response.Result[domain.Status]
}

type Option func(*Machine)

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

func WithSink(s events.Sink) Option {
	return func(m *Machine) { m.sink = s }
}

func WithPolicy(p Policy) Option {
	return func(m *Machine) { m.policy = p }
}

type Machine struct {
	publisher Publisher
	log       *slog.Logger
	sink      events.Sink
	machine   *reducer.Machine[State, Event]

	mu     sync.RWMutex
	policy Policy
}

func New(pub Publisher, opts ...Option) *Machine {
	m := &Machine{publisher: pub, policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.machine = reducer.New(State{Phase: PhaseInitial}, m.step)
	return m
}

func (m *Machine) State() State { return m.machine.State() }

func (m *Machine) Subscribe(fn func(State)) func() { return m.machine.Subscribe(fn) }

// Cancel aborts an in-flight publish.
func (m *Machine) Cancel() bool { return m.machine.Cancel() }

func (m *Machine) Policy() Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

func (m *Machine) SetPolicy(p Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
}

// ApplyInstanceLimit adopts the instance's max_characters when it reports one.
func (m *Machine) ApplyInstanceLimit(inst domain.Instance) Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := inst.Configuration.Statuses.MaxCharacters; n > 0 {
		m.policy.Limit = n
	}
	return m.policy
}

// Emit applies an editing event. Publish goes through Publish.
func (m *Machine) Emit(ctx context.Context, e Event) (State, error) {
	if _, ok := e.(Publish); ok {
		return m.Publish(ctx)
	}
	return m.machine.Emit(ctx, e)
}

// Publish sends the draft. A publish racing another event returns
// reducer.ErrBusy and makes no network call.
func (m *Machine) Publish(ctx context.Context) (State, error) {
	return m.machine.TryEmit(ctx, Publish{})
}

func (m *Machine) step(ctx context.Context, s State, e Event) (State, error) {
	next := m.reduce(ctx, s, e)
	m.record(ctx, s, next, e)
	return next, nil
}

func (m *Machine) record(ctx context.Context, from, next State, e Event) {
	attrs := []any{"event", e.eventName(), "from", string(from.Phase), "to", string(next.Phase)}
	var failure error
	if next.Err != nil {
		failure = next.Err
		m.log.Warn("composer transition failed", append(attrs, "error", next.Err)...)
	} else {
		m.log.Debug("composer transition", attrs...)
	}
	if m.sink == nil {
		return
	}
	detail := events.Detail{}
	if next.Draft != nil {
		detail["characters"] = next.Draft.Count()
	}
	if next.Status != nil {
		detail["status_id"] = next.Status.ID
	}
	rec := events.Record{
		Machine:       events.MachineComposer,
		Event:         e.eventName(),
		From:          string(from.Phase),
		To:            string(next.Phase),
		Err:           failure,
		Detail:        detail,
		CorrelationID: correlationID(next, from),
	}
	if err := m.sink.Append(context.WithoutCancel(ctx), rec); err != nil {
		m.log.Warn("record composer transition", "error", err)
	}
}

func correlationID(states ...State) string {
	for _, s := range states {
		if s.Draft != nil && s.Draft.IdempotencyKey != "" {
			return s.Draft.IdempotencyKey
		}
	}
	return ""
}

func errored(kind ErrorKind, event Event, draft *Draft, cause error) State {
	return State{Phase: PhaseErrored, Draft: draft, Err: &FlowError{Kind: kind, Event: event.eventName(), Cause: cause}}
}

func (m *Machine) reduce(ctx context.Context, s State, e Event) State {
	if _, ok := e.(Reset); ok {
		return State{Phase: PhaseInitial}
	}
	switch s.Phase {
	case PhaseInitial:
		switch ev := e.(type) {
		case StartDraft:
			if ev.Draft == nil {
				return errored(KindNoDraftSupplied, e, nil, nil)
			}
			d := ev.Draft.Clone()
			if d.IdempotencyKey == "" {
				d.IdempotencyKey = uuid.NewString()
			}
			if d.Visibility == "" {
				d.Visibility = domain.VisibilityPublic
			}
			return State{Phase: PhaseEditing, Draft: d}
		case Publish:
			return errored(KindNoDraftSupplied, e, nil, nil)
		}
	case PhaseEditing:
		if _, ok := e.(Publish); ok {
			return m.publish(ctx, s.Draft, e)
		}
		if d, ok := applyUpdate(s.Draft, e); ok {
			return State{Phase: PhaseEditing, Draft: d}
		}
	case PhaseErrored:
		if _, ok := e.(Recover); ok {
			if s.Draft == nil {
				return State{Phase: PhaseInitial}
			}
			return State{Phase: PhaseEditing, Draft: s.Draft}
		}
	}
	return errored(KindUnsupportedEventDispatch, e, s.Draft, nil)
}

// applyUpdate touches only the field its event names.
func applyUpdate(draft *Draft, e Event) (*Draft, bool) {
	d := draft.Clone()
	if d == nil {
		return nil, false
	}
	switch ev := e.(type) {
	case UpdateContent:
		d.Content = ev.Content
	case UpdateParticipants:
		d.Mentions = ev.Mentions
	case UpdateLocalizationCode:
		d.Language = ev.Language
	case UpdatePoll:
		d.Poll = ev.Poll.Clone()
	case UpdateVisibility:
		d.Visibility = ev.Visibility
	case UpdateContentWarning:
		d.Sensitive = ev.Sensitive
		d.SensitiveDisclaimer = ev.Disclaimer
	default:
		return nil, false
	}
	return d, true
}

func (m *Machine) publish(ctx context.Context, d *Draft, e Event) State {
	policy := m.Policy()
	if !policy.Allows(d.Mentions, d.Content) {
		cause := fmt.Errorf("%d characters over a limit of %d", d.Count()-policy.Limit, policy.Limit)
		return errored(KindExceedsCharacterLimit, e, d, cause)
	}
	if m.publisher == nil {
		return errored(KindMastodonError, e, d, errors.New("not signed in"))
	}
	var res response.Result[domain.Status]
	if d.IsEdit() {
		res = m.publisher.EditStatus(ctx, d.PublishedStatusID, d.Params(), d.IdempotencyKey)
	} else {
		res = m.publisher.PublishStatus(ctx, d.Params(), d.IdempotencyKey)
	}
	if res.Err != nil {
		return errored(KindMastodonError, e, d, res.Err)
	}
	status := res.Value
	if d.IsEdit() && status.ID != d.PublishedStatusID {
		cause := fmt.Errorf("edited %s but server returned %s", d.PublishedStatusID, status.ID)
		return errored(KindMismatchedContent, e, d, cause)
	}
	return State{Phase: PhasePublished, Status: &status}
}
