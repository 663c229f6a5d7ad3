package composer_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tootline/internal/composer"
	"tootline/internal/domain"
	"tootline/internal/endpoint"
	"tootline/internal/mastodon"
	"tootline/internal/reducer"
	"tootline/internal/response"
	"tootline/internal/transport"
)

type fakePublisher struct {
	calls   atomic.Int32
	edits   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
	editID  string
	fail    *response.FetchError
	last    endpoint.StatusParams
	lastKey string
}

func (f *fakePublisher) PublishStatus(ctx context.Context, p endpoint.StatusParams, key string) response.Result[domain.Status] {
	f.calls.Add(1)
	f.last, f.lastKey = p, key
	if f.entered != nil {
		close(f.entered)
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.fail != nil {
		return response.Failure[domain.Status](f.fail)
	}
	return response.Success(domain.Status{ID: "101", Content: p.Status, Visibility: p.Visibility})
}

func (f *fakePublisher) EditStatus(ctx context.Context, id string, p endpoint.StatusParams, key string) response.Result[domain.Status] {
	f.edits.Add(1)
	f.last, f.lastKey = p, key
	returned := id
	if f.editID != "" {
		returned = f.editID
	}
	return response.Success(domain.Status{ID: returned, Content: p.Status})
}

func startEditing(t *testing.T, m *composer.Machine, d composer.Draft) {
	t.Helper()
	s, err := m.Emit(context.Background(), composer.StartDraft{Draft: &d})
	if err != nil || s.Phase != composer.PhaseEditing {
		t.Fatalf("start draft: %+v %v", s, err)
	}
}

func TestPublishFromInitialHasNoDraft(t *testing.T) {
	pub := &fakePublisher{}
	m := composer.New(pub)
	s, err := m.Publish(context.Background())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if s.Phase != composer.PhaseErrored || s.Err.Kind != composer.KindNoDraftSupplied {
		t.Fatalf("expected no_draft_supplied, got %+v", s)
	}
	if pub.calls.Load() != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestStartDraftNil(t *testing.T) {
	m := composer.New(&fakePublisher{})
	s, _ := m.Emit(context.Background(), composer.StartDraft{})
	if s.Phase != composer.PhaseErrored || s.Err.Kind != composer.KindNoDraftSupplied {
		t.Fatalf("expected no_draft_supplied, got %+v", s)
	}
}

func TestUpdatesTouchOnlyTheirField(t *testing.T) {
	ctx := context.Background()
	run := func(evs []composer.Event) *composer.Draft {
		m := composer.New(&fakePublisher{})
		startEditing(t, m, composer.Draft{Content: "start", IdempotencyKey: "k"})
		for _, e := range evs {
			if _, err := m.Emit(ctx, e); err != nil {
				t.Fatalf("emit: %v", err)
			}
		}
		return m.State().Draft
	}
	evs := []composer.Event{
		composer.UpdateContent{Content: "hello"},
		composer.UpdateParticipants{Mentions: "@bob "},
		composer.UpdateLocalizationCode{Language: "fr"},
		composer.UpdatePoll{Poll: &domain.PollDraft{Options: []string{"a", "b"}, ExpiresIn: 3600}},
		composer.UpdateVisibility{Visibility: domain.VisibilityUnlisted},
		composer.UpdateContentWarning{Sensitive: true, Disclaimer: "spoilers"},
	}
	forward := run(evs)
	reversed := make([]composer.Event, len(evs))
	for i := range evs {
		reversed[len(evs)-1-i] = evs[i]
	}
	backward := run(reversed)
	if !reflect.DeepEqual(forward, backward) {
		t.Fatalf("updates are order dependent:\n%+v\n%+v", forward, backward)
	}
	if forward.Content != "hello" || forward.Mentions != "@bob " || forward.Language != "fr" ||
		forward.Visibility != domain.VisibilityUnlisted || !forward.Sensitive || forward.SensitiveDisclaimer != "spoilers" ||
		forward.IdempotencyKey != "k" {
		t.Fatalf("unexpected draft %+v", forward)
	}
}

func TestUnsupportedEventKeepsDraft(t *testing.T) {
	ctx := context.Background()
	m := composer.New(&fakePublisher{})
	if s, _ := m.Emit(ctx, composer.UpdateContent{Content: "x"}); s.Phase != composer.PhaseErrored || s.Err.Kind != composer.KindUnsupportedEventDispatch {
		t.Fatalf("update from initial should be unsupported, got %+v", s)
	}
	m.Emit(ctx, composer.Reset{})
	startEditing(t, m, composer.Draft{Content: "keep me"})
	s, _ := m.Emit(ctx, composer.StartDraft{Draft: &composer.Draft{Content: "other"}})
	if s.Phase != composer.PhaseErrored || s.Err.Kind != composer.KindUnsupportedEventDispatch || s.Draft.Content != "keep me" {
		t.Fatalf("expected unsupported with draft kept, got %+v", s)
	}
	s, _ = m.Emit(ctx, composer.Recover{})
	if s.Phase != composer.PhaseEditing || s.Draft.Content != "keep me" {
		t.Fatalf("recover: %+v", s)
	}
	s, _ = m.Emit(ctx, composer.Reset{})
	if s.Phase != composer.PhaseInitial || s.Draft != nil {
		t.Fatalf("reset: %+v", s)
	}
}

func TestPublishBlockedByLimit(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	m := composer.New(pub, composer.WithPolicy(composer.Policy{Limit: 30, Enforce: true}))
	startEditing(t, m, composer.Draft{Content: "see https://example.com/a/very/long/path/that/does/not/count"})
	// 4 + 23 = 27 fits under 30
	s, err := m.Publish(ctx)
	if err != nil || s.Phase != composer.PhasePublished {
		t.Fatalf("expected published, got %+v %v", s, err)
	}

	m.Emit(ctx, composer.Reset{})
	startEditing(t, m, composer.Draft{Content: strings.Repeat("a", 31)})
	s, _ = m.Publish(ctx)
	if s.Phase != composer.PhaseErrored || s.Err.Kind != composer.KindExceedsCharacterLimit {
		t.Fatalf("expected exceeds_character_limit, got %+v", s)
	}
	if s.Draft == nil || len(s.Draft.Content) != 31 {
		t.Fatalf("draft discarded on limit error")
	}
	if pub.calls.Load() != 1 {
		t.Fatalf("expected only the first publish to reach the network, got %d", pub.calls.Load())
	}

	m.SetPolicy(composer.Policy{Limit: 30, Enforce: false})
	m.Emit(ctx, composer.Recover{})
	if s, _ := m.Publish(ctx); s.Phase != composer.PhasePublished {
		t.Fatalf("unenforced policy should publish, got %+v", s)
	}
}

func TestApplyInstanceLimit(t *testing.T) {
	m := composer.New(&fakePublisher{})
	var inst domain.Instance
	if p := m.ApplyInstanceLimit(inst); p.Limit != composer.DefaultLimit {
		t.Fatalf("missing max_characters should keep default, got %d", p.Limit)
	}
	inst.Configuration.Statuses.MaxCharacters = 5000
	if p := m.ApplyInstanceLimit(inst); p.Limit != 5000 || !p.Enforce {
		t.Fatalf("unexpected policy %+v", p)
	}
}

func TestPublishSerializesDraft(t *testing.T) {
	pub := &fakePublisher{}
	m := composer.New(pub)
	startEditing(t, m, composer.Draft{
		Content:             "hello",
		Mentions:            "@bob ",
		Visibility:          domain.VisibilityPrivate,
		Sensitive:           true,
		SensitiveDisclaimer: "cw",
		Language:            "en",
		InReplyToID:         "7",
		Poll:                &domain.PollDraft{Options: []string{"y", "n"}, ExpiresIn: 600},
	})
	s, err := m.Publish(context.Background())
	if err != nil || s.Phase != composer.PhasePublished || s.Status.ID != "101" {
		t.Fatalf("publish: %+v %v", s, err)
	}
	if pub.last.Status != "@bob hello" || pub.last.SpoilerText != "cw" || pub.last.InReplyToID != "7" || pub.last.Poll == nil {
		t.Fatalf("unexpected params %+v", pub.last)
	}
	if pub.lastKey == "" {
		t.Fatalf("expected an idempotency key")
	}
	if s.Draft != nil {
		t.Fatalf("draft should be gone after publish")
	}
}

func TestEditUsesPutAndDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	m := composer.New(pub)
	startEditing(t, m, composer.Draft{Content: "fixed typo", PublishedStatusID: "55"})
	s, _ := m.Publish(ctx)
	if s.Phase != composer.PhasePublished || pub.edits.Load() != 1 || pub.calls.Load() != 0 {
		t.Fatalf("expected one edit, got %+v edits=%d posts=%d", s, pub.edits.Load(), pub.calls.Load())
	}

	pub.editID = "99"
	m.Emit(ctx, composer.Reset{})
	startEditing(t, m, composer.Draft{Content: "again", PublishedStatusID: "55"})
	s, _ = m.Publish(ctx)
	if s.Phase != composer.PhaseErrored || s.Err.Kind != composer.KindMismatchedContent || s.Draft == nil {
		t.Fatalf("expected mismatched_content, got %+v", s)
	}
}

func TestPublishFailureKeepsDraft(t *testing.T) {
	pub := &fakePublisher{fail: &response.FetchError{Kind: response.KindServerError, StatusCode: 422, Server: &domain.ServerError{Error: "Validation failed"}}}
	m := composer.New(pub)
	startEditing(t, m, composer.Draft{Content: "hi"})
	s, _ := m.Publish(context.Background())
	if s.Phase != composer.PhaseErrored || s.Err.Kind != composer.KindMastodonError || s.Draft.Content != "hi" {
		t.Fatalf("expected mastodon_error with draft, got %+v", s)
	}
	var fe *response.FetchError
	if !errors.As(s.Err, &fe) || fe.StatusCode != 422 {
		t.Fatalf("expected wrapped fetch error, got %v", s.Err)
	}
}

func TestConcurrentPublishMakesOneCall(t *testing.T) {
	pub := &fakePublisher{gate: make(chan struct{}), entered: make(chan struct{})}
	m := composer.New(pub)
	startEditing(t, m, composer.Draft{Content: "only once"})

	var terminal atomic.Int32
	m.Subscribe(func(s composer.State) {
		if s.Phase == composer.PhasePublished || s.Phase == composer.PhaseErrored {
			terminal.Add(1)
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := m.Publish(context.Background()); err != nil {
			t.Errorf("first publish: %v", err)
		}
	}()
	<-pub.entered
	if _, err := m.Publish(context.Background()); !errors.Is(err, reducer.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(pub.gate)
	wg.Wait()

	if pub.calls.Load() != 1 || terminal.Load() != 1 {
		t.Fatalf("expected one call and one terminal state, got calls=%d terminal=%d", pub.calls.Load(), terminal.Load())
	}
}

func TestCancelPublishOverHTTP(t *testing.T) {
	hit := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("Idempotency-Key") == "" || !strings.Contains(string(body), "status=slow") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		close(hit)
		<-r.Context().Done()
	}))
	defer srv.Close()

	origin, err := mastodon.ParseOrigin(srv.URL)
	if err != nil {
		t.Fatalf("origin: %v", err)
	}
	client := mastodon.New(origin, transport.NewHTTP(10*time.Second), mastodon.WithToken("t"))
	m := composer.New(client)
	startEditing(t, m, composer.Draft{Content: "slow"})

	done := make(chan composer.State, 1)
	go func() {
		s, _ := m.Publish(context.Background())
		done <- s
	}()
	<-hit
	m.Cancel()
	select {
	case s := <-done:
		if s.Phase != composer.PhaseErrored || s.Err.Kind != composer.KindMastodonError || s.Draft == nil {
			t.Fatalf("expected cancelled publish to error with draft, got %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("publish not cancelled")
	}
}
