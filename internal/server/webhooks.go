package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"tootline/internal/config"
	"tootline/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

type webhookDispatcher struct {
	repo     repo.Repo
	webhooks []config.WebhookConfig
	client   *http.Client
	log      *slog.Logger
	interval time.Duration
	mu       sync.Mutex
	cursors  map[int]int64
}

// StartWebhooks delivers new transitions to the configured hooks until ctx
// is done. Delivery starts after the newest transition at startup.
func StartWebhooks(ctx context.Context, r repo.Repo, hooks []config.WebhookConfig, log *slog.Logger) {
	if len(hooks) == 0 || r.DB == nil {
		return
	}
	d := newWebhookDispatcher(r, hooks, log)
	go d.run(ctx)
}

func newWebhookDispatcher(r repo.Repo, hooks []config.WebhookConfig, log *slog.Logger) *webhookDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &webhookDispatcher{
		repo:     r,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		log:      log.With("component", "webhooks"),
		interval: defaultWebhookInterval,
		cursors:  make(map[int]int64),
	}
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor := d.cursorFor(ctx, idx)
	items, err := d.repo.TransitionsAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		d.log.Warn("fetch transitions failed", "error", err)
		return
	}
	filter := newEventFilter(hook.Events)
	for _, t := range items {
		if !filter.match(t) {
			d.setCursor(idx, t.ID)
			continue
		}
		if err := d.post(ctx, hook, t); err != nil {
			d.log.Warn("delivery failed", "url", hook.URL, "transition", t.ID, "error", err)
			return
		}
		d.setCursor(idx, t.ID)
	}
}

func (d *webhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.repo.LatestTransitionID(ctx)
	if err != nil {
		d.log.Warn("init cursor failed", "error", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookTransition struct {
	ID            int64           `json:"id"`
	Type          string          `json:"type"`
	Machine       string          `json:"machine"`
	Event         string          `json:"event"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	Error         string          `json:"error,omitempty"`
	TS            string          `json:"ts"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Detail        json.RawMessage `json:"detail"`
}

func eventType(t repo.Transition) string { return t.Machine + "." + t.Event }

func (d *webhookDispatcher) post(ctx context.Context, hook config.WebhookConfig, t repo.Transition) error {
	detail := json.RawMessage("{}")
	if t.DetailJSON != "" && json.Valid([]byte(t.DetailJSON)) {
		detail = json.RawMessage(t.DetailJSON)
	}
	data, err := json.Marshal(webhookTransition{
		ID:            t.ID,
		Type:          eventType(t),
		Machine:       t.Machine,
		Event:         t.Event,
		From:          t.From,
		To:            t.To,
		Error:         t.Error,
		TS:            t.TS,
		CorrelationID: t.CorrelationID,
		Detail:        detail,
	})
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != d.client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tootline-Event", eventType(t))
	req.Header.Set("X-Tootline-Delivery", fmt.Sprintf("%d", t.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Tootline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// eventFilter matches "machine.event" or a bare machine name.
type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(t repo.Transition) bool {
	if f.all {
		return true
	}
	if _, ok := f.set[eventType(t)]; ok {
		return true
	}
	_, ok := f.set[t.Machine]
	return ok
}
