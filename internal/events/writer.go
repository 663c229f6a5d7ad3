package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tootline/internal/repo"
)

// Machine names used in the transition log.
const (
	MachineAuth     = "auth"
	MachineComposer = "composer"
)

// Detail is free-form context for a transition. Never put secrets in it.
type Detail map[string]any

// Record describes one transition to append.
type Record struct {
	Machine       string
	Event         string
	From          string
	To            string
	Err           error
	Detail        Detail
	CorrelationID string
}

// Writer appends transitions to the sqlite log.
type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (w Writer) Append(ctx context.Context, rec Record) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if rec.Detail == nil {
		rec.Detail = Detail{}
	}
	data, err := json.Marshal(rec.Detail)
	if err != nil {
		return fmt.Errorf("marshal transition detail: %w", err)
	}
	var errText string
	if rec.Err != nil {
		errText = rec.Err.Error()
	}
	_, err = w.Repo.InsertTransition(ctx, repo.Transition{
		TS:            w.Now().UTC().Format(time.RFC3339),
		Machine:       rec.Machine,
		Event:         rec.Event,
		From:          rec.From,
		To:            rec.To,
		Error:         errText,
		DetailJSON:    string(data),
		CorrelationID: rec.CorrelationID,
	})
	return err
}

// Sink receives transitions. Writer satisfies it; nil sinks are skipped by callers.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

var _ Sink = Writer{}
