package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tootline/internal/db"
	"tootline/internal/events"
	"tootline/internal/migrate"
	"tootline/internal/repo"
)

func TestWriterAppendsTransitions(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// re-running is a no-op
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate twice: %v", err)
	}
	r := repo.Repo{DB: conn}
	w := events.Writer{Repo: r, Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }}

	if err := w.Append(ctx, events.Record{Machine: events.MachineAuth, Event: "start_oauth_flow", From: "signed_out", To: "signin_in_progress", Detail: events.Detail{"domain": "mastodon.example"}, CorrelationID: "c-1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(ctx, events.Record{Machine: events.MachineComposer, Event: "publish", From: "editing", To: "errored", Err: errors.New("boom")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := r.LatestTransitions(ctx, 10, "")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(all))
	}
	if all[0].Machine != events.MachineComposer || all[0].Error != "boom" || all[0].DetailJSON != "{}" {
		t.Fatalf("unexpected newest transition: %+v", all[0])
	}
	if all[1].TS != "2024-01-01T00:00:00Z" || all[1].DetailJSON != `{"domain":"mastodon.example"}` {
		t.Fatalf("unexpected first transition: %+v", all[1])
	}

	auth, err := r.LatestTransitions(ctx, 10, events.MachineAuth)
	if err != nil || len(auth) != 1 {
		t.Fatalf("filter by machine: %v %d", err, len(auth))
	}
	got, err := r.GetTransition(ctx, auth[0].ID)
	if err != nil || got.CorrelationID != "c-1" {
		t.Fatalf("get transition: %+v %v", got, err)
	}
	if _, err := r.GetTransition(ctx, 9999); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
