package repo_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"linewatch/internal/db"
	"linewatch/internal/domain"
	"linewatch/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{
		DB:  conn,
		Now: func() time.Time { return time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC) },
	}
}

func TestRecordAndListChecks(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	first, err := r.RecordCheck(ctx, domain.CheckResult{Line: "29", Transition: domain.TransitionNew, RecordCount: 1, NewCount: 1})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if first.ID == 0 || first.TS == "" {
		t.Fatalf("id/ts not filled in: %+v", first)
	}
	if _, err := r.RecordCheck(ctx, domain.CheckResult{Line: "29", Transition: domain.TransitionOngoing, RecordCount: 1}); err != nil {
		t.Fatalf("record second: %v", err)
	}
	if _, err := r.RecordCheck(ctx, domain.CheckResult{Line: "4", Transition: domain.TransitionNone}); err != nil {
		t.Fatalf("record other line: %v", err)
	}

	checks, err := r.LatestChecks(ctx, "29", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(checks) != 2 {
		t.Fatalf("got %d checks, want 2 for line 29", len(checks))
	}
	if checks[0].Transition != domain.TransitionOngoing {
		t.Fatalf("newest first expected, got %s", checks[0].Transition)
	}
}

func TestFetchErrorRecorded(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if _, err := r.RecordCheck(ctx, domain.CheckResult{Line: "29", Error: "fetch: timeout"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	last, err := r.LastCheck(ctx, "29")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last.Error != "fetch: timeout" {
		t.Fatalf("error not round-tripped: %+v", last)
	}
}

func TestLastCheckNotFound(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.LastCheck(context.Background(), "29"); err != repo.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordAndListNotifications(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	sent, err := r.RecordNotification(ctx, domain.SentNotification{
		Line:       "29",
		Transition: domain.TransitionNew,
		Title:      "New disruption on line 29",
		Body:       "1. Delay",
		Channels:   []string{"desktop", "email"},
		Failures:   []string{"email"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if sent.ID == "" {
		t.Fatalf("notification id not assigned")
	}

	list, err := r.LatestNotifications(ctx, "29", 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d notifications, want 1", len(list))
	}
	got := list[0]
	if !reflect.DeepEqual(got.Channels, []string{"desktop", "email"}) {
		t.Fatalf("channels = %v", got.Channels)
	}
	if !reflect.DeepEqual(got.Failures, []string{"email"}) {
		t.Fatalf("failures = %v", got.Failures)
	}
}

func TestNotificationIDDeterministic(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	a, err := r.RecordNotification(ctx, domain.SentNotification{Line: "29", Transition: domain.TransitionNew, Title: "t", Channels: []string{"desktop"}})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	// Same line, ts and title must collide on the primary key.
	_, err = r.RecordNotification(ctx, domain.SentNotification{Line: "29", Transition: domain.TransitionNew, Title: "t", Channels: []string{"desktop"}})
	if err == nil {
		t.Fatalf("expected duplicate insert to fail, first id %s", a.ID)
	}
}
