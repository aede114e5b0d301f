package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestJournal opens a journal under a fresh temp dir, exercising
// directory creation and schema application on the way.
func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j := Open(filepath.Join(t.TempDir(), "state", "journal.db"), discard())
	if !j.Enabled() {
		t.Fatal("journal failed to open")
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordRunRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	j.RecordRun(ctx, Run{
		StartedAt:  start,
		FinishedAt: start.Add(40 * time.Second),
		BadgeCount: 2,
		Discovered: 3,
		Fresh:      2,
		Delivered:  1,
		Failed:     1,
	}, []Delivery{
		{Identity: "url:a", Title: "Vize Sınavı", Delivered: true, SentAt: start.Add(30 * time.Second)},
		{Identity: "url:b", Title: "Lab Telafi", Delivered: false, Error: "telegram: send: 429", SentAt: start.Add(31 * time.Second)},
	})

	runs, err := j.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if !r.StartedAt.Equal(start) || r.Discovered != 3 || r.Delivered != 1 || r.Failed != 1 {
		t.Errorf("run fields wrong: %+v", r)
	}
	if r.DryRun {
		t.Error("dry_run set on a live run")
	}

	deliveries, err := j.RunDeliveries(ctx, r.ID)
	if err != nil {
		t.Fatalf("RunDeliveries: %v", err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(deliveries))
	}
	if deliveries[0].Identity != "url:a" || !deliveries[0].Delivered {
		t.Errorf("first delivery wrong: %+v", deliveries[0])
	}
	if deliveries[1].Delivered || deliveries[1].Error == "" {
		t.Errorf("failed delivery not recorded: %+v", deliveries[1])
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		started := base.Add(time.Duration(i) * time.Hour)
		j.RecordRun(ctx, Run{StartedAt: started, FinishedAt: started.Add(time.Minute)}, nil)
	}

	runs, err := j.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Errorf("order wrong: %v then %v", runs[0].StartedAt, runs[1].StartedAt)
	}
}

// WHAT: a journal whose database cannot open still accepts calls.
// WHY: history must never take the notifier down; writes turn into
// warnings and reads report ErrDisabled.
func TestDisabledJournal(t *testing.T) {
	// A directory is not a valid database file.
	j := Open(t.TempDir(), discard())
	if j.Enabled() {
		t.Fatal("journal unexpectedly enabled")
	}

	j.RecordRun(context.Background(), Run{StartedAt: time.Now()}, nil)

	if _, err := j.RecentRuns(context.Background(), 5); !errors.Is(err, ErrDisabled) {
		t.Errorf("RecentRuns err = %v, want ErrDisabled", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Close on disabled journal: %v", err)
	}
}
