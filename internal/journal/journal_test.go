package journal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/star/wwtengine/internal/control"
	"github.com/star/wwtengine/internal/script"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "sub", "journal.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	sim := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	j.Record(Event{Kind: "ready", SurfaceID: "a", SimTime: sim})
	j.Record(Event{Kind: "arrived", SurfaceID: "a", RA: 5.5, Dec: -20, Zoom: 10, SimTime: sim})
	j.Record(Event{Kind: "arrived", SurfaceID: "a", RA: 6, Dec: 1, Zoom: 2, SimTime: sim})
	if err := j.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	all, err := j.Recent(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	if all[0].RA != 6 || all[2].Kind != "ready" {
		t.Errorf("events not newest first: %+v", all)
	}
	if !all[1].SimTime.Equal(sim) || all[1].RecordedAt.IsZero() {
		t.Errorf("times not round-tripped: %+v", all[1])
	}

	arrived, err := j.Recent(ctx, "arrived", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(arrived) != 1 || arrived[0].RA != 6 {
		t.Errorf("filtered = %+v", arrived)
	}
}

func TestReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	j.Record(Event{Kind: "arrived", SurfaceID: "x", RA: 1})
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j2, err := Open(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer j2.Close()
	got, err := j2.Recent(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SurfaceID != "x" {
		t.Errorf("after reopen = %+v", got)
	}
}

func TestQueueFullDrops(t *testing.T) {
	j := &Journal{ch: make(chan req, 1)}
	j.Record(Event{Kind: "a"})
	j.Record(Event{Kind: "b"})
	j.Record(Event{Kind: "c"})
	if got := j.Dropped(); got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
}

func TestClosedJournal(t *testing.T) {
	j := openTest(t)
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	j.Record(Event{Kind: "ignored"})
	if err := j.Sync(context.Background()); err != ErrClosed {
		t.Errorf("Sync after close = %v, want ErrClosed", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open("", testLogger()); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestHookJournalsControlEvents(t *testing.T) {
	j := openTest(t)
	ready := make(chan struct{})
	h := control.NewHost(
		control.WithLogger(testLogger()),
		control.WithInitHook(j.Hook()),
	)
	defer h.Close()

	si, err := h.InitControl2("canvas", false)
	if err != nil {
		t.Fatal(err)
	}
	si.AddReady(func(*script.Interface) { close(ready) })
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("ready never fired")
	}
	if err := h.Singleton().GotoRADecZoom(3, 4, 5, true); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := j.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	events, err := j.Recent(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	kinds := map[string]int{}
	for _, ev := range events {
		kinds[ev.Kind]++
	}
	if kinds["init"] != 1 || kinds["ready"] != 1 || kinds["arrived"] != 1 {
		t.Errorf("journaled kinds = %v", kinds)
	}
	if events[0].Kind != "arrived" || events[0].RA != 3 || events[0].SurfaceID != "canvas" {
		t.Errorf("newest event = %+v", events[0])
	}
}
