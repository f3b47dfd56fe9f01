package usage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"webbot/internal/survival"
)

func TestTracker_TrackAggregatesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "usage.json")
	tracker, err := NewTracker(path)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tracker.saveDelay = time.Hour
	tracker.now = func() time.Time { return time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC) }

	tracker.Track("anthropic", "claude-opus", survival.TierNormal, 10, 5)
	tracker.Track("anthropic", "claude-haiku", survival.TierCritical, 2, 3)

	stats := tracker.Stats()
	if stats.Total.Input != 12 || stats.Total.Output != 8 || stats.Total.Total != 20 {
		t.Fatalf("Total=%+v, want input=12 output=8 total=20", stats.Total)
	}
	if stats.Calls != 2 {
		t.Fatalf("Calls=%d, want 2", stats.Calls)
	}
	if got := stats.ByProvider["anthropic"]; got.Total != 20 {
		t.Fatalf("ByProvider[anthropic]=%+v, want total=20", got)
	}
	if got := stats.ByModel["claude-haiku"]; got.Total != 5 {
		t.Fatalf("ByModel[claude-haiku]=%+v, want total=5", got)
	}
	if got := stats.ByTier["normal"]; got.Total != 15 {
		t.Fatalf("ByTier[normal]=%+v, want total=15", got)
	}
	if got := stats.ByDay["2026-05-01"]; got.Total != 20 {
		t.Fatalf("ByDay=%+v, want total=20", stats.ByDay)
	}

	if err := tracker.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	persisted, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if persisted.Total.Total != 20 {
		t.Fatalf("persisted total=%d, want 20", persisted.Total.Total)
	}

	reopened, err := NewTracker(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Stats().Calls; got != 2 {
		t.Fatalf("reopened calls=%d, want 2", got)
	}
}

func TestTracker_StatsIsACopy(t *testing.T) {
	tracker, err := NewTracker(filepath.Join(t.TempDir(), "usage.json"))
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tracker.saveDelay = time.Hour
	tracker.Track("gemini", "flash", survival.TierLowCompute, 1, 1)

	stats := tracker.Stats()
	stats.ByModel["flash"] = TokenCounts{}
	if tracker.Stats().ByModel["flash"].Total != 2 {
		t.Fatal("mutating Stats() leaked into the tracker")
	}
	_ = tracker.Close()
}

func TestTracker_CorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	tracker, err := NewTracker(path)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if tracker.Stats().Calls != 0 {
		t.Fatal("expected empty stats")
	}
}

func TestTracker_FlushWithoutChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	tracker, err := NewTracker(path)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if err := tracker.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("flush without changes should not create the file")
	}
}
