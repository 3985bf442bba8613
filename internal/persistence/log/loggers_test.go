package log

import (
	"path/filepath"
	"testing"
	"time"
)

func TestTravelLogger_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	l := NewTravelLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.WriteTravel(TravelEntry{Tick: 1, Player: "p1", Portal: 7, Accepted: true, Direction: "outbound", To: "riftgate:rift_1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.WriteTravel(TravelEntry{Tick: 2, Player: "p1", Portal: 8, Code: "E_NO_RETURN_PATH"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteTravel(TravelEntry{Tick: 3, Player: "p2", Portal: 7, Accepted: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first, err := ReadTravel(filepath.Join(dir, "travel", "travel-2026-03-01-10.jsonl.zst"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(first) != 2 || first[0].To != "riftgate:rift_1" || first[1].Code != "E_NO_RETURN_PATH" {
		t.Fatalf("first hour=%+v", first)
	}
	second, err := ReadTravel(filepath.Join(dir, "travel", "travel-2026-03-01-11.jsonl.zst"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(second) != 1 || second[0].Player != "p2" {
		t.Fatalf("second hour=%+v", second)
	}
}

func TestTravelLogger_HookSeesRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	var closed []string
	l := NewTravelLoggerWithHook(dir, func(p string) { closed = append(closed, filepath.Base(p)) })
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	_ = l.WriteTravel(TravelEntry{Tick: 1})
	if len(closed) != 0 {
		t.Fatalf("hook fired before rotation: %v", closed)
	}
	clock = clock.Add(time.Hour)
	_ = l.WriteTravel(TravelEntry{Tick: 2})
	_ = l.Close()
	_ = l.Close()

	want := []string{"travel-2026-03-01-10.jsonl.zst", "travel-2026-03-01-11.jsonl.zst"}
	if len(closed) != len(want) || closed[0] != want[0] || closed[1] != want[1] {
		t.Fatalf("closed=%v want %v", closed, want)
	}
}
