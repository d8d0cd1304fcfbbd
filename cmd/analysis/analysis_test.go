package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/halolight/ambiplay/internal/journal"
)

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestSummarize(t *testing.T) {
	s := summarize([]float64{30, 10, 40, 20})

	if s.Count != 4 {
		t.Errorf("Count = %d, want 4", s.Count)
	}
	approx(t, "Mean", s.Mean, 25)
	approx(t, "StdDev", s.StdDev, math.Sqrt(500.0/3.0))
	approx(t, "P50", s.P50, 20)
	approx(t, "P90", s.P90, 40)
	approx(t, "P99", s.P99, 40)
}

func TestSummarizeEmpty(t *testing.T) {
	s := summarize(nil)
	if s.Count != 0 || s.Mean != 0 || s.P99 != 0 {
		t.Errorf("empty summary should be zero, got %+v", s)
	}
}

func TestSummarizeSingle(t *testing.T) {
	s := summarize([]float64{42})
	if s.Count != 1 {
		t.Errorf("Count = %d, want 1", s.Count)
	}
	approx(t, "Mean", s.Mean, 42)
	approx(t, "StdDev", s.StdDev, 0)
	approx(t, "P50", s.P50, 42)
}

func TestRateSeries(t *testing.T) {
	ticks := []journal.TickStats{
		{WallTime: 100, FramesSent: 0},
		{WallTime: 110, FramesSent: 300},
		{WallTime: 120, FramesSent: 600},
		{WallTime: 120, FramesSent: 700}, // stalled clock, skipped
		{WallTime: 130, FramesSent: 100}, // counter reset, skipped
	}

	pts := rateSeries(100, ticks)
	if len(pts) != 2 {
		t.Fatalf("got %d points, want 2", len(pts))
	}
	approx(t, "pts[0].X", pts[0].X, 10)
	approx(t, "pts[0].Y", pts[0].Y, 30)
	approx(t, "pts[1].X", pts[1].X, 20)
	approx(t, "pts[1].Y", pts[1].Y, 30)
}

func TestBuildReport(t *testing.T) {
	sess := &journal.Session{ID: "abc", StartedAt: 1000}
	ticks := []journal.TickStats{
		{WallTime: 1010, FramesSent: 300, SendErrors: 0, MeanLatencyUs: 100, MeanLuminance: 40},
		{WallTime: 1020, FramesSent: 600, SendErrors: 2, MeanLatencyUs: 300, MeanLuminance: 80},
	}
	events := []journal.Event{
		{Kind: "start"}, {Kind: "seek"}, {Kind: "seek"}, {Kind: "pause"},
	}

	r := buildReport(sess, ticks, events)

	if r.Rollups != 2 {
		t.Errorf("Rollups = %d, want 2", r.Rollups)
	}
	if r.FramesSent != 600 || r.SendErrors != 2 {
		t.Errorf("totals = %d/%d, want 600/2", r.FramesSent, r.SendErrors)
	}
	approx(t, "MeanRate", r.MeanRate, 30)
	approx(t, "Latency.Mean", r.Latency.Mean, 200)
	approx(t, "Luminance.Mean", r.Luminance.Mean, 60)
	if r.Events["seek"] != 2 || r.Events["start"] != 1 || r.Events["pause"] != 1 {
		t.Errorf("event counts wrong: %v", r.Events)
	}
}

// TestAnalyzeJournal runs the full read path against a real journal file:
// session resolution, report building and PNG rendering.
func TestAnalyzeJournal(t *testing.T) {
	dir := t.TempDir()

	db, err := journal.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer db.Close()

	sess := &journal.Session{
		SourcePath:  "/media/demo.amb",
		Destination: "10.0.0.30:19446",
		Zones:       60,
		Leds:        60,
		FPS:         30,
		Format:      "RGB",
	}
	if err := db.StartSession(sess); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := db.RecordEvent(sess.ID, journal.KindStart, 0, sess.SourcePath); err != nil {
		t.Fatalf("record event: %v", err)
	}
	for i, stats := range []journal.TickStats{
		{FramesSent: 300, MeanLatencyUs: 150, MeanLuminance: 42},
		{FramesSent: 600, MeanLatencyUs: 250, MeanLuminance: 58},
		{FramesSent: 900, MeanLatencyUs: 200, MeanLuminance: 50},
	} {
		stats.SessionID = sess.ID
		stats.WallTime = sess.StartedAt + float64((i+1)*10)
		if err := db.RecordTickStats(stats); err != nil {
			t.Fatalf("record tick stats %d: %v", i, err)
		}
	}
	if err := db.EndSession(sess.ID); err != nil {
		t.Fatalf("end session: %v", err)
	}

	resolved, err := resolveSession(db, "latest")
	if err != nil {
		t.Fatalf("resolve latest: %v", err)
	}
	if resolved.ID != sess.ID {
		t.Errorf("resolved %q, want %q", resolved.ID, sess.ID)
	}

	if _, err := resolveSession(db, "no-such-id"); err == nil {
		t.Error("expected an error for an unknown session id")
	}

	ticks, err := db.SessionTickStats(sess.ID)
	if err != nil {
		t.Fatalf("read tick stats: %v", err)
	}
	events, err := db.SessionEvents(sess.ID)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}

	r := buildReport(resolved, ticks, events)
	if r.Rollups != 3 || r.FramesSent != 900 {
		t.Errorf("report = %d rollups / %d frames, want 3 / 900", r.Rollups, r.FramesSent)
	}
	approx(t, "MeanRate", r.MeanRate, 30)
	if r.Events[journal.KindStart] != 1 {
		t.Errorf("start events = %d, want 1", r.Events[journal.KindStart])
	}

	plotsOut := filepath.Join(dir, "plots")
	n, err := renderTimelines(plotsOut, resolved, ticks)
	if err != nil {
		t.Fatalf("render timelines: %v", err)
	}
	if n != 3 {
		t.Errorf("rendered %d plots, want 3", n)
	}
	entries, err := os.ReadDir(plotsOut)
	if err != nil {
		t.Fatalf("read plots dir: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("plots dir holds %d files, want 3", len(entries))
	}
}

func TestRenderTimelinesNoTicks(t *testing.T) {
	sess := &journal.Session{ID: "empty"}
	n, err := renderTimelines(t.TempDir(), sess, nil)
	if err != nil {
		t.Fatalf("renderTimelines: %v", err)
	}
	if n != 0 {
		t.Errorf("rendered %d plots from no data, want 0", n)
	}
}
