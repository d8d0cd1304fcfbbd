package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/halolight/ambiplay/internal/amb"
)

func writeContainer(t *testing.T, fs *amb.FrameSet) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.amb")
	if err := amb.WriteFile(path, fs); err != nil {
		t.Fatalf("write container: %v", err)
	}
	return path
}

func loadReport(t *testing.T, path string) *Report {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	fs, err := amb.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return buildReport(path, info.Size(), fs)
}

func TestBuildReport(t *testing.T) {
	path := writeContainer(t, &amb.FrameSet{
		Schema: amb.MAGIC_MULTI,
		FPS:    25,
		Format: amb.FormatRGB,
		Zones:  2,
		Edges:  amb.EdgeCounts{Top: 1, Bottom: 1},
		Frames: []amb.Frame{
			{Timestamp: 0, Payload: []byte{0, 0, 0, 0, 0, 0}},
			{Timestamp: 40000, Payload: []byte{255, 255, 255, 255, 255, 255}},
			{Timestamp: 80000, Payload: []byte{255, 255, 255, 255, 255, 255}},
		},
	})

	r := loadReport(t, path)

	if r.Schema != amb.MAGIC_MULTI || r.Format != "RGB" || r.Zones != 2 {
		t.Errorf("header fields wrong: %+v", r)
	}
	if r.Edges == nil || r.Edges.Top != 1 || r.Edges.Bottom != 1 {
		t.Errorf("edges wrong: %+v", r.Edges)
	}
	if r.Frames != 3 {
		t.Errorf("Frames = %d, want 3", r.Frames)
	}
	if math.Abs(r.DurationSecs-0.08) > 1e-9 {
		t.Errorf("DurationSecs = %v, want 0.08", r.DurationSecs)
	}
	if math.Abs(r.DerivedFPS-25) > 1e-9 {
		t.Errorf("DerivedFPS = %v, want 25", r.DerivedFPS)
	}
	if r.TrailingBytes != 0 {
		t.Errorf("TrailingBytes = %d, want 0", r.TrailingBytes)
	}
	if r.Regressions != 0 {
		t.Errorf("Regressions = %d, want 0", r.Regressions)
	}
	if r.LumMin != 0 || r.LumMax != 255 {
		t.Errorf("luminance range = [%v, %v], want [0, 255]", r.LumMin, r.LumMax)
	}
	if math.Abs(r.LumMean-170) > 1e-9 {
		t.Errorf("LumMean = %v, want 170", r.LumMean)
	}
}

func TestBuildReport_TrailingBytes(t *testing.T) {
	path := writeContainer(t, &amb.FrameSet{
		Schema: amb.MAGIC_LEGACY,
		FPS:    30,
		Format: amb.FormatRGB,
		Zones:  1,
		Frames: []amb.Frame{
			{Timestamp: 0, Payload: []byte{1, 2, 3}},
		},
	})

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.Write([]byte{9, 9, 9, 9, 9}); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	f.Close()

	r := loadReport(t, path)
	if r.Frames != 1 {
		t.Errorf("Frames = %d, want 1 (partial record dropped)", r.Frames)
	}
	if r.TrailingBytes != 5 {
		t.Errorf("TrailingBytes = %d, want 5", r.TrailingBytes)
	}
	if r.RotationOffset != 0 || r.Edges != nil {
		t.Errorf("legacy report should carry rotation, not edges: %+v", r)
	}
}

func TestTimestampRegressions(t *testing.T) {
	frames := []amb.Frame{
		{Timestamp: 0},
		{Timestamp: 100},
		{Timestamp: 50},
		{Timestamp: 50},
		{Timestamp: 200},
	}
	if got := timestampRegressions(frames); got != 2 {
		t.Errorf("timestampRegressions = %d, want 2", got)
	}
	if got := timestampRegressions(nil); got != 0 {
		t.Errorf("timestampRegressions(nil) = %d, want 0", got)
	}
}

func TestDerivedFPS(t *testing.T) {
	if got := derivedFPS(nil); got != 0 {
		t.Errorf("derivedFPS(nil) = %v, want 0", got)
	}
	if got := derivedFPS([]amb.Frame{{Timestamp: 5}}); got != 0 {
		t.Errorf("derivedFPS(single) = %v, want 0", got)
	}
	same := []amb.Frame{{Timestamp: 5}, {Timestamp: 5}}
	if got := derivedFPS(same); got != 0 {
		t.Errorf("derivedFPS(zero span) = %v, want 0", got)
	}

	frames := []amb.Frame{{Timestamp: 0}, {Timestamp: 33333}, {Timestamp: 66666}}
	got := derivedFPS(frames)
	if math.Abs(got-30.00030) > 0.001 {
		t.Errorf("derivedFPS = %v, want ~30", got)
	}
}

func TestFrameLuminance_IgnoresWhiteChannel(t *testing.T) {
	fs := &amb.FrameSet{
		Format: amb.FormatRGBW,
		Zones:  2,
		Frames: []amb.Frame{
			{Payload: []byte{255, 255, 255, 0, 255, 255, 255, 255}},
		},
	}
	got := frameLuminance(fs, 0)
	if math.Abs(got-255) > 1e-9 {
		t.Errorf("frameLuminance = %v, want 255 regardless of W", got)
	}
}
