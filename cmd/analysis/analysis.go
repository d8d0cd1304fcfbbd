// Command analysis reads a playback journal and reports how past sessions
// behaved: distribution summaries of tick latency and frame luminance per
// session, control event counts, and optional PNG timelines.
package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	_ "modernc.org/sqlite"

	"github.com/halolight/ambiplay/internal/journal"
)

var (
	journalPath = flag.String("journal", "ambiplay.db", "Journal database path")
	sessionID   = flag.String("session", "", "Session id to analyze (\"latest\" picks the newest); empty lists sessions")
	limit       = flag.Int("limit", 20, "Sessions to show when listing")
	plotsDir    = flag.String("plots", "", "Directory for PNG timelines (skipped when empty)")
	showEvents  = flag.Bool("events", false, "Print the session's journaled events")
	jsonOut     = flag.String("json", "", "Write the report as JSON to this file")
)

// DistSummary describes one measured distribution.
type DistSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
}

// SessionReport is the full analysis of one playback session.
type SessionReport struct {
	Session    journal.Session `json:"session"`
	Rollups    int             `json:"rollups"`
	Latency    DistSummary     `json:"latency_us"`
	Luminance  DistSummary     `json:"luminance"`
	FramesSent int64           `json:"frames_sent"`
	SendErrors int64           `json:"send_errors"`
	MeanRate   float64         `json:"mean_frames_per_sec"`
	Events     map[string]int  `json:"events"`
}

func main() {
	flag.Parse()

	if _, err := os.Stat(*journalPath); err != nil {
		log.Fatalf("no journal at %s: %v", *journalPath, err)
	}
	db, err := journal.Open(*journalPath)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	defer db.Close()

	if *sessionID == "" {
		if err := listSessions(db, *limit); err != nil {
			log.Fatalf("list sessions: %v", err)
		}
		return
	}

	sess, err := resolveSession(db, *sessionID)
	if err != nil {
		log.Fatalf("resolve session: %v", err)
	}

	ticks, err := db.SessionTickStats(sess.ID)
	if err != nil {
		log.Fatalf("read tick stats: %v", err)
	}
	events, err := db.SessionEvents(sess.ID)
	if err != nil {
		log.Fatalf("read events: %v", err)
	}

	report := buildReport(sess, ticks, events)
	printReport(report)

	if *showEvents {
		printEvents(sess, events)
	}

	if *jsonOut != "" {
		if err := exportJSON(report, *jsonOut); err != nil {
			log.Fatalf("export JSON: %v", err)
		}
		fmt.Printf("\nReport written to %s\n", *jsonOut)
	}

	if *plotsDir != "" {
		n, err := renderTimelines(*plotsDir, sess, ticks)
		if err != nil {
			log.Fatalf("render timelines: %v", err)
		}
		fmt.Printf("\n%d timeline(s) written to %s\n", n, *plotsDir)
	}
}

// resolveSession turns the -session flag into a row: "latest" picks the
// newest session, anything else is treated as an id.
func resolveSession(db *journal.DB, id string) (*journal.Session, error) {
	if id == "latest" {
		sessions, err := db.Sessions(1)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			return nil, errors.New("journal has no sessions")
		}
		return &sessions[0], nil
	}

	sess, err := db.Session(id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unknown session %q", id)
	}
	return sess, err
}

func listSessions(db *journal.DB, limit int) error {
	sessions, err := db.Sessions(limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("journal has no sessions")
		return nil
	}

	fmt.Printf("=== Sessions (%d) ===\n", len(sessions))
	for _, s := range sessions {
		started := time.Unix(int64(s.StartedAt), 0).Format("2006-01-02 15:04:05")
		state := "running"
		if s.EndedAt != nil {
			state = time.Duration((*s.EndedAt - s.StartedAt) * float64(time.Second)).Round(time.Second).String()
		}
		fmt.Printf("%s  %s  %8s  %s -> %s\n", s.ID, started, state, s.SourcePath, s.Destination)
	}
	return nil
}

// buildReport folds the rollups and events of one session into a report.
func buildReport(sess *journal.Session, ticks []journal.TickStats, events []journal.Event) *SessionReport {
	latencies := make([]float64, 0, len(ticks))
	luminances := make([]float64, 0, len(ticks))
	for _, t := range ticks {
		latencies = append(latencies, float64(t.MeanLatencyUs))
		luminances = append(luminances, t.MeanLuminance)
	}

	report := &SessionReport{
		Session:   *sess,
		Rollups:   len(ticks),
		Latency:   summarize(latencies),
		Luminance: summarize(luminances),
		Events:    make(map[string]int),
	}

	// Rollup counters are cumulative; the last row carries the totals.
	if len(ticks) > 0 {
		last := ticks[len(ticks)-1]
		report.FramesSent = last.FramesSent
		report.SendErrors = last.SendErrors
		if elapsed := last.WallTime - sess.StartedAt; elapsed > 0 {
			report.MeanRate = float64(last.FramesSent) / elapsed
		}
	}

	for _, e := range events {
		report.Events[e.Kind]++
	}
	return report
}

// summarize computes distribution statistics over values. An empty input
// yields a zero summary; a single value has no spread.
func summarize(values []float64) DistSummary {
	if len(values) == 0 {
		return DistSummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s := DistSummary{
		Count: len(sorted),
		Mean:  stat.Mean(sorted, nil),
		P50:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P90:   stat.Quantile(0.90, stat.Empirical, sorted, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

func printReport(r *SessionReport) {
	s := r.Session
	fmt.Println("=== Session ===")
	fmt.Printf("ID: %s\n", s.ID)
	fmt.Printf("Source: %s\n", s.SourcePath)
	fmt.Printf("Destination: %s\n", s.Destination)
	fmt.Printf("Geometry: %d zones -> %d leds (%s, %.2f fps)\n", s.Zones, s.Leds, s.Format, s.FPS)
	fmt.Printf("Started: %s\n", time.Unix(int64(s.StartedAt), 0).Format(time.RFC3339))
	if s.EndedAt != nil {
		dur := time.Duration((*s.EndedAt - s.StartedAt) * float64(time.Second)).Round(time.Second)
		fmt.Printf("Duration: %s\n", dur)
	} else {
		fmt.Println("Duration: still running")
	}

	fmt.Println("\n--- Transmit ---")
	fmt.Printf("Rollups: %d\n", r.Rollups)
	fmt.Printf("Frames Sent: %d\n", r.FramesSent)
	fmt.Printf("Send Errors: %d\n", r.SendErrors)
	fmt.Printf("Mean Rate: %.2f frames/s\n", r.MeanRate)

	fmt.Println("\n--- Tick Latency (µs) ---")
	printSummary(r.Latency)

	fmt.Println("\n--- Luminance (0-255) ---")
	printSummary(r.Luminance)

	if len(r.Events) > 0 {
		fmt.Println("\n--- Events ---")
		kinds := make([]string, 0, len(r.Events))
		for kind := range r.Events {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Printf("  %s: %d\n", kind, r.Events[kind])
		}
	}
}

func printSummary(s DistSummary) {
	if s.Count == 0 {
		fmt.Println("  no samples")
		return
	}
	fmt.Printf("  Mean: %.2f  StdDev: %.2f\n", s.Mean, s.StdDev)
	fmt.Printf("  P50: %.2f  P90: %.2f  P99: %.2f\n", s.P50, s.P90, s.P99)
}

func printEvents(sess *journal.Session, events []journal.Event) {
	fmt.Println("\n--- Event Log ---")
	if len(events) == 0 {
		fmt.Println("  no events")
		return
	}
	for _, e := range events {
		offset := e.WallTime - sess.StartedAt
		if e.Detail != "" {
			fmt.Printf("  %8.2fs  %-15s %10.3f  %s\n", offset, e.Kind, e.Value, e.Detail)
		} else {
			fmt.Printf("  %8.2fs  %-15s %10.3f\n", offset, e.Kind, e.Value)
		}
	}
}

func exportJSON(r *SessionReport, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// renderTimelines writes one PNG per measured series: latency, luminance
// and frame rate over session time. Returns the number of plots written.
func renderTimelines(dir string, sess *journal.Session, ticks []journal.TickStats) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	shortID := sess.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	latPts := make(plotter.XYs, 0, len(ticks))
	lumPts := make(plotter.XYs, 0, len(ticks))
	for _, t := range ticks {
		x := t.WallTime - sess.StartedAt
		latPts = append(latPts, plotter.XY{X: x, Y: float64(t.MeanLatencyUs)})
		lumPts = append(lumPts, plotter.XY{X: x, Y: t.MeanLuminance})
	}
	ratePts := rateSeries(sess.StartedAt, ticks)

	plots := []struct {
		name   string
		title  string
		yLabel string
		pts    plotter.XYs
		yMax   float64
		color  color.RGBA
	}{
		{"latency", "Tick Latency", "Mean latency (µs)", latPts, 0, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"luminance", "Luminance", "Mean luminance", lumPts, 255, color.RGBA{R: 253, G: 180, B: 21, A: 255}},
		{"rate", "Frame Rate", "Frames per second", ratePts, 0, color.RGBA{R: 44, G: 160, B: 44, A: 255}},
	}

	count := 0
	for _, spec := range plots {
		if len(spec.pts) == 0 {
			continue
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("Session %s - %s", shortID, spec.title)
		p.X.Label.Text = "Session time (s)"
		p.Y.Label.Text = spec.yLabel
		if spec.yMax > 0 {
			p.Y.Min = 0
			p.Y.Max = spec.yMax
		}

		line, err := plotter.NewLine(spec.pts)
		if err != nil {
			return count, err
		}
		line.Color = spec.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(spec.name, line)
		p.Legend.Top = true

		file := filepath.Join(dir, fmt.Sprintf("session_%s_%s.png", shortID, spec.name))
		if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
			return count, fmt.Errorf("save %s plot: %w", spec.name, err)
		}
		count++
	}

	return count, nil
}

// rateSeries derives frames-per-second points from the cumulative frame
// counter of successive rollups. Resets and stalled clocks are skipped.
func rateSeries(start float64, ticks []journal.TickStats) plotter.XYs {
	pts := make(plotter.XYs, 0, len(ticks))
	for i := 1; i < len(ticks); i++ {
		dt := ticks[i].WallTime - ticks[i-1].WallTime
		df := ticks[i].FramesSent - ticks[i-1].FramesSent
		if dt <= 0 || df < 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: ticks[i].WallTime - start, Y: float64(df) / dt})
	}
	return pts
}
