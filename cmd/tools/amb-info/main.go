// Command amb-info inspects an ambient frame container: header fields,
// frame count and duration, the frame rate implied by the timestamps, and
// payload integrity (trailing bytes, timestamp regressions).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/halolight/ambiplay/internal/amb"
	"github.com/halolight/ambiplay/internal/color"
)

var (
	file       = flag.String("file", "", "Container to inspect (or pass it as the first argument)")
	listFrames = flag.Bool("frames", false, "List individual frame records")
	listLimit  = flag.Int("n", 10, "Frame records to list with -frames (0 lists all)")
	jsonOut    = flag.String("json", "", "Write the report as JSON to this file")
)

// Report is everything amb-info learns about one container.
type Report struct {
	Path           string          `json:"path"`
	FileBytes      int64           `json:"file_bytes"`
	Schema         string          `json:"schema"`
	Format         string          `json:"format"`
	Zones          int             `json:"zones"`
	Edges          *amb.EdgeCounts `json:"edges,omitempty"`
	RotationOffset int             `json:"rotation_offset,omitempty"`
	HeaderFPS      float64         `json:"header_fps"`
	DerivedFPS     float64         `json:"derived_fps"`
	Frames         int             `json:"frames"`
	DurationSecs   float64         `json:"duration_secs"`
	FrameBytes     int             `json:"frame_bytes"`
	TrailingBytes  int64           `json:"trailing_bytes"`
	Regressions    int             `json:"timestamp_regressions"`
	LumMin         float64         `json:"luminance_min"`
	LumMean        float64         `json:"luminance_mean"`
	LumMax         float64         `json:"luminance_max"`
}

func main() {
	flag.Parse()

	path := *file
	if path == "" {
		path = flag.Arg(0)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "Error: a container path is required")
		flag.Usage()
		os.Exit(1)
	}

	info, err := os.Stat(path)
	if err != nil {
		log.Fatalf("stat %s: %v", path, err)
	}

	frames, err := amb.Load(path)
	if err != nil {
		log.Fatalf("load %s: %v", path, err)
	}

	report := buildReport(path, info.Size(), frames)
	printReport(report)

	if *listFrames {
		printFrames(frames, *listLimit)
	}

	if *jsonOut != "" {
		if err := exportJSON(report, *jsonOut); err != nil {
			log.Fatalf("export JSON: %v", err)
		}
		fmt.Printf("\nReport written to %s\n", *jsonOut)
	}
}

// buildReport derives the inspection report from a loaded container and
// the on-disk size.
func buildReport(path string, fileBytes int64, fs *amb.FrameSet) *Report {
	r := &Report{
		Path:         path,
		FileBytes:    fileBytes,
		Schema:       fs.Schema,
		Format:       fs.Format.String(),
		Zones:        fs.Zones,
		HeaderFPS:    fs.FPS,
		Frames:       len(fs.Frames),
		DurationSecs: fs.Duration().Seconds(),
		FrameBytes:   fs.FrameSize(),
	}

	switch fs.Schema {
	case amb.MAGIC_MULTI:
		edges := fs.Edges
		r.Edges = &edges
		r.TrailingBytes = fileBytes - expectedSize(amb.HEADER_SIZE_MULTI, len(fs.Frames), fs.FrameSize())
	case amb.MAGIC_LEGACY:
		r.RotationOffset = fs.RotationOffset
		r.TrailingBytes = fileBytes - expectedSize(amb.HEADER_SIZE_LEGACY, len(fs.Frames), fs.FrameSize())
	}

	r.DerivedFPS = derivedFPS(fs.Frames)
	r.Regressions = timestampRegressions(fs.Frames)
	r.LumMin, r.LumMean, r.LumMax = luminanceRange(fs)
	return r
}

func expectedSize(header, frames, frameBytes int) int64 {
	return int64(header) + int64(frames)*int64(amb.TIMESTAMP_SIZE+frameBytes)
}

// derivedFPS is the mean frame rate implied by the first and last
// timestamps, independent of the header value.
func derivedFPS(frames []amb.Frame) float64 {
	if len(frames) < 2 {
		return 0
	}
	span := frames[len(frames)-1].Timestamp - frames[0].Timestamp
	if span == 0 {
		return 0
	}
	return float64(len(frames)-1) * 1e6 / float64(span)
}

// timestampRegressions counts records whose timestamp does not advance.
func timestampRegressions(frames []amb.Frame) int {
	regressions := 0
	for i := 1; i < len(frames); i++ {
		if frames[i].Timestamp <= frames[i-1].Timestamp {
			regressions++
		}
	}
	return regressions
}

// luminanceRange scans every frame's mean raw luminance.
func luminanceRange(fs *amb.FrameSet) (min, mean, max float64) {
	if len(fs.Frames) == 0 || fs.Zones == 0 {
		return 0, 0, 0
	}

	min = 256
	var total float64
	for i := range fs.Frames {
		lum := frameLuminance(fs, i)
		total += lum
		if lum < min {
			min = lum
		}
		if lum > max {
			max = lum
		}
	}
	return min, total / float64(len(fs.Frames)), max
}

// frameLuminance is the mean Rec. 709 luminance of one frame's zones,
// using the raw R, G, B bytes (the white channel does not contribute).
func frameLuminance(fs *amb.FrameSet, index int) float64 {
	payload := fs.Frames[index].Payload
	bpz := fs.BytesPerZone()

	var sum float64
	for z := 0; z < fs.Zones; z++ {
		i := z * bpz
		sum += color.Luminance(float64(payload[i]), float64(payload[i+1]), float64(payload[i+2]))
	}
	return sum / float64(fs.Zones)
}

func printReport(r *Report) {
	fmt.Println("=== Container ===")
	fmt.Printf("Path: %s\n", r.Path)
	fmt.Printf("Size: %d bytes\n", r.FileBytes)
	fmt.Printf("Schema: %s\n", r.Schema)
	fmt.Printf("Format: %s (%d bytes/zone)\n", r.Format, r.FrameBytes/r.Zones)
	if r.Edges != nil {
		fmt.Printf("Zones: %d (top %d, bottom %d, left %d, right %d)\n",
			r.Zones, r.Edges.Top, r.Edges.Bottom, r.Edges.Left, r.Edges.Right)
	} else {
		fmt.Printf("Zones: %d\n", r.Zones)
		fmt.Printf("Rotation Offset: %d\n", r.RotationOffset)
	}

	fmt.Println("\n--- Stream ---")
	fmt.Printf("Frames: %d (%d bytes each)\n", r.Frames, r.FrameBytes)
	fmt.Printf("Duration: %s\n", time.Duration(r.DurationSecs*float64(time.Second)).Round(time.Millisecond))
	fmt.Printf("Frame Rate: %.3f fps (header), %.3f fps (derived)\n", r.HeaderFPS, r.DerivedFPS)
	fmt.Printf("Luminance: min %.1f, mean %.1f, max %.1f\n", r.LumMin, r.LumMean, r.LumMax)

	fmt.Println("\n--- Integrity ---")
	if r.TrailingBytes == 0 {
		fmt.Println("Trailing Bytes: none")
	} else {
		fmt.Printf("Trailing Bytes: %d (truncated or foreign data after the last full record)\n", r.TrailingBytes)
	}
	if r.Regressions == 0 {
		fmt.Println("Timestamps: strictly increasing")
	} else {
		fmt.Printf("Timestamps: %d regression(s)\n", r.Regressions)
	}
}

func printFrames(fs *amb.FrameSet, limit int) {
	n := len(fs.Frames)
	if limit > 0 && limit < n {
		n = limit
	}

	fmt.Println("\n--- Frames ---")
	var prev uint64
	for i := 0; i < n; i++ {
		f := fs.Frames[i]
		delta := float64(0)
		if i > 0 {
			delta = (float64(f.Timestamp) - float64(prev)) / 1e3
		}
		fmt.Printf("  %6d  %10.3fs  %+9.1fms  lum %6.1f\n",
			i, float64(f.Timestamp)/1e6, delta, frameLuminance(fs, i))
		prev = f.Timestamp
	}
	if n < len(fs.Frames) {
		fmt.Printf("  ... %d more\n", len(fs.Frames)-n)
	}
}

func exportJSON(r *Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}
