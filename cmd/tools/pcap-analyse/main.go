//go:build pcap
// +build pcap

// Package main provides a PCAP analysis tool for captured LED traffic.
// It filters the UDP datagrams the player sends to the controller and
// reports pacing, blank frames and stalls for offline review.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"gonum.org/v1/gonum/stat"

	"github.com/halolight/ambiplay/internal/sink"
)

const (
	// stallFactor scales the expected inter-arrival gap; anything
	// slower counts as a stall.
	stallFactor = 3.0

	// bytesPerKB is the binary unit for byte size formatting (1 KB = 1024 bytes)
	bytesPerKB = 1024
)

// Config holds configuration for the capture analysis.
type Config struct {
	PCAPFile    string
	OutputDir   string
	UDPPort     int
	ExpectedFPS float64
	ExportCSV   bool
	ExportJSON  bool
	Verbose     bool
}

// AnalysisResult holds the results of a capture analysis.
type AnalysisResult struct {
	PCAPFile         string         `json:"pcap_file"`
	Duration         time.Duration  `json:"duration_ns"`
	DurationSecs     float64        `json:"duration_secs"`
	TotalDatagrams   int            `json:"total_datagrams"`
	PayloadBytes     int64          `json:"payload_bytes"`
	DatagramSizes    map[int]int    `json:"datagram_sizes"`
	FrameRate        float64        `json:"frame_rate"`
	BlankFrames      int            `json:"blank_frames"`
	MeanLevel        float64        `json:"mean_level"`
	PeakLevel        float64        `json:"peak_level"`
	Gaps             GapStatistics  `json:"gap_statistics"`
	StallThresholdMs float64        `json:"stall_threshold_ms"`
	Stalls           int            `json:"stalls"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Seconds          []SecondRollup `json:"seconds,omitempty"`
}

// GapStatistics summarises the inter-arrival gaps between datagrams.
type GapStatistics struct {
	MeanMs   float64 `json:"mean_ms"`
	StdDevMs float64 `json:"std_dev_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P90Ms    float64 `json:"p90_ms"`
	P99Ms    float64 `json:"p99_ms"`
	MaxMs    float64 `json:"max_ms"`
	Samples  int     `json:"samples"`
}

// SecondRollup aggregates one second of capture time.
type SecondRollup struct {
	Second    int     `json:"second"`
	Datagrams int     `json:"datagrams"`
	Blanks    int     `json:"blanks"`
	MeanLevel float64 `json:"mean_level"`
	MaxGapMs  float64 `json:"max_gap_ms"`
}

func main() {
	config := parseFlags()

	if config.PCAPFile == "" {
		fmt.Fprintln(os.Stderr, "Error: PCAP file is required")
		flag.Usage()
		os.Exit(1)
	}

	if _, err := os.Stat(config.PCAPFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: PCAP file not found: %s\n", config.PCAPFile)
		os.Exit(1)
	}

	// Create output directory
	if config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	// Run analysis
	result, err := analyzePCAP(config)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	// Print summary
	printSummary(result)

	// Export results
	if err := exportResults(config, result); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.PCAPFile, "pcap", "", "Path to PCAP file (required)")
	flag.StringVar(&config.OutputDir, "output", ".", "Output directory for results")
	flag.IntVar(&config.UDPPort, "port", sink.DefaultPort, "UDP port the controller listens on")
	flag.Float64Var(&config.ExpectedFPS, "fps", 0, "Expected frame rate (0 infers the stall threshold from the median gap)")
	flag.BoolVar(&config.ExportCSV, "csv", true, "Export per-second rollups to CSV")
	flag.BoolVar(&config.ExportJSON, "json", true, "Export full results to JSON")
	flag.BoolVar(&config.Verbose, "v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "PCAP Analysis Tool for Captured LED Controller Traffic\n\n")
		fmt.Fprintf(os.Stderr, "This tool inspects the raw UDP stream the player sends to the controller:\n")
		fmt.Fprintf(os.Stderr, "  1. Filter datagrams on the controller port\n")
		fmt.Fprintf(os.Stderr, "  2. Measure pacing from capture timestamps\n")
		fmt.Fprintf(os.Stderr, "  3. Detect blank frames and playback stalls\n")
		fmt.Fprintf(os.Stderr, "  4. Export per-second rollups for offline review\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -pcap capture.pcap -output ./results\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -pcap capture.pcap -fps 24 -csv=false\n", os.Args[0])
	}

	flag.Parse()
	return config
}

func analyzePCAP(config Config) (*AnalysisResult, error) {
	startTime := time.Now()

	// Open PCAP file
	handle, err := pcap.OpenOffline(config.PCAPFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP: %w", err)
	}
	defer handle.Close()

	// Set BPF filter for UDP port
	filterStr := fmt.Sprintf("udp port %d", config.UDPPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return nil, fmt.Errorf("failed to set BPF filter: %w", err)
	}

	result := &AnalysisResult{
		PCAPFile:      config.PCAPFile,
		DatagramSizes: make(map[int]int),
	}

	var (
		firstPacketTime, lastPacketTime time.Time
		gapsMs                          []float64
		levelSum                        float64
		buckets                         = make(map[int]*SecondRollup)
	)

	// Process packets
	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())

	for packet := range packetSource.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}

		udp := udpLayer.(*layers.UDP)
		payload := udp.Payload
		if len(payload) == 0 {
			continue
		}

		result.TotalDatagrams++
		result.PayloadBytes += int64(len(payload))
		result.DatagramSizes[len(payload)]++

		pktTime := packet.Metadata().Timestamp
		if firstPacketTime.IsZero() {
			firstPacketTime = pktTime
		}

		var gapMs float64
		if !lastPacketTime.IsZero() {
			gapMs = pktTime.Sub(lastPacketTime).Seconds() * 1000
			gapsMs = append(gapsMs, gapMs)
		}
		lastPacketTime = pktTime

		level := meanLevel(payload)
		levelSum += level
		if level > result.PeakLevel {
			result.PeakLevel = level
		}
		blank := allZero(payload)
		if blank {
			result.BlankFrames++
		}

		// Per-second rollup
		second := int(pktTime.Sub(firstPacketTime).Seconds())
		bucket := buckets[second]
		if bucket == nil {
			bucket = &SecondRollup{Second: second}
			buckets[second] = bucket
		}
		bucket.Datagrams++
		bucket.MeanLevel += level // running sum, divided below
		if blank {
			bucket.Blanks++
		}
		if gapMs > bucket.MaxGapMs {
			bucket.MaxGapMs = gapMs
		}

		if config.Verbose && result.TotalDatagrams%1000 == 0 {
			log.Printf("Datagram %d: %d bytes, gap %.2f ms", result.TotalDatagrams, len(payload), gapMs)
		}
	}

	// Compute duration and derived rate
	result.Duration = lastPacketTime.Sub(firstPacketTime)
	result.DurationSecs = result.Duration.Seconds()
	if result.TotalDatagrams > 1 && result.DurationSecs > 0 {
		result.FrameRate = float64(result.TotalDatagrams-1) / result.DurationSecs
	}
	if result.TotalDatagrams > 0 {
		result.MeanLevel = levelSum / float64(result.TotalDatagrams)
	}

	// Pacing statistics
	result.Gaps = computeGapStats(gapsMs)

	// Stall detection: compare each gap against the expected cadence.
	expectedMs := result.Gaps.P50Ms
	if config.ExpectedFPS > 0 {
		expectedMs = 1000.0 / config.ExpectedFPS
	}
	result.StallThresholdMs = stallFactor * expectedMs
	if result.StallThresholdMs > 0 {
		for _, g := range gapsMs {
			if g > result.StallThresholdMs {
				result.Stalls++
			}
		}
	}

	// Order the per-second rollups
	result.Seconds = make([]SecondRollup, 0, len(buckets))
	for _, b := range buckets {
		if b.Datagrams > 0 {
			b.MeanLevel /= float64(b.Datagrams)
		}
		result.Seconds = append(result.Seconds, *b)
	}
	sort.Slice(result.Seconds, func(i, j int) bool {
		return result.Seconds[i].Second < result.Seconds[j].Second
	})

	// Processing time
	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	return result, nil
}

// computeGapStats summarises inter-arrival gaps in milliseconds.
func computeGapStats(gapsMs []float64) GapStatistics {
	if len(gapsMs) == 0 {
		return GapStatistics{}
	}

	sorted := make([]float64, len(gapsMs))
	copy(sorted, gapsMs)
	sort.Float64s(sorted)

	stats := GapStatistics{
		MeanMs:  stat.Mean(sorted, nil),
		P50Ms:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P90Ms:   stat.Quantile(0.90, stat.Empirical, sorted, nil),
		P99Ms:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
		MaxMs:   sorted[len(sorted)-1],
		Samples: len(sorted),
	}
	if len(sorted) > 1 {
		stats.StdDevMs = stat.StdDev(sorted, nil)
	}
	return stats
}

// meanLevel returns the mean byte value of a payload (0-255). The
// metric is channel-agnostic so it works for RGB and RGBW streams.
func meanLevel(payload []byte) float64 {
	var sum int
	for _, b := range payload {
		sum += int(b)
	}
	return float64(sum) / float64(len(payload))
}

func allZero(payload []byte) bool {
	for _, b := range payload {
		if b != 0 {
			return false
		}
	}
	return true
}

func printSummary(result *AnalysisResult) {
	fmt.Println("\n========== Capture Summary ==========")
	fmt.Printf("File: %s\n", result.PCAPFile)
	fmt.Printf("Duration: %.1f seconds (%.1f minutes)\n", result.DurationSecs, result.DurationSecs/60)
	fmt.Printf("Processing time: %d ms\n", result.ProcessingTimeMs)
	fmt.Println()
	fmt.Printf("Datagrams: %d (%s payload)\n", result.TotalDatagrams, formatBytes(uint64(result.PayloadBytes)))
	fmt.Printf("Frame rate: %.2f fps (from capture timestamps)\n", result.FrameRate)
	if result.TotalDatagrams > 0 {
		fmt.Printf("Blank frames: %d (%.1f%%)\n", result.BlankFrames,
			100*float64(result.BlankFrames)/float64(result.TotalDatagrams))
	}
	fmt.Printf("Output level: mean %.1f, peak %.1f (0-255)\n", result.MeanLevel, result.PeakLevel)

	fmt.Println("\nDatagram Sizes:")
	sizes := make([]int, 0, len(result.DatagramSizes))
	for size := range result.DatagramSizes {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	for _, size := range sizes {
		count := result.DatagramSizes[size]
		pct := 100 * float64(count) / float64(result.TotalDatagrams)
		fmt.Printf("  %d bytes: %d (%.1f%%)\n", size, count, pct)
	}

	fmt.Println("\nPacing (inter-arrival gaps):")
	fmt.Printf("  Avg: %.2f ms (%.1f fps)\n", result.Gaps.MeanMs, fpsFromGap(result.Gaps.MeanMs))
	fmt.Printf("  P50: %.2f ms\n", result.Gaps.P50Ms)
	fmt.Printf("  P90: %.2f ms\n", result.Gaps.P90Ms)
	fmt.Printf("  P99: %.2f ms\n", result.Gaps.P99Ms)
	fmt.Printf("  Max: %.2f ms\n", result.Gaps.MaxMs)
	fmt.Printf("  Stalls: %d (gap > %.1f ms)\n", result.Stalls, result.StallThresholdMs)
	fmt.Println("======================================")
}

func fpsFromGap(gapMs float64) float64 {
	if gapMs <= 0 {
		return 0
	}
	return 1000.0 / gapMs
}

func exportResults(config Config, result *AnalysisResult) error {
	baseName := strings.TrimSuffix(filepath.Base(config.PCAPFile), filepath.Ext(config.PCAPFile))

	// Export JSON
	if config.ExportJSON {
		jsonPath := filepath.Join(config.OutputDir, baseName+"_analysis.json")
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("JSON marshal: %w", err)
		}
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
		fmt.Printf("JSON results: %s\n", jsonPath)
	}

	// Export CSV
	if config.ExportCSV && len(result.Seconds) > 0 {
		csvPath := filepath.Join(config.OutputDir, baseName+"_seconds.csv")
		if err := exportSecondsCSV(csvPath, result.Seconds); err != nil {
			return fmt.Errorf("write CSV: %w", err)
		}
		fmt.Printf("CSV rollups: %s\n", csvPath)
	}

	return nil
}

func exportSecondsCSV(path string, seconds []SecondRollup) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// Header
	header := []string{"second", "datagrams", "blanks", "mean_level", "max_gap_ms"}
	if err := w.Write(header); err != nil {
		return err
	}

	// Data rows
	for _, s := range seconds {
		row := []string{
			strconv.Itoa(s.Second),
			strconv.Itoa(s.Datagrams),
			strconv.Itoa(s.Blanks),
			strconv.FormatFloat(s.MeanLevel, 'f', 1, 64),
			strconv.FormatFloat(s.MaxGapMs, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}

// formatBytes formats bytes as human-readable string using binary units (1 KB = 1024 bytes).
func formatBytes(b uint64) string {
	if b < bytesPerKB {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(bytesPerKB), 0
	for n := b / bytesPerKB; n >= bytesPerKB; n /= bytesPerKB {
		div *= bytesPerKB
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
