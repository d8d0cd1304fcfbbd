package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/halolight/ambiplay/internal/engine"
	"github.com/halolight/ambiplay/internal/httputil"
)

// Chart pages load the echarts runtime from the public assets mirror.
const echartsAssets = "https://go-echarts.github.io/go-echarts-assets/assets/"

// chartSamples pulls the retained ticks and downsamples them to stay within
// the max_points query parameter (default 2000).
func (ws *WebServer) chartSamples(r *http.Request) ([]engine.TickSample, int) {
	samples := ws.ring.Samples()

	maxPoints := 2000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v >= 10 && v <= 20000 {
			maxPoints = v
		}
	}

	stride := 1
	if len(samples) > maxPoints {
		stride = int(math.Ceil(float64(len(samples)) / float64(maxPoints)))
	}
	return samples, stride
}

// handleLatencyChart renders per-tick transmit latency and pacing sleep as a
// line chart. This is a debugging-only endpoint (no auth); the same data is
// available raw at /api/ticks.
// Query params:
//   - max_points (optional; default 2000) to reduce payload size
func (ws *WebServer) handleLatencyChart(w http.ResponseWriter, r *http.Request) {
	if ws.ring == nil {
		httputil.NotFound(w, "no tick ring configured")
		return
	}

	samples, stride := ws.chartSamples(r)
	if len(samples) == 0 {
		httputil.NotFound(w, "no tick samples recorded yet")
		return
	}

	xs := make([]string, 0, len(samples)/stride+1)
	latency := make([]opts.LineData, 0, len(samples)/stride+1)
	sleeps := make([]opts.LineData, 0, len(samples)/stride+1)
	for i := 0; i < len(samples); i += stride {
		s := samples[i]
		xs = append(xs, fmt.Sprintf("%.2f", float64(s.RelMicros)/1e6))
		latency = append(latency, opts.LineData{Value: s.LatencyMicros})
		sleeps = append(sleeps, opts.LineData{Value: s.SleepMicros})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Playback Tick Latency", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssets}),
		charts.WithTitleOpts(opts.Title{Title: "Tick Latency", Subtitle: fmt.Sprintf("samples=%d stride=%d", len(samples), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Position (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Microseconds", NameLocation: "middle", NameGap: 45}),
	)
	line.SetXAxis(xs).
		AddSeries("latency_us", latency,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#fde725"}),
		).
		AddSeries("sleep_us", sleeps,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#31688e"}),
		)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleLuminanceChart renders per-frame average luminance as a scatter over
// playback position, colour-mapped by the luminance value.
// Query params:
//   - max_points (optional; default 2000) to reduce payload size
func (ws *WebServer) handleLuminanceChart(w http.ResponseWriter, r *http.Request) {
	if ws.ring == nil {
		httputil.NotFound(w, "no tick ring configured")
		return
	}

	samples, stride := ws.chartSamples(r)
	if len(samples) == 0 {
		httputil.NotFound(w, "no tick samples recorded yet")
		return
	}

	data := make([]opts.ScatterData, 0, len(samples)/stride+1)
	for i := 0; i < len(samples); i += stride {
		s := samples[i]
		relSec := float64(s.RelMicros) / 1e6
		data = append(data, opts.ScatterData{Value: []interface{}{relSec, s.AvgLuminance}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Frame Luminance", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssets}),
		charts.WithTitleOpts(opts.Title{Title: "Frame Luminance", Subtitle: fmt.Sprintf("samples=%d stride=%d", len(samples), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Position (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 255, Name: "Luminance", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        255,
			Dimension:  "1",
			InRange:    &opts.VisualMapInRange{Color: []string{"#1a1a2e", "#31688e", "#35b779", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("luminance", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
