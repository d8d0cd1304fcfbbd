package monitor

import (
	"sync"
	"time"

	"github.com/halolight/ambiplay/internal/engine"
)

// defaultRingSize bounds the sample memory when the caller passes no capacity.
// At 60 fps this retains roughly the last 85 seconds of playback.
const defaultRingSize = 5120

// Rollup summarizes the ticks recorded since the previous rollup.
type Rollup struct {
	Ticks         int64     `json:"ticks"`
	TicksPerSec   float64   `json:"ticks_per_sec"`
	MeanLatencyUs int64     `json:"mean_latency_us"`
	MeanLuminance float64   `json:"mean_luminance"`
	Timestamp     time.Time `json:"timestamp"`
}

// TickRing retains the most recent playback tick samples for the web
// interface and accumulates window totals for periodic journal rollups.
// It implements engine.TickRecorder and is safe for concurrent use.
type TickRing struct {
	mu      sync.Mutex
	samples []engine.TickSample
	next    int
	full    bool

	// Window accumulators, drained by RollupAndReset.
	windowTicks   int64
	windowLatency int64
	windowLum     float64
	lastReset     time.Time

	startTime    time.Time
	latestRollup *Rollup
}

// NewTickRing creates a ring holding up to capacity samples. A capacity of
// zero or less selects the default.
func NewTickRing(capacity int) *TickRing {
	if capacity <= 0 {
		capacity = defaultRingSize
	}
	now := time.Now()
	return &TickRing{
		samples:   make([]engine.TickSample, capacity),
		lastReset: now,
		startTime: now,
	}
}

// RecordTick stores one sample, overwriting the oldest once the ring is full.
func (r *TickRing) RecordTick(s engine.TickSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.next] = s
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}

	r.windowTicks++
	r.windowLatency += s.LatencyMicros
	r.windowLum += s.AvgLuminance
}

// Len returns the number of samples currently retained.
func (r *TickRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.samples)
	}
	return r.next
}

// Capacity returns the fixed sample capacity of the ring.
func (r *TickRing) Capacity() int {
	return len(r.samples)
}

// Samples returns a copy of the retained samples, oldest first.
func (r *TickRing) Samples() []engine.TickSample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]engine.TickSample, r.next)
		copy(out, r.samples[:r.next])
		return out
	}

	out := make([]engine.TickSample, 0, len(r.samples))
	out = append(out, r.samples[r.next:]...)
	out = append(out, r.samples[:r.next]...)
	return out
}

// RollupAndReset drains the window accumulators and returns their summary.
// The result is also kept for the status endpoints until the next rollup.
func (r *TickRing) RollupAndReset() Rollup {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	duration := now.Sub(r.lastReset)

	roll := Rollup{Ticks: r.windowTicks, Timestamp: now}
	if r.windowTicks > 0 {
		roll.MeanLatencyUs = r.windowLatency / r.windowTicks
		roll.MeanLuminance = r.windowLum / float64(r.windowTicks)
	}
	if duration > 0 {
		roll.TicksPerSec = float64(r.windowTicks) / duration.Seconds()
	}

	r.windowTicks = 0
	r.windowLatency = 0
	r.windowLum = 0
	r.lastReset = now
	r.latestRollup = &roll

	return roll
}

// LatestRollup returns a copy of the most recent rollup, or nil before the
// first one.
func (r *TickRing) LatestRollup() *Rollup {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latestRollup == nil {
		return nil
	}
	roll := *r.latestRollup
	return &roll
}

// Uptime returns the time since the ring was created.
func (r *TickRing) Uptime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.startTime)
}
