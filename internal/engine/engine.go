// Package engine paces precomputed ambient-light frames against the wall
// clock and pushes them through the resample/color pipeline to the sink.
//
// The engine owns the frame cursor, the smoothing state and the socket; it
// runs on a single goroutine and observes control intents (seek, pause,
// stop, heartbeat) by polling a shared control.State once per tick. The
// only voluntary suspension point is the pacing sleep, so a command is
// acted on within one tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/halolight/ambiplay/internal/amb"
	"github.com/halolight/ambiplay/internal/color"
	"github.com/halolight/ambiplay/internal/control"
	"github.com/halolight/ambiplay/internal/monitoring"
	"github.com/halolight/ambiplay/internal/strip"
	"github.com/halolight/ambiplay/internal/timeutil"
)

// PlayState names the engine lifecycle states.
type PlayState string

const (
	StateArmed   PlayState = "armed"
	StatePlaying PlayState = "playing"
	StatePaused  PlayState = "paused"
	StateStopped PlayState = "stopped"
)

// latencyAlpha weights the exponential average of per-tick processing and
// transmit time that the pacing sleep compensates for.
const latencyAlpha = 0.1

// Transmitter sends one wire frame per tick. *sink.UDPSink satisfies it.
type Transmitter interface {
	Send(frame []byte) error
}

// TickSample captures one playback tick for the monitor ring.
type TickSample struct {
	Index         int     `json:"index"`
	RelMicros     int64   `json:"rel_micros"`
	SleepMicros   int64   `json:"sleep_micros"`
	LatencyMicros int64   `json:"latency_micros"`
	AvgLuminance  float64 `json:"avg_luminance"`
}

// TickRecorder receives a sample after every transmitted frame.
// Implementations must be safe for concurrent use.
type TickRecorder interface {
	RecordTick(TickSample)
}

// Snapshot is a point-in-time view of playback for the monitor.
type Snapshot struct {
	State         PlayState `json:"state"`
	Index         int       `json:"index"`
	Frames        int       `json:"frames"`
	Position      float64   `json:"position_seconds"`
	FramesSent    uint64    `json:"frames_sent"`
	SendErrors    uint64    `json:"send_errors"`
	LatencyMicros int64     `json:"latency_ema_micros"`
}

// Config wires an Engine. Frames, Resampler, Processor, Sink and Control
// are required; the rest defaults sensibly.
type Config struct {
	Frames    *amb.FrameSet
	Resampler *strip.Resampler
	Processor *color.Processor
	Sink      Transmitter
	Control   *control.State

	// Clock drives pacing; nil selects the real clock.
	Clock timeutil.Clock

	// Ticks receives one sample per transmitted frame when set.
	Ticks TickRecorder

	// StartOffset shifts playback into the stream, in media seconds.
	StartOffset float64

	// ReferenceEpoch, when positive, is the unix time the video started;
	// the elapsed wall time since it is added to the start offset.
	ReferenceEpoch float64

	// SyncLead skews playback ahead of the video to absorb the LED path's
	// fixed delay.
	SyncLead time.Duration

	// PausePoll is the idle interval while paused; ≤0 selects 50ms.
	PausePoll time.Duration

	// StopBlanks is the number of all-zero frames transmitted on the way
	// out. Zero or negative means none; the config layer supplies the
	// default of 3 via GetStopBlankCount.
	StopBlanks int
}

// Engine replays one FrameSet. Run may be called once; Snapshot is safe
// to call from other goroutines at any time.
type Engine struct {
	frames    *amb.FrameSet
	resampler *strip.Resampler
	processor *color.Processor
	sink      Transmitter
	control   *control.State
	clock     timeutil.Clock
	ticks     TickRecorder

	startOffset float64
	refEpoch    float64
	syncLead    time.Duration
	pausePoll   time.Duration
	stopBlanks  int

	mu         sync.Mutex
	state      PlayState
	index      int
	position   float64
	framesSent uint64
	sendErrors uint64
	latencyEMA time.Duration
	ran        bool
}

// New validates the wiring and returns an armed engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Frames == nil {
		return nil, errors.New("engine: frame set is required")
	}
	if cfg.Resampler == nil {
		return nil, errors.New("engine: resampler is required")
	}
	if cfg.Processor == nil {
		return nil, errors.New("engine: color processor is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("engine: sink is required")
	}
	if cfg.Control == nil {
		return nil, errors.New("engine: control state is required")
	}
	if got, want := cfg.Processor.Size(), cfg.Resampler.TargetSize(); got != want {
		return nil, fmt.Errorf("engine: processor expects %d-byte frames, resampler emits %d", got, want)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	pausePoll := cfg.PausePoll
	if pausePoll <= 0 {
		pausePoll = 50 * time.Millisecond
	}
	stopBlanks := cfg.StopBlanks
	if stopBlanks < 0 {
		stopBlanks = 0
	}

	return &Engine{
		frames:      cfg.Frames,
		resampler:   cfg.Resampler,
		processor:   cfg.Processor,
		sink:        cfg.Sink,
		control:     cfg.Control,
		clock:       clock,
		ticks:       cfg.Ticks,
		startOffset: cfg.StartOffset,
		refEpoch:    cfg.ReferenceEpoch,
		syncLead:    cfg.SyncLead,
		pausePoll:   pausePoll,
		stopBlanks:  stopBlanks,
		state:       StateArmed,
	}, nil
}

// Snapshot returns the current playback view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State:         e.state,
		Index:         e.index,
		Frames:        len(e.frames.Frames),
		Position:      e.position,
		FramesSent:    e.framesSent,
		SendErrors:    e.sendErrors,
		LatencyMicros: e.latencyEMA.Microseconds(),
	}
}

// effectiveStart computes the stream position playback begins at: the
// configured offset, plus the wall time elapsed since the reference epoch
// when one is given, plus the sync lead.
func (e *Engine) effectiveStart() float64 {
	start := e.startOffset
	if e.refEpoch > 0 {
		if since := float64(e.clock.Now().UnixNano())/1e9 - e.refEpoch; since > 0 {
			start += since
		}
	}
	start += e.syncLead.Seconds()
	if start < 0 {
		start = 0
	}
	return start
}

// Run replays the frame set until stop, end of stream, or context
// cancellation, then blanks the strip and returns. It must be called at
// most once.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.ran {
		e.mu.Unlock()
		return errors.New("engine: Run may only be called once")
	}
	e.ran = true
	e.mu.Unlock()

	start := e.effectiveStart()
	startIdx := e.frames.IndexAt(uint64(start * 1e6))
	log.Printf("engine: armed at frame %d/%d (start %.3fs, fps %.2f, lead %v)",
		startIdx, len(e.frames.Frames), start, e.frames.FPS, e.syncLead)

	e.setState(StatePlaying)

	// Run-loop state. Elapsed playback time is elapsedBase plus the wall
	// time since anchor; pausing folds the live part into the base so the
	// clock freezes while paused.
	var (
		index       = startIdx
		startTS     = uint64(0)
		elapsedBase time.Duration
		anchor      = e.clock.Now()
		wasPaused   bool
		blankSent   bool
		latEMA      time.Duration
		emaSeeded   bool
		lastErrLog  time.Time
		reason      string
		runErr      error
	)
	if startIdx < len(e.frames.Frames) {
		startTS = e.frames.Frames[startIdx].Timestamp
	}

	for {
		select {
		case <-ctx.Done():
			reason, runErr = "context cancelled", ctx.Err()
		default:
		}
		if reason == "" && e.control.Stopped() {
			reason = "stop command"
		}
		if reason != "" {
			break
		}

		// Heartbeats are consumed so a stale one is never acted on later;
		// they drive nothing.
		e.control.TakeBeat()

		if target, ok := e.control.TakeSeek(); ok {
			if target < 0 {
				target = 0
			}
			index = e.frames.IndexAt(uint64(target * 1e6))
			if index < len(e.frames.Frames) {
				startTS = e.frames.Frames[index].Timestamp
			}
			startIdx = index
			elapsedBase = 0
			anchor = e.clock.Now()
			e.processor.Reset()
			log.Printf("engine: seek to %.3fs lands on frame %d/%d", target, index, len(e.frames.Frames))
		}

		if index >= len(e.frames.Frames) {
			reason = "end of stream"
			break
		}

		paused := e.control.Paused()
		if paused && !wasPaused {
			elapsedBase += e.clock.Since(anchor)
			wasPaused = true
			e.setState(StatePaused)
			if !blankSent {
				if err := e.sink.Send(make([]byte, e.resampler.TargetSize())); err != nil {
					monitoring.Logf("engine: pause blank transmit failed: %v", err)
				}
				blankSent = true
			}
			log.Printf("engine: paused at frame %d", index)
		}
		if !paused && wasPaused {
			anchor = e.clock.Now()
			wasPaused = false
			blankSent = false
			e.setState(StatePlaying)
			log.Printf("engine: resumed at frame %d", index)
		}
		if paused {
			e.clock.Sleep(e.pausePoll)
			continue
		}

		frame := e.frames.Frames[index]

		// Target time of this frame relative to the start frame; fall
		// back to frame counting when the timestamps are unusable.
		var rel time.Duration
		if frame.Timestamp >= startTS {
			rel = time.Duration(frame.Timestamp-startTS) * time.Microsecond
		} else {
			rel = time.Duration(float64(index-startIdx) / e.frames.FPS * float64(time.Second))
		}

		elapsed := elapsedBase + e.clock.Since(anchor)
		sleep := rel - elapsed - latEMA
		if sleep > 0 {
			e.clock.Sleep(sleep)
		} else {
			sleep = 0
		}

		tickStart := e.clock.Now()

		// Inter-frame delta drives the smoothing blend.
		dt := time.Duration(float64(time.Second) / e.frames.FPS)
		if index > 0 {
			if prev := e.frames.Frames[index-1].Timestamp; frame.Timestamp > prev {
				dt = time.Duration(frame.Timestamp-prev) * time.Microsecond
			}
		}

		resampled, err := e.resampler.Resample(frame.Payload)
		if err != nil {
			monitoring.Logf("engine: frame %d resample failed: %v", index, err)
			index++
			continue
		}
		result, err := e.processor.Process(resampled, dt)
		if err != nil {
			monitoring.Logf("engine: frame %d pipeline failed: %v", index, err)
			index++
			continue
		}

		sent := true
		if err := e.sink.Send(result.Frame); err != nil {
			sent = false
			e.mu.Lock()
			e.sendErrors++
			errs := e.sendErrors
			e.mu.Unlock()
			// One frame is never retried; the next tick supersedes it.
			if e.clock.Since(lastErrLog) >= time.Second {
				monitoring.Logf("engine: transmit failed (%d total): %v", errs, err)
				lastErrLog = e.clock.Now()
			}
		}

		latency := e.clock.Since(tickStart)
		if !emaSeeded {
			latEMA = latency
			emaSeeded = true
		} else {
			latEMA = time.Duration(float64(latEMA)*(1-latencyAlpha) + float64(latency)*latencyAlpha)
		}

		if e.ticks != nil {
			e.ticks.RecordTick(TickSample{
				Index:         index,
				RelMicros:     rel.Microseconds(),
				SleepMicros:   sleep.Microseconds(),
				LatencyMicros: latency.Microseconds(),
				AvgLuminance:  result.AvgLuminance,
			})
		}

		e.mu.Lock()
		e.index = index + 1
		e.position = float64(frame.Timestamp) / 1e6
		if sent {
			e.framesSent++
		}
		sentSoFar := e.framesSent
		e.latencyEMA = latEMA
		e.mu.Unlock()

		if sent && sentSoFar%1000 == 0 {
			monitoring.Logf("engine: %d/%d frames sent, position %.1fs, latency ema %v",
				sentSoFar, len(e.frames.Frames), float64(frame.Timestamp)/1e6, latEMA)
		}

		index++
	}

	e.blankOut()
	e.mu.Lock()
	e.index = index
	e.state = StateStopped
	sent := e.framesSent
	e.mu.Unlock()
	log.Printf("engine: playback stopped (%s) after %d frames", reason, sent)
	return runErr
}

// blankOut darkens the strip with a burst of zero frames so the last
// played colors do not linger after termination.
func (e *Engine) blankOut() {
	if e.stopBlanks <= 0 {
		return
	}
	blank := make([]byte, e.resampler.TargetSize())
	for i := 0; i < e.stopBlanks; i++ {
		if err := e.sink.Send(blank); err != nil {
			monitoring.Logf("engine: stop blank transmit failed: %v", err)
			return
		}
	}
}

func (e *Engine) setState(s PlayState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}
