// Package amb reads and writes the binary ambient-frame container consumed
// by the playback engine.
package amb

import (
	"fmt"
	"sort"
	"time"
)

/*
Ambient Frame Container (.amb) Layout

Files are little-endian throughout and begin with a 4-byte magic tag which
selects the header schema. Two schemas are in circulation:

LEGACY SCHEMA "AMBI" (14-byte header):
├── Magic (4 bytes)          - "AMBI"
├── FrameRate (4 bytes)      - float32 nominal frames per second
├── LEDCount (2 bytes)       - total zones per frame
├── Format (2 bytes)         - 0=RGB, 1=RGBW
└── RotationOffset (2 bytes) - physical strip rotation in zones

MULTI-EDGE SCHEMA "AMb2" (17-byte header):
├── Magic (4 bytes)          - "AMb2"
├── FrameRate (4 bytes)      - float32 nominal frames per second
├── Top (2 bytes)            - zone count across the top edge
├── Bottom (2 bytes)         - zone count across the bottom edge
├── Left (2 bytes)           - zone count down the left edge
├── Right (2 bytes)          - zone count down the right edge
└── Format (1 byte)          - 0=RGB, 1=RGBW

FRAME RECORDS (immediately after the header, repeated to end of file):
├── Timestamp (8 bytes)      - uint64 microseconds from stream start
└── Payload (zones × bytes_per_zone bytes) - raw channel bytes per zone

Within a payload the zones walk the screen perimeter clockwise from the
top-left corner: top edge left→right, right edge top→bottom, bottom edge
right→left, left edge bottom→top.

A trailing record whose payload cannot be fully read is dropped together
with its timestamp; every complete record before it loads normally. Header
frame rates outside (0, 300] are treated as corrupt and healed from the
first two frame timestamps, with 24 fps as the last resort.
*/

// Container format constants. These define the fixed layout of .amb files
// produced by the extraction tooling.
const (
	MAGIC_SIZE         = 4      // Magic tag bytes at the start of every container
	MAGIC_LEGACY       = "AMBI" // Legacy schema: single zone count + rotation offset
	MAGIC_MULTI        = "AMb2" // Current schema: per-edge zone counts
	HEADER_SIZE_LEGACY = 14     // magic + fps + led_count + format + rotation_offset
	HEADER_SIZE_MULTI  = 17     // magic + fps + 4 edge counts + format
	TIMESTAMP_SIZE     = 8      // Per-record microsecond timestamp (uint64)

	BYTES_PER_ZONE_RGB  = 3 // R, G, B
	BYTES_PER_ZONE_RGBW = 4 // R, G, B, W

	MAX_FPS     = 300.0 // Header frame rates above this are treated as corrupt
	DEFAULT_FPS = 24.0  // Last-resort rate when header and timestamps are both unusable
)

// PixelFormat selects the per-zone payload encoding.
type PixelFormat uint8

const (
	FormatRGB  PixelFormat = 0 // 3 bytes per zone
	FormatRGBW PixelFormat = 1 // 4 bytes per zone, trailing dedicated white channel
)

// Valid reports whether f is a known format selector.
func (f PixelFormat) Valid() bool {
	return f == FormatRGB || f == FormatRGBW
}

// BytesPerZone returns the payload width of a single zone.
func (f PixelFormat) BytesPerZone() int {
	if f == FormatRGBW {
		return BYTES_PER_ZONE_RGBW
	}
	return BYTES_PER_ZONE_RGB
}

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB:
		return "RGB"
	case FormatRGBW:
		return "RGBW"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint8(f))
	}
}

// EdgeCounts holds the per-edge zone counts of the multi-edge schema.
type EdgeCounts struct {
	Top    int
	Bottom int
	Left   int
	Right  int
}

// Total returns the combined zone count of all four edges.
func (e EdgeCounts) Total() int {
	return e.Top + e.Bottom + e.Left + e.Right
}

// Frame is one timestamped record from the container.
type Frame struct {
	Timestamp uint64 // microseconds from stream start
	Payload   []byte // Zones × BytesPerZone raw channel bytes
}

// FrameSet is a fully loaded container. Once returned by the loader it is
// read-only; the engine and resampler share it without synchronization.
type FrameSet struct {
	Schema         string      // magic tag the container carried
	FPS            float64     // healed frame rate, always in (0, MAX_FPS]
	Format         PixelFormat // per-zone payload encoding
	Zones          int         // total zones per frame
	Edges          EdgeCounts  // per-edge split (zero-valued for the legacy schema)
	RotationOffset int         // legacy header rotation, applied by the resampler
	Frames         []Frame
}

// BytesPerZone returns the per-zone payload width for the set's pixel format.
func (fs *FrameSet) BytesPerZone() int {
	return fs.Format.BytesPerZone()
}

// FrameSize returns the payload length in bytes of every frame in the set.
func (fs *FrameSet) FrameSize() int {
	return fs.Zones * fs.Format.BytesPerZone()
}

// Duration returns the timestamp of the last frame as an offset from stream
// start, or zero for an empty set.
func (fs *FrameSet) Duration() time.Duration {
	if len(fs.Frames) == 0 {
		return 0
	}
	return time.Duration(fs.Frames[len(fs.Frames)-1].Timestamp) * time.Microsecond
}

// IndexAt returns the index of the first frame whose timestamp is at or
// after micros. The result equals len(Frames) when every frame is earlier,
// which callers treat as end-of-stream.
func (fs *FrameSet) IndexAt(micros uint64) int {
	return sort.Search(len(fs.Frames), func(i int) bool {
		return fs.Frames[i].Timestamp >= micros
	})
}

// FormatError reports a structurally unusable container: bad magic,
// truncated header, or an unknown format selector. It is fatal; no frames
// from the source are usable.
type FormatError struct {
	Path   string // source path when known, empty for raw streams
	Offset int64  // byte offset where parsing failed
	Reason string
}

func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("amb: %s: %s (offset %d)", e.Path, e.Reason, e.Offset)
	}
	return fmt.Sprintf("amb: %s (offset %d)", e.Reason, e.Offset)
}
