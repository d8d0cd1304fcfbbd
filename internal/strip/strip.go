// Package strip maps source frame zones onto the physical LED strip: a
// nearest-source resample from the container's zone count to the strip's,
// followed by a rotation that reorients the strip's start position.
package strip

import (
	"fmt"
)

// Layout describes the physical strip the playback targets. Zones walk the
// screen perimeter clockwise from the top-left corner, matching the
// container's payload order.
type Layout struct {
	Top    int
	Bottom int
	Left   int
	Right  int

	// Count overrides the per-edge sum for strips configured with a single
	// combined zone count (legacy containers carry no edge split).
	Count int
}

// Total returns the strip's zone count.
func (l Layout) Total() int {
	if l.Count > 0 {
		return l.Count
	}
	return l.Top + l.Bottom + l.Left + l.Right
}

// Resampler converts source payloads to target-strip payloads. It is
// stateless after construction and safe for reuse across frames.
type Resampler struct {
	src      int // source zones per frame
	dst      int // target zones per frame
	bpz      int // bytes per zone (3 RGB, 4 RGBW)
	rotation int // start-position offset, normalized to [0, dst)
}

// NewResampler builds a resampler from src source zones to dst target zones
// of bytesPerZone-wide payloads. rotation may be any integer; it is
// normalized into [0, dst).
func NewResampler(src, dst, bytesPerZone, rotation int) (*Resampler, error) {
	if src <= 0 {
		return nil, fmt.Errorf("strip: source zone count %d must be positive", src)
	}
	if dst <= 0 {
		return nil, fmt.Errorf("strip: target zone count %d must be positive", dst)
	}
	if bytesPerZone != 3 && bytesPerZone != 4 {
		return nil, fmt.Errorf("strip: bytes per zone must be 3 or 4, got %d", bytesPerZone)
	}

	return &Resampler{
		src:      src,
		dst:      dst,
		bpz:      bytesPerZone,
		rotation: normalize(rotation, dst),
	}, nil
}

// TargetSize returns the byte length of every resampled frame.
func (r *Resampler) TargetSize() int {
	return r.dst * r.bpz
}

// Resample builds the target frame for one source payload. Target zone t
// reads source zone floor(t·src/dst); no interpolation happens across zone
// boundaries, so each output zone carries exactly one stored color. The
// rotation is applied last: physical position i receives the color of
// logical position (i+rotation) mod dst. The returned buffer is freshly
// allocated each call.
func (r *Resampler) Resample(src []byte) ([]byte, error) {
	if len(src) != r.src*r.bpz {
		return nil, fmt.Errorf("strip: source payload is %d bytes, want %d", len(src), r.src*r.bpz)
	}

	out := make([]byte, r.dst*r.bpz)
	for i := 0; i < r.dst; i++ {
		logical := (i + r.rotation) % r.dst
		srcIdx := logical * r.src / r.dst
		copy(out[i*r.bpz:(i+1)*r.bpz], src[srcIdx*r.bpz:(srcIdx+1)*r.bpz])
	}
	return out, nil
}

// Rotate returns a copy of frame rotated so that physical position i carries
// the zone at logical position (i+n) mod count. Rotating by n and then by
// count−n restores the original frame.
func Rotate(frame []byte, bytesPerZone, n int) []byte {
	out := make([]byte, len(frame))
	count := len(frame) / bytesPerZone
	if count == 0 {
		return out
	}

	n = normalize(n, count)
	split := n * bytesPerZone
	copy(out, frame[split:])
	copy(out[len(frame)-split:], frame[:split])
	return out
}

func normalize(n, count int) int {
	n %= count
	if n < 0 {
		n += count
	}
	return n
}
