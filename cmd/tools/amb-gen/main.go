// Command amb-gen writes synthetic ambient frame containers for tests and
// load checks: solid color, static gradient, rotating sweep, or a
// luminance pulse, in either container schema and pixel format.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/halolight/ambiplay/internal/amb"
)

var (
	output   = flag.String("o", "synthetic.amb", "output path")
	frames   = flag.Int("n", 300, "number of frames")
	fps      = flag.Float64("fps", 30, "frame rate")
	zones    = flag.Int("zones", 60, "zone count (split over the edges for the multi schema)")
	top      = flag.Int("top", 0, "top edge zones (multi schema; overrides -zones with -bottom/-left/-right)")
	bottom   = flag.Int("bottom", 0, "bottom edge zones")
	left     = flag.Int("left", 0, "left edge zones")
	right    = flag.Int("right", 0, "right edge zones")
	schema   = flag.String("schema", "multi", "container schema: multi or legacy")
	format   = flag.String("format", "RGB", "pixel format: RGB or RGBW")
	pattern  = flag.String("pattern", "sweep", "fill pattern: solid, gradient, sweep or pulse")
	solidHex = flag.String("color", "#FF8000", "solid/pulse pattern color as #RRGGBB")
	rotation = flag.Int("rotation", 0, "rotation offset (legacy schema only)")
)

func main() {
	flag.Parse()

	if *frames <= 0 {
		log.Fatalf("-n must be positive, got %d", *frames)
	}
	if *fps <= 0 || *fps > amb.MAX_FPS {
		log.Fatalf("-fps must be in (0, %v], got %v", amb.MAX_FPS, *fps)
	}

	base, err := parseHexColor(*solidHex)
	if err != nil {
		log.Fatalf("bad -color: %v", err)
	}

	pixFormat, err := parseFormat(*format)
	if err != nil {
		log.Fatalf("bad -format: %v", err)
	}

	fs := &amb.FrameSet{
		FPS:    *fps,
		Format: pixFormat,
	}

	switch strings.ToLower(*schema) {
	case "multi":
		if *rotation != 0 {
			log.Fatal("-rotation applies to the legacy schema only")
		}
		fs.Schema = amb.MAGIC_MULTI
		fs.Edges = pickEdges(*zones, *top, *bottom, *left, *right)
		fs.Zones = fs.Edges.Total()
	case "legacy":
		fs.Schema = amb.MAGIC_LEGACY
		fs.Zones = *zones
		fs.RotationOffset = *rotation
	default:
		log.Fatalf("unknown -schema %q (want multi or legacy)", *schema)
	}
	if fs.Zones <= 0 {
		log.Fatalf("zone count must be positive, got %d", fs.Zones)
	}

	fs.Frames = buildFrames(*pattern, *frames, fs.Zones, fs.BytesPerZone(), *fps, base)

	if err := amb.WriteFile(*output, fs); err != nil {
		log.Fatalf("write %s: %v", *output, err)
	}
	log.Printf("✓ Created: %s (%s, %d frames, %.1f fps, %d zones, %s)",
		*output, fs.Schema, len(fs.Frames), fs.FPS, fs.Zones, fs.Format)
}

// parseHexColor accepts "#RRGGBB" or "RRGGBB".
func parseHexColor(s string) ([3]byte, error) {
	raw := strings.TrimPrefix(s, "#")
	if len(raw) != 6 {
		return [3]byte{}, fmt.Errorf("want 6 hex digits, got %q", s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return [3]byte{}, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return [3]byte{b[0], b[1], b[2]}, nil
}

func parseFormat(s string) (amb.PixelFormat, error) {
	switch strings.ToUpper(s) {
	case "RGB":
		return amb.FormatRGB, nil
	case "RGBW":
		return amb.FormatRGBW, nil
	default:
		return 0, fmt.Errorf("unknown pixel format %q (want RGB or RGBW)", s)
	}
}

// pickEdges returns the explicit edge counts when any are set, otherwise
// splits total over a screen-like perimeter: a sixth per side column, the
// rest split between top and bottom with the remainder on top.
func pickEdges(total, top, bottom, left, right int) amb.EdgeCounts {
	if top+bottom+left+right > 0 {
		return amb.EdgeCounts{Top: top, Bottom: bottom, Left: left, Right: right}
	}

	side := total / 6
	rest := total - 2*side
	return amb.EdgeCounts{
		Top:    rest - rest/2,
		Bottom: rest / 2,
		Left:   side,
		Right:  side,
	}
}

// buildFrames renders the requested pattern. Timestamps step at the
// nominal frame interval from zero.
func buildFrames(pattern string, count, zones, bpz int, fps float64, base [3]byte) []amb.Frame {
	out := make([]amb.Frame, count)
	for i := 0; i < count; i++ {
		out[i] = amb.Frame{
			Timestamp: uint64(float64(i) * 1e6 / fps),
			Payload:   renderFrame(pattern, i, count, zones, bpz, base),
		}
	}
	return out
}

// renderFrame fills one payload. Unknown patterns fall back to solid.
func renderFrame(pattern string, frame, total, zones, bpz int, base [3]byte) []byte {
	payload := make([]byte, zones*bpz)
	for z := 0; z < zones; z++ {
		var r, g, b uint8
		switch pattern {
		case "gradient":
			r, g, b = hslToRGB(float64(z)/float64(zones), 1, 0.5)
		case "sweep":
			hue := math.Mod(float64(z)/float64(zones)+float64(frame)/float64(total), 1)
			r, g, b = hslToRGB(hue, 1, 0.5)
		case "pulse":
			scale := 0.5 + 0.5*math.Sin(2*math.Pi*4*float64(frame)/float64(total))
			r = uint8(float64(base[0]) * scale)
			g = uint8(float64(base[1]) * scale)
			b = uint8(float64(base[2]) * scale)
		default:
			r, g, b = base[0], base[1], base[2]
		}

		i := z * bpz
		payload[i] = r
		payload[i+1] = g
		payload[i+2] = b
		// RGBW payloads keep the white channel dark; the patterns are
		// defined on the color channels.
	}
	return payload
}

// hslToRGB converts HSL to RGB (0-255 range).
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
