// Package color implements the per-tick colorimetric pipeline between the
// resampled source frame and the bytes put on the wire.
package color

import (
	"fmt"
	"math"
	"time"
)

/*
Pipeline stage order, applied per zone every tick in float64:

 1. Normalize raw bytes 0..255 → 0..1 per channel.
 2. Per-channel gamma linearization: channel ^ gamma_channel.
 3. Saturation around the channel average: avg + (channel − avg) × factor,
    factor clamped to [0, 5]; the result is clamped back to [0, 1] so the
    inverse-gamma stage stays inside its domain.
 4. Scene-adaptive inverse gamma: channel ^ (1/effective_gamma), where
    effective_gamma = clamp(base × (1 − 0.6 × avg_luminance/255), 1, 3) and
    avg_luminance is the frame-wide average of the RAW zone luminances
    (0.2126R + 0.7152G + 0.0722B). Darker scenes receive a stronger lift.
 5. Brightness normalization: factor = clamp((target/avg_luminance)×0.7+0.3,
    0.05, 2.5) when avg_luminance > 1, else 1; re-clamped to [0.3, 1.8];
    each channel becomes channel × 255 × factor. A target ≤ 0 disables the
    stage (factor 1), which is the neutral configuration.
 6. Temporal smoothing: per-channel EMA with blend weight k = 1−exp(−dt/τ).
    The very first processed frame seeds the accumulator directly from the
    raw resampled bytes; no blending happens on that frame.
 7. Minimum-brightness floor: a nonzero smoothed channel below its floor
    (base × per-channel boost) is raised to it; if the resulting zone
    luminance is still below 0.5 × base, the whole zone goes dark. This
    suppresses near-black flicker.
 8. Channel-order remap to the strip's physical wiring.
 9. White channel (RGBW): EMA with the same k over the raw white sample,
    rounded and clamped. It sees no gamma, saturation, brightness, floor,
    or remap.

Output bytes are round-to-nearest, clamped to [0, 255].
*/

// Settings holds the pipeline tunables. Out-of-range values are clamped at
// Processor construction; zero values mean "stage disabled" only where the
// field comment says so.
type Settings struct {
	BaseGamma        float64 // scene-adaptive stage base exponent
	GammaR           float64 // per-channel linearization exponents
	GammaG           float64
	GammaB           float64
	Saturation       float64 // 1 is neutral; clamped to [0, 5]
	BrightnessTarget float64 // average-luminance target; ≤0 disables the stage
	SmoothingTau     float64 // EMA time constant, seconds; clamped to [0.001, 5]
	FloorBase        float64 // minimum-brightness floor; 0 disables the stage
	FloorBoostR      float64 // per-channel floor multipliers
	FloorBoostG      float64
	FloorBoostB      float64
	Order            Order // physical wiring permutation
}

// DefaultSettings returns the tunables the daemon ships with.
func DefaultSettings() Settings {
	return Settings{
		BaseGamma:        2.2,
		GammaR:           1.0,
		GammaG:           1.0,
		GammaB:           1.0,
		Saturation:       1.0,
		BrightnessTarget: 60.0,
		SmoothingTau:     0.12,
		FloorBase:        0,
		FloorBoostR:      1.0,
		FloorBoostG:      1.0,
		FloorBoostB:      1.0,
		Order:            OrderRGB,
	}
}

// Result carries one processed frame plus the per-tick statistics the
// journal and monitor record.
type Result struct {
	Frame        []byte  // remapped output, same length as the input
	AvgLuminance float64 // frame-average raw luminance driving stages 4 and 5
	BlendWeight  float64 // EMA k used this tick (1 on the seeding frame)
}

// Processor applies the pipeline and carries the smoothing accumulator
// across ticks. It is owned by the engine goroutine and not safe for
// concurrent use.
type Processor struct {
	zones int
	bpz   int

	gammaR, gammaG, gammaB float64
	baseGamma              float64
	saturation             float64
	target                 float64
	tau                    float64
	floorBase              float64
	floorR, floorG, floorB float64
	order                  Order

	acc    []float64 // one slot per payload byte, unclamped
	seeded bool
}

// NewProcessor builds a processor for frames of zones × bytesPerZone bytes.
func NewProcessor(s Settings, zones, bytesPerZone int) (*Processor, error) {
	if zones <= 0 {
		return nil, fmt.Errorf("color: zone count %d must be positive", zones)
	}
	if bytesPerZone != 3 && bytesPerZone != 4 {
		return nil, fmt.Errorf("color: bytes per zone must be 3 or 4, got %d", bytesPerZone)
	}

	floorBase := clamp(s.FloorBase, 0, 255)
	return &Processor{
		zones:      zones,
		bpz:        bytesPerZone,
		gammaR:     math.Max(s.GammaR, 0.01),
		gammaG:     math.Max(s.GammaG, 0.01),
		gammaB:     math.Max(s.GammaB, 0.01),
		baseGamma:  math.Max(s.BaseGamma, 0.01),
		saturation: clamp(s.Saturation, 0, 5),
		target:     s.BrightnessTarget,
		tau:        clamp(s.SmoothingTau, 0.001, 5),
		floorBase:  floorBase,
		floorR:     floorBase * math.Max(s.FloorBoostR, 0),
		floorG:     floorBase * math.Max(s.FloorBoostG, 0),
		floorB:     floorBase * math.Max(s.FloorBoostB, 0),
		order:      s.Order,
		acc:        make([]float64, zones*bytesPerZone),
	}, nil
}

// Size returns the expected payload length in bytes.
func (p *Processor) Size() int {
	return p.zones * p.bpz
}

// Reset clears the smoothing state. The next processed frame seeds the
// accumulator anew, exactly as the first frame after startup does. The
// engine calls this on every seek.
func (p *Processor) Reset() {
	p.seeded = false
}

// Process runs the pipeline over one resampled frame. dt is the inter-frame
// time driving the smoothing blend and must be positive; the engine derives
// it from frame timestamps, falling back to 1/fps. The returned frame is
// freshly allocated.
func (p *Processor) Process(src []byte, dt time.Duration) (Result, error) {
	if len(src) != p.Size() {
		return Result{}, fmt.Errorf("color: frame is %d bytes, want %d", len(src), p.Size())
	}

	// Frame statistics on the raw, pre-pipeline bytes.
	var sum float64
	for z := 0; z < p.zones; z++ {
		i := z * p.bpz
		sum += Luminance(float64(src[i]), float64(src[i+1]), float64(src[i+2]))
	}
	avgLum := sum / float64(p.zones)

	k := 1.0
	if !p.seeded {
		for i := range p.acc {
			p.acc[i] = float64(src[i])
		}
		p.seeded = true
	} else {
		k = 1 - math.Exp(-dt.Seconds()/p.tau)
		p.blend(src, avgLum, k)
	}

	out := make([]byte, len(src))
	p.emit(out)
	return Result{Frame: out, AvgLuminance: avgLum, BlendWeight: k}, nil
}

// blend applies stages 1-6: per-zone color transforms feeding the EMA
// accumulator.
func (p *Processor) blend(src []byte, avgLum float64, k float64) {
	effGamma := clamp(p.baseGamma*(1-0.6*avgLum/255), 1, 3)
	invGamma := 1 / effGamma

	factor := 1.0
	if p.target > 0 && avgLum > 1 {
		factor = clamp((p.target/avgLum)*0.7+0.3, 0.05, 2.5)
	}
	factor = clamp(factor, 0.3, 1.8)

	for z := 0; z < p.zones; z++ {
		i := z * p.bpz

		r := math.Pow(float64(src[i])/255, p.gammaR)
		g := math.Pow(float64(src[i+1])/255, p.gammaG)
		b := math.Pow(float64(src[i+2])/255, p.gammaB)

		avg := (r + g + b) / 3
		r = clamp(avg+(r-avg)*p.saturation, 0, 1)
		g = clamp(avg+(g-avg)*p.saturation, 0, 1)
		b = clamp(avg+(b-avg)*p.saturation, 0, 1)

		r = math.Pow(r, invGamma) * 255 * factor
		g = math.Pow(g, invGamma) * 255 * factor
		b = math.Pow(b, invGamma) * 255 * factor

		p.acc[i] = p.acc[i]*(1-k) + r*k
		p.acc[i+1] = p.acc[i+1]*(1-k) + g*k
		p.acc[i+2] = p.acc[i+2]*(1-k) + b*k

		if p.bpz == 4 {
			p.acc[i+3] = p.acc[i+3]*(1-k) + float64(src[i+3])*k
		}
	}
}

// emit applies stages 7-9: floor, remap, and byte conversion from the
// accumulator.
func (p *Processor) emit(out []byte) {
	for z := 0; z < p.zones; z++ {
		i := z * p.bpz

		r := clamp(math.Round(p.acc[i]), 0, 255)
		g := clamp(math.Round(p.acc[i+1]), 0, 255)
		b := clamp(math.Round(p.acc[i+2]), 0, 255)

		if p.floorBase > 0 {
			if r > 0 && r < p.floorR {
				r = math.Ceil(p.floorR)
			}
			if g > 0 && g < p.floorG {
				g = math.Ceil(p.floorG)
			}
			if b > 0 && b < p.floorB {
				b = math.Ceil(p.floorB)
			}
			if Luminance(r, g, b) < 0.5*p.floorBase {
				r, g, b = 0, 0, 0
			}
		}

		out[i], out[i+1], out[i+2] = p.order.remap(byte(r), byte(g), byte(b))
		if p.bpz == 4 {
			out[i+3] = byte(clamp(math.Round(p.acc[i+3]), 0, 255))
		}
	}
}

// Luminance returns the Rec. 709 weighted sum of one zone's channels.
// Inputs and result share whatever scale the caller uses; the pipeline
// passes raw byte values.
func Luminance(r, g, b float64) float64 {
	return 0.2126*r + 0.7152*g + 0.0722*b
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
