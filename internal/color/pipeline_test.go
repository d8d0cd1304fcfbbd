package color

import (
	"bytes"
	"math"
	"testing"
	"time"
)

// neutralSettings returns settings under which every stage is the identity:
// raw bytes in, raw bytes out.
func neutralSettings() Settings {
	return Settings{
		BaseGamma:        1.0,
		GammaR:           1.0,
		GammaG:           1.0,
		GammaB:           1.0,
		Saturation:       1.0,
		BrightnessTarget: 0, // disables brightness normalization
		SmoothingTau:     0.001,
		FloorBase:        0,
		FloorBoostR:      1.0,
		FloorBoostG:      1.0,
		FloorBoostB:      1.0,
		Order:            OrderRGB,
	}
}

func mustProcess(t *testing.T, p *Processor, src []byte, dt time.Duration) Result {
	t.Helper()
	res, err := p.Process(src, dt)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	return res
}

// TestIdentityPipeline drives two frames 41666µs apart through a fully
// neutral pipeline and expects the raw bytes back unchanged: gamma 1,
// saturation 1, smoothing τ at its minimum, floor 0, no remap.
func TestIdentityPipeline(t *testing.T) {
	p, err := NewProcessor(neutralSettings(), 2, 3)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	frame0 := []byte{255, 0, 0, 0, 255, 0}
	frame1 := []byte{0, 0, 255, 255, 255, 0}

	res := mustProcess(t, p, frame0, 0)
	if !bytes.Equal(res.Frame, frame0) {
		t.Errorf("frame 0: got %v, want %v", res.Frame, frame0)
	}

	res = mustProcess(t, p, frame1, 41666*time.Microsecond)
	if !bytes.Equal(res.Frame, frame1) {
		t.Errorf("frame 1: got %v, want %v", res.Frame, frame1)
	}
}

func TestFirstFrameSeedsAccumulator(t *testing.T) {
	// Aggressive settings: none of them may touch the seeding frame.
	s := DefaultSettings()
	s.Saturation = 3.0
	s.BrightnessTarget = 200

	p, err := NewProcessor(s, 2, 3)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	raw := []byte{17, 203, 96, 44, 8, 251}
	res := mustProcess(t, p, raw, time.Second/30)
	if !bytes.Equal(res.Frame, raw) {
		t.Errorf("seed frame: got %v, want raw %v", res.Frame, raw)
	}
	if res.BlendWeight != 1 {
		t.Errorf("seed frame blend weight: got %v, want 1", res.BlendWeight)
	}

	// Reset puts the processor back into seeding mode.
	p.Reset()
	raw2 := []byte{250, 1, 2, 3, 4, 5}
	res = mustProcess(t, p, raw2, time.Second/30)
	if !bytes.Equal(res.Frame, raw2) {
		t.Errorf("post-reset seed frame: got %v, want raw %v", res.Frame, raw2)
	}
}

// TestSmoothingConvergence repeats a constant frame at a fixed dt and checks
// the output settles on its steady state within the tick count implied by τ.
func TestSmoothingConvergence(t *testing.T) {
	s := neutralSettings()
	s.SmoothingTau = 0.12

	p, err := NewProcessor(s, 1, 3)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	dt := time.Second / 30
	black := []byte{0, 0, 0}
	gray := []byte{128, 128, 128}

	mustProcess(t, p, black, dt) // seed away from the target

	// k = 1-exp(-dt/τ) ≈ 0.24; 40 ticks shrink a 128-step error well
	// below half a byte.
	var got []byte
	for i := 0; i < 40; i++ {
		got = mustProcess(t, p, gray, dt).Frame
	}
	if !bytes.Equal(got, gray) {
		t.Errorf("after 40 ticks: got %v, want steady state %v", got, gray)
	}

	// Steady state must hold on further ticks.
	for i := 0; i < 5; i++ {
		got = mustProcess(t, p, gray, dt).Frame
		if !bytes.Equal(got, gray) {
			t.Fatalf("steady state drifted on extra tick %d: got %v", i, got)
		}
	}
}

func TestSmoothingBlendsTowardTarget(t *testing.T) {
	s := neutralSettings()
	s.SmoothingTau = 0.12

	p, err := NewProcessor(s, 1, 3)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	dt := 100 * time.Millisecond
	mustProcess(t, p, []byte{0, 0, 0}, dt)
	res := mustProcess(t, p, []byte{200, 200, 200}, dt)

	k := 1 - math.Exp(-dt.Seconds()/0.12)
	want := byte(math.Round(200 * k))
	for c := 0; c < 3; c++ {
		if res.Frame[c] != want {
			t.Errorf("channel %d: got %d, want %d (k=%.4f)", c, res.Frame[c], want, k)
		}
	}
	if math.Abs(res.BlendWeight-k) > 1e-12 {
		t.Errorf("BlendWeight: got %v, want %v", res.BlendWeight, k)
	}
}

func TestSaturationGrayscaleAndBoost(t *testing.T) {
	tests := []struct {
		name       string
		saturation float64
		want       []byte
	}{
		// sat 0 collapses every channel to the average: 255/3 = 85.
		{"desaturate_to_gray", 0, []byte{85, 85, 85}},
		// sat 2 pushes channels away from the average, clamped to [0,1].
		{"oversaturate", 2, []byte{255, 0, 0}},
		// sat 1 is neutral.
		{"neutral", 1, []byte{255, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := neutralSettings()
			s.Saturation = tt.saturation

			p, err := NewProcessor(s, 1, 3)
			if err != nil {
				t.Fatalf("NewProcessor failed: %v", err)
			}

			red := []byte{255, 0, 0}
			mustProcess(t, p, red, time.Second) // seed
			res := mustProcess(t, p, red, time.Hour)

			if !bytes.Equal(res.Frame, tt.want) {
				t.Errorf("got %v, want %v", res.Frame, tt.want)
			}
		})
	}
}

func TestBrightnessNormalization(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		want   byte
	}{
		// avg luminance of uniform 120-gray is 120: factor = (60/120)*0.7+0.3 = 0.65.
		{"darkens_bright_scene", 60, 78},
		// factor (500/120)*0.7+0.3 ≈ 3.22 → clamp 2.5 → re-clamp 1.8 → 216.
		{"lift_capped_at_1_8", 500, 216},
		// target ≤ 0 disables the stage.
		{"disabled", 0, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := neutralSettings()
			s.BrightnessTarget = tt.target

			p, err := NewProcessor(s, 1, 3)
			if err != nil {
				t.Fatalf("NewProcessor failed: %v", err)
			}

			gray := []byte{120, 120, 120}
			mustProcess(t, p, gray, time.Second) // seed
			res := mustProcess(t, p, gray, time.Hour)

			for c := 0; c < 3; c++ {
				if res.Frame[c] != tt.want {
					t.Errorf("channel %d: got %d, want %d", c, res.Frame[c], tt.want)
				}
			}
		})
	}
}

// TestSceneAdaptiveGamma checks that dark scenes get a stronger lift than
// bright ones under the same base gamma.
func TestSceneAdaptiveGamma(t *testing.T) {
	s := neutralSettings()
	s.BaseGamma = 2.2

	process := func(v byte) byte {
		p, err := NewProcessor(s, 1, 3)
		if err != nil {
			t.Fatalf("NewProcessor failed: %v", err)
		}
		frame := []byte{v, v, v}
		mustProcess(t, p, frame, time.Second) // seed
		return mustProcess(t, p, frame, time.Hour).Frame[0]
	}

	expected := func(v byte) byte {
		avgLum := float64(v) // uniform gray: luminance equals the channel value
		eff := 2.2 * (1 - 0.6*avgLum/255)
		if eff < 1 {
			eff = 1
		}
		return byte(math.Round(math.Pow(float64(v)/255, 1/eff) * 255))
	}

	dark := process(20)
	bright := process(230)

	if want := expected(20); dark != want {
		t.Errorf("dark scene: got %d, want %d", dark, want)
	}
	if want := expected(230); bright != want {
		t.Errorf("bright scene: got %d, want %d", bright, want)
	}
	if int(dark)-20 <= int(bright)-230 {
		t.Errorf("dark lift (20→%d) not stronger than bright lift (230→%d)", dark, bright)
	}
}

func TestMinimumBrightnessFloor(t *testing.T) {
	s := neutralSettings()
	s.FloorBase = 8
	s.FloorBoostR = 1.0
	s.FloorBoostG = 1.5
	s.FloorBoostB = 1.0

	p, err := NewProcessor(s, 4, 3)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	frame := []byte{
		3, 5, 200, // dim channels raised to their floors
		0, 0, 0, // black zone stays black
		2, 0, 0, // raised red alone leaves luminance under half the base: zone zeroed
		100, 100, 100, // comfortably above every floor: untouched
	}
	res := mustProcess(t, p, frame, time.Second)

	want := []byte{
		8, 12, 200,
		0, 0, 0,
		0, 0, 0,
		100, 100, 100,
	}
	if !bytes.Equal(res.Frame, want) {
		t.Errorf("got %v\nwant %v", res.Frame, want)
	}

	// Property: every nonzero output channel meets its floor, or the whole
	// zone is dark.
	floors := []float64{8, 12, 8}
	for z := 0; z < 4; z++ {
		zone := res.Frame[z*3 : z*3+3]
		allZero := zone[0] == 0 && zone[1] == 0 && zone[2] == 0
		if allZero {
			continue
		}
		for c, v := range zone {
			if v != 0 && float64(v) < floors[c] {
				t.Errorf("zone %d channel %d: output %d below floor %.0f", z, c, v, floors[c])
			}
		}
	}
}

func TestChannelOrderRemap(t *testing.T) {
	tests := []struct {
		order Order
		want  []byte
	}{
		{OrderRGB, []byte{10, 20, 30}},
		{OrderRBG, []byte{10, 30, 20}},
		{OrderGRB, []byte{20, 10, 30}},
		{OrderGBR, []byte{20, 30, 10}},
		{OrderBRG, []byte{30, 10, 20}},
		{OrderBGR, []byte{30, 20, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.order.String(), func(t *testing.T) {
			s := neutralSettings()
			s.Order = tt.order

			p, err := NewProcessor(s, 1, 3)
			if err != nil {
				t.Fatalf("NewProcessor failed: %v", err)
			}

			res := mustProcess(t, p, []byte{10, 20, 30}, time.Second)
			if !bytes.Equal(res.Frame, tt.want) {
				t.Errorf("order %s: got %v, want %v", tt.order, res.Frame, tt.want)
			}
		})
	}
}

// TestWhiteChannelSmoothedIndependently checks the RGBW white byte follows
// the raw source through the EMA and ignores every color stage.
func TestWhiteChannelSmoothedIndependently(t *testing.T) {
	s := DefaultSettings() // aggressive gamma and brightness in play
	s.SmoothingTau = 0.12
	s.FloorBase = 50

	p, err := NewProcessor(s, 1, 4)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	dt := 100 * time.Millisecond
	mustProcess(t, p, []byte{200, 10, 10, 100}, dt) // seed: W accumulator at 100
	res := mustProcess(t, p, []byte{200, 10, 10, 200}, dt)

	k := 1 - math.Exp(-dt.Seconds()/0.12)
	want := byte(math.Round(100*(1-k) + 200*k))
	if res.Frame[3] != want {
		t.Errorf("white channel: got %d, want %d", res.Frame[3], want)
	}
}

func TestAvgLuminanceReported(t *testing.T) {
	p, err := NewProcessor(neutralSettings(), 2, 3)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	res := mustProcess(t, p, []byte{255, 0, 0, 0, 255, 0}, time.Second)
	want := (0.2126*255 + 0.7152*255) / 2
	if math.Abs(res.AvgLuminance-want) > 1e-9 {
		t.Errorf("AvgLuminance: got %v, want %v", res.AvgLuminance, want)
	}
}

func TestProcessRejectsWrongLength(t *testing.T) {
	p, err := NewProcessor(neutralSettings(), 2, 3)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	if _, err := p.Process(make([]byte, 5), time.Second); err == nil {
		t.Error("expected error for wrong frame length, got nil")
	}
}

func TestNewProcessorValidation(t *testing.T) {
	if _, err := NewProcessor(neutralSettings(), 0, 3); err == nil {
		t.Error("expected error for zero zones")
	}
	if _, err := NewProcessor(neutralSettings(), 4, 7); err == nil {
		t.Error("expected error for bad bytes-per-zone")
	}
}
