package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for playback tuning.
// All fields are pointers so a partial JSON file overrides only what it
// names; the Get* accessors supply defaults and clamp out-of-range
// values with a logged warning rather than failing.
type TuningConfig struct {
	// Pacing params
	SyncLead       *string `json:"sync_lead,omitempty"`  // duration string like "200ms"
	PausePoll      *string `json:"pause_poll,omitempty"` // duration string like "50ms"
	StopBlankCount *int    `json:"stop_blank_count,omitempty"`

	// Color pipeline params
	BaseGamma        *float64 `json:"base_gamma,omitempty"`
	GammaR           *float64 `json:"gamma_r,omitempty"`
	GammaG           *float64 `json:"gamma_g,omitempty"`
	GammaB           *float64 `json:"gamma_b,omitempty"`
	Saturation       *float64 `json:"saturation,omitempty"`
	BrightnessTarget *float64 `json:"brightness_target,omitempty"`
	SmoothingTau     *float64 `json:"smoothing_tau,omitempty"` // seconds
	FloorBase        *float64 `json:"floor_base,omitempty"`
	FloorBoostR      *float64 `json:"floor_boost_r,omitempty"`
	FloorBoostG      *float64 `json:"floor_boost_g,omitempty"`
	FloorBoostB      *float64 `json:"floor_boost_b,omitempty"`
	ChannelOrder     *string  `json:"channel_order,omitempty"`

	// Strip geometry params (0 keeps the source geometry)
	TargetTop      *int `json:"target_top,omitempty"`
	TargetBottom   *int `json:"target_bottom,omitempty"`
	TargetLeft     *int `json:"target_left,omitempty"`
	TargetRight    *int `json:"target_right,omitempty"`
	TargetCount    *int `json:"target_count,omitempty"`
	RotationOffset *int `json:"rotation_offset,omitempty"`

	// Diagnostics
	Debug *bool `json:"debug,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// with the shipped default. Mirrors config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		SyncLead:         ptrString("200ms"),
		PausePoll:        ptrString("50ms"),
		StopBlankCount:   ptrInt(3),
		BaseGamma:        ptrFloat64(2.2),
		GammaR:           ptrFloat64(1.0),
		GammaG:           ptrFloat64(1.0),
		GammaB:           ptrFloat64(1.0),
		Saturation:       ptrFloat64(1.0),
		BrightnessTarget: ptrFloat64(60),
		SmoothingTau:     ptrFloat64(0.12),
		FloorBase:        ptrFloat64(0),
		FloorBoostR:      ptrFloat64(1.0),
		FloorBoostG:      ptrFloat64(1.0),
		FloorBoostB:      ptrFloat64(1.0),
		ChannelOrder:     ptrString("RGB"),
		TargetTop:        ptrInt(0),
		TargetBottom:     ptrInt(0),
		TargetLeft:       ptrInt(0),
		TargetRight:      ptrInt(0),
		TargetCount:      ptrInt(0),
		RotationOffset:   ptrInt(0),
		Debug:            ptrBool(false),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/*/*/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are structurally valid.
// Durations must parse; out-of-range numeric values are not errors here
// because the Get* accessors clamp them with a warning.
func (c *TuningConfig) Validate() error {
	// Validate SyncLead can be parsed if set
	if c.SyncLead != nil && *c.SyncLead != "" {
		if _, err := time.ParseDuration(*c.SyncLead); err != nil {
			return fmt.Errorf("invalid sync_lead '%s': %w", *c.SyncLead, err)
		}
	}

	// Validate PausePoll can be parsed if set
	if c.PausePoll != nil && *c.PausePoll != "" {
		if _, err := time.ParseDuration(*c.PausePoll); err != nil {
			return fmt.Errorf("invalid pause_poll '%s': %w", *c.PausePoll, err)
		}
	}

	return nil
}

// clampFloat returns v limited to [lo, hi], logging a warning when the
// configured value was out of range.
func clampFloat(name string, v, lo, hi float64) float64 {
	if v < lo {
		log.Printf("config: %s %g below minimum %g, clamping", name, v, lo)
		return lo
	}
	if v > hi {
		log.Printf("config: %s %g above maximum %g, clamping", name, v, hi)
		return hi
	}
	return v
}

// clampIntMin returns v limited to at least lo, logging a warning when
// the configured value was out of range.
func clampIntMin(name string, v, lo int) int {
	if v < lo {
		log.Printf("config: %s %d below minimum %d, clamping", name, v, lo)
		return lo
	}
	return v
}

// GetSyncLead parses and returns the SyncLead as a time.Duration.
func (c *TuningConfig) GetSyncLead() time.Duration {
	if c.SyncLead == nil || *c.SyncLead == "" {
		return 200 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.SyncLead)
	if err != nil {
		return 200 * time.Millisecond // default on parse error
	}
	return d
}

// GetPausePoll parses and returns the PausePoll as a time.Duration.
func (c *TuningConfig) GetPausePoll() time.Duration {
	if c.PausePoll == nil || *c.PausePoll == "" {
		return 50 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.PausePoll)
	if err != nil {
		return 50 * time.Millisecond // default on parse error
	}
	return d
}

// GetStopBlankCount returns the stop_blank_count value or the default.
func (c *TuningConfig) GetStopBlankCount() int {
	if c.StopBlankCount == nil {
		return 3 // default
	}
	return clampIntMin("stop_blank_count", *c.StopBlankCount, 0)
}

// GetBaseGamma returns the base_gamma value or the default.
func (c *TuningConfig) GetBaseGamma() float64 {
	if c.BaseGamma == nil {
		return 2.2 // default
	}
	return clampFloat("base_gamma", *c.BaseGamma, 0.1, 10)
}

// GetGammaR returns the gamma_r value or the default.
func (c *TuningConfig) GetGammaR() float64 {
	if c.GammaR == nil {
		return 1.0
	}
	return clampFloat("gamma_r", *c.GammaR, 0.01, 10)
}

// GetGammaG returns the gamma_g value or the default.
func (c *TuningConfig) GetGammaG() float64 {
	if c.GammaG == nil {
		return 1.0
	}
	return clampFloat("gamma_g", *c.GammaG, 0.01, 10)
}

// GetGammaB returns the gamma_b value or the default.
func (c *TuningConfig) GetGammaB() float64 {
	if c.GammaB == nil {
		return 1.0
	}
	return clampFloat("gamma_b", *c.GammaB, 0.01, 10)
}

// GetSaturation returns the saturation value or the default.
func (c *TuningConfig) GetSaturation() float64 {
	if c.Saturation == nil {
		return 1.0
	}
	return clampFloat("saturation", *c.Saturation, 0, 5)
}

// GetBrightnessTarget returns the brightness_target value or the default.
// Values at or below zero disable brightness normalization and pass
// through unclamped.
func (c *TuningConfig) GetBrightnessTarget() float64 {
	if c.BrightnessTarget == nil {
		return 60 // default
	}
	if *c.BrightnessTarget <= 0 {
		return *c.BrightnessTarget
	}
	return clampFloat("brightness_target", *c.BrightnessTarget, 0, 255)
}

// GetSmoothingTau returns the smoothing_tau value in seconds or the default.
func (c *TuningConfig) GetSmoothingTau() float64 {
	if c.SmoothingTau == nil {
		return 0.12 // default
	}
	return clampFloat("smoothing_tau", *c.SmoothingTau, 0.001, 5)
}

// GetFloorBase returns the floor_base value or the default.
func (c *TuningConfig) GetFloorBase() float64 {
	if c.FloorBase == nil {
		return 0 // default: floor disabled
	}
	return clampFloat("floor_base", *c.FloorBase, 0, 255)
}

// GetFloorBoostR returns the floor_boost_r value or the default.
func (c *TuningConfig) GetFloorBoostR() float64 {
	if c.FloorBoostR == nil {
		return 1.0
	}
	return clampFloat("floor_boost_r", *c.FloorBoostR, 0, 10)
}

// GetFloorBoostG returns the floor_boost_g value or the default.
func (c *TuningConfig) GetFloorBoostG() float64 {
	if c.FloorBoostG == nil {
		return 1.0
	}
	return clampFloat("floor_boost_g", *c.FloorBoostG, 0, 10)
}

// GetFloorBoostB returns the floor_boost_b value or the default.
func (c *TuningConfig) GetFloorBoostB() float64 {
	if c.FloorBoostB == nil {
		return 1.0
	}
	return clampFloat("floor_boost_b", *c.FloorBoostB, 0, 10)
}

// GetChannelOrder returns the channel_order value or the default.
// The string is not validated here; color.ParseOrder is the authority
// and the caller falls back to RGB on a parse failure.
func (c *TuningConfig) GetChannelOrder() string {
	if c.ChannelOrder == nil || *c.ChannelOrder == "" {
		return "RGB" // default
	}
	return *c.ChannelOrder
}

// GetTargetTop returns the target_top value or the default.
func (c *TuningConfig) GetTargetTop() int {
	if c.TargetTop == nil {
		return 0
	}
	return clampIntMin("target_top", *c.TargetTop, 0)
}

// GetTargetBottom returns the target_bottom value or the default.
func (c *TuningConfig) GetTargetBottom() int {
	if c.TargetBottom == nil {
		return 0
	}
	return clampIntMin("target_bottom", *c.TargetBottom, 0)
}

// GetTargetLeft returns the target_left value or the default.
func (c *TuningConfig) GetTargetLeft() int {
	if c.TargetLeft == nil {
		return 0
	}
	return clampIntMin("target_left", *c.TargetLeft, 0)
}

// GetTargetRight returns the target_right value or the default.
func (c *TuningConfig) GetTargetRight() int {
	if c.TargetRight == nil {
		return 0
	}
	return clampIntMin("target_right", *c.TargetRight, 0)
}

// GetTargetCount returns the target_count value or the default.
// A nonzero count overrides the per-edge targets.
func (c *TuningConfig) GetTargetCount() int {
	if c.TargetCount == nil {
		return 0
	}
	return clampIntMin("target_count", *c.TargetCount, 0)
}

// GetRotationOffset returns the rotation_offset value or the default.
// Any integer is legal; the resampler normalizes it into range.
func (c *TuningConfig) GetRotationOffset() int {
	if c.RotationOffset == nil {
		return 0
	}
	return *c.RotationOffset
}

// GetDebug returns the debug value or the default.
func (c *TuningConfig) GetDebug() bool {
	if c.Debug == nil {
		return false // default: quiet
	}
	return *c.Debug
}
