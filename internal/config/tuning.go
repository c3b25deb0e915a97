// Package config loads and validates the device tuning parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Canonical fallback defaults, used when a field is absent from the JSON.
// They match the values the device shipped with.
const (
	defaultMaxDistancePx      = 100
	defaultMaxDisappeared     = 30
	defaultMinSizePx          = 18
	defaultMaxSizePx          = 100
	defaultTargetMinPx        = 18
	defaultTargetMaxPx        = 50
	defaultHoverRadiusPx      = 50
	defaultHoverTimeMS        = 1000
	defaultFrameRateFPS       = 10
	defaultWatchdogTimeoutMS  = 30000
	defaultWatchdogWarningMS  = 25000
	defaultVoltageMinMV       = 4500
	defaultVoltageWarningMV   = 4750
	defaultTiltMaxDeg         = 0.0
	defaultLaserMaxOnMS       = 10000
	defaultAutoOffMarginMS    = 500
	defaultEngagePulseMS      = 2000
)

// TuningConfig represents the root configuration for tuning parameters.
// Fields are pointers so a partial JSON file only overrides what it names;
// the Get* accessors supply defaults for everything else.
type TuningConfig struct {
	// Tracker params
	MaxDistancePx  *int `json:"max_distance_px,omitempty"`
	MaxDisappeared *int `json:"max_disappeared_frames,omitempty"`

	// Classifier params
	MinSizePx     *int `json:"min_size_px,omitempty"`
	MaxSizePx     *int `json:"max_size_px,omitempty"`
	TargetMinPx   *int `json:"target_min_px,omitempty"`
	TargetMaxPx   *int `json:"target_max_px,omitempty"`
	HoverRadiusPx *int `json:"hover_radius_px,omitempty"`
	HoverTimeMS   *int `json:"hover_time_ms,omitempty"`
	FrameRateFPS  *int `json:"frame_rate_fps,omitempty"`

	// Safety params
	WatchdogTimeoutMS *int     `json:"watchdog_timeout_ms,omitempty"`
	WatchdogWarningMS *int     `json:"watchdog_warning_ms,omitempty"`
	VoltageMinMV      *int     `json:"voltage_min_mv,omitempty"`
	VoltageWarningMV  *int     `json:"voltage_warning_mv,omitempty"`
	TiltMaxDeg        *float64 `json:"tilt_max_deg,omitempty"`
	LaserMaxOnMS      *int     `json:"laser_max_on_ms,omitempty"`
	AutoOffMarginMS   *int     `json:"auto_off_margin_ms,omitempty"`

	// Pipeline params
	AutoEngage    *bool `json:"auto_engage,omitempty"`
	EngagePulseMS *int  `json:"engage_pulse_ms,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and be under the max file size. Fields omitted from the
// JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for test setup
// and binaries that have already validated config availability.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/percept/track/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that configured values are usable. Inverted size bounds are
// not rejected here; the classifier swaps and warns at init per its contract.
func (c *TuningConfig) Validate() error {
	nonNegative := map[string]*int{
		"max_distance_px":        c.MaxDistancePx,
		"max_disappeared_frames": c.MaxDisappeared,
		"min_size_px":            c.MinSizePx,
		"max_size_px":            c.MaxSizePx,
		"target_min_px":          c.TargetMinPx,
		"target_max_px":          c.TargetMaxPx,
		"hover_radius_px":        c.HoverRadiusPx,
		"hover_time_ms":          c.HoverTimeMS,
		"frame_rate_fps":         c.FrameRateFPS,
		"watchdog_timeout_ms":    c.WatchdogTimeoutMS,
		"watchdog_warning_ms":    c.WatchdogWarningMS,
		"voltage_min_mv":         c.VoltageMinMV,
		"voltage_warning_mv":     c.VoltageWarningMV,
		"laser_max_on_ms":        c.LaserMaxOnMS,
		"auto_off_margin_ms":     c.AutoOffMarginMS,
		"engage_pulse_ms":        c.EngagePulseMS,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}

	if c.WatchdogTimeoutMS != nil && c.WatchdogWarningMS != nil &&
		*c.WatchdogWarningMS >= *c.WatchdogTimeoutMS {
		return fmt.Errorf("watchdog_warning_ms (%d) must be below watchdog_timeout_ms (%d)",
			*c.WatchdogWarningMS, *c.WatchdogTimeoutMS)
	}

	if c.AutoOffMarginMS != nil && c.LaserMaxOnMS != nil &&
		*c.AutoOffMarginMS >= *c.LaserMaxOnMS {
		return fmt.Errorf("auto_off_margin_ms (%d) must be below laser_max_on_ms (%d)",
			*c.AutoOffMarginMS, *c.LaserMaxOnMS)
	}

	return nil
}

func intOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

// GetMaxDistancePx returns the tracker centroid match ceiling in pixels.
func (c *TuningConfig) GetMaxDistancePx() int { return intOr(c.MaxDistancePx, defaultMaxDistancePx) }

// GetMaxDisappeared returns the frames a track may go unmatched before expiry.
func (c *TuningConfig) GetMaxDisappeared() int { return intOr(c.MaxDisappeared, defaultMaxDisappeared) }

// GetMinSizePx returns the absolute minimum detection size.
func (c *TuningConfig) GetMinSizePx() int { return intOr(c.MinSizePx, defaultMinSizePx) }

// GetMaxSizePx returns the absolute maximum detection size.
func (c *TuningConfig) GetMaxSizePx() int { return intOr(c.MaxSizePx, defaultMaxSizePx) }

// GetTargetMinPx returns the lower bound of the target-species size range.
func (c *TuningConfig) GetTargetMinPx() int { return intOr(c.TargetMinPx, defaultTargetMinPx) }

// GetTargetMaxPx returns the upper bound of the target-species size range.
func (c *TuningConfig) GetTargetMaxPx() int { return intOr(c.TargetMaxPx, defaultTargetMaxPx) }

// GetHoverRadiusPx returns the hover movement radius in pixels.
func (c *TuningConfig) GetHoverRadiusPx() int { return intOr(c.HoverRadiusPx, defaultHoverRadiusPx) }

// GetHoverTimeMS returns the minimum hover duration in milliseconds.
func (c *TuningConfig) GetHoverTimeMS() int { return intOr(c.HoverTimeMS, defaultHoverTimeMS) }

// GetFrameRateFPS returns the expected camera frame rate.
func (c *TuningConfig) GetFrameRateFPS() int { return intOr(c.FrameRateFPS, defaultFrameRateFPS) }

// GetWatchdogTimeoutMS returns the full watchdog timeout.
func (c *TuningConfig) GetWatchdogTimeoutMS() int {
	return intOr(c.WatchdogTimeoutMS, defaultWatchdogTimeoutMS)
}

// GetWatchdogWarningMS returns the watchdog warning threshold.
func (c *TuningConfig) GetWatchdogWarningMS() int {
	return intOr(c.WatchdogWarningMS, defaultWatchdogWarningMS)
}

// GetVoltageMinMV returns the brownout voltage threshold.
func (c *TuningConfig) GetVoltageMinMV() int { return intOr(c.VoltageMinMV, defaultVoltageMinMV) }

// GetVoltageWarningMV returns the low-voltage warning threshold.
func (c *TuningConfig) GetVoltageWarningMV() int {
	return intOr(c.VoltageWarningMV, defaultVoltageWarningMV)
}

// GetTiltMaxDeg returns the maximum allowed tilt elevation. 0 is horizontal;
// negative is downward.
func (c *TuningConfig) GetTiltMaxDeg() float64 {
	if c.TiltMaxDeg != nil {
		return *c.TiltMaxDeg
	}
	return defaultTiltMaxDeg
}

// GetLaserMaxOnMS returns the maximum continuous laser on-time.
func (c *TuningConfig) GetLaserMaxOnMS() int { return intOr(c.LaserMaxOnMS, defaultLaserMaxOnMS) }

// GetAutoOffMarginMS returns the margin the safety auto-off fires ahead of
// the hardware cutoff.
func (c *TuningConfig) GetAutoOffMarginMS() int {
	return intOr(c.AutoOffMarginMS, defaultAutoOffMarginMS)
}

// GetAutoEngage reports whether the pipeline may request laser pulses itself.
func (c *TuningConfig) GetAutoEngage() bool {
	if c.AutoEngage != nil {
		return *c.AutoEngage
	}
	return false
}

// GetEngagePulseMS returns the pulse duration the pipeline requests when
// auto-engage fires.
func (c *TuningConfig) GetEngagePulseMS() int { return intOr(c.EngagePulseMS, defaultEngagePulseMS) }
