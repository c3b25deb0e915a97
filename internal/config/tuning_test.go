package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTuningConfig(t *testing.T) {
	t.Parallel()

	t.Run("partial config keeps defaults for omitted fields", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, `{"hover_radius_px": 80, "watchdog_timeout_ms": 60000}`)

		cfg, err := LoadTuningConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 80, cfg.GetHoverRadiusPx())
		assert.Equal(t, 60000, cfg.GetWatchdogTimeoutMS())
		assert.Equal(t, 100, cfg.GetMaxDistancePx())
		assert.Equal(t, 1000, cfg.GetHoverTimeMS())
		assert.Equal(t, 0.0, cfg.GetTiltMaxDeg())
		assert.False(t, cfg.GetAutoEngage())
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "tuning.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, ".json extension")
	})

	t.Run("rejects missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, `{"hover_radius_px": `)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, "parse")
	})

	t.Run("rejects negative values", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, `{"hover_time_ms": -5}`)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, "non-negative")
	})

	t.Run("rejects warning at or above timeout", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, `{"watchdog_warning_ms": 30000, "watchdog_timeout_ms": 30000}`)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, "watchdog_warning_ms")
	})

	t.Run("rejects margin at or above max on-time", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, `{"auto_off_margin_ms": 10000, "laser_max_on_ms": 10000}`)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, "auto_off_margin_ms")
	})

	t.Run("inverted size bounds load fine", func(t *testing.T) {
		t.Parallel()
		// The classifier swaps and warns at init instead.
		path := writeConfig(t, `{"min_size_px": 100, "max_size_px": 18}`)
		cfg, err := LoadTuningConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.GetMinSizePx())
	})
}

func TestDefaultsFileMatchesConstants(t *testing.T) {
	t.Parallel()

	cfg := MustLoadDefaultConfig()
	empty := EmptyTuningConfig()

	assert.Equal(t, empty.GetMaxDistancePx(), cfg.GetMaxDistancePx())
	assert.Equal(t, empty.GetMaxDisappeared(), cfg.GetMaxDisappeared())
	assert.Equal(t, empty.GetMinSizePx(), cfg.GetMinSizePx())
	assert.Equal(t, empty.GetMaxSizePx(), cfg.GetMaxSizePx())
	assert.Equal(t, empty.GetTargetMinPx(), cfg.GetTargetMinPx())
	assert.Equal(t, empty.GetTargetMaxPx(), cfg.GetTargetMaxPx())
	assert.Equal(t, empty.GetHoverRadiusPx(), cfg.GetHoverRadiusPx())
	assert.Equal(t, empty.GetHoverTimeMS(), cfg.GetHoverTimeMS())
	assert.Equal(t, empty.GetFrameRateFPS(), cfg.GetFrameRateFPS())
	assert.Equal(t, empty.GetWatchdogTimeoutMS(), cfg.GetWatchdogTimeoutMS())
	assert.Equal(t, empty.GetWatchdogWarningMS(), cfg.GetWatchdogWarningMS())
	assert.Equal(t, empty.GetVoltageMinMV(), cfg.GetVoltageMinMV())
	assert.Equal(t, empty.GetVoltageWarningMV(), cfg.GetVoltageWarningMV())
	assert.Equal(t, empty.GetTiltMaxDeg(), cfg.GetTiltMaxDeg())
	assert.Equal(t, empty.GetLaserMaxOnMS(), cfg.GetLaserMaxOnMS())
	assert.Equal(t, empty.GetAutoOffMarginMS(), cfg.GetAutoOffMarginMS())
	assert.Equal(t, empty.GetEngagePulseMS(), cfg.GetEngagePulseMS())
}
