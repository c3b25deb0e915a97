package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apis-data/hornet.watch/internal/percept"
	"github.com/apis-data/hornet.watch/internal/percept/track"
)

// fakeHistory is a canned HistorySource for tests that do not need a live
// tracker.
type fakeHistory struct {
	tracks map[uint32][]percept.TrackPosition
}

func (f *fakeHistory) HistoryInto(trackID uint32, buf []percept.TrackPosition) int {
	hist := f.tracks[trackID]
	n := copy(buf, hist)
	return n
}

func sizedDet(id uint32, w, h int) percept.TrackedDetection {
	return percept.TrackedDetection{
		TrackID: id,
		Detection: percept.Detection{
			X: 100, Y: 100, W: w, H: h,
			Area:      uint32(w * h),
			CentroidX: 100 + w/2, CentroidY: 100 + h/2,
		},
	}
}

// stationaryHistory builds n samples at (x,y) spaced stepMS apart starting
// at startMS.
func stationaryHistory(x, y, n int, startMS, stepMS uint32) []percept.TrackPosition {
	hist := make([]percept.TrackPosition, n)
	for i := range hist {
		hist[i] = percept.TrackPosition{X: x, Y: y, TimestampMS: startMS + uint32(i)*stepMS}
	}
	return hist
}

func TestClassifyBySize(t *testing.T) {
	t.Parallel()

	c := New(DefaultConfig(), &fakeHistory{})

	cases := []struct {
		name string
		w, h int
		want percept.Classification
	}{
		{"below minimum", 10, 10, percept.ClassTooSmall},
		{"just below minimum", 17, 17, percept.ClassTooSmall},
		{"at minimum", 18, 18, percept.ClassTarget},
		{"mid target range", 30, 30, percept.ClassTarget},
		{"at target maximum", 50, 50, percept.ClassTarget},
		{"above target below absolute max", 70, 70, percept.ClassUnknown},
		{"at absolute maximum", 100, 100, percept.ClassUnknown},
		{"above absolute maximum", 120, 120, percept.ClassTooLarge},
		{"larger dimension governs", 30, 120, percept.ClassTooLarge},
		{"tall narrow target", 10, 40, percept.ClassTarget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := c.Classify([]percept.TrackedDetection{sizedDet(1, tc.w, tc.h)})
			require.Len(t, out, 1)
			assert.Equal(t, tc.want, out[0].Classification)
		})
	}
}

func TestHoverDetection(t *testing.T) {
	t.Parallel()

	t.Run("stationary target long enough is hovering with high confidence", func(t *testing.T) {
		t.Parallel()
		fh := &fakeHistory{tracks: map[uint32][]percept.TrackPosition{
			7: stationaryHistory(100, 100, 11, 0, 100), // 1000ms span
		}}
		c := New(DefaultConfig(), fh)

		out := c.Classify([]percept.TrackedDetection{sizedDet(7, 30, 30)})
		require.Len(t, out, 1)
		assert.True(t, out[0].IsHovering)
		assert.Equal(t, uint32(1000), out[0].HoverDurationMS)
		assert.Equal(t, uint32(1000), out[0].TrackAgeMS)
		assert.Equal(t, percept.ConfidenceHigh, out[0].Confidence)
	})

	t.Run("stationary but too briefly is medium confidence", func(t *testing.T) {
		t.Parallel()
		fh := &fakeHistory{tracks: map[uint32][]percept.TrackPosition{
			7: stationaryHistory(100, 100, 5, 0, 100), // 400ms span
		}}
		c := New(DefaultConfig(), fh)

		out := c.Classify([]percept.TrackedDetection{sizedDet(7, 30, 30)})
		require.Len(t, out, 1)
		assert.False(t, out[0].IsHovering)
		assert.Zero(t, out[0].HoverDurationMS)
		assert.Equal(t, uint32(400), out[0].TrackAgeMS)
		assert.Equal(t, percept.ConfidenceMedium, out[0].Confidence)
	})

	t.Run("movement beyond the radius is not hovering", func(t *testing.T) {
		t.Parallel()
		hist := make([]percept.TrackPosition, 11)
		for i := range hist {
			hist[i] = percept.TrackPosition{X: 100 + i*10, Y: 100, TimestampMS: uint32(i) * 100}
		}
		fh := &fakeHistory{tracks: map[uint32][]percept.TrackPosition{7: hist}}
		c := New(DefaultConfig(), fh)

		out := c.Classify([]percept.TrackedDetection{sizedDet(7, 30, 30)})
		require.Len(t, out, 1)
		assert.False(t, out[0].IsHovering, "100px x-range exceeds the 50px radius")
		assert.Equal(t, percept.ConfidenceMedium, out[0].Confidence)
	})

	t.Run("movement exactly at the radius still hovers", func(t *testing.T) {
		t.Parallel()
		hist := stationaryHistory(100, 100, 11, 0, 100)
		hist[5].X = 150 // x-range exactly 50
		fh := &fakeHistory{tracks: map[uint32][]percept.TrackPosition{7: hist}}
		c := New(DefaultConfig(), fh)

		out := c.Classify([]percept.TrackedDetection{sizedDet(7, 30, 30)})
		require.Len(t, out, 1)
		assert.True(t, out[0].IsHovering)
	})

	t.Run("diagonal movement uses the larger axis range", func(t *testing.T) {
		t.Parallel()
		// 40px in x and 40px in y: each axis under the radius, so this
		// hovers even though the Euclidean diagonal is ~57px.
		hist := stationaryHistory(100, 100, 11, 0, 100)
		hist[5] = percept.TrackPosition{X: 140, Y: 140, TimestampMS: 500}
		fh := &fakeHistory{tracks: map[uint32][]percept.TrackPosition{7: hist}}
		c := New(DefaultConfig(), fh)

		out := c.Classify([]percept.TrackedDetection{sizedDet(7, 30, 30)})
		require.Len(t, out, 1)
		assert.True(t, out[0].IsHovering)
	})

	t.Run("single sample has no age and cannot hover", func(t *testing.T) {
		t.Parallel()
		fh := &fakeHistory{tracks: map[uint32][]percept.TrackPosition{
			7: {{X: 100, Y: 100, TimestampMS: 0}},
		}}
		c := New(DefaultConfig(), fh)

		out := c.Classify([]percept.TrackedDetection{sizedDet(7, 30, 30)})
		require.Len(t, out, 1)
		assert.False(t, out[0].IsHovering)
		assert.Zero(t, out[0].TrackAgeMS)
		assert.Equal(t, percept.ConfidenceMedium, out[0].Confidence)
	})

	t.Run("timestamp wraparound yields the true duration", func(t *testing.T) {
		t.Parallel()
		wrapStart := ^uint32(0) - 499 // 500ms before the counter wraps
		fh := &fakeHistory{tracks: map[uint32][]percept.TrackPosition{
			7: stationaryHistory(100, 100, 11, wrapStart, 100),
		}}
		c := New(DefaultConfig(), fh)

		out := c.Classify([]percept.TrackedDetection{sizedDet(7, 30, 30)})
		require.Len(t, out, 1)
		assert.Equal(t, uint32(1000), out[0].TrackAgeMS)
		assert.True(t, out[0].IsHovering)
	})
}

func TestConfidence(t *testing.T) {
	t.Parallel()

	t.Run("wrong size is always low regardless of behavior", func(t *testing.T) {
		t.Parallel()
		fh := &fakeHistory{tracks: map[uint32][]percept.TrackPosition{
			1: stationaryHistory(100, 100, 11, 0, 100), // would hover if target-sized
		}}
		c := New(DefaultConfig(), fh)

		out := c.Classify([]percept.TrackedDetection{sizedDet(1, 10, 10)})
		require.Len(t, out, 1)
		assert.Equal(t, percept.ClassTooSmall, out[0].Classification)
		assert.Equal(t, percept.ConfidenceLow, out[0].Confidence)
		assert.False(t, out[0].IsHovering)
		assert.Equal(t, uint32(1000), out[0].TrackAgeMS, "age is still reported for non-targets")
	})

	t.Run("unknown size class is low", func(t *testing.T) {
		t.Parallel()
		c := New(DefaultConfig(), &fakeHistory{})

		out := c.Classify([]percept.TrackedDetection{sizedDet(1, 70, 70)})
		require.Len(t, out, 1)
		assert.Equal(t, percept.ConfidenceLow, out[0].Confidence)
	})
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	t.Run("inverted bounds are swapped", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultConfig()
		cfg.MinSizePx, cfg.MaxSizePx = 100, 18
		cfg.TargetMinPx, cfg.TargetMaxPx = 50, 18
		c := New(cfg, &fakeHistory{})

		out := c.Classify([]percept.TrackedDetection{sizedDet(1, 30, 30)})
		require.Len(t, out, 1)
		assert.Equal(t, percept.ClassTarget, out[0].Classification)
	})

	t.Run("zero hover time and fps fall back to defaults", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultConfig()
		cfg.HoverTimeMS = 0
		cfg.FrameRateFPS = 0
		fh := &fakeHistory{tracks: map[uint32][]percept.TrackPosition{
			1: stationaryHistory(100, 100, 11, 0, 100),
		}}
		c := New(cfg, fh)

		out := c.Classify([]percept.TrackedDetection{sizedDet(1, 30, 30)})
		require.Len(t, out, 1)
		assert.True(t, out[0].IsHovering, "default 1000ms dwell applies")
	})
}

// TestClassifierWithLiveTracker runs the tracker and classifier together the
// way the processing loop does.
func TestClassifierWithLiveTracker(t *testing.T) {
	t.Parallel()

	tr := track.New(track.DefaultConfig())
	c := New(DefaultConfig(), tr)

	det := percept.Detection{X: 85, Y: 85, W: 30, H: 30, Area: 900, CentroidX: 100, CentroidY: 100}

	// 11 cycles of a near-stationary target-sized object, 100ms apart.
	var out []percept.ClassifiedDetection
	for i := 0; i <= 10; i++ {
		d := det
		d.CentroidX += i % 3 // +-2px jitter
		tracked := tr.Update([]percept.Detection{d}, uint32(i)*100)
		out = c.Classify(tracked)
	}

	require.Len(t, out, 1)
	assert.Equal(t, percept.ClassTarget, out[0].Classification)
	assert.True(t, out[0].IsHovering)
	assert.GreaterOrEqual(t, out[0].HoverDurationMS, uint32(1000))
	assert.Equal(t, percept.ConfidenceHigh, out[0].Confidence)
}

func TestExtractHoverFeatures(t *testing.T) {
	t.Parallel()

	t.Run("stationary track has zero movement", func(t *testing.T) {
		t.Parallel()
		f := ExtractHoverFeatures(stationaryHistory(100, 100, 10, 0, 100))
		assert.Equal(t, 10, f.SampleCount)
		assert.Zero(t, f.RadiusPx)
		assert.Equal(t, uint32(900), f.DurationMS)
		assert.Zero(t, f.StepMeanPx)
		assert.Zero(t, f.PathLengthPx)
	})

	t.Run("straight line track", func(t *testing.T) {
		t.Parallel()
		hist := make([]percept.TrackPosition, 5)
		for i := range hist {
			hist[i] = percept.TrackPosition{X: i * 10, Y: 0, TimestampMS: uint32(i) * 100}
		}
		f := ExtractHoverFeatures(hist)
		assert.Equal(t, 40, f.RadiusPx)
		assert.InDelta(t, 10.0, f.StepMeanPx, 1e-9)
		assert.InDelta(t, 40.0, f.PathLengthPx, 1e-9)
		assert.InDelta(t, 1.0, f.Spread, 1e-9)
	})

	t.Run("too few samples", func(t *testing.T) {
		t.Parallel()
		f := ExtractHoverFeatures(nil)
		assert.Zero(t, f.SampleCount)
		f = ExtractHoverFeatures(stationaryHistory(1, 1, 1, 0, 0))
		assert.Equal(t, 1, f.SampleCount)
		assert.Zero(t, f.DurationMS)
	})
}
