package pipeline

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apis-data/hornet.watch/internal/config"
	"github.com/apis-data/hornet.watch/internal/hal/halfake"
	"github.com/apis-data/hornet.watch/internal/percept"
	"github.com/apis-data/hornet.watch/internal/safety"
)

type rig struct {
	pipe    *Pipeline
	layer   *safety.Layer
	clk     *clock.Mock
	laser   *halfake.Laser
	buttons *halfake.Buttons
}

func newRig(t *testing.T, autoEngage bool) *rig {
	t.Helper()
	clk := clock.NewMock()
	laser := halfake.NewLaser(clk)
	buttons := halfake.NewButtons()
	layer := safety.New(safety.DefaultConfig(), laser, halfake.NewTilt(0), buttons, clk)

	tuning := config.EmptyTuningConfig()
	tuning.AutoEngage = &autoEngage

	return &rig{
		pipe:    New(tuning, layer),
		layer:   layer,
		clk:     clk,
		laser:   laser,
		buttons: buttons,
	}
}

func hornetDet(cx, cy int) percept.Detection {
	return percept.Detection{
		X: cx - 15, Y: cy - 15, W: 30, H: 30,
		Area:      900,
		CentroidX: cx, CentroidY: cy,
	}
}

// runCycles feeds n cycles of dets 100ms apart, advancing the mock clock and
// feeding the watchdog the way the device loop does.
func (r *rig) runCycles(dets []percept.Detection, n int, startMS uint32) []percept.ClassifiedDetection {
	var out []percept.ClassifiedDetection
	for i := 0; i < n; i++ {
		out = r.pipe.Process(dets, startMS+uint32(i)*100)
		r.clk.Add(100 * time.Millisecond)
		r.layer.FeedWatchdog()
		r.layer.Update()
	}
	return out
}

func TestDetectionGate(t *testing.T) {
	t.Parallel()

	t.Run("hovering target raises the gate", func(t *testing.T) {
		t.Parallel()
		r := newRig(t, false)
		r.buttons.SetArmed(true)

		dets := []percept.Detection{hornetDet(100, 100)}
		out := r.runCycles(dets, 12, 0)

		require.Len(t, out, 1)
		assert.Equal(t, percept.ConfidenceHigh, out[0].Confidence)
		assert.True(t, r.layer.IsDetectionActive())
	})

	t.Run("transient target never raises the gate", func(t *testing.T) {
		t.Parallel()
		r := newRig(t, false)
		r.buttons.SetArmed(true)

		// Fast mover: 80px per cycle leaves the hover radius immediately.
		for i := 0; i < 12; i++ {
			r.pipe.Process([]percept.Detection{hornetDet(100+i*80, 100)}, uint32(i)*100)
			r.clk.Add(100 * time.Millisecond)
			r.layer.FeedWatchdog()
		}
		assert.False(t, r.layer.IsDetectionActive())
	})

	t.Run("wrong-size hoverer never raises the gate", func(t *testing.T) {
		t.Parallel()
		r := newRig(t, false)

		big := percept.Detection{X: 0, Y: 0, W: 200, H: 200, Area: 40000, CentroidX: 100, CentroidY: 100}
		out := r.runCycles([]percept.Detection{big}, 12, 0)

		require.Len(t, out, 1)
		assert.Equal(t, percept.ClassTooLarge, out[0].Classification)
		assert.False(t, r.layer.IsDetectionActive())
	})

	t.Run("gate drops when the target disappears", func(t *testing.T) {
		t.Parallel()
		r := newRig(t, false)
		r.buttons.SetArmed(true)

		r.runCycles([]percept.Detection{hornetDet(100, 100)}, 12, 0)
		require.True(t, r.layer.IsDetectionActive())

		r.runCycles(nil, 1, 1200)
		assert.False(t, r.layer.IsDetectionActive())
	})
}

func TestAutoEngage(t *testing.T) {
	t.Parallel()

	t.Run("armed device pulses on a confirmed hover", func(t *testing.T) {
		t.Parallel()
		r := newRig(t, true)
		r.buttons.SetArmed(true)

		r.runCycles([]percept.Detection{hornetDet(100, 100)}, 12, 0)
		assert.True(t, r.laser.IsActive())

		// Target lost: the pulse ends.
		r.runCycles(nil, 1, 1200)
		assert.False(t, r.laser.IsActive())
	})

	t.Run("disarmed device is refused by the safety layer", func(t *testing.T) {
		t.Parallel()
		r := newRig(t, true)

		r.runCycles([]percept.Detection{hornetDet(100, 100)}, 12, 0)
		assert.False(t, r.laser.IsActive())
		assert.Zero(t, r.laser.OnCalls(), "the driver is never touched on a failed check")
	})

	t.Run("auto-engage off never pulses even when armed", func(t *testing.T) {
		t.Parallel()
		r := newRig(t, false)
		r.buttons.SetArmed(true)

		r.runCycles([]percept.Detection{hornetDet(100, 100)}, 12, 0)
		assert.False(t, r.laser.IsActive())
		assert.True(t, r.layer.IsDetectionActive())
	})
}

func TestPipelineStandalone(t *testing.T) {
	t.Parallel()

	t.Run("runs without a safety layer", func(t *testing.T) {
		t.Parallel()
		p := New(config.EmptyTuningConfig(), nil)

		var out []percept.ClassifiedDetection
		for i := 0; i < 12; i++ {
			out = p.Process([]percept.Detection{hornetDet(100, 100)}, uint32(i)*100)
		}
		require.Len(t, out, 1)
		assert.Equal(t, percept.ConfidenceHigh, out[0].Confidence)
	})

	t.Run("reset clears tracks", func(t *testing.T) {
		t.Parallel()
		p := New(config.EmptyTuningConfig(), nil)

		p.Process([]percept.Detection{hornetDet(100, 100)}, 0)
		require.Equal(t, 1, p.Tracker().ActiveCount())

		p.Reset()
		assert.Equal(t, 0, p.Tracker().ActiveCount())
	})

	t.Run("run IDs are unique per pipeline", func(t *testing.T) {
		t.Parallel()
		a := New(config.EmptyTuningConfig(), nil)
		b := New(config.EmptyTuningConfig(), nil)
		assert.NotEmpty(t, a.RunID())
		assert.NotEqual(t, a.RunID(), b.RunID())
	})
}
