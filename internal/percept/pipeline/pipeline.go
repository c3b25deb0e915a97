// Package pipeline orchestrates one perception cycle: detections in, tracks
// updated, classifications out, the safety layer's detection gate refreshed.
// It owns no domain logic; tracking and classification live in their own
// packages and the pipeline only wires them to the safety interlocks.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/apis-data/hornet.watch/internal/config"
	"github.com/apis-data/hornet.watch/internal/percept"
	"github.com/apis-data/hornet.watch/internal/percept/classify"
	"github.com/apis-data/hornet.watch/internal/percept/track"
	"github.com/apis-data/hornet.watch/internal/safety"
)

// Config holds the pipeline's own tuning.
type Config struct {
	// AutoEngage lets the pipeline request a laser pulse itself when a
	// high-confidence hovering target appears. Off by default; the safety
	// layer still gates every pulse.
	AutoEngage bool
	// EngagePulse is the pulse duration requested on auto-engage.
	EngagePulse time.Duration
}

// DefaultConfig returns the pipeline configuration the device ships with.
func DefaultConfig() Config {
	return Config{
		AutoEngage:  false,
		EngagePulse: 2 * time.Second,
	}
}

// ConfigFromTuning builds a pipeline Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		AutoEngage:  cfg.GetAutoEngage(),
		EngagePulse: time.Duration(cfg.GetEngagePulseMS()) * time.Millisecond,
	}
}

// Pipeline runs the perception cycle. Single-owner like its stages: Process
// is called synchronously from one loop.
type Pipeline struct {
	runID string

	cfg        Config
	tracker    *track.Tracker
	classifier *classify.Classifier
	safetyL    *safety.Layer

	cycles       uint64
	lastActive   bool
	engagedPulse bool
}

// New assembles a pipeline from tuning, with its stages built in place. The
// safety layer is shared with the rest of the system and may be nil in
// perception-only setups such as replay analysis.
func New(tuning *config.TuningConfig, safetyL *safety.Layer) *Pipeline {
	tr := track.New(track.ConfigFromTuning(tuning))
	return &Pipeline{
		runID:      uuid.NewString(),
		cfg:        ConfigFromTuning(tuning),
		tracker:    tr,
		classifier: classify.New(classify.ConfigFromTuning(tuning), tr),
		safetyL:    safetyL,
	}
}

// RunID identifies this pipeline instance in logs and exported data.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Tracker exposes the pipeline's tracker for history queries.
func (p *Pipeline) Tracker() *track.Tracker {
	return p.tracker
}

// Process runs one cycle. The returned slice aliases the classifier's
// internal buffer; consume it before the next call.
//
// The safety detection gate goes active only for a high-confidence hovering
// target, and drops the moment no such target remains. With auto-engage on,
// a rising edge of the gate requests one bounded pulse; the request still
// passes the full safety check and may be refused.
func (p *Pipeline) Process(dets []percept.Detection, timestampMS uint32) []percept.ClassifiedDetection {
	p.cycles++

	tracked := p.tracker.Update(dets, timestampMS)
	classified := p.classifier.Classify(tracked)

	active := false
	for i := range classified {
		d := &classified[i]
		tracef("cycle=%d ts=%d track=%d class=%s conf=%s hovering=%v age=%dms",
			p.cycles, timestampMS, d.TrackID, d.Classification, d.Confidence, d.IsHovering, d.TrackAgeMS)
		if d.Confidence == percept.ConfidenceHigh && d.IsHovering {
			active = true
			if !p.lastActive {
				f := p.classifier.Features(d.TrackID)
				diagf("target track=%d hovering for %dms (radius=%dpx step_mean=%.1fpx step_std=%.1fpx)",
					d.TrackID, d.HoverDurationMS, f.RadiusPx, f.StepMeanPx, f.StepStdPx)
			}
		}
	}

	if p.safetyL != nil {
		p.safetyL.SetDetectionActive(active)

		if active && !p.lastActive && p.cfg.AutoEngage {
			status := p.safetyL.LaserActivate(p.cfg.EngagePulse)
			p.engagedPulse = status == safety.StatusOK
			if status != safety.StatusOK {
				opsf("auto-engage refused by safety layer: %s", status)
			} else {
				diagf("auto-engage: pulse of %v requested", p.cfg.EngagePulse)
			}
		}
		if !active && p.lastActive && p.engagedPulse {
			p.safetyL.LaserOff()
			p.engagedPulse = false
			diagf("auto-engage: target lost, pulse ended")
		}
	}
	p.lastActive = active

	return classified
}

// Reset clears the tracker so a new scene starts from an empty arena. The
// safety layer is untouched.
func (p *Pipeline) Reset() {
	p.tracker.Reset()
	p.lastActive = false
	p.engagedPulse = false
}
