package classify

import (
	"github.com/apis-data/hornet.watch/internal/config"
	"github.com/apis-data/hornet.watch/internal/monitoring"
	"github.com/apis-data/hornet.watch/internal/percept"
)

// HistorySource provides position history for a track. *track.Tracker
// satisfies this.
type HistorySource interface {
	// HistoryInto copies the track's history into buf in chronological order
	// and returns the number of samples copied, 0 when the track is unknown.
	HistoryInto(trackID uint32, buf []percept.TrackPosition) int
}

// Config holds the classifier tuning parameters.
type Config struct {
	MinSizePx     int // Absolute minimum detection size (pixels, larger dimension)
	MaxSizePx     int // Absolute maximum detection size
	TargetMinPx   int // Lower bound of the target-species size range
	TargetMaxPx   int // Upper bound of the target-species size range
	HoverRadiusPx int // Movement radius an object must stay within to hover
	HoverTimeMS   int // Minimum dwell time inside the radius (milliseconds)
	FrameRateFPS  int // Expected detection frame rate
}

// DefaultConfig returns the classifier configuration the device ships with:
// 18-50px targets at VGA resolution, hovering inside 50px for one second.
func DefaultConfig() Config {
	return Config{
		MinSizePx:     18,
		MaxSizePx:     100,
		TargetMinPx:   18,
		TargetMaxPx:   50,
		HoverRadiusPx: 50,
		HoverTimeMS:   1000,
		FrameRateFPS:  10,
	}
}

// ConfigFromTuning builds a classifier Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MinSizePx:     cfg.GetMinSizePx(),
		MaxSizePx:     cfg.GetMaxSizePx(),
		TargetMinPx:   cfg.GetTargetMinPx(),
		TargetMaxPx:   cfg.GetTargetMaxPx(),
		HoverRadiusPx: cfg.GetHoverRadiusPx(),
		HoverTimeMS:   cfg.GetHoverTimeMS(),
		FrameRateFPS:  cfg.GetFrameRateFPS(),
	}
}

// Classifier labels tracked detections. Like the tracker it is single-owner:
// called synchronously once per cycle, no external synchronization needed.
type Classifier struct {
	cfg     Config
	history HistorySource

	// Reused per-cycle buffers.
	results [percept.MaxDetections]percept.ClassifiedDetection
	histBuf [percept.MaxTrackHistory]percept.TrackPosition
}

// New creates a classifier reading track history from src. Inverted size
// bounds are swapped and warned about rather than rejected; zero hover time
// or frame rate falls back to defaults.
func New(cfg Config, src HistorySource) *Classifier {
	if cfg.MinSizePx > cfg.MaxSizePx {
		monitoring.Logf("classifier: min size %d above max size %d, swapping", cfg.MinSizePx, cfg.MaxSizePx)
		cfg.MinSizePx, cfg.MaxSizePx = cfg.MaxSizePx, cfg.MinSizePx
	}
	if cfg.TargetMinPx > cfg.TargetMaxPx {
		monitoring.Logf("classifier: target min %d above target max %d, swapping", cfg.TargetMinPx, cfg.TargetMaxPx)
		cfg.TargetMinPx, cfg.TargetMaxPx = cfg.TargetMaxPx, cfg.TargetMinPx
	}
	def := DefaultConfig()
	if cfg.HoverTimeMS <= 0 {
		monitoring.Logf("classifier: hover time is %d ms, using default %d", cfg.HoverTimeMS, def.HoverTimeMS)
		cfg.HoverTimeMS = def.HoverTimeMS
	}
	if cfg.FrameRateFPS <= 0 {
		monitoring.Logf("classifier: frame rate is %d fps, using default %d", cfg.FrameRateFPS, def.FrameRateFPS)
		cfg.FrameRateFPS = def.FrameRateFPS
	}

	monitoring.Logf("classifier: initialized (target size %d-%d px, hover %d px / %d ms)",
		cfg.TargetMinPx, cfg.TargetMaxPx, cfg.HoverRadiusPx, cfg.HoverTimeMS)

	return &Classifier{cfg: cfg, history: src}
}

// classifyBySize labels a detection by its larger bounding-box dimension.
func (c *Classifier) classifyBySize(det percept.Detection) percept.Classification {
	size := det.W
	if det.H > size {
		size = det.H
	}

	if size < c.cfg.MinSizePx {
		return percept.ClassTooSmall
	}
	if size > c.cfg.MaxSizePx {
		return percept.ClassTooLarge
	}
	if size >= c.cfg.TargetMinPx && size <= c.cfg.TargetMaxPx {
		return percept.ClassTarget
	}
	return percept.ClassUnknown
}

// analyzeHover reports whether a track is hovering and how long it has been
// tracked. A track with fewer than two samples has no age and cannot hover.
//
// Movement radius is the larger of the x and y ranges of the history bounding
// box. That is Chebyshev distance rather than Euclidean, which is intentional:
// it needs no sqrt, and it is more lenient for diagonal movement, which
// matches real hovering flight. The effective diagonal radius is about 1.41x
// the configured value (50px configured allows ~71px diagonally).
func (c *Classifier) analyzeHover(trackID uint32) (hovering bool, ageMS uint32) {
	count := c.history.HistoryInto(trackID, c.histBuf[:])
	if count < 2 {
		return false, 0
	}
	hist := c.histBuf[:count]

	minX, maxX := hist[0].X, hist[0].X
	minY, maxY := hist[0].Y, hist[0].Y
	for _, p := range hist[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	radius := maxX - minX
	if maxY-minY > radius {
		radius = maxY - minY
	}

	// History is chronological; ElapsedMS handles the ~49 day timestamp wrap.
	ageMS = percept.ElapsedMS(hist[0].TimestampMS, hist[count-1].TimestampMS)

	hovering = radius <= c.cfg.HoverRadiusPx && ageMS >= uint32(c.cfg.HoverTimeMS)
	return hovering, ageMS
}

// trackAge returns how long a track has been observed, 0 when it has fewer
// than two history samples.
func (c *Classifier) trackAge(trackID uint32) uint32 {
	count := c.history.HistoryInto(trackID, c.histBuf[:])
	if count < 2 {
		return 0
	}
	return percept.ElapsedMS(c.histBuf[0].TimestampMS, c.histBuf[count-1].TimestampMS)
}

// Classify labels one cycle's tracked detections. The returned slice aliases
// an internal buffer that is reused on the next call; consume it before then.
func (c *Classifier) Classify(tracked []percept.TrackedDetection) []percept.ClassifiedDetection {
	if len(tracked) > percept.MaxDetections {
		monitoring.Logf("classifier: %d detections exceeds limit %d, clamping", len(tracked), percept.MaxDetections)
		tracked = tracked[:percept.MaxDetections]
	}

	for i, td := range tracked {
		r := &c.results[i]
		r.TrackedDetection = td
		r.Classification = c.classifyBySize(td.Detection)
		r.IsHovering = false
		r.HoverDurationMS = 0
		r.TrackAgeMS = 0

		// Hover analysis only matters for target-sized objects, but track age
		// is still reported for everything with enough history.
		if r.Classification == percept.ClassTarget {
			r.IsHovering, r.TrackAgeMS = c.analyzeHover(td.TrackID)
			if r.IsHovering {
				r.HoverDurationMS = r.TrackAgeMS
			}
		} else {
			r.TrackAgeMS = c.trackAge(td.TrackID)
		}

		switch {
		case r.Classification != percept.ClassTarget:
			r.Confidence = percept.ConfidenceLow
		case r.IsHovering:
			r.Confidence = percept.ConfidenceHigh
		default:
			r.Confidence = percept.ConfidenceMedium
		}
		monitoring.DetectionsClassified.WithLabelValues(r.Confidence.String()).Inc()
	}

	return c.results[:len(tracked)]
}
