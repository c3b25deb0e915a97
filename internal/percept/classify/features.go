package classify

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/apis-data/hornet.watch/internal/percept"
)

// HoverFeatures captures per-track movement statistics derived from position
// history. They are diagnostic output for trace logging and tuning sessions;
// the hover decision itself stays with the radius/dwell rule in analyzeHover.
type HoverFeatures struct {
	SampleCount  int
	RadiusPx     int     // Chebyshev bounding-box radius of the history
	DurationMS   uint32  // newest minus oldest sample, wraparound-safe
	StepMeanPx   float64 // mean inter-sample displacement
	StepStdPx    float64 // std-dev of inter-sample displacement
	PathLengthPx float64 // total distance travelled across the history
	Spread       float64 // path length / radius (clamped); high means jittery
}

// ExtractHoverFeatures computes movement features for a chronological history
// slice. Fewer than two samples yields zero features.
func ExtractHoverFeatures(hist []percept.TrackPosition) HoverFeatures {
	f := HoverFeatures{SampleCount: len(hist)}
	if len(hist) < 2 {
		return f
	}

	minX, maxX := hist[0].X, hist[0].X
	minY, maxY := hist[0].Y, hist[0].Y
	steps := make([]float64, 0, len(hist)-1)
	for i := 1; i < len(hist); i++ {
		p := hist[i]
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
		dx := float64(p.X - hist[i-1].X)
		dy := float64(p.Y - hist[i-1].Y)
		steps = append(steps, math.Hypot(dx, dy))
	}

	f.RadiusPx = maxX - minX
	if maxY-minY > f.RadiusPx {
		f.RadiusPx = maxY - minY
	}
	f.DurationMS = percept.ElapsedMS(hist[0].TimestampMS, hist[len(hist)-1].TimestampMS)

	f.StepMeanPx = stat.Mean(steps, nil)
	if len(steps) > 1 {
		f.StepStdPx = stat.StdDev(steps, nil)
	}
	for _, s := range steps {
		f.PathLengthPx += s
	}
	if f.RadiusPx > 0 {
		f.Spread = f.PathLengthPx / float64(f.RadiusPx)
	}

	return f
}

// Features returns movement features for a live track, or zero features when
// the track is unknown.
func (c *Classifier) Features(trackID uint32) HoverFeatures {
	count := c.history.HistoryInto(trackID, c.histBuf[:])
	return ExtractHoverFeatures(c.histBuf[:count])
}
