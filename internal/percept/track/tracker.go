package track

import (
	"github.com/apis-data/hornet.watch/internal/config"
	"github.com/apis-data/hornet.watch/internal/monitoring"
	"github.com/apis-data/hornet.watch/internal/percept"
)

// Storage limits. Fixed at compile time so track state lives in a
// preallocated arena rather than growing on the heap.
const (
	// MaxTracks is the maximum number of simultaneously active tracks.
	MaxTracks = 20
	// HistoryCap is the per-track position history capacity.
	HistoryCap = percept.MaxTrackHistory
)

// Config holds the tracker tuning parameters.
type Config struct {
	MaxDistancePx  int // Max centroid distance for matching (pixels)
	MaxDisappeared int // Consecutive unmatched frames before a track expires
}

// DefaultConfig returns the tracker configuration the device ships with.
func DefaultConfig() Config {
	return Config{
		MaxDistancePx:  100,
		MaxDisappeared: 30,
	}
}

// ConfigFromTuning builds a tracker Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxDistancePx:  cfg.GetMaxDistancePx(),
		MaxDisappeared: cfg.GetMaxDisappeared(),
	}
}

// slot is one entry in the track arena. A track's identity is its numeric
// ID; the slot index is only a storage handle and is reused after expiry.
type slot struct {
	id            uint32
	centroidX     int
	centroidY     int
	history       [HistoryCap]percept.TrackPosition
	historyCount  int
	historyHead   int
	disappeared   int
	active        bool
	lastDetection percept.Detection
}

// Tracker owns the track arena and the ID sequence.
type Tracker struct {
	cfg    Config
	slots  [MaxTracks]slot
	nextID uint32
	active int

	// results is the per-cycle output buffer. Update returns a slice of it;
	// callers must consume the slice before the next Update call.
	results [MaxTracks]percept.TrackedDetection
}

// New creates a tracker. Zero config fields are replaced with defaults and
// warned about rather than rejected.
func New(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.MaxDistancePx <= 0 {
		monitoring.Logf("tracker: max distance is %d, using default %d", cfg.MaxDistancePx, def.MaxDistancePx)
		cfg.MaxDistancePx = def.MaxDistancePx
	}
	if cfg.MaxDisappeared <= 0 {
		monitoring.Logf("tracker: max disappeared is %d, using default %d", cfg.MaxDisappeared, def.MaxDisappeared)
		cfg.MaxDisappeared = def.MaxDisappeared
	}

	t := &Tracker{cfg: cfg}
	// IDs start at 1; 0 is reserved for "no track". The sequence wraps after
	// 4 billion tracks — at 1000 tracks/day that takes ~11,700 years, so the
	// wrap path exists for correctness, not because it is reachable in
	// practice.
	t.nextID = 1
	monitoring.Logf("tracker: initialized (max_distance=%d px, max_disappeared=%d frames)",
		cfg.MaxDistancePx, cfg.MaxDisappeared)
	return t
}

// distanceSquared returns the squared Euclidean distance between two points.
// Squared distance avoids a sqrt; the intermediates are widened to int64 so
// frame-resolution coordinates cannot overflow the multiplication.
func distanceSquared(x1, y1, x2, y2 int) int64 {
	dx := int64(x2 - x1)
	dy := int64(y2 - y1)
	return dx*dx + dy*dy
}

// register creates a new track for an unmatched detection. Returns nil when
// the arena is full; the caller reports that as a capacity condition.
func (t *Tracker) register(det percept.Detection, timestampMS uint32) *slot {
	for i := range t.slots {
		if t.slots[i].active {
			continue
		}
		s := &t.slots[i]
		s.id = t.nextID
		t.nextID++
		// Skip ID 0 on wrap; 0 is reserved for "no track".
		if t.nextID == 0 {
			t.nextID = 1
		}
		s.centroidX = det.CentroidX
		s.centroidY = det.CentroidY
		s.historyCount = 1
		s.historyHead = 0
		s.history[0] = percept.TrackPosition{X: det.CentroidX, Y: det.CentroidY, TimestampMS: timestampMS}
		s.disappeared = 0
		s.active = true
		s.lastDetection = det
		t.active++
		return s
	}
	monitoring.Logf("tracker: no free slots for new track (active=%d)", t.active)
	return nil
}

// deregister frees a slot for reuse.
func (t *Tracker) deregister(s *slot) {
	s.active = false
	if t.active > 0 {
		t.active--
	}
}

// updateSlot refreshes a matched track and appends to its ring history.
func (t *Tracker) updateSlot(s *slot, det percept.Detection, timestampMS uint32) {
	s.centroidX = det.CentroidX
	s.centroidY = det.CentroidY
	s.disappeared = 0
	s.lastDetection = det

	next := (s.historyHead + 1) % HistoryCap
	s.history[next] = percept.TrackPosition{X: det.CentroidX, Y: det.CentroidY, TimestampMS: timestampMS}
	s.historyHead = next
	if s.historyCount < HistoryCap {
		s.historyCount++
	}
}

// Update runs one tracking cycle: greedy nearest-neighbor assignment of the
// frame's detections to active tracks, expiry of tracks unmatched for too
// long, and registration of new tracks for leftover detections.
//
// The returned slice aliases an internal buffer that is reused on the next
// call; consume it before then. It may hold fewer entries than len(dets)
// when the arena is full — a capacity condition, not an error.
func (t *Tracker) Update(dets []percept.Detection, timestampMS uint32) []percept.TrackedDetection {
	if len(dets) > percept.MaxDetections {
		monitoring.Logf("tracker: %d detections exceeds limit %d, clamping", len(dets), percept.MaxDetections)
		dets = dets[:percept.MaxDetections]
	}

	defer func() { monitoring.ActiveTracks.Set(float64(t.active)) }()

	// No detections: every active track ages toward expiry.
	if len(dets) == 0 {
		for i := range t.slots {
			if t.slots[i].active {
				t.ageSlot(&t.slots[i])
			}
		}
		return t.results[:0]
	}

	// No existing tracks: every detection starts a new one.
	if t.active == 0 {
		n := 0
		for _, det := range dets {
			if n >= MaxTracks {
				break
			}
			s := t.register(det, timestampMS)
			if s == nil {
				break
			}
			t.results[n] = percept.TrackedDetection{TrackID: s.id, Detection: det, IsNew: true}
			n++
		}
		return t.results[:n]
	}

	var detAssigned [percept.MaxDetections]bool
	var slotAssigned [MaxTracks]bool
	n := 0

	maxDistSq := int64(t.cfg.MaxDistancePx) * int64(t.cfg.MaxDistancePx)

	// For each active track, in slot order, claim the nearest unassigned
	// detection inside the distance ceiling. Slot order is the tie-break:
	// it keeps assignment deterministic across runs.
	for i := range t.slots {
		if !t.slots[i].active {
			continue
		}
		s := &t.slots[i]

		minDistSq := maxDistSq
		best := -1
		for d := range dets {
			if detAssigned[d] {
				continue
			}
			distSq := distanceSquared(s.centroidX, s.centroidY, dets[d].CentroidX, dets[d].CentroidY)
			if distSq < minDistSq {
				minDistSq = distSq
				best = d
			}
		}

		if best >= 0 {
			t.updateSlot(s, dets[best], timestampMS)
			detAssigned[best] = true
			slotAssigned[i] = true
			t.results[n] = percept.TrackedDetection{TrackID: s.id, Detection: dets[best], IsNew: false}
			n++
		}
	}

	// Unmatched tracks age toward expiry.
	for i := range t.slots {
		if t.slots[i].active && !slotAssigned[i] {
			t.ageSlot(&t.slots[i])
		}
	}

	// Unmatched detections spawn new tracks while capacity lasts.
	for d := range dets {
		if detAssigned[d] || n >= MaxTracks {
			continue
		}
		s := t.register(dets[d], timestampMS)
		if s == nil {
			continue
		}
		t.results[n] = percept.TrackedDetection{TrackID: s.id, Detection: dets[d], IsNew: true}
		n++
	}

	return t.results[:n]
}

// ageSlot increments a track's disappearance counter and expires it once the
// counter passes the configured maximum.
func (t *Tracker) ageSlot(s *slot) {
	s.disappeared++
	if s.disappeared > t.cfg.MaxDisappeared {
		t.deregister(s)
	}
}

// HistoryInto copies a track's position history into buf in chronological
// order (oldest first) and returns the number of samples copied. Returns 0
// when the track does not exist. buf should hold HistoryCap entries; a
// smaller buffer receives only the oldest len(buf) samples.
func (t *Tracker) HistoryInto(trackID uint32, buf []percept.TrackPosition) int {
	s := t.lookup(trackID)
	if s == nil || len(buf) == 0 {
		return 0
	}

	count := s.historyCount
	if count == 0 {
		return 0
	}
	if count > len(buf) {
		count = len(buf)
	}

	// Oldest entry: index 0 until the ring is full, then the slot after head.
	start := 0
	if s.historyCount == HistoryCap {
		start = (s.historyHead + 1) % HistoryCap
	}
	for j := 0; j < count; j++ {
		buf[j] = s.history[(start+j)%HistoryCap]
	}
	return count
}

// History returns a freshly allocated copy of a track's history in
// chronological order, or nil when the track does not exist. Update-path
// callers should prefer HistoryInto with a reused buffer.
func (t *Tracker) History(trackID uint32) []percept.TrackPosition {
	var buf [HistoryCap]percept.TrackPosition
	n := t.HistoryInto(trackID, buf[:])
	if n == 0 {
		return nil
	}
	out := make([]percept.TrackPosition, n)
	copy(out, buf[:n])
	return out
}

// Snapshot is a copy of one track's current state, safe to retain across
// update cycles.
type Snapshot struct {
	ID            uint32
	CentroidX     int
	CentroidY     int
	Disappeared   int
	LastDetection percept.Detection
	History       []percept.TrackPosition
}

// GetSnapshot returns a copy of the identified track, or false when it does
// not exist.
func (t *Tracker) GetSnapshot(trackID uint32) (Snapshot, bool) {
	s := t.lookup(trackID)
	if s == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		ID:            s.id,
		CentroidX:     s.centroidX,
		CentroidY:     s.centroidY,
		Disappeared:   s.disappeared,
		LastDetection: s.lastDetection,
		History:       t.History(trackID),
	}, true
}

func (t *Tracker) lookup(trackID uint32) *slot {
	if trackID == 0 {
		return nil
	}
	for i := range t.slots {
		if t.slots[i].active && t.slots[i].id == trackID {
			return &t.slots[i]
		}
	}
	return nil
}

// ActiveCount returns the number of currently active tracks.
func (t *Tracker) ActiveCount() int {
	return t.active
}

// Reset deregisters all tracks and restarts the ID sequence.
func (t *Tracker) Reset() {
	t.slots = [MaxTracks]slot{}
	t.nextID = 1
	t.active = 0
	monitoring.Logf("tracker: reset")
}
