package percept

// MaxDetections is the maximum number of detections accepted per frame.
// Inputs beyond this are clamped by the tracker.
const MaxDetections = 32

// MaxTrackHistory is the per-track position history capacity, ~3 seconds
// at 10 FPS. History consumers size their buffers with it.
const MaxTrackHistory = 30

// Detection is a single motion region extracted upstream from one frame.
// Coordinates are pixels in the camera frame. Detections are ephemeral; the
// perception core never retains them beyond the cycle that produced them,
// except for the copy stored on the owning track.
type Detection struct {
	X         int    // Bounding box top-left x
	Y         int    // Bounding box top-left y
	W         int    // Bounding box width
	H         int    // Bounding box height
	Area      uint32 // Contour area in pixels
	CentroidX int    // Center point x
	CentroidY int    // Center point y
}

// TrackPosition is a single sample in a track's position history.
// TimestampMS is a free-running millisecond counter that wraps around
// after ~49 days; consumers must use wraparound-safe subtraction.
type TrackPosition struct {
	X           int
	Y           int
	TimestampMS uint32
}

// TrackedDetection pairs a detection with the track it was assigned to for
// one cycle. TrackID 0 never occurs; 0 is reserved for "no track".
type TrackedDetection struct {
	TrackID   uint32
	Detection Detection
	IsNew     bool // true when this cycle created the track
}

// Classification is the size class assigned to a detection.
type Classification uint8

const (
	// ClassTooSmall is below the absolute minimum size.
	ClassTooSmall Classification = iota
	// ClassTooLarge is above the absolute maximum size.
	ClassTooLarge
	// ClassUnknown is inside the absolute bounds but outside the
	// target-species sub-range.
	ClassUnknown
	// ClassTarget is inside the target-species size range.
	ClassTarget
)

// String returns the classification name used in logs.
func (c Classification) String() string {
	switch c {
	case ClassTooSmall:
		return "TOO_SMALL"
	case ClassTooLarge:
		return "TOO_LARGE"
	case ClassUnknown:
		return "UNKNOWN"
	case ClassTarget:
		return "TARGET"
	default:
		return "INVALID"
	}
}

// Confidence rates how likely a classified detection is a genuine target in
// a firing-worthy state.
type Confidence uint8

const (
	// ConfidenceLow: wrong size or insufficient data.
	ConfidenceLow Confidence = iota
	// ConfidenceMedium: target-sized but transient (moving through).
	ConfidenceMedium
	// ConfidenceHigh: target-sized and hovering.
	ConfidenceHigh
)

// String returns the confidence level name used in logs.
func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "LOW"
	case ConfidenceMedium:
		return "MEDIUM"
	case ConfidenceHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ClassifiedDetection is a tracked detection with size class, hover state
// and confidence attached. Produced once per cycle and consumed immediately;
// never persisted.
type ClassifiedDetection struct {
	TrackedDetection

	Classification  Classification
	IsHovering      bool
	HoverDurationMS uint32 // how long the track has hovered (0 if not hovering)
	TrackAgeMS      uint32 // newest minus oldest history sample, wraparound-safe
	Confidence      Confidence
}

// ElapsedMS returns newest-oldest on the wrapping millisecond counter.
// When newest < oldest the counter wrapped and the true elapsed time spans
// the wrap point.
func ElapsedMS(oldest, newest uint32) uint32 {
	if newest >= oldest {
		return newest - oldest
	}
	return (^uint32(0) - oldest) + newest + 1
}
