package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the metrics registry for the perception core. Binaries that
// want to expose metrics serve promhttp.HandlerFor(monitoring.Registry, ...);
// the core itself never opens a listener.
var Registry = prometheus.NewRegistry()

var (
	// SafetyChecksTotal counts composite safety-check evaluations by outcome
	// ("pass" or "fail").
	SafetyChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_checks_total",
		Help: "Composite safety check evaluations by outcome.",
	}, []string{"outcome"})

	// SafetyCheckFailures counts individual check failures by check name
	// (ARMED, DETECTION, TILT, TIME, KILL_SWITCH, WATCHDOG, BROWNOUT).
	SafetyCheckFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_check_failures_total",
		Help: "Individual safety check failures by check name.",
	}, []string{"check"})

	// SafeModeEntries counts transitions into safe mode.
	SafeModeEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "safety_safe_mode_entries_total",
		Help: "Number of times the safety layer entered safe mode.",
	})

	// ActiveTracks reports the tracker's current active track count.
	ActiveTracks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_active_tracks",
		Help: "Number of currently active tracks.",
	})

	// DetectionsClassified counts classified detections by confidence level.
	DetectionsClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classifier_detections_total",
		Help: "Classified detections by confidence level.",
	}, []string{"confidence"})
)

func init() {
	Registry.MustRegister(
		SafetyChecksTotal,
		SafetyCheckFailures,
		SafeModeEntries,
		ActiveTracks,
		DetectionsClassified,
	)
}
