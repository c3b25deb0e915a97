package safety

import (
	"time"

	"github.com/apis-data/hornet.watch/internal/config"
)

// State is the safety layer's operating state.
type State uint8

const (
	// StateNormal is regular operation.
	StateNormal State = iota
	// StateWarning means the watchdog warning threshold has passed without
	// a feed. Clears on the next feed.
	StateWarning
	// StateSafeMode is the terminal lockout: the laser is forced off and
	// kill-switched, and only an explicit Reset leaves this state.
	StateSafeMode
	// StateEmergency is reserved for a hardware emergency latch distinct
	// from safe mode. Nothing transitions into it yet.
	StateEmergency
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateWarning:
		return "WARNING"
	case StateSafeMode:
		return "SAFE_MODE"
	case StateEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Status is the outcome of a safety operation. StatusOK is the zero value;
// everything else is a refusal.
type Status uint8

const (
	// StatusOK: all requested checks passed.
	StatusOK Status = iota
	// StatusNotInitialized: the layer (or a required driver) is not usable.
	StatusNotInitialized
	// StatusNotArmed: the device is not armed.
	StatusNotArmed
	// StatusNoDetection: no qualifying detection is active.
	StatusNoDetection
	// StatusTiltUpward: the emitter points above the configured maximum.
	StatusTiltUpward
	// StatusTimeExceeded: continuous on-time reached the limit.
	StatusTimeExceeded
	// StatusKillSwitch: the kill switch or emergency stop is engaged.
	StatusKillSwitch
	// StatusWatchdog: the watchdog expired.
	StatusWatchdog
	// StatusBrownout: supply voltage is below the brownout threshold.
	StatusBrownout
	// StatusSafeMode: the layer is in safe mode; everything fails.
	StatusSafeMode
	// StatusMultiple: more than one check failed; see the bitmask.
	StatusMultiple
	// StatusDriverFault: checks passed but the laser driver refused.
	StatusDriverFault
)

// String returns the status name used in logs.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotInitialized:
		return "NOT_INITIALIZED"
	case StatusNotArmed:
		return "NOT_ARMED"
	case StatusNoDetection:
		return "NO_DETECTION"
	case StatusTiltUpward:
		return "TILT_UPWARD"
	case StatusTimeExceeded:
		return "TIME_EXCEEDED"
	case StatusKillSwitch:
		return "KILL_SWITCH"
	case StatusWatchdog:
		return "WATCHDOG"
	case StatusBrownout:
		return "BROWNOUT"
	case StatusSafeMode:
		return "SAFE_MODE"
	case StatusMultiple:
		return "MULTIPLE"
	case StatusDriverFault:
		return "DRIVER_FAULT"
	default:
		return "UNKNOWN"
	}
}

// Check selects individual safety checks in a bitmask.
type Check uint32

const (
	// CheckArmed verifies the device is armed.
	CheckArmed Check = 1 << iota
	// CheckDetection verifies an active detection is present.
	CheckDetection
	// CheckTilt verifies the emitter does not point above the limit.
	CheckTilt
	// CheckTime verifies continuous on-time is under the limit.
	CheckTime
	// CheckKillSwitch verifies no kill switch or emergency stop is engaged.
	CheckKillSwitch
	// CheckWatchdog verifies the watchdog has not expired.
	CheckWatchdog
	// CheckBrownout verifies supply voltage is above the brownout threshold.
	CheckBrownout

	// CheckAll selects every check.
	CheckAll = CheckArmed | CheckDetection | CheckTilt | CheckTime |
		CheckKillSwitch | CheckWatchdog | CheckBrownout
)

// String returns the check name used in logs and metric labels.
func (c Check) String() string {
	switch c {
	case CheckArmed:
		return "ARMED"
	case CheckDetection:
		return "DETECTION"
	case CheckTilt:
		return "TILT"
	case CheckTime:
		return "TIME"
	case CheckKillSwitch:
		return "KILL_SWITCH"
	case CheckWatchdog:
		return "WATCHDOG"
	case CheckBrownout:
		return "BROWNOUT"
	case CheckAll:
		return "ALL"
	default:
		return "UNKNOWN"
	}
}

// Result is the full outcome of a composite safety check: the dominant
// status, the bitmask of failed checks, and a snapshot of the inputs the
// decision was made from.
type Result struct {
	Status       Status
	FailedChecks Check

	TiltDeg           float64
	VoltageMV         uint32
	Armed             bool
	HasDetection      bool
	KillSwitchEngaged bool
	WatchdogRemaining time.Duration
	ContinuousOnTime  time.Duration
}

// Stats counts safety layer activity since initialization.
type Stats struct {
	ChecksPerformed uint64
	ChecksPassed    uint64
	ChecksFailed    uint64

	ArmedFailures      uint64
	DetectionFailures  uint64
	TiltFailures       uint64
	TimeFailures       uint64
	KillSwitchFailures uint64
	WatchdogFailures   uint64
	BrownoutFailures   uint64

	SafeModeEntries uint64
	Uptime          time.Duration
}

// Config holds the safety layer thresholds.
type Config struct {
	WatchdogTimeout time.Duration // Watchdog expiry; reaching it forces safe mode
	WatchdogWarning time.Duration // Warning threshold; must be below the timeout
	VoltageMinMV    uint32        // Brownout threshold in millivolts
	VoltageWarnMV   uint32        // Low-voltage warning threshold
	TiltMaxDeg      float64       // Maximum elevation; 0 is horizontal
	LaserMaxOn      time.Duration // Maximum continuous laser on-time
	AutoOffMargin   time.Duration // How far ahead of LaserMaxOn the auto-off fires
}

// DefaultConfig returns the safety thresholds the device ships with.
func DefaultConfig() Config {
	return Config{
		WatchdogTimeout: 30 * time.Second,
		WatchdogWarning: 25 * time.Second,
		VoltageMinMV:    4500,
		VoltageWarnMV:   4750,
		TiltMaxDeg:      0,
		LaserMaxOn:      10 * time.Second,
		AutoOffMargin:   500 * time.Millisecond,
	}
}

// ConfigFromTuning builds a safety Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		WatchdogTimeout: time.Duration(cfg.GetWatchdogTimeoutMS()) * time.Millisecond,
		WatchdogWarning: time.Duration(cfg.GetWatchdogWarningMS()) * time.Millisecond,
		VoltageMinMV:    uint32(cfg.GetVoltageMinMV()),
		VoltageWarnMV:   uint32(cfg.GetVoltageWarningMV()),
		TiltMaxDeg:      cfg.GetTiltMaxDeg(),
		LaserMaxOn:      time.Duration(cfg.GetLaserMaxOnMS()) * time.Millisecond,
		AutoOffMargin:   time.Duration(cfg.GetAutoOffMarginMS()) * time.Millisecond,
	}
}

// StateCallback observes state transitions.
type StateCallback func(newState State)

// FailureCallback observes composite check failures with the dominant status.
type FailureCallback func(failure Status)

// WatchdogCallback observes the one-shot watchdog warning with the time
// remaining before forced safe mode.
type WatchdogCallback func(remaining time.Duration)
