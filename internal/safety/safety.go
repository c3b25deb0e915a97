// Package safety is the interlock layer every laser command passes through.
// It combines an operator arming check, detection gating, tilt limiting, a
// continuous on-time limit, a kill-switch latch, a software watchdog and a
// brownout monitor into one composite check, and escalates watchdog expiry
// and brownout to a terminal safe mode.
//
// Locking: the Layer holds a single mutex and may call driver methods while
// holding it. The acquisition order is always safety lock first, then any
// lock internal to a driver. Drivers must never call back into the Layer.
// Callbacks registered on the Layer are copied under the lock and invoked
// after it is released, so a callback may safely call back into the Layer.
package safety

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/apis-data/hornet.watch/internal/hal"
	"github.com/apis-data/hornet.watch/internal/monitoring"
)

// Layer enforces the safety interlocks. All methods are safe for concurrent
// use.
type Layer struct {
	mu sync.Mutex

	cfg Config
	clk clock.Clock

	laser   hal.LaserDriver
	tilt    hal.TiltDriver
	buttons hal.ButtonDriver

	initialized     bool
	state           State
	detectionActive bool
	currentTiltDeg  float64
	voltageMV       uint32

	lastFeed     time.Time
	warningFired bool
	initTime     time.Time

	stateCB    StateCallback
	failureCB  FailureCallback
	watchdogCB WatchdogCallback

	stats Stats
}

// New creates a safety layer in the Normal state with a freshly fed watchdog.
// Any driver may be nil when the peripheral is absent; the corresponding
// checks then resolve conservatively. A nil clk uses the wall clock.
func New(cfg Config, laser hal.LaserDriver, tilt hal.TiltDriver, buttons hal.ButtonDriver, clk clock.Clock) *Layer {
	if clk == nil {
		clk = clock.New()
	}
	def := DefaultConfig()
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = def.WatchdogTimeout
	}
	if cfg.WatchdogWarning <= 0 || cfg.WatchdogWarning >= cfg.WatchdogTimeout {
		monitoring.Logf("safety: watchdog warning %v unusable against timeout %v, using default",
			cfg.WatchdogWarning, cfg.WatchdogTimeout)
		cfg.WatchdogWarning = def.WatchdogWarning
	}
	if cfg.LaserMaxOn <= 0 {
		cfg.LaserMaxOn = def.LaserMaxOn
	}
	if cfg.AutoOffMargin <= 0 || cfg.AutoOffMargin >= cfg.LaserMaxOn {
		monitoring.Logf("safety: auto-off margin %v unusable against max on-time %v, using default",
			cfg.AutoOffMargin, cfg.LaserMaxOn)
		cfg.AutoOffMargin = def.AutoOffMargin
	}

	now := clk.Now()
	l := &Layer{
		cfg:         cfg,
		clk:         clk,
		laser:       laser,
		tilt:        tilt,
		buttons:     buttons,
		initialized: true,
		state:       StateNormal,
		voltageMV:   5000, // assume good supply until told otherwise
		lastFeed:    now,
		initTime:    now,
	}
	monitoring.Logf("safety: initialized (watchdog %v/%v, brownout %d mV, tilt max %.1f deg, max on %v)",
		cfg.WatchdogWarning, cfg.WatchdogTimeout, cfg.VoltageMinMV, cfg.TiltMaxDeg, cfg.LaserMaxOn)
	return l
}

// setStateLocked records a state transition and reports whether the state
// actually changed. The caller invokes the state callback after unlocking.
func (l *Layer) setStateLocked(newState State) bool {
	if l.state == newState {
		return false
	}
	monitoring.Logf("safety: state changed: %s -> %s", l.state, newState)
	l.state = newState
	return true
}

// enterSafeModeLocked forces the laser off, latches the kill switch and moves
// to StateSafeMode. Reports whether the state changed.
func (l *Layer) enterSafeModeLocked() bool {
	if l.state == StateSafeMode {
		return false
	}
	l.stats.SafeModeEntries++
	monitoring.SafeModeEntries.Inc()
	changed := l.setStateLocked(StateSafeMode)

	// Driver locks nest inside the safety lock per the documented order.
	if l.laser != nil {
		l.laser.Off()
		l.laser.KillSwitch()
	}
	monitoring.Logf("safety: entered SAFE MODE, manual reset required")
	return changed
}

func (l *Layer) armedLocked() bool {
	if l.buttons != nil {
		return l.buttons.IsArmed()
	}
	if l.laser != nil {
		return l.laser.IsArmed()
	}
	return false
}

func (l *Layer) killSwitchLocked() bool {
	if l.laser != nil {
		return l.laser.IsKillSwitchEngaged()
	}
	if l.buttons != nil {
		return l.buttons.IsEmergencyStop()
	}
	return false
}

func (l *Layer) watchdogRemainingLocked(now time.Time) time.Duration {
	elapsed := now.Sub(l.lastFeed)
	if elapsed >= l.cfg.WatchdogTimeout {
		return 0
	}
	return l.cfg.WatchdogTimeout - elapsed
}

// notifyFailure copies the failure callback under the lock and invokes it
// outside it.
func (l *Layer) notifyFailure(failure Status) {
	l.mu.Lock()
	cb := l.failureCB
	l.mu.Unlock()
	if cb != nil {
		cb(failure)
	}
}

func (l *Layer) notifyStateChange(newState State) {
	l.mu.Lock()
	cb := l.stateCB
	l.mu.Unlock()
	if cb != nil {
		cb(newState)
	}
}

func (l *Layer) notifyWatchdogWarning(remaining time.Duration) {
	l.mu.Lock()
	cb := l.watchdogCB
	l.mu.Unlock()
	if cb != nil {
		cb(remaining)
	}
}

// CheckAll runs every safety check.
func (l *Layer) CheckAll() Result {
	return l.Check(CheckAll)
}

// Check evaluates the selected safety checks and returns the dominant status
// plus the failed-checks bitmask. In safe mode it short-circuits: everything
// is reported failed without evaluating individual checks. The failure
// callback fires after the internal lock is released.
func (l *Layer) Check(checks Check) Result {
	l.mu.Lock()

	if !l.initialized {
		l.mu.Unlock()
		return Result{Status: StatusNotInitialized}
	}

	l.stats.ChecksPerformed++

	now := l.clk.Now()
	res := Result{
		Status:            StatusOK,
		TiltDeg:           l.currentTiltDeg,
		VoltageMV:         l.voltageMV,
		Armed:             l.armedLocked(),
		HasDetection:      l.detectionActive,
		KillSwitchEngaged: l.killSwitchLocked(),
		WatchdogRemaining: l.watchdogRemainingLocked(now),
	}
	if l.laser != nil {
		res.ContinuousOnTime = l.laser.CurrentOnTime()
	}

	if l.state == StateSafeMode {
		res.Status = StatusSafeMode
		res.FailedChecks = CheckAll
		l.stats.ChecksFailed++
		l.mu.Unlock()
		monitoring.SafetyChecksTotal.WithLabelValues("fail").Inc()
		return res
	}

	if checks&CheckArmed != 0 && !res.Armed {
		res.FailedChecks |= CheckArmed
		l.stats.ArmedFailures++
	}
	if checks&CheckDetection != 0 && !res.HasDetection {
		res.FailedChecks |= CheckDetection
		l.stats.DetectionFailures++
	}
	if checks&CheckTilt != 0 && l.currentTiltDeg > l.cfg.TiltMaxDeg {
		res.FailedChecks |= CheckTilt
		l.stats.TiltFailures++
		monitoring.Logf("safety: check failed: tilt %.1f deg is upward (max %.1f deg)",
			l.currentTiltDeg, l.cfg.TiltMaxDeg)
	}
	if checks&CheckTime != 0 && res.ContinuousOnTime >= l.cfg.LaserMaxOn {
		res.FailedChecks |= CheckTime
		l.stats.TimeFailures++
	}
	if checks&CheckKillSwitch != 0 && res.KillSwitchEngaged {
		res.FailedChecks |= CheckKillSwitch
		l.stats.KillSwitchFailures++
	}
	if checks&CheckWatchdog != 0 && res.WatchdogRemaining == 0 {
		res.FailedChecks |= CheckWatchdog
		l.stats.WatchdogFailures++
		monitoring.Logf("safety: check failed: watchdog timeout")
	}
	if checks&CheckBrownout != 0 && l.voltageMV > 0 && l.voltageMV < l.cfg.VoltageMinMV {
		res.FailedChecks |= CheckBrownout
		l.stats.BrownoutFailures++
		monitoring.Logf("safety: check failed: brownout (%d mV < %d mV)", l.voltageMV, l.cfg.VoltageMinMV)
	}

	if res.FailedChecks == 0 {
		l.stats.ChecksPassed++
		l.mu.Unlock()
		monitoring.SafetyChecksTotal.WithLabelValues("pass").Inc()
		return res
	}

	res.Status = dominantStatus(res.FailedChecks)
	l.stats.ChecksFailed++
	l.mu.Unlock()

	monitoring.SafetyChecksTotal.WithLabelValues("fail").Inc()
	for _, c := range []Check{CheckArmed, CheckDetection, CheckTilt, CheckTime, CheckKillSwitch, CheckWatchdog, CheckBrownout} {
		if res.FailedChecks&c != 0 {
			monitoring.SafetyCheckFailures.WithLabelValues(c.String()).Inc()
		}
	}
	l.notifyFailure(res.Status)
	return res
}

// dominantStatus maps a failed-checks bitmask to a single status. With more
// than one failure the result is StatusMultiple; otherwise a fixed priority
// order picks the code.
func dominantStatus(failed Check) Status {
	count := 0
	for c := CheckArmed; c <= CheckBrownout; c <<= 1 {
		if failed&c != 0 {
			count++
		}
	}
	if count > 1 {
		return StatusMultiple
	}
	switch {
	case failed&CheckArmed != 0:
		return StatusNotArmed
	case failed&CheckDetection != 0:
		return StatusNoDetection
	case failed&CheckTilt != 0:
		return StatusTiltUpward
	case failed&CheckTime != 0:
		return StatusTimeExceeded
	case failed&CheckKillSwitch != 0:
		return StatusKillSwitch
	case failed&CheckWatchdog != 0:
		return StatusWatchdog
	case failed&CheckBrownout != 0:
		return StatusBrownout
	default:
		return StatusOK
	}
}

// FeedWatchdog restarts the watchdog interval and clears the warning latch.
// Feeding while in StateWarning returns the layer to StateNormal.
func (l *Layer) FeedWatchdog() {
	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return
	}
	l.lastFeed = l.clk.Now()
	l.warningFired = false

	changed := false
	if l.state == StateWarning {
		changed = l.setStateLocked(StateNormal)
	}
	l.mu.Unlock()

	if changed {
		l.notifyStateChange(StateNormal)
	}
}

// WatchdogRemaining returns the time left before the watchdog forces safe
// mode, zero once expired.
func (l *Layer) WatchdogRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return 0
	}
	return l.watchdogRemainingLocked(l.clk.Now())
}

// IsWatchdogWarning reports whether the warning threshold has passed since
// the last feed.
func (l *Layer) IsWatchdogWarning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return false
	}
	return l.clk.Now().Sub(l.lastFeed) >= l.cfg.WatchdogWarning
}

// Update is the periodic safety tick. It escalates watchdog expiry and
// brownout to safe mode, fires the one-shot watchdog warning, and force-stops
// a laser that has been on close to its continuous limit. Call it from the
// control loop at least a few times per second.
func (l *Layer) Update() {
	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return
	}

	var (
		notifySafeMode     bool
		notifyWarningState bool
		notifyWatchdog     bool
		watchdogRemaining  time.Duration
	)

	now := l.clk.Now()
	elapsed := now.Sub(l.lastFeed)

	if elapsed >= l.cfg.WatchdogTimeout {
		if l.state != StateSafeMode {
			monitoring.Logf("safety: watchdog timeout, entering safe mode")
			notifySafeMode = l.enterSafeModeLocked()
		}
	} else if elapsed >= l.cfg.WatchdogWarning {
		if !l.warningFired {
			l.warningFired = true
			watchdogRemaining = l.cfg.WatchdogTimeout - elapsed
			monitoring.Logf("safety: watchdog warning, %v remaining", watchdogRemaining)
			notifyWatchdog = true
			if l.state == StateNormal {
				notifyWarningState = l.setStateLocked(StateWarning)
			}
		}
	}

	// Auto-off fires ahead of the continuous limit so the laser never rides
	// the hard cutoff. LaserOff takes no safety lock, only driver locks.
	if l.laser != nil && l.laser.IsActive() {
		onTime := l.laser.CurrentOnTime()
		threshold := l.cfg.LaserMaxOn - l.cfg.AutoOffMargin
		if onTime >= threshold {
			monitoring.Logf("safety: auto-off: laser on for %v (threshold %v), forcing off", onTime, threshold)
			l.LaserOff()
			l.stats.TimeFailures++
		}
	}

	if l.voltageMV > 0 && l.voltageMV < l.cfg.VoltageMinMV {
		if l.state != StateSafeMode {
			monitoring.Logf("safety: brownout detected (%d mV), entering safe mode", l.voltageMV)
			notifySafeMode = l.enterSafeModeLocked() || notifySafeMode
		}
	}

	l.mu.Unlock()

	if notifyWatchdog {
		l.notifyWatchdogWarning(watchdogRemaining)
	}
	if notifySafeMode {
		l.notifyStateChange(StateSafeMode)
	}
	if notifyWarningState {
		l.notifyStateChange(StateWarning)
	}
}

// SetDetectionActive records whether a qualifying detection is present. The
// processing loop calls this each cycle from the classifier output.
func (l *Layer) SetDetectionActive(active bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return
	}
	l.detectionActive = active
}

// IsDetectionActive reports the current detection gate.
func (l *Layer) IsDetectionActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initialized && l.detectionActive
}

// ValidateTilt checks a requested tilt elevation. When a tilt driver is
// installed its reported position is checked first and wins over the caller
// value: hardware is trusted over software. On success the caller value is
// recorded as the current tilt for subsequent composite checks.
func (l *Layer) ValidateTilt(tiltDeg float64) Status {
	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return StatusNotInitialized
	}

	if l.tilt != nil {
		if actual, err := l.tilt.Position(); err == nil {
			if actual > l.cfg.TiltMaxDeg {
				l.stats.TiltFailures++
				monitoring.Logf("safety: tilt validation failed: actual servo position %.1f deg is upward (max %.1f deg)",
					actual, l.cfg.TiltMaxDeg)
				l.mu.Unlock()
				return StatusTiltUpward
			}
		}
	}

	l.currentTiltDeg = tiltDeg

	status := StatusOK
	if tiltDeg > l.cfg.TiltMaxDeg {
		status = StatusTiltUpward
		l.stats.TiltFailures++
		monitoring.Logf("safety: tilt validation failed: %.1f deg exceeds maximum %.1f deg",
			tiltDeg, l.cfg.TiltMaxDeg)
	}
	l.mu.Unlock()
	return status
}

// State returns the current safety state.
func (l *Layer) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsSafeMode reports whether the layer is locked out in safe mode.
func (l *Layer) IsSafeMode() bool {
	return l.State() == StateSafeMode
}

// EnterSafeMode forces the terminal lockout immediately: laser off, kill
// switch latched, manual Reset required.
func (l *Layer) EnterSafeMode() {
	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return
	}
	changed := l.enterSafeModeLocked()
	l.mu.Unlock()

	if changed {
		l.notifyStateChange(StateSafeMode)
	}
}

// Reset leaves safe mode: the watchdog is fed, the kill-switch and emergency
// latches are cleared, and the state returns to Normal. The device stays
// disarmed; re-arming is always a separate operator action. Calling Reset
// outside safe mode is a no-op.
func (l *Layer) Reset() Status {
	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return StatusNotInitialized
	}
	if l.state != StateSafeMode {
		l.mu.Unlock()
		return StatusOK
	}

	l.lastFeed = l.clk.Now()
	l.warningFired = false

	if l.laser != nil {
		l.laser.ResetKillSwitch()
	}
	if l.buttons != nil {
		l.buttons.ClearEmergency()
	}

	changed := l.setStateLocked(StateNormal)
	monitoring.Logf("safety: reset, system returned to normal state (remains disarmed)")
	l.mu.Unlock()

	if changed {
		l.notifyStateChange(StateNormal)
	}
	return StatusOK
}

// SetVoltage records the measured supply voltage in millivolts. Zero means
// unknown and disables voltage checks.
func (l *Layer) SetVoltage(voltageMV uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return
	}
	l.voltageMV = voltageMV
}

// Voltage returns the last recorded supply voltage.
func (l *Layer) Voltage() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.voltageMV
}

// IsVoltageWarning reports whether the supply is known and below the warning
// threshold.
func (l *Layer) IsVoltageWarning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.voltageMV > 0 && l.voltageMV < l.cfg.VoltageWarnMV
}

// IsBrownout reports whether the supply is known and below the brownout
// threshold.
func (l *Layer) IsBrownout() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.voltageMV > 0 && l.voltageMV < l.cfg.VoltageMinMV
}

// SetStateCallback registers the state transition observer. Pass nil to
// remove it.
func (l *Layer) SetStateCallback(cb StateCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stateCB = cb
}

// SetFailureCallback registers the check failure observer.
func (l *Layer) SetFailureCallback(cb FailureCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failureCB = cb
}

// SetWatchdogCallback registers the watchdog warning observer.
func (l *Layer) SetWatchdogCallback(cb WatchdogCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchdogCB = cb
}

// GetStats returns a copy of the activity counters with the uptime filled in.
func (l *Layer) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := l.stats
	if l.initialized {
		stats.Uptime = l.clk.Now().Sub(l.initTime)
	}
	return stats
}

// Cleanup shuts the layer down: the laser is forced off and kill-switched,
// and every subsequent operation reports StatusNotInitialized.
func (l *Layer) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return
	}
	if l.laser != nil {
		l.laser.Off()
		l.laser.KillSwitch()
	}
	l.initialized = false
	monitoring.Logf("safety: cleanup complete")
}
