// Package halfake provides in-memory hal driver implementations for tests
// and the simulator. All fakes are safe for concurrent use.
package halfake

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrKillSwitchEngaged is returned by Laser.On while the kill switch latch
// is set.
var ErrKillSwitchEngaged = errors.New("halfake: kill switch engaged")

// Laser is an in-memory LaserDriver. On-time is measured against the
// injected clock so tests can advance time deterministically.
type Laser struct {
	mu sync.Mutex

	clk          clock.Clock
	active       bool
	onSince      time.Time
	killEngaged  bool
	armed        bool
	onCalls      int
	failNextOn   error
}

// NewLaser creates a fake laser measuring on-time against clk.
func NewLaser(clk clock.Clock) *Laser {
	return &Laser{clk: clk}
}

func (l *Laser) On() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCalls++
	if l.failNextOn != nil {
		err := l.failNextOn
		l.failNextOn = nil
		return err
	}
	if l.killEngaged {
		return ErrKillSwitchEngaged
	}
	if !l.active {
		l.active = true
		l.onSince = l.clk.Now()
	}
	return nil
}

func (l *Laser) Off() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = false
}

func (l *Laser) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *Laser) CurrentOnTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return 0
	}
	return l.clk.Now().Sub(l.onSince)
}

func (l *Laser) KillSwitch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.killEngaged = true
	l.active = false
}

func (l *Laser) ResetKillSwitch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.killEngaged = false
}

func (l *Laser) IsKillSwitchEngaged() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.killEngaged
}

func (l *Laser) IsArmed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.armed
}

// SetArmed sets the driver-level arming interlock.
func (l *Laser) SetArmed(armed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.armed = armed
}

// FailNextOn makes the next On call return err without powering the emitter.
func (l *Laser) FailNextOn(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNextOn = err
}

// OnCalls returns how many times On has been called.
func (l *Laser) OnCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.onCalls
}

// Tilt is an in-memory TiltDriver with a settable position.
type Tilt struct {
	mu  sync.Mutex
	deg float64
	err error
}

// NewTilt creates a fake tilt driver reporting deg degrees.
func NewTilt(deg float64) *Tilt {
	return &Tilt{deg: deg}
}

func (t *Tilt) Position() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deg, t.err
}

// SetPosition sets the reported elevation.
func (t *Tilt) SetPosition(deg float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deg = deg
}

// SetError makes Position return err until cleared with a nil err.
func (t *Tilt) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// Buttons is an in-memory ButtonDriver.
type Buttons struct {
	mu        sync.Mutex
	armed     bool
	emergency bool
}

// NewButtons creates a fake button driver, disarmed with no emergency latch.
func NewButtons() *Buttons {
	return &Buttons{}
}

func (b *Buttons) IsArmed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.armed
}

func (b *Buttons) IsEmergencyStop() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emergency
}

func (b *Buttons) ClearEmergency() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emergency = false
}

// SetArmed sets the operator arming state.
func (b *Buttons) SetArmed(armed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.armed = armed
}

// PressEmergencyStop latches the emergency stop.
func (b *Buttons) PressEmergencyStop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emergency = true
}
