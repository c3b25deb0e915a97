// Package hal declares the hardware driver contracts the safety layer
// enforces against. Implementations wrap real GPIO/PWM/ADC peripherals on the
// device; halfake provides in-memory versions for tests and the simulator.
//
// Drivers are passed into the safety layer as interface values; a nil driver
// means the peripheral is not installed and the corresponding checks fall
// back conservatively.
package hal

import "time"

// LaserDriver controls the deterrent laser emitter. Implementations must be
// safe for concurrent use and must never call back into the safety layer:
// the safety layer holds its own lock while calling driver methods.
type LaserDriver interface {
	// On powers the emitter. Returns an error when the hardware refuses,
	// including when the driver-level kill switch is engaged.
	On() error
	// Off powers the emitter down. Always succeeds; off is the safe state.
	Off()
	// IsActive reports whether the emitter is currently powered.
	IsActive() bool
	// CurrentOnTime returns how long the emitter has been continuously on,
	// zero when it is off.
	CurrentOnTime() time.Duration
	// KillSwitch latches the driver-level kill switch, blocking On until
	// ResetKillSwitch is called.
	KillSwitch()
	// ResetKillSwitch clears the driver-level kill switch.
	ResetKillSwitch()
	// IsKillSwitchEngaged reports the kill switch latch state.
	IsKillSwitchEngaged() bool
	// IsArmed reports the driver's own arming interlock. Used as a fallback
	// when no button driver is installed.
	IsArmed() bool
}

// TiltDriver reports the emitter's physical elevation from the aiming servo.
// Positive degrees point above horizontal.
type TiltDriver interface {
	// Position returns the current tilt elevation in degrees, or an error
	// when the servo position cannot be read.
	Position() (float64, error)
}

// ButtonDriver reports the physical operator controls.
type ButtonDriver interface {
	// IsArmed reports whether the operator has armed the device.
	IsArmed() bool
	// IsEmergencyStop reports whether the emergency stop is latched.
	IsEmergencyStop() bool
	// ClearEmergency releases the emergency stop latch.
	ClearEmergency()
}
