package safety

import (
	"time"

	"github.com/apis-data/hornet.watch/internal/monitoring"
)

// Laser command wrappers. Every path that powers the emitter goes through
// these; nothing else in the system calls LaserDriver.On directly.

// LaserOn runs the full composite check and powers the emitter only when
// everything passes. Any failure leaves the emitter off: enforcement is
// silent beyond the internal log and the failure callback.
func (l *Layer) LaserOn() Status {
	l.mu.Lock()
	initialized := l.initialized
	laser := l.laser
	l.mu.Unlock()

	if !initialized {
		monitoring.Logf("safety: laser on refused: layer not initialized")
		return StatusNotInitialized
	}

	res := l.CheckAll()
	if res.Status != StatusOK {
		monitoring.Logf("safety: laser on blocked by safety check (%s)", res.Status)
		return res.Status
	}

	if laser == nil {
		monitoring.Logf("safety: laser on refused: no laser driver")
		return StatusNotInitialized
	}
	if err := laser.On(); err != nil {
		monitoring.Logf("safety: laser driver refused on: %v", err)
		return StatusDriverFault
	}
	return StatusOK
}

// LaserOff powers the emitter down. Off is the safe state, so no checks gate
// it and it works even in safe mode or after Cleanup. It takes no safety
// lock and may be called from code holding it.
func (l *Layer) LaserOff() Status {
	if l.laser != nil {
		l.laser.Off()
	}
	return StatusOK
}

// LaserActivate powers the emitter for a bounded engagement pulse. The
// duration is clamped to the continuous on-time limit and is advisory: this
// call only initiates activation, and the caller owns turning the emitter
// off when the pulse elapses, with Update's auto-off as the backstop.
func (l *Layer) LaserActivate(duration time.Duration) Status {
	l.mu.Lock()
	initialized := l.initialized
	maxOn := l.cfg.LaserMaxOn
	l.mu.Unlock()

	if !initialized {
		return StatusNotInitialized
	}
	if duration > maxOn {
		monitoring.Logf("safety: activation duration %v capped to %v", duration, maxOn)
		duration = maxOn
	}

	status := l.LaserOn()
	if status != StatusOK {
		monitoring.Logf("safety: laser activation blocked by safety check (%s)", status)
		return status
	}
	monitoring.Logf("safety: laser activated (requested duration %v)", duration)
	return StatusOK
}
