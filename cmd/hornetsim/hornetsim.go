// hornetsim runs the perception and safety core against simulated hornet
// flights and fake hardware drivers. It is the bench tool for tuning
// thresholds and watching the safety interlocks behave without a device.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apis-data/hornet.watch/internal/config"
	"github.com/apis-data/hornet.watch/internal/hal/halfake"
	"github.com/apis-data/hornet.watch/internal/monitoring"
	"github.com/apis-data/hornet.watch/internal/percept"
	"github.com/apis-data/hornet.watch/internal/percept/pipeline"
	"github.com/apis-data/hornet.watch/internal/safety"
	"github.com/apis-data/hornet.watch/internal/version"
)

var (
	listen     = flag.String("listen", ":9090", "Metrics listen address (empty to disable)")
	configPath = flag.String("config", "", "Tuning config path (defaults to built-in values)")
	armed      = flag.Bool("armed", false, "Start with the device armed")
	autoEngage = flag.Bool("auto-engage", false, "Let the pipeline request laser pulses")
	verbose    = flag.Bool("v", false, "Log per-cycle pipeline trace output")
	seed       = flag.Int64("seed", 0, "Random seed (0 uses the current time)")
)

// flight simulates one hornet: it transits across the frame, hovers near a
// hive entrance for a while, then leaves.
type flight struct {
	rng      *rand.Rand
	x, y     float64
	vx, vy   float64
	hovering bool
	phaseEnd int
	cycle    int
	present  bool
}

func newFlight(rng *rand.Rand) *flight {
	return &flight{rng: rng}
}

// step advances one cycle and returns the detections for it.
func (f *flight) step() []percept.Detection {
	f.cycle++
	if !f.present {
		// A new hornet appears every few seconds on average.
		if f.rng.Intn(30) != 0 {
			return nil
		}
		f.present = true
		f.x = 0
		f.y = 100 + f.rng.Float64()*280
		f.vx = 20 + f.rng.Float64()*20
		f.vy = (f.rng.Float64() - 0.5) * 10
		f.hovering = false
		f.phaseEnd = f.cycle + 10 + f.rng.Intn(20)
	}

	if f.cycle >= f.phaseEnd {
		if f.hovering {
			// Done hovering: fly off.
			f.hovering = false
			f.vx = 30 + f.rng.Float64()*20
			f.phaseEnd = f.cycle + 60
		} else if f.x > 200 && f.x < 440 {
			// Reached the hive zone: hover there for a while.
			f.hovering = true
			f.phaseEnd = f.cycle + 20 + f.rng.Intn(40)
		} else {
			f.phaseEnd = f.cycle + 10
		}
	}

	if f.hovering {
		f.x += (f.rng.Float64() - 0.5) * 6
		f.y += (f.rng.Float64() - 0.5) * 6
	} else {
		f.x += f.vx
		f.y += f.vy
	}

	if f.x > 640 || f.y < 0 || f.y > 480 {
		f.present = false
		return nil
	}

	size := 26 + f.rng.Intn(8)
	return []percept.Detection{{
		X: int(f.x) - size/2, Y: int(f.y) - size/2,
		W: size, H: size,
		Area:      uint32(size * size),
		CentroidX: int(f.x), CentroidY: int(f.y),
	}}
}

func main() {
	flag.Parse()
	log.Printf("hornetsim %s", version.String())

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}
	tuning.AutoEngage = autoEngage

	if *verbose {
		pipeline.SetLegacyLogger(os.Stderr)
	} else {
		pipeline.SetLogWriters(os.Stderr, os.Stderr, nil)
	}

	clk := clock.New()
	laser := halfake.NewLaser(clk)
	tiltDrv := halfake.NewTilt(-15) // aimed down at the hive entrance
	buttons := halfake.NewButtons()
	buttons.SetArmed(*armed)

	layer := safety.New(safety.ConfigFromTuning(tuning), laser, tiltDrv, buttons, clk)
	defer layer.Cleanup()

	layer.SetStateCallback(func(s safety.State) {
		log.Printf("safety state -> %s", s)
	})
	layer.SetWatchdogCallback(func(remaining time.Duration) {
		log.Printf("watchdog warning: %v remaining", remaining)
	})

	if status := layer.ValidateTilt(-15); status != safety.StatusOK {
		log.Fatalf("tilt validation failed at startup: %s", status)
	}

	pipe := pipeline.New(tuning, layer)
	log.Printf("simulation run %s (armed=%v auto_engage=%v)", pipe.RunID(), *armed, *autoEngage)

	if *listen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(monitoring.Registry, promhttp.HandlerOpts{}))
			log.Printf("metrics on %s/metrics", *listen)
			if err := http.ListenAndServe(*listen, mux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(s))
	hornet := newFlight(rng)

	fps := tuning.GetFrameRateFPS()
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	start := time.Now()
	var lastReport time.Time
	for {
		select {
		case <-sig:
			log.Printf("shutting down")
			stats := layer.GetStats()
			log.Printf("final stats: checks=%d passed=%d failed=%d safe_mode_entries=%d uptime=%v",
				stats.ChecksPerformed, stats.ChecksPassed, stats.ChecksFailed,
				stats.SafeModeEntries, stats.Uptime)
			return
		case <-ticker.C:
			timestampMS := uint32(time.Since(start).Milliseconds())
			dets := hornet.step()

			out := pipe.Process(dets, timestampMS)
			layer.FeedWatchdog()
			layer.Update()

			if time.Since(lastReport) >= 5*time.Second {
				lastReport = time.Now()
				log.Printf("tracks=%d detections=%d state=%s laser=%v",
					pipe.Tracker().ActiveCount(), len(out), layer.State(), laser.IsActive())
			}
		}
	}
}
