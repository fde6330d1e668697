package sim

import (
	"fmt"
	"io"
	"time"

	"github.com/pthm-cable/drape/telemetry"
)

// logWriter is the destination for log output.
var logWriter io.Writer

// SetLogWriter sets the log output destination.
func SetLogWriter(w io.Writer) {
	logWriter = w
}

// Logf writes a formatted log message.
func Logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if logWriter != nil {
		fmt.Fprintln(logWriter, msg)
	} else {
		fmt.Println(msg)
	}
}

// LogPerf logs the phase breakdown of the recent steps.
func (w *World) LogPerf() {
	stats := w.perf.Stats()
	Logf("=== Perf @ Step %d | %.0f steps/s ===", w.step, stats.StepsPerSecond)
	Logf("Avg step time: %s (min %s, max %s)",
		stats.AvgStepDuration.Round(time.Microsecond),
		stats.MinStepDuration.Round(time.Microsecond),
		stats.MaxStepDuration.Round(time.Microsecond))

	for _, name := range telemetry.Phases {
		avg, ok := stats.PhaseAvg[name]
		if !ok {
			continue
		}
		Logf("  %-18s %10s  %5.1f%%", name, avg.Round(time.Microsecond), stats.PhasePct[name])
	}
	Logf("")
}

// LogState logs every cloth and its constraint containers.
func (w *World) LogState() {
	Logf("=== Step %d (t = %.3fs) ===", w.step, w.simTime)

	query := w.clothFilter.Query()
	for query.Next() {
		cloth, surface, pins, solvers, _ := query.Get()
		Logf("Cloth %q: %dx%d x%d layers, particles %d-%d, triangles %d, pins %d",
			cloth.Name, cloth.Cols, cloth.Rows, cloth.Layers,
			cloth.Range.Offset, cloth.Range.End()-1, len(surface.Triangles), len(pins.Indices))
		for _, e := range solvers.Entries {
			colors := 0
			if cs := e.Solver.ColorStart(); len(cs) > 0 {
				colors = len(cs) - 1
			}
			Logf("  %-16s %-20s constraints=%d colors=%d",
				e.Role, e.Solver.Kind(), e.Solver.NumConstraints(), colors)
		}
	}
	Logf("")
}
