package sim

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/drape/components"
	"github.com/pthm-cable/drape/particles"
	"github.com/pthm-cable/drape/telemetry"
)

// Diagnostics exposed by some constraint families.
type (
	stretcher interface {
		NumConstraints() int
		StretchRatio(p *particles.Particles, i int) float64
	}
	buckler interface {
		NumConstraints() int
		NumBuckled() int
	}
	passCounter interface {
		LastPasses() int
	}
)

// Stats samples solver diagnostics over every cloth.
func (w *World) Stats() telemetry.StepStats {
	p := w.particles
	s := telemetry.StepStats{
		Step:       w.step,
		SimTimeSec: w.simTime,
		Particles:  p.Len(),
		MinY:       math.Inf(1),
	}

	var ratios, speeds []float64
	elements := 0

	query := w.clothFilter.Query()
	for query.Next() {
		cloth, _, _, solvers, _ := query.Get()
		s.Constraints += solvers.NumConstraints()
		s.Colors += solvers.NumColors()

		for _, e := range solvers.Entries {
			if st, ok := e.Solver.(stretcher); ok && e.Role == components.RoleStretch {
				for i := 0; i < st.NumConstraints(); i++ {
					ratios = append(ratios, st.StretchRatio(p, i))
				}
			}
			if b, ok := e.Solver.(buckler); ok {
				s.Buckled += b.NumBuckled()
				elements += b.NumConstraints()
			}
			if v, ok := e.Solver.(passCounter); ok {
				s.VolumePasses = max(s.VolumePasses, v.LastPasses())
			}
		}

		r := cloth.Range
		for i := r.Offset; i < r.End(); i++ {
			speed := r3.Norm(p.V[i])
			speeds = append(speeds, speed)
			if m := cloth.Masses[i-r.Offset]; p.InvM[i] != 0 {
				s.KineticEnergy += 0.5 * m * speed * speed
			}
			s.MinY = math.Min(s.MinY, p.X[i].Y)
		}
	}

	s.SetStretch(telemetry.Summarize(ratios))
	if len(speeds) > 0 {
		s.SpeedMean = stat.Mean(speeds, nil)
		s.SpeedMax = floats.Max(speeds)
	}
	if elements > 0 {
		s.BuckledFrac = float64(s.Buckled) / float64(elements)
	}
	if math.IsInf(s.MinY, 1) {
		s.MinY = 0
	}
	return s
}

// flushTelemetry samples stats every cfg.Telemetry.StatsEvery frames, hands
// them to the callback, the log and the CSV output, then checks for
// bookmarks.
func (w *World) flushTelemetry() {
	every := w.cfg.Telemetry.StatsEvery
	if every <= 0 || w.step%every != 0 {
		return
	}

	stats := w.Stats()
	perfStats := w.perf.Stats()

	if w.opts.StatsCallback != nil {
		w.opts.StatsCallback(stats)
	}

	if w.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if w.opts.Output != nil {
		if err := w.opts.Output.WriteStep(stats); err != nil {
			slog.Error("failed to write step stats", "error", err)
		}
		if err := w.opts.Output.WritePerf(perfStats, w.step); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	for _, bm := range w.bookmarks.Check(stats) {
		if w.opts.LogStats {
			bm.LogBookmark()
		}
		if w.opts.Output != nil {
			if err := w.opts.Output.WriteBookmark(bm); err != nil {
				slog.Error("failed to write bookmark", "error", err)
			}
			if w.cfg.Telemetry.SnapshotOnBookmark {
				w.saveSnapshot(&bm)
			}
		}
	}
}
