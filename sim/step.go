package sim

import (
	"log/slog"
	"math"

	"github.com/pthm-cable/drape/components"
	"github.com/pthm-cable/drape/config"
	"github.com/pthm-cable/drape/constraints"
	"github.com/pthm-cable/drape/telemetry"
)

// Step advances the simulation by one frame of cfg.Solver.DT seconds, split
// into substeps. Every substep moves the pins, accumulates wind, predicts
// positions, runs the constraint iterations and commits velocities.
func (w *World) Step() {
	cfg := w.cfg
	dt := cfg.Derived.SubstepDT

	w.perf.StartStep()
	for sub := 0; sub < cfg.Solver.Substeps; sub++ {
		w.simTime += dt

		w.perf.StartPhase(telemetry.PhasePins)
		w.updatePins(dt)

		w.perf.StartPhase(telemetry.PhaseForces)
		w.applyForces(dt)

		w.perf.StartPhase(telemetry.PhasePredict)
		w.predict(dt)

		w.perf.StartPhase(telemetry.PhaseSolve)
		w.solve(dt)

		w.perf.StartPhase(telemetry.PhaseCommit)
		w.commit(dt)
	}
	w.step++

	w.perf.StartPhase(telemetry.PhaseStats)
	w.flushTelemetry()
	w.perf.EndStep()
}

// updatePins stores the pin velocities that carry them to their targets at
// the end of the substep.
func (w *World) updatePins(dt float64) {
	p := w.particles
	query := w.clothFilter.Query()
	for query.Next() {
		_, _, pins, _, _ := query.Get()
		for k, idx := range pins.Indices {
			target := pins.Target(k, w.simTime)
			p.V[idx] = scaleSub(target, p.X[idx], 1/dt)
		}
	}
}

// predict integrates gravity into velocities and predicts positions. Pins
// have zero inverse mass so they only follow their velocities.
func (w *World) predict(dt float64) {
	query := w.clothFilter.Query()
	for query.Next() {
		cloth, _, _, _, _ := query.Get()
		w.particles.Predict(cloth.Range, dt, w.cfg.Derived.Gravity)
	}
}

// solve resets the XPBD multipliers and projects every container in order,
// once per iteration.
func (w *World) solve(dt float64) {
	iterations := w.cfg.Solver.Iterations
	query := w.clothFilter.Query()
	for query.Next() {
		_, _, _, solvers, _ := query.Get()
		for _, e := range solvers.Entries {
			e.Solver.Init()
		}
		for it := 0; it < iterations; it++ {
			for _, e := range solvers.Entries {
				e.Solver.Apply(w.particles, dt)
			}
		}
	}
}

// commit derives velocities from the solved positions and applies linear
// damping.
func (w *World) commit(dt float64) {
	damping := math.Max(0, 1-w.cfg.Forces.Damping*dt)
	query := w.clothFilter.Query()
	for query.Next() {
		cloth, _, _, _, _ := query.Get()
		w.particles.Commit(cloth.Range, dt)
		w.particles.Damp(cloth.Range, damping)
	}
}

// ApplyConfig hot-reloads the tunables of cfg into every container. The
// cloth topology, layer count and models are fixed at construction.
func (w *World) ApplyConfig(cfg *config.Config) {
	w.cfg = cfg
	dt := cfg.Derived.SubstepDT
	query := w.clothFilter.Query()
	for query.Next() {
		_, _, pins, solvers, aero := query.Get()
		pins.Amplitude = cfg.Derived.PinAmplitude
		pins.Frequency = cfg.Pins.Frequency
		*aero = components.AeroFromConfig(&cfg.Forces)
		for _, e := range solvers.Entries {
			e.Solver.SetProperties(propertiesFor(cfg, e.Role))
			e.Solver.ApplyProperties(dt, cfg.Solver.Iterations)
		}
	}
	w.particles.Vectorized = cfg.Solver.Vectorized
	slog.Debug("config applied", "substep_dt", dt, "iterations", cfg.Solver.Iterations)
}

func propertiesFor(cfg *config.Config, role components.Role) constraints.Properties {
	switch role {
	case components.RoleBending:
		return cfg.BendingProperties()
	case components.RoleBendingSprings:
		return cfg.BendingSpringProperties()
	case components.RoleLayerTies:
		return cfg.EmbeddedProperties()
	case components.RoleVolume:
		return cfg.VolumeProperties()
	default:
		return cfg.SpringProperties()
	}
}
