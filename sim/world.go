// Package sim steps cloth objects: an ark ECS world of cloths sharing one
// particle container, driven by gravity, wind and animated pins, and
// resolved by their constraint containers once per substep.
package sim

import (
	"github.com/mlange-42/ark/ecs"
	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/drape/components"
	"github.com/pthm-cable/drape/config"
	"github.com/pthm-cable/drape/constraints"
	"github.com/pthm-cable/drape/parallel"
	"github.com/pthm-cable/drape/particles"
	"github.com/pthm-cable/drape/telemetry"
)

// Options holds run options for a world.
type Options struct {
	LogStats      bool                      // log stats and perf via slog
	Output        *telemetry.OutputManager  // CSV output, nil to disable
	StatsCallback func(telemetry.StepStats) // called on every stats sample
}

// World holds the complete simulation state.
type World struct {
	world *ecs.World
	cfg   *config.Config
	opts  Options

	particles *particles.Particles
	pool      *parallel.Pool
	solveOpts constraints.Options
	noise     opensimplex.Noise

	clothMap *ecs.Map5[
		components.Cloth,
		components.Surface,
		components.Pins,
		components.Solvers,
		components.Aero,
	]
	clothFilter *ecs.Filter5[
		components.Cloth,
		components.Surface,
		components.Pins,
		components.Solvers,
		components.Aero,
	]

	perf      *telemetry.PerfCollector
	bookmarks *telemetry.BookmarkDetector

	step    int
	simTime float64
}

// NewWorld creates an empty world configured by cfg.
func NewWorld(cfg *config.Config, opts Options) *World {
	world := ecs.NewWorld()

	var pool *parallel.Pool
	if cfg.Derived.Workers > 1 {
		pool = parallel.NewPool(cfg.Derived.Workers, cfg.Solver.MinBatchSize)
	}
	solveOpts := cfg.ConstraintOptions()
	solveOpts.Pool = pool

	p := particles.New(0)
	p.Vectorized = cfg.Solver.Vectorized

	return &World{
		world:     world,
		cfg:       cfg,
		opts:      opts,
		particles: p,
		pool:      pool,
		solveOpts: solveOpts,
		noise:     opensimplex.New(cfg.Forces.Seed),
		clothMap: ecs.NewMap5[
			components.Cloth,
			components.Surface,
			components.Pins,
			components.Solvers,
			components.Aero,
		](world),
		clothFilter: ecs.NewFilter5[
			components.Cloth,
			components.Surface,
			components.Pins,
			components.Solvers,
			components.Aero,
		](world),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		bookmarks: telemetry.NewBookmarkDetector(cfg.Telemetry.BookmarkHistory, volumePassLimit(cfg)),
	}
}

// volumePassLimit returns the pass count at which the volume solve counts as
// saturated, or 0 when a single pass is all it ever runs.
func volumePassLimit(cfg *config.Config) int {
	if !cfg.Volume.Enabled || cfg.Cloth.Layers != 2 || cfg.Volume.MaxIterations < 2 {
		return 0
	}
	return cfg.Volume.MaxIterations
}

// Close stops the worker pool.
func (w *World) Close() {
	w.pool.Close()
}

// Particles returns the shared particle container.
func (w *World) Particles() *particles.Particles {
	return w.particles
}

// Config returns the active configuration.
func (w *World) Config() *config.Config {
	return w.cfg
}

// StepCount returns the number of completed frames.
func (w *World) StepCount() int {
	return w.step
}

// SimTime returns the simulated time in seconds.
func (w *World) SimTime() float64 {
	return w.simTime
}

// Perf returns the phase timing collector.
func (w *World) Perf() *telemetry.PerfCollector {
	return w.perf
}

// Cloth returns the cloth component of e, or nil.
func (w *World) Cloth(e ecs.Entity) *components.Cloth {
	if !w.world.Alive(e) {
		return nil
	}
	cloth, _, _, _, _ := w.clothMap.Get(e)
	return cloth
}

// Solvers returns the solvers component of e, or nil.
func (w *World) Solvers(e ecs.Entity) *components.Solvers {
	if !w.world.Alive(e) {
		return nil
	}
	_, _, _, solvers, _ := w.clothMap.Get(e)
	return solvers
}
