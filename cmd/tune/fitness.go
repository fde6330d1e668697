package main

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/drape/config"
	"github.com/pthm-cable/drape/sim"
	"github.com/pthm-cable/drape/telemetry"
)

// Overstretch above this ratio is penalized.
const (
	maxStretch       = 1.1
	stretchPenalty   = 10.0
	settleEnergyCost = 0.1
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	frames     int
	seeds      []int64
	baseConfig *config.Config
	targetDrop float64

	mu       sync.Mutex
	lastDrop float64 // mean drop from the most recent Evaluate call
	best     float64
	bestRun  telemetry.StepStats
}

// NewFitnessEvaluator creates a new evaluator. targetDrop is the desired
// distance from the pinned row to the lowest particle after frames steps.
func NewFitnessEvaluator(params *ParamVector, frames int, seeds []int64, baseCfg *config.Config, targetDrop float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		frames:     frames,
		seeds:      seeds,
		baseConfig: baseCfg,
		targetDrop: targetDrop,
		best:       math.Inf(1),
	}
}

// LastDrop returns the mean drop measured by the most recent evaluation.
func (fe *FitnessEvaluator) LastDrop() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastDrop
}

// BestStats returns the final stats of the best seed of the best evaluation.
func (fe *FitnessEvaluator) BestStats() telemetry.StepStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestRun
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness float64
	drop    float64
	stats   telemetry.StepStats
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			stats := fe.runSimulation(x, s)
			drop := fe.baseConfig.Cloth.Height - stats.MinY
			results[idx] = seedResult{
				fitness: fe.computeFitness(drop, stats),
				drop:    drop,
				stats:   stats,
			}
		}(i, seed)
	}
	wg.Wait()

	fitness := make([]float64, len(results))
	drops := make([]float64, len(results))
	bestSeed := 0
	for i, r := range results {
		fitness[i] = r.fitness
		drops[i] = r.drop
		if r.fitness < results[bestSeed].fitness {
			bestSeed = i
		}
	}
	avg := stat.Mean(fitness, nil)

	fe.mu.Lock()
	fe.lastDrop = stat.Mean(drops, nil)
	if avg < fe.best {
		fe.best = avg
		fe.bestRun = results[bestSeed].stats
	}
	fe.mu.Unlock()

	return avg
}

// runSimulation steps one cloth headless for the configured number of
// frames and returns its final stats. Each run is single-threaded so that
// seeds can run side by side.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) telemetry.StepStats {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	cfg.Forces.Seed = seed
	cfg.Derived.Workers = 1
	cfg.Telemetry.StatsEvery = 0

	w := sim.NewWorld(cfg, sim.Options{})
	defer w.Close()
	w.AddCloth(sim.SpecFromConfig(cfg))
	for w.StepCount() < fe.frames {
		w.Step()
	}
	return w.Stats()
}

// copyConfig returns a copy of the base config. Config holds no shared
// slices or maps, so a value copy is deep.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}

// computeFitness scores one run: the relative drop error, plus penalties for
// overstretched springs and for cloth still moving at the end of the run.
func (fe *FitnessEvaluator) computeFitness(drop float64, stats telemetry.StepStats) float64 {
	rel := (drop - fe.targetDrop) / fe.targetDrop
	fitness := rel * rel
	if over := stats.StretchMax - maxStretch; over > 0 {
		fitness += stretchPenalty * over * over
	}
	if stats.Particles > 0 {
		fitness += settleEnergyCost * stats.KineticEnergy / float64(stats.Particles)
	}
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return 1e9
	}
	return fitness
}
