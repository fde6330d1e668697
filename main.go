package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/drape/config"
	"github.com/pthm-cable/drape/sim"
	"github.com/pthm-cable/drape/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	frames := flag.Int("frames", 600, "Number of frames to simulate")
	perfEvery := flag.Int("perf-every", 0, "Print a perf breakdown every N frames (0 = only at the end)")
	cloths := flag.Int("cloths", 1, "Number of cloth panels, side by side")
	restore := flag.String("restore", "", "Snapshot JSON to resume from (same config and cloth count)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	output, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output", "error", err)
		os.Exit(1)
	}
	defer output.Close()
	if err := output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	w := sim.NewWorld(cfg, sim.Options{
		LogStats: *logStats,
		Output:   output,
	})
	defer w.Close()

	width := float64(cfg.Cloth.Cols-1) * cfg.Cloth.Spacing
	for i := 0; i < *cloths; i++ {
		spec := sim.SpecFromConfig(cfg)
		spec.Origin.X += float64(i) * width * 1.5
		if *cloths > 1 {
			spec.Name = fmt.Sprintf("%s-%d", spec.Name, i+1)
		}
		w.AddCloth(spec)
	}

	if *restore != "" {
		snap, err := telemetry.LoadSnapshot(*restore)
		if err == nil {
			err = w.Restore(snap)
		}
		if err != nil {
			slog.Error("failed to restore snapshot", "path", *restore, "error", err)
			os.Exit(1)
		}
		slog.Info("restored snapshot", "path", *restore, "step", snap.Step)
	}

	slog.Info("starting simulation",
		"frames", *frames,
		"dt", cfg.Solver.DT,
		"substeps", cfg.Solver.Substeps,
		"iterations", cfg.Solver.Iterations,
		"workers", cfg.Derived.Workers,
		"particles", w.Particles().Len(),
	)
	w.LogState()

	start := time.Now()
	for w.StepCount() < *frames {
		w.Step()
		if *perfEvery > 0 && w.StepCount()%*perfEvery == 0 {
			w.LogPerf()
		}
	}

	w.LogPerf()
	slog.Info("simulation finished",
		"frames", w.StepCount(),
		"sim_time", w.SimTime(),
		"wall_time_ms", time.Since(start).Milliseconds(),
		"stats", w.Stats(),
	)
}
