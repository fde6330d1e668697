package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/drape/constraints"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}

	if cfg.Solver.Substeps != 4 {
		t.Errorf("expected 4 substeps, got %d", cfg.Solver.Substeps)
	}
	if want := cfg.Solver.DT / 4; math.Abs(cfg.Derived.SubstepDT-want) > 1e-15 {
		t.Errorf("expected substep dt %g, got %g", want, cfg.Derived.SubstepDT)
	}
	if cfg.Derived.Gravity.Y != -9.81 {
		t.Errorf("expected gravity -9.81, got %v", cfg.Derived.Gravity)
	}
	if cfg.Derived.Workers < 1 {
		t.Errorf("expected at least one worker, got %d", cfg.Derived.Workers)
	}
	if cfg.Springs.Stiffness.Low != 10000 {
		t.Errorf("expected spring stiffness 10000, got %v", cfg.Springs.Stiffness)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
solver:
  substeps: 2
bending:
  model: pbd
  rest_angle:
    mode: flatness
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if cfg.Solver.Substeps != 2 {
		t.Errorf("expected 2 substeps, got %d", cfg.Solver.Substeps)
	}
	if cfg.Solver.Iterations != 8 {
		t.Errorf("expected default iterations 8, got %d", cfg.Solver.Iterations)
	}
	if cfg.Bending.Model != "pbd" {
		t.Errorf("expected pbd bending, got %q", cfg.Bending.Model)
	}
	if cfg.Derived.RestAngleMode != constraints.RestAngleFlatness {
		t.Errorf("expected flatness rest angle mode, got %v", cfg.Derived.RestAngleMode)
	}
	if got := cfg.BendingProperties().RestAngle.Mode; got != constraints.RestAngleFlatness {
		t.Errorf("bending properties carry mode %v", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"zero substeps", "solver:\n  substeps: 0\n", "substeps"},
		{"unknown spring model", "springs:\n  model: rubber\n", "springs.model"},
		{"three layers", "cloth:\n  layers: 3\n", "layers"},
		{"bad rest angle mode", "bending:\n  rest_angle:\n    mode: sideways\n", "rest_angle"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.data), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Cloth.Cols = 9

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("writing: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	if loaded.Cloth.Cols != 9 {
		t.Errorf("expected 9 columns after reload, got %d", loaded.Cloth.Cols)
	}
}

func TestConstraintOptions(t *testing.T) {
	cfg := Default()
	cfg.Solver.ParallelConstraintCount = 0
	opts := cfg.ConstraintOptions()
	if opts.ParallelConstraintCount != constraints.DefaultOptions.ParallelConstraintCount {
		t.Errorf("expected fallback count %d, got %d", constraints.DefaultOptions.ParallelConstraintCount, opts.ParallelConstraintCount)
	}
	if opts.SoftMaxStiffness != 1e7 {
		t.Errorf("expected soft max 1e7, got %g", opts.SoftMaxStiffness)
	}
}
