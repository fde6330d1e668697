package sim

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/drape/components"
	"github.com/pthm-cable/drape/config"
	"github.com/pthm-cable/drape/constraints"
	"github.com/pthm-cable/drape/telemetry"
	"github.com/pthm-cable/drape/weightmap"
)

// testConfig returns a small two-layer cloth that steps quickly and
// deterministically.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Cloth.Cols, cfg.Cloth.Rows = 6, 6
	cfg.Telemetry.StatsEvery = 0
	cfg.Derived.Workers = 1
	return cfg
}

func TestAddClothBuildsSolvers(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg, Options{})
	defer w.Close()

	e := w.AddCloth(SpecFromConfig(cfg))

	cloth := w.Cloth(e)
	if cloth == nil {
		t.Fatal("cloth component missing")
	}
	if cloth.Range.Count != 2*36 {
		t.Errorf("expected 72 particles, got %d", cloth.Range.Count)
	}

	roles := map[components.Role]bool{}
	for _, entry := range w.Solvers(e).Entries {
		roles[entry.Role] = true
		if entry.Solver.NumConstraints() == 0 {
			t.Errorf("%s container is empty", entry.Role)
		}
	}
	for _, want := range []components.Role{components.RoleStretch, components.RoleBending, components.RoleLayerTies, components.RoleVolume} {
		if !roles[want] {
			t.Errorf("expected a %s container", want)
		}
	}

	// Top row of both layers is pinned.
	p := w.Particles()
	pinned := 0
	for i := cloth.Range.Offset; i < cloth.Range.End(); i++ {
		if p.IsKinematic(i) {
			pinned++
		}
	}
	if pinned != 12 {
		t.Errorf("expected 12 pinned particles, got %d", pinned)
	}
}

func TestSolverModels(t *testing.T) {
	tests := []struct {
		name    string
		springs string
		bending string
		want    map[components.Role]constraints.Kind
	}{
		{"pbd", "pbd", "pbd", map[components.Role]constraints.Kind{
			components.RoleStretch: constraints.KindPBDSpring,
			components.RoleBending: constraints.KindPBDBending,
		}},
		{"axial", "axial", "xpbd", map[components.Role]constraints.Kind{
			components.RoleStretch: constraints.KindPBDSpring,
			components.RoleShear:   constraints.KindPBDAxialSpring,
			components.RoleBending: constraints.KindXPBDBending,
		}},
		{"xpbd aniso", "xpbd", "aniso", map[components.Role]constraints.Kind{
			components.RoleStretch: constraints.KindXPBDSpring,
			components.RoleBending: constraints.KindXPBDAnisoBending,
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Springs.Model = tc.springs
			cfg.Bending.Model = tc.bending
			if tc.springs != "xpbd" {
				cfg.Springs.Stiffness = weightmap.Constant(0.9)
			}
			if tc.bending == "pbd" {
				cfg.Bending.Stiffness = weightmap.Constant(0.2)
			}

			w := NewWorld(cfg, Options{})
			defer w.Close()
			e := w.AddCloth(SpecFromConfig(cfg))

			got := map[components.Role]constraints.Kind{}
			for _, entry := range w.Solvers(e).Entries {
				got[entry.Role] = entry.Solver.Kind()
			}
			for role, kind := range tc.want {
				if got[role] != kind {
					t.Errorf("%s: expected %s, got %s", role, kind, got[role])
				}
			}

			for i := 0; i < 5; i++ {
				w.Step()
			}
			if s := w.Stats(); math.IsNaN(s.StretchMax) || math.IsNaN(s.KineticEnergy) {
				t.Errorf("simulation diverged: %+v", s)
			}
		})
	}
}

func TestPinsFollowTargets(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg, Options{})
	defer w.Close()
	e := w.AddCloth(SpecFromConfig(cfg))

	for i := 0; i < 7; i++ {
		w.Step()
	}

	_, _, pins, _, _ := w.clothMap.Get(e)
	p := w.Particles()
	for k, idx := range pins.Indices {
		want := pins.Target(k, w.SimTime())
		if d := r3.Norm(r3.Sub(p.X[idx], want)); d > 1e-9 {
			t.Errorf("pin %d is %g from its target", idx, d)
		}
	}
}

func TestClothHangsUnderGravity(t *testing.T) {
	cfg := testConfig()
	cfg.Derived.Wind = r3.Vec{}
	cfg.Derived.PinAmplitude = r3.Vec{}
	w := NewWorld(cfg, Options{})
	defer w.Close()
	w.AddCloth(SpecFromConfig(cfg))

	for i := 0; i < 60; i++ {
		w.Step()
	}

	s := w.Stats()
	// Top row at 1.0, five rows of 0.04 below it.
	bottom := cfg.Cloth.Height - 5*cfg.Cloth.Spacing
	if s.MinY > bottom+0.01 || s.MinY < bottom-0.1 {
		t.Errorf("expected the cloth to hang near y = %.2f, lowest particle at %.4f", bottom, s.MinY)
	}
	if s.StretchMax > 1.2 || s.StretchP50 < 0.9 {
		t.Errorf("unexpected stretch p50 %.3f max %.3f", s.StretchP50, s.StretchMax)
	}
	if math.IsNaN(s.KineticEnergy) || s.KineticEnergy < 0 {
		t.Errorf("invalid kinetic energy %v", s.KineticEnergy)
	}
}

func TestParallelMatchesInline(t *testing.T) {
	run := func(workers int) []r3.Vec {
		cfg := testConfig()
		cfg.Cloth.Cols, cfg.Cloth.Rows = 10, 10
		cfg.Derived.Workers = workers
		cfg.Solver.MinBatchSize = 2
		w := NewWorld(cfg, Options{})
		defer w.Close()
		w.AddCloth(SpecFromConfig(cfg))
		for i := 0; i < 10; i++ {
			w.Step()
		}
		return append([]r3.Vec(nil), w.Particles().X...)
	}

	inline := run(1)
	parallel := run(4)
	for i := range inline {
		if inline[i] != parallel[i] {
			t.Fatalf("particle %d differs: inline %v, parallel %v", i, inline[i], parallel[i])
		}
	}
}

func TestApplyConfig(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg, Options{})
	defer w.Close()
	e := w.AddCloth(SpecFromConfig(cfg))

	next := testConfig()
	next.Springs.Stiffness = weightmap.Constant(500)
	next.Forces.Drag = 2
	w.ApplyConfig(next)

	var springs *constraints.XPBDSprings
	for _, entry := range w.Solvers(e).Entries {
		if s, ok := entry.Solver.(*constraints.XPBDSprings); ok {
			springs = s
		}
	}
	if springs == nil {
		t.Fatal("no xpbd springs")
	}
	if ext, _ := springs.Stiffness(0); ext != 500 {
		t.Errorf("expected extension stiffness 500, got %g", ext)
	}

	_, _, _, _, aero := w.clothMap.Get(e)
	if aero.Drag != 2 {
		t.Errorf("expected drag 2, got %g", aero.Drag)
	}
}

func TestRemoveCloth(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg, Options{})
	defer w.Close()

	first := w.AddCloth(SpecFromConfig(cfg))
	spec := SpecFromConfig(cfg)
	spec.Name = "second"
	spec.Origin.X += 1
	second := w.AddCloth(spec)

	r := w.Cloth(first).Range
	w.RemoveCloth(first)
	if w.Cloth(first) != nil {
		t.Fatal("removed cloth still has components")
	}

	frozen := append([]r3.Vec(nil), w.Particles().X[r.Offset:r.End()]...)
	for i := 0; i < 3; i++ {
		w.Step()
	}
	for i, x := range w.Particles().X[r.Offset:r.End()] {
		if x != frozen[i] {
			t.Fatalf("particle %d of the removed cloth moved", r.Offset+i)
		}
	}
	if w.Cloth(second) == nil {
		t.Error("second cloth lost")
	}
}

func TestStatsCallback(t *testing.T) {
	cfg := testConfig()
	cfg.Telemetry.StatsEvery = 2

	var samples []telemetry.StepStats
	w := NewWorld(cfg, Options{StatsCallback: func(s telemetry.StepStats) {
		samples = append(samples, s)
	}})
	defer w.Close()
	w.AddCloth(SpecFromConfig(cfg))

	for i := 0; i < 5; i++ {
		w.Step()
	}

	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Step != 2 || samples[1].Step != 4 {
		t.Errorf("unexpected sample steps %d, %d", samples[0].Step, samples[1].Step)
	}
	if samples[1].Particles != 72 || samples[1].Constraints == 0 || samples[1].Colors == 0 {
		t.Errorf("unexpected counts %+v", samples[1])
	}
	if samples[1].VolumePasses < 1 {
		t.Errorf("expected at least one volume pass, got %d", samples[1].VolumePasses)
	}
}

func TestAeroForce(t *testing.T) {
	aero := &components.Aero{Drag: 0.5, Lift: 0.3}
	n := r3.Vec{Z: 1}

	tests := []struct {
		name string
		rel  r3.Vec
		want r3.Vec
	}{
		{"head on", r3.Vec{Z: 2}, r3.Vec{Z: 0.5 * 2 * 4}},
		{"from behind", r3.Vec{Z: -2}, r3.Vec{Z: -0.5 * 2 * 4}},
		{"edge on", r3.Vec{X: 3}, r3.Vec{}},
		{"still air", r3.Vec{}, r3.Vec{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := aeroForce(aero, n, 2, tc.rel)
			if r3.Norm(r3.Sub(got, tc.want)) > 1e-12 {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}

	// Oblique flow lifts perpendicular to itself.
	rel := r3.Vec{X: 1, Z: 1}
	lift := r3.Sub(aeroForce(aero, n, 1, rel), aeroForce(&components.Aero{Drag: 0.5}, n, 1, rel))
	if math.Abs(r3.Dot(lift, rel)) > 1e-12 {
		t.Errorf("lift %v not perpendicular to flow %v", lift, rel)
	}
	if r3.Norm(lift) == 0 {
		t.Error("expected non-zero lift for oblique flow")
	}
}

func TestWindAt(t *testing.T) {
	cfg := testConfig()
	cfg.Forces.Turbulence = 0
	w := NewWorld(cfg, Options{})
	defer w.Close()

	x := r3.Vec{X: 0.3, Y: 0.7}
	if got := w.windAt(x, 1.5); got != cfg.Derived.Wind {
		t.Errorf("expected steady wind %v, got %v", cfg.Derived.Wind, got)
	}

	w.cfg.Forces.Turbulence = 0.5
	got := w.windAt(x, 1.5)
	// Gusts only scale the wind.
	if r3.Norm(r3.Cross(got, cfg.Derived.Wind)) > 1e-12 {
		t.Errorf("gust %v changed the wind direction", got)
	}
	scale := r3.Norm(got) / r3.Norm(cfg.Derived.Wind)
	if scale < 0.5-1e-9 || scale > 1.5+1e-9 {
		t.Errorf("gust scale %g outside [0.5, 1.5]", scale)
	}
}

func TestLogState(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(&buf)
	defer SetLogWriter(nil)

	cfg := testConfig()
	w := NewWorld(cfg, Options{})
	defer w.Close()
	w.AddCloth(SpecFromConfig(cfg))
	w.Step()
	w.LogState()
	w.LogPerf()

	out := buf.String()
	for _, want := range []string{`Cloth "cloth"`, "xpbd_spring", "layer_ties", "solve"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
