package particles

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestAddRanges(t *testing.T) {
	p := New(4)
	a := p.Add([]r3.Vec{{X: 0}, {X: 1}}, []float64{0, 2})
	b := p.Add([]r3.Vec{{X: 5}}, []float64{1})

	if a.Offset != 0 || a.Count != 2 || b.Offset != 2 || b.Count != 1 {
		t.Fatalf("ranges = %+v, %+v", a, b)
	}
	if !p.IsKinematic(0) {
		t.Error("zero mass particle should be kinematic")
	}
	if got := p.InvM[1]; got != 0.5 {
		t.Errorf("InvM[1] = %v, want 0.5", got)
	}
	if !b.Contains(2) || b.Contains(3) || b.End() != 3 {
		t.Errorf("range b bounds wrong: %+v", b)
	}
}

// TestPredictCommitPaths checks the BLAS path matches the scalar loop.
func TestPredictCommitPaths(t *testing.T) {
	build := func(vectorized bool) *Particles {
		p := New(3)
		p.Vectorized = vectorized
		p.Add([]r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 2, Z: 3}, {X: -1, Y: 0.5, Z: 2}}, []float64{0, 1, 3})
		p.V[1] = r3.Vec{X: 0.5, Y: -1, Z: 0}
		p.V[2] = r3.Vec{X: 0, Y: 0, Z: 1}
		return p
	}
	scalar, vec := build(false), build(true)
	r := Range{Offset: 0, Count: 3}
	gravity := r3.Vec{Y: -9.81}
	const dt = 1.0 / 60

	for step := 0; step < 10; step++ {
		for _, p := range []*Particles{scalar, vec} {
			p.Predict(r, dt, gravity)
			p.P[1] = r3.Add(p.P[1], r3.Vec{X: 0.001})
			p.Commit(r, dt)
			p.Damp(r, 0.99)
		}
	}

	for i := 0; i < 3; i++ {
		if d := r3.Norm(r3.Sub(scalar.X[i], vec.X[i])); d > 1e-12 {
			t.Errorf("X[%d] differs by %g", i, d)
		}
		if d := r3.Norm(r3.Sub(scalar.V[i], vec.V[i])); d > 1e-9 {
			t.Errorf("V[%d] differs by %g", i, d)
		}
	}
	if scalar.X[0] != (r3.Vec{}) {
		t.Errorf("kinematic particle moved to %v", scalar.X[0])
	}
}

func TestPredictFreeFall(t *testing.T) {
	p := New(1)
	r := p.Add([]r3.Vec{{}}, []float64{1})
	const dt = 0.1
	p.Predict(r, dt, r3.Vec{Y: -10})
	if math.Abs(p.P[0].Y-(-0.1)) > 1e-12 {
		t.Errorf("P.Y = %v, want -0.1", p.P[0].Y)
	}
	p.Commit(r, dt)
	if math.Abs(p.V[0].Y-(-1)) > 1e-12 {
		t.Errorf("V.Y = %v, want -1", p.V[0].Y)
	}
}

func BenchmarkCommitScalar(b *testing.B) {
	benchmarkCommit(b, false)
}

func BenchmarkCommitBLAS(b *testing.B) {
	benchmarkCommit(b, true)
}

func benchmarkCommit(b *testing.B, vectorized bool) {
	const n = 64 * 64
	pos := make([]r3.Vec, n)
	mass := make([]float64, n)
	for i := range pos {
		pos[i] = r3.Vec{X: float64(i % 64), Y: float64(i / 64)}
		mass[i] = 1
	}
	p := New(n)
	p.Vectorized = vectorized
	r := p.Add(pos, mass)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Predict(r, 1.0/60, r3.Vec{Y: -9.81})
		p.Commit(r, 1.0/60)
	}
}
