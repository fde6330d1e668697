// Package particles holds the shared particle buffers mutated by the
// constraint solvers.
package particles

import (
	"unsafe"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/spatial/r3"
)

// Range addresses a contiguous block of particles owned by one simulated object.
type Range struct {
	Offset int
	Count  int
}

// End returns one past the last particle index of the range.
func (r Range) End() int {
	return r.Offset + r.Count
}

// Contains reports whether index i belongs to the range.
func (r Range) Contains(i int) bool {
	return i >= r.Offset && i < r.End()
}

// Particles is a structure-of-arrays particle container.
//
// X is the position at the start of the step, P the predicted position
// iterated on by the solvers, V the velocity. InvM == 0 marks a kinematic
// particle that constraint projection never moves.
type Particles struct {
	X    []r3.Vec
	P    []r3.Vec
	V    []r3.Vec
	InvM []float64

	// Vectorized routes bulk updates through BLAS.
	Vectorized bool
}

// New creates an empty container with room for n particles.
func New(n int) *Particles {
	return &Particles{
		X:    make([]r3.Vec, 0, n),
		P:    make([]r3.Vec, 0, n),
		V:    make([]r3.Vec, 0, n),
		InvM: make([]float64, 0, n),
	}
}

// Len returns the number of particles.
func (p *Particles) Len() int {
	return len(p.X)
}

// Add appends particles at the given positions with the given masses and
// returns their range. A mass <= 0 makes the particle kinematic.
func (p *Particles) Add(positions []r3.Vec, masses []float64) Range {
	r := Range{Offset: len(p.X), Count: len(positions)}
	for i, x := range positions {
		invM := 0.0
		if i < len(masses) && masses[i] > 0 {
			invM = 1 / masses[i]
		}
		p.X = append(p.X, x)
		p.P = append(p.P, x)
		p.V = append(p.V, r3.Vec{})
		p.InvM = append(p.InvM, invM)
	}
	return r
}

// IsKinematic reports whether particle i has zero inverse mass.
func (p *Particles) IsKinematic(i int) bool {
	return p.InvM[i] == 0
}

// SetKinematic pins or releases particle i. Releasing restores the given mass.
func (p *Particles) SetKinematic(i int, kinematic bool, mass float64) {
	if kinematic || mass <= 0 {
		p.InvM[i] = 0
		return
	}
	p.InvM[i] = 1 / mass
}

// Predict advances velocities by the acceleration of the dynamic particles in
// r and writes predicted positions P = X + dt*V for the whole range.
func (p *Particles) Predict(r Range, dt float64, accel r3.Vec) {
	for i := r.Offset; i < r.End(); i++ {
		if p.InvM[i] != 0 {
			p.V[i] = r3.Add(p.V[i], r3.Scale(dt, accel))
		}
	}
	if p.Vectorized {
		x, pp, v := flat(p.X[r.Offset:r.End()]), flat(p.P[r.Offset:r.End()]), flat(p.V[r.Offset:r.End()])
		blas64.Copy(x, pp)
		blas64.Axpy(dt, v, pp)
		return
	}
	for i := r.Offset; i < r.End(); i++ {
		p.P[i] = r3.Add(p.X[i], r3.Scale(dt, p.V[i]))
	}
}

// Commit derives velocities from the solved positions, V = (P - X) / dt, and
// makes P the new start-of-step position.
func (p *Particles) Commit(r Range, dt float64) {
	if dt <= 0 {
		return
	}
	invDt := 1 / dt
	if p.Vectorized {
		x, pp, v := flat(p.X[r.Offset:r.End()]), flat(p.P[r.Offset:r.End()]), flat(p.V[r.Offset:r.End()])
		blas64.Copy(pp, v)
		blas64.Axpy(-1, x, v)
		blas64.Scal(invDt, v)
		blas64.Copy(pp, x)
		return
	}
	for i := r.Offset; i < r.End(); i++ {
		p.V[i] = r3.Scale(invDt, r3.Sub(p.P[i], p.X[i]))
		p.X[i] = p.P[i]
	}
}

// Damp scales the velocities of the range by factor.
func (p *Particles) Damp(r Range, factor float64) {
	if p.Vectorized {
		blas64.Scal(factor, flat(p.V[r.Offset:r.End()]))
		return
	}
	for i := r.Offset; i < r.End(); i++ {
		p.V[i] = r3.Scale(factor, p.V[i])
	}
}

// flat views a slice of r3.Vec as a unit-stride BLAS vector. r3.Vec is three
// consecutive float64 fields, so the backing array is already interleaved xyz.
func flat(v []r3.Vec) blas64.Vector {
	if len(v) == 0 {
		return blas64.Vector{Inc: 1}
	}
	data := unsafe.Slice((*float64)(unsafe.Pointer(&v[0])), 3*len(v))
	return blas64.Vector{N: len(data), Inc: 1, Data: data}
}
