package components

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Pins are kinematic particles driven along animated targets.
type Pins struct {
	Indices   []int    // absolute particle indices
	Rest      []r3.Vec // target at time zero
	Amplitude r3.Vec   // sinusoidal offset
	Frequency float64  // Hz
}

// Target returns the target of pin k at time t.
func (p *Pins) Target(k int, t float64) r3.Vec {
	if p.Frequency == 0 {
		return p.Rest[k]
	}
	return r3.Add(p.Rest[k], r3.Scale(math.Sin(2*math.Pi*p.Frequency*t), p.Amplitude))
}
