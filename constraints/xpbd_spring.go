package constraints

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/drape/coloring"
	"github.com/pthm-cable/drape/particles"
	"github.com/pthm-cable/drape/weightmap"
)

// XPBDSprings are compliant two-point distance constraints. Each constraint
// accumulates a Lagrange multiplier over the iterations of a step, which
// makes the stiffness independent of the iteration count and time step.
type XPBDSprings struct {
	colored
	constraints [][2]int
	restLengths []float64

	lambdas        []float64
	lambdasDamping []float64

	extension    *weightmap.WeightedValue
	compression  *weightmap.WeightedValue
	dampingRatio *weightmap.WeightedValue
	scale        *weightmap.WeightedValue

	softMaxStiffness float64
}

// NewXPBDSprings creates springs over edges, with rest lengths measured on
// the current positions X.
func NewXPBDSprings(p *particles.Particles, r particles.Range, edges [][2]int, props Properties, maps WeightMaps, opts Options) *XPBDSprings {
	c, mapping, size := layout(KindXPBDSpring, p, r, edges, opts)

	rest := make([]float64, len(edges))
	for i, e := range edges {
		rest[i] = r3.Norm(r3.Sub(p.X[e[0]], p.X[e[1]]))
	}

	s := &XPBDSprings{
		colored:          c,
		constraints:      coloring.Shrink(edges, mapping, size),
		restLengths:      coloring.Shrink(rest, mapping, size),
		lambdas:          make([]float64, size),
		lambdasDamping:   make([]float64, size),
		extension:        weighted(props.Stiffness, 0, maxXPBDStiffness, maps.Stiffness, r, edges, mapping, size),
		compression:      weighted(props.CompressionStiffness, 0, maxXPBDStiffness, maps.CompressionStiffness, r, edges, mapping, size),
		dampingRatio:     weighted(props.DampingRatio, 0, maxDampingRatio, maps.DampingRatio, r, edges, mapping, size),
		scale:            weighted(scaleRange(props.Scale), 0, maxScale, maps.Scale, r, edges, mapping, size),
		softMaxStiffness: opts.SoftMaxStiffness,
	}
	return s
}

func (s *XPBDSprings) NumConstraints() int {
	return len(s.constraints)
}

func (s *XPBDSprings) Constraints() [][2]int {
	return s.constraints
}

// RestLengths returns the reordered, unscaled rest lengths.
func (s *XPBDSprings) RestLengths() []float64 {
	return s.restLengths
}

// RestLength returns the scaled rest length of constraint i.
func (s *XPBDSprings) RestLength(i int) float64 {
	return s.restLengths[i] * s.scale.GetValue(i)
}

// Lambdas returns the stretch multipliers accumulated during the current step.
func (s *XPBDSprings) Lambdas() []float64 {
	return s.lambdas
}

// Stiffness returns the resolved extension and compression stiffness of
// constraint i.
func (s *XPBDSprings) Stiffness(i int) (extension, compression float64) {
	return s.extension.GetValue(i), s.compression.GetValue(i)
}

func (s *XPBDSprings) StretchRatio(p *particles.Particles, i int) float64 {
	return stretchRatio(p, s.constraints[i], s.RestLength(i))
}

// Init zeroes the multipliers at the start of a step.
func (s *XPBDSprings) Init() {
	clear(s.lambdas)
	clear(s.lambdasDamping)
}

func (s *XPBDSprings) SetProperties(props Properties) {
	s.extension.SetRange(props.Stiffness)
	s.compression.SetRange(props.CompressionStiffness)
	s.dampingRatio.SetRange(props.DampingRatio)
	s.scale.SetRange(scaleRange(props.Scale))
}

// ApplyProperties has nothing to cache: compliance is derived from dt inside
// Apply, and XPBD stiffness does not depend on the iteration count.
func (s *XPBDSprings) ApplyProperties(dt float64, numIterations int) {}

func (s *XPBDSprings) Apply(p *particles.Particles, dt float64) {
	if dt <= 0 {
		return
	}
	s.forEachColor(func(start, end int) {
		for i := start; i < end; i++ {
			ext, comp := s.extension.GetValue(i), s.compression.GetValue(i)
			rest := s.RestLength(i)
			if damping := s.dampingRatio.GetValue(i); damping > 0 {
				s.applyDamping(p, i, dt, rest, ext, comp, damping)
			}
			s.apply(p, i, dt, rest, ext, comp)
		}
	})
}

func (s *XPBDSprings) apply(p *particles.Particles, i int, dt, rest, ext, comp float64) {
	i1, i2 := s.constraints[i][0], s.constraints[i][1]
	w1, w2 := p.InvM[i1], p.InvM[i2]
	combined := w1 + w2
	if combined <= epsilon {
		return
	}
	diff := r3.Sub(p.P[i1], p.P[i2])
	dist := r3.Norm(diff)
	if dist <= epsilon {
		return
	}
	dir := r3.Scale(1/dist, diff)

	c := dist - rest
	k := ext
	if c < 0 {
		k = comp
	}
	dLambda, ok := xpbdDeltaLambda(c, combined, k, dt, s.softMaxStiffness, &s.lambdas[i])
	if !ok {
		return
	}

	if w1 != 0 {
		p.P[i1] = r3.Add(p.P[i1], r3.Scale(w1*dLambda, dir))
	}
	if w2 != 0 {
		p.P[i2] = r3.Sub(p.P[i2], r3.Scale(w2*dLambda, dir))
	}
}

// applyDamping bleeds the relative velocity along the spring axis, with the
// critical damping of the stiffness that governs the current length.
func (s *XPBDSprings) applyDamping(p *particles.Particles, i int, dt, rest, ext, comp, ratio float64) {
	i1, i2 := s.constraints[i][0], s.constraints[i][1]
	w1, w2 := p.InvM[i1], p.InvM[i2]
	combined := w1 + w2
	if combined <= epsilon {
		return
	}
	diff := r3.Sub(p.P[i1], p.P[i2])
	dist := r3.Norm(diff)
	if dist <= epsilon {
		return
	}
	dir := r3.Scale(1/dist, diff)
	k := ext
	if dist < rest {
		k = comp
	}

	// Relative velocity times dt.
	rel := r3.Sub(r3.Sub(p.P[i1], p.X[i1]), r3.Sub(p.P[i2], p.X[i2]))
	dLambda, ok := dampingDeltaLambda(r3.Dot(dir, rel), combined, k, ratio, dt, &s.lambdasDamping[i])
	if !ok {
		return
	}

	if w1 != 0 {
		p.P[i1] = r3.Add(p.P[i1], r3.Scale(w1*dLambda, dir))
	}
	if w2 != 0 {
		p.P[i2] = r3.Sub(p.P[i2], r3.Scale(w2*dLambda, dir))
	}
}

// xpbdDeltaLambda computes the multiplier update for a constraint violation c
// with gradient inverse-mass sum invMassSum, accumulating it into lambda.
// Stiffness at or above softMax projects the constraint directly.
func xpbdDeltaLambda(c, invMassSum, k, dt, softMax float64, lambda *float64) (float64, bool) {
	if k <= 0 || invMassSum <= epsilon {
		return 0, false
	}
	if softMax > 0 && k >= softMax {
		return -c / invMassSum, true
	}
	compliance := 1 / (k * dt * dt)
	dLambda := (-c - compliance*(*lambda)) / (invMassSum + compliance)
	*lambda += dLambda
	return dLambda, true
}

// dampingDeltaLambda computes the multiplier update of the velocity damping
// pass. cv is the relative velocity along the gradient, times dt.
func dampingDeltaLambda(cv, invMassSum, k, ratio, dt float64, lambda *float64) (float64, bool) {
	damping := criticalDamping(ratio, k, invMassSum)
	if damping <= 0 {
		return 0, false
	}
	compliance := 1 / (damping * dt)
	dLambda := (-cv - compliance*(*lambda)) / (invMassSum + compliance)
	*lambda += dLambda
	return dLambda, true
}
