package constraints

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/drape/coloring"
	"github.com/pthm-cable/drape/particles"
	"github.com/pthm-cable/drape/weightmap"
)

// XPBDBending are compliant dihedral angle constraints with a damping pass
// and a separate stiffness for buckled elements. The anisotropic variant
// blends warp, weft and bias stiffness by the direction, in pattern space,
// of the fibers crossing the shared edge.
type XPBDBending struct {
	colored
	bendingData

	lambdas        []float64
	lambdasDamping []float64

	stiffness         *weightmap.WeightedValue // warp stiffness when anisotropic
	weft              *weightmap.WeightedValue
	bias              *weightmap.WeightedValue
	bucklingStiffness *weightmap.WeightedValue
	dampingRatio      *weightmap.WeightedValue

	// multipliers holds the warp, weft and bias weights of each element,
	// nil for isotropic bending.
	multipliers [][3]float64

	softMaxStiffness float64
}

// NewXPBDBending creates isotropic compliant bending constraints.
func NewXPBDBending(p *particles.Particles, r particles.Range, elements [][4]int, props Properties, maps WeightMaps, opts Options) *XPBDBending {
	return newXPBDBending(KindXPBDBending, p, r, elements, nil, props, maps, opts)
}

// NewXPBDAnisoBending creates anisotropic bending constraints. uvs holds the
// pattern-space coordinates of the particles of r, indexed relative to
// r.Offset; the warp runs along the U axis.
func NewXPBDAnisoBending(p *particles.Particles, r particles.Range, elements [][4]int, uvs []r2.Vec, props Properties, maps WeightMaps, opts Options) *XPBDBending {
	multipliers := make([][3]float64, len(elements))
	for i, e := range elements {
		multipliers[i] = anisoMultipliers(uvs[e[0]-r.Offset], uvs[e[1]-r.Offset])
	}
	return newXPBDBending(KindXPBDAnisoBending, p, r, elements, multipliers, props, maps, opts)
}

func newXPBDBending(kind Kind, p *particles.Particles, r particles.Range, elements [][4]int, multipliers [][3]float64, props Properties, maps WeightMaps, opts Options) *XPBDBending {
	c, mapping, size := layout(kind, p, r, elements, opts)
	s := &XPBDBending{
		colored:           c,
		bendingData:       newBendingData(p, r, elements, props, maps, mapping, size),
		lambdas:           make([]float64, size),
		lambdasDamping:    make([]float64, size),
		stiffness:         weighted(props.Stiffness, 0, maxXPBDStiffness, maps.Stiffness, r, elements, mapping, size),
		bucklingStiffness: weighted(props.BucklingStiffness, 0, maxXPBDStiffness, maps.BucklingStiffness, r, elements, mapping, size),
		dampingRatio:      weighted(props.DampingRatio, 0, maxDampingRatio, maps.DampingRatio, r, elements, mapping, size),
		softMaxStiffness:  opts.SoftMaxStiffness,
	}
	if multipliers != nil {
		s.multipliers = coloring.Shrink(multipliers, mapping, size)
		s.weft = weighted(props.WeftStiffness, 0, maxXPBDStiffness, maps.WeftStiffness, r, elements, mapping, size)
		s.bias = weighted(props.BiasStiffness, 0, maxXPBDStiffness, maps.BiasStiffness, r, elements, mapping, size)
	}
	return s
}

// anisoMultipliers returns the warp, weft and bias weights of a bending
// element whose shared edge runs from uv0 to uv1. The weights sum to 1.
func anisoMultipliers(uv0, uv1 r2.Vec) [3]float64 {
	d := r2.Sub(uv1, uv0)
	l := r2.Norm(d)
	if l <= epsilon {
		return [3]float64{1, 0, 0}
	}
	// Fibers crossing the edge run perpendicular to it.
	c, s := -d.Y/l, d.X/l
	c2, s2 := c*c, s*s
	return [3]float64{c2 * c2, s2 * s2, 2 * c2 * s2}
}

func (s *XPBDBending) NumConstraints() int {
	return len(s.constraints)
}

// Lambdas returns the bending multipliers accumulated during the current step.
func (s *XPBDBending) Lambdas() []float64 {
	return s.lambdas
}

// Multipliers returns the warp, weft and bias weights of element i.
func (s *XPBDBending) Multipliers(i int) [3]float64 {
	if s.multipliers == nil {
		return [3]float64{1, 0, 0}
	}
	return s.multipliers[i]
}

// Stiffness returns the resolved normal and buckling stiffness of element i.
func (s *XPBDBending) Stiffness(i int) (normal, buckling float64) {
	return s.normalStiffness(i), s.bucklingStiffness.GetValue(i)
}

func (s *XPBDBending) normalStiffness(i int) float64 {
	if s.multipliers == nil {
		return s.stiffness.GetValue(i)
	}
	m := s.multipliers[i]
	return m[0]*s.stiffness.GetValue(i) + m[1]*s.weft.GetValue(i) + m[2]*s.bias.GetValue(i)
}

func (s *XPBDBending) Init() {
	clear(s.lambdas)
	clear(s.lambdasDamping)
}

func (s *XPBDBending) SetProperties(props Properties) {
	s.stiffness.SetRange(props.Stiffness)
	s.bucklingStiffness.SetRange(props.BucklingStiffness)
	s.dampingRatio.SetRange(props.DampingRatio)
	if s.multipliers != nil {
		s.weft.SetRange(props.WeftStiffness)
		s.bias.SetRange(props.BiasStiffness)
	}
	s.setRestAngles(props)
}

func (s *XPBDBending) ApplyProperties(dt float64, numIterations int) {}

func (s *XPBDBending) Apply(p *particles.Particles, dt float64) {
	if dt <= 0 {
		return
	}
	s.forEachColor(func(start, end int) {
		for i := start; i < end; i++ {
			s.apply(p, i, dt)
		}
	})
}

func (s *XPBDBending) apply(p *particles.Particles, i int, dt float64) {
	c, g, buckled, ok := s.evaluate(p, i)
	if !ok {
		return
	}
	k := s.normalStiffness(i)
	if buckled {
		k = s.bucklingStiffness.GetValue(i)
	}
	invMassSum := s.gradientInvMassSum(p, i, &g)

	if ratio := s.dampingRatio.GetValue(i); ratio > 0 {
		e := s.constraints[i]
		cv := 0.0
		for j := 0; j < 4; j++ {
			cv += r3.Dot(g[j], r3.Sub(p.P[e[j]], p.X[e[j]]))
		}
		if dLambda, ok := dampingDeltaLambda(cv, invMassSum, k, ratio, dt, &s.lambdasDamping[i]); ok {
			s.move(p, i, &g, dLambda)
			// The damping pass moved the element; re-evaluate before the
			// angle correction.
			if c, g, _, ok = s.evaluate(p, i); !ok {
				return
			}
			invMassSum = s.gradientInvMassSum(p, i, &g)
		}
	}

	if dLambda, ok := xpbdDeltaLambda(c, invMassSum, k, dt, s.softMaxStiffness, &s.lambdas[i]); ok {
		s.move(p, i, &g, dLambda)
	}
}
