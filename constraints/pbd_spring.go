package constraints

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/drape/coloring"
	"github.com/pthm-cable/drape/particles"
	"github.com/pthm-cable/drape/weightmap"
)

// PBDSprings are two-point distance constraints projected directly, with the
// stiffness converted into a per-iteration exponent.
type PBDSprings struct {
	colored
	constraints [][2]int
	restLengths []float64

	stiffness    *weightmap.WeightedValue
	scale        *weightmap.WeightedValue
	expStiffness []float64 // per constraint, nil when the stiffness is constant
	expValue     float64
}

// NewPBDSprings creates springs over edges, with rest lengths measured on the
// current positions X.
func NewPBDSprings(p *particles.Particles, r particles.Range, edges [][2]int, props Properties, maps WeightMaps, opts Options) *PBDSprings {
	c, mapping, size := layout(KindPBDSpring, p, r, edges, opts)

	rest := make([]float64, len(edges))
	for i, e := range edges {
		rest[i] = r3.Norm(r3.Sub(p.X[e[0]], p.X[e[1]]))
	}

	s := &PBDSprings{
		colored:     c,
		constraints: coloring.Shrink(edges, mapping, size),
		restLengths: coloring.Shrink(rest, mapping, size),
		stiffness:   weighted(props.Stiffness, 0, 1, maps.Stiffness, r, edges, mapping, size),
		scale:       weighted(scaleRange(props.Scale), 0, maxScale, maps.Scale, r, edges, mapping, size),
	}
	s.ApplyProperties(0, 1)
	return s
}

func (s *PBDSprings) NumConstraints() int {
	return len(s.constraints)
}

// Constraints returns the reordered particle index pairs.
func (s *PBDSprings) Constraints() [][2]int {
	return s.constraints
}

// RestLengths returns the reordered, unscaled rest lengths.
func (s *PBDSprings) RestLengths() []float64 {
	return s.restLengths
}

// RestLength returns the scaled rest length of constraint i.
func (s *PBDSprings) RestLength(i int) float64 {
	return s.restLengths[i] * s.scale.GetValue(i)
}

// Stiffness returns the resolved [0, 1] stiffness of constraint i.
func (s *PBDSprings) Stiffness(i int) float64 {
	return s.stiffness.GetValue(i)
}

// StretchRatio returns the current length over scaled rest length of
// constraint i.
func (s *PBDSprings) StretchRatio(p *particles.Particles, i int) float64 {
	return stretchRatio(p, s.constraints[i], s.RestLength(i))
}

// Init is a no-op: PBD springs keep no per-step state.
func (s *PBDSprings) Init() {}

func (s *PBDSprings) SetProperties(props Properties) {
	s.stiffness.SetRange(props.Stiffness)
	s.scale.SetRange(scaleRange(props.Scale))
}

func (s *PBDSprings) ApplyProperties(dt float64, numIterations int) {
	s.expValue = pbdExponent(s.stiffness.Value(), numIterations)
	s.expStiffness = s.stiffness.Resolve(s.expStiffness, func(k float64) float64 {
		return pbdExponent(k, numIterations)
	})
}

func (s *PBDSprings) Apply(p *particles.Particles, dt float64) {
	s.forEachColor(func(start, end int) {
		if s.expStiffness == nil {
			k := s.expValue
			for i := start; i < end; i++ {
				s.apply(p, i, k)
			}
			return
		}
		for i := start; i < end; i++ {
			s.apply(p, i, s.expStiffness[i])
		}
	})
}

func (s *PBDSprings) apply(p *particles.Particles, i int, k float64) {
	i1, i2 := s.constraints[i][0], s.constraints[i][1]
	delta, ok := springDelta(p.P[i1], p.P[i2], p.InvM[i1], p.InvM[i2], s.RestLength(i), k)
	if !ok {
		return
	}
	if p.InvM[i1] != 0 {
		p.P[i1] = r3.Sub(p.P[i1], r3.Scale(p.InvM[i1], delta))
	}
	if p.InvM[i2] != 0 {
		p.P[i2] = r3.Add(p.P[i2], r3.Scale(p.InvM[i2], delta))
	}
}

// springDelta returns the PBD distance correction shared by both endpoints,
// already divided by the combined inverse mass.
func springDelta(p1, p2 r3.Vec, invM1, invM2, rest, k float64) (r3.Vec, bool) {
	combined := invM1 + invM2
	if combined <= epsilon {
		return r3.Vec{}, false
	}
	diff := r3.Sub(p1, p2)
	dist := r3.Norm(diff)
	if dist <= epsilon {
		return r3.Vec{}, false
	}
	return r3.Scale(k*(dist-rest)/(dist*combined), diff), true
}

func stretchRatio(p *particles.Particles, c [2]int, rest float64) float64 {
	if rest <= epsilon {
		return 1
	}
	return r3.Norm(r3.Sub(p.P[c[0]], p.P[c[1]])) / rest
}

// PBDAxialSprings constrain a particle to a rest distance from a barycentric
// point on the segment joining two other particles.
type PBDAxialSprings struct {
	colored
	constraints [][3]int
	barys       []float64 // weight of the third particle on the segment
	restLengths []float64

	stiffness    *weightmap.WeightedValue
	scale        *weightmap.WeightedValue
	expStiffness []float64
	expValue     float64
}

// NewPBDAxialSprings creates one axial spring per triple (v, a, b), attaching
// v to the point of segment ab closest to it in the current pose.
func NewPBDAxialSprings(p *particles.Particles, r particles.Range, triples [][3]int, props Properties, maps WeightMaps, opts Options) *PBDAxialSprings {
	c, mapping, size := layout(KindPBDAxialSpring, p, r, triples, opts)

	barys := make([]float64, len(triples))
	rest := make([]float64, len(triples))
	for i, t := range triples {
		barys[i] = closestBary(p.X[t[0]], p.X[t[1]], p.X[t[2]])
		q := lerpVec(p.X[t[1]], p.X[t[2]], barys[i])
		rest[i] = r3.Norm(r3.Sub(p.X[t[0]], q))
	}

	s := &PBDAxialSprings{
		colored:     c,
		constraints: coloring.Shrink(triples, mapping, size),
		barys:       coloring.Shrink(barys, mapping, size),
		restLengths: coloring.Shrink(rest, mapping, size),
		stiffness:   weighted(props.Stiffness, 0, 1, maps.Stiffness, r, triples, mapping, size),
		scale:       weighted(scaleRange(props.Scale), 0, maxScale, maps.Scale, r, triples, mapping, size),
	}
	s.ApplyProperties(0, 1)
	return s
}

func (s *PBDAxialSprings) NumConstraints() int {
	return len(s.constraints)
}

func (s *PBDAxialSprings) Constraints() [][3]int {
	return s.constraints
}

func (s *PBDAxialSprings) Init() {}

func (s *PBDAxialSprings) SetProperties(props Properties) {
	s.stiffness.SetRange(props.Stiffness)
	s.scale.SetRange(scaleRange(props.Scale))
}

func (s *PBDAxialSprings) ApplyProperties(dt float64, numIterations int) {
	s.expValue = pbdExponent(s.stiffness.Value(), numIterations)
	s.expStiffness = s.stiffness.Resolve(s.expStiffness, func(k float64) float64 {
		return pbdExponent(k, numIterations)
	})
}

func (s *PBDAxialSprings) Apply(p *particles.Particles, dt float64) {
	s.forEachColor(func(start, end int) {
		for i := start; i < end; i++ {
			k := s.expValue
			if s.expStiffness != nil {
				k = s.expStiffness[i]
			}
			s.apply(p, i, k)
		}
	})
}

func (s *PBDAxialSprings) apply(p *particles.Particles, i int, k float64) {
	i1, i2, i3 := s.constraints[i][0], s.constraints[i][1], s.constraints[i][2]
	b := s.barys[i]
	w2, w3 := 1-b, b

	// Inverse mass of the barycentric point, weighted like its gradient.
	pointInvM := w2*w2*p.InvM[i2] + w3*w3*p.InvM[i3]
	rest := s.restLengths[i] * s.scale.GetValue(i)
	delta, ok := springDelta(p.P[i1], lerpVec(p.P[i2], p.P[i3], b), p.InvM[i1], pointInvM, rest, k)
	if !ok {
		return
	}
	if p.InvM[i1] != 0 {
		p.P[i1] = r3.Sub(p.P[i1], r3.Scale(p.InvM[i1], delta))
	}
	if p.InvM[i2] != 0 {
		p.P[i2] = r3.Add(p.P[i2], r3.Scale(w2*p.InvM[i2], delta))
	}
	if p.InvM[i3] != 0 {
		p.P[i3] = r3.Add(p.P[i3], r3.Scale(w3*p.InvM[i3], delta))
	}
}

// closestBary returns t in [0, 1] such that a + t(b-a) is the point of
// segment ab closest to v.
func closestBary(v, a, b r3.Vec) float64 {
	ab := r3.Sub(b, a)
	l2 := r3.Norm2(ab)
	if l2 <= epsilon {
		return 0.5
	}
	return clampf(r3.Dot(r3.Sub(v, a), ab)/l2, 0, 1)
}

func lerpVec(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}
