package constraints

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/drape/coloring"
	"github.com/pthm-cable/drape/particles"
	"github.com/pthm-cable/drape/weightmap"
)

// A bending element is four particles: the shared edge (0, 1) and the two
// opposite vertices 2 and 3 of the triangles (0, 1, 2) and (1, 0, 3).
// Angles are signed dihedral angles in (-pi, pi], 0 when flat.

// RestAngleMode selects how bending rest angles are derived.
type RestAngleMode uint8

const (
	// RestAngleFromPose uses the angle of the reference pose.
	RestAngleFromPose RestAngleMode = iota
	// RestAngleExplicit uses an authored target angle.
	RestAngleExplicit
	// RestAngleFlatness interpolates from the pose angle (ratio 0) to flat (ratio 1).
	RestAngleFlatness
)

// RestAngle configures bending rest angles.
type RestAngle struct {
	Mode RestAngleMode
	// Angle is the explicit target in radians.
	Angle weightmap.Range
	// Flatness is the flatness ratio in [0, 1].
	Flatness weightmap.Range
}

// DihedralAngle returns the signed angle between the two triangles of a
// bending element.
func DihedralAngle(p1, p2, p3, p4 r3.Vec) float64 {
	n1 := r3.Cross(r3.Sub(p1, p3), r3.Sub(p2, p3))
	n2 := r3.Cross(r3.Sub(p2, p4), r3.Sub(p1, p4))
	l1, l2 := r3.Norm(n1), r3.Norm(n2)
	edge := r3.Sub(p2, p1)
	le := r3.Norm(edge)
	if l1 <= epsilonSq || l2 <= epsilonSq || le <= epsilon {
		return 0
	}
	n1 = r3.Scale(1/l1, n1)
	n2 = r3.Scale(1/l2, n2)
	cosPhi := clampf(r3.Dot(n1, n2), -1, 1)
	sinPhi := clampf(r3.Dot(r3.Cross(n2, n1), r3.Scale(1/le, edge)), -1, 1)
	return math.Atan2(sinPhi, cosPhi)
}

// dihedralGradients returns the gradient of DihedralAngle with respect to
// each of the four particles. ok is false for degenerate elements.
func dihedralGradients(p1, p2, p3, p4 r3.Vec) (g [4]r3.Vec, ok bool) {
	edge := r3.Sub(p2, p1)
	edgeLen := r3.Norm(edge)
	if edgeLen <= epsilon {
		return g, false
	}
	n1 := r3.Cross(r3.Sub(p1, p3), r3.Sub(p2, p3))
	n1Len2 := r3.Norm2(n1)
	n2 := r3.Cross(r3.Sub(p2, p4), r3.Sub(p1, p4))
	n2Len2 := r3.Norm2(n2)
	if n1Len2 <= epsilonSq || n2Len2 <= epsilonSq {
		return g, false
	}
	n1 = r3.Scale(1/n1Len2, n1)
	n2 = r3.Scale(1/n2Len2, n2)

	invEdgeLen := 1 / edgeLen
	g[0] = r3.Scale(invEdgeLen, r3.Add(
		r3.Scale(r3.Dot(r3.Sub(p3, p2), edge), n1),
		r3.Scale(r3.Dot(r3.Sub(p4, p2), edge), n2)))
	g[1] = r3.Scale(invEdgeLen, r3.Add(
		r3.Scale(r3.Dot(r3.Sub(p1, p3), edge), n1),
		r3.Scale(r3.Dot(r3.Sub(p1, p4), edge), n2)))
	g[2] = r3.Scale(edgeLen, n1)
	g[3] = r3.Scale(edgeLen, n2)
	return g, true
}

// wrapAngle maps an angle difference into (-pi, pi].
func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// isBuckled reports whether angle has folded through to the other side of
// the rest configuration: measured on the side of rest, it dropped below
// ratio times the rest magnitude. Flat elements have no side and never buckle.
func isBuckled(angle, rest, ratio float64) bool {
	if rest == 0 {
		return false
	}
	side := 1.0
	if rest < 0 {
		side = -1
	}
	return side*angle < ratio*math.Abs(rest)
}

// bendingData is the per-element state shared by the PBD and XPBD bending
// families.
type bendingData struct {
	constraints [][4]int
	poseAngles  []float64 // angles of the reference pose
	restAngles  []float64
	isBuckled   []bool

	mode          RestAngleMode
	explicitAngle *weightmap.WeightedValue
	flatnessRatio *weightmap.WeightedValue

	bucklingRatio float64
}

func newBendingData(p *particles.Particles, r particles.Range, elements [][4]int, props Properties, maps WeightMaps, mapping []int, size int) bendingData {
	pose := make([]float64, len(elements))
	for i, e := range elements {
		pose[i] = DihedralAngle(p.X[e[0]], p.X[e[1]], p.X[e[2]], p.X[e[3]])
	}
	b := bendingData{
		constraints:   coloring.Shrink(elements, mapping, size),
		poseAngles:    coloring.Shrink(pose, mapping, size),
		restAngles:    make([]float64, size),
		isBuckled:     make([]bool, size),
		explicitAngle: weighted(props.RestAngle.Angle, -math.Pi, math.Pi, maps.RestAngle, r, elements, mapping, size),
		flatnessRatio: weighted(props.RestAngle.Flatness, 0, 1, maps.FlatnessRatio, r, elements, mapping, size),
	}
	b.setRestAngles(props)
	return b
}

func (b *bendingData) setRestAngles(props Properties) {
	b.mode = props.RestAngle.Mode
	b.explicitAngle.SetRange(props.RestAngle.Angle)
	b.flatnessRatio.SetRange(props.RestAngle.Flatness)
	b.bucklingRatio = clampf(props.BucklingRatio, 0, 1)

	for i := range b.restAngles {
		switch b.mode {
		case RestAngleExplicit:
			b.restAngles[i] = b.explicitAngle.GetValue(i)
		case RestAngleFlatness:
			b.restAngles[i] = (1 - b.flatnessRatio.GetValue(i)) * b.poseAngles[i]
		default:
			b.restAngles[i] = b.poseAngles[i]
		}
	}
}

func (b *bendingData) Constraints() [][4]int {
	return b.constraints
}

// RestAngles returns the rest angle of every element.
func (b *bendingData) RestAngles() []float64 {
	return b.restAngles
}

// IsBuckled returns the buckle status computed by the last Apply.
func (b *bendingData) IsBuckled() []bool {
	return b.isBuckled
}

// NumBuckled counts the buckled elements.
func (b *bendingData) NumBuckled() int {
	n := 0
	for _, v := range b.isBuckled {
		if v {
			n++
		}
	}
	return n
}

// evaluate computes the violation and gradients of element i and updates its
// buckle status. ok is false for degenerate elements.
func (b *bendingData) evaluate(p *particles.Particles, i int) (c float64, g [4]r3.Vec, buckled, ok bool) {
	e := b.constraints[i]
	p1, p2, p3, p4 := p.P[e[0]], p.P[e[1]], p.P[e[2]], p.P[e[3]]
	g, ok = dihedralGradients(p1, p2, p3, p4)
	if !ok {
		return 0, g, b.isBuckled[i], false
	}
	angle := DihedralAngle(p1, p2, p3, p4)
	rest := b.restAngles[i]
	buckled = isBuckled(angle, rest, b.bucklingRatio)
	b.isBuckled[i] = buckled
	return wrapAngle(angle - rest), g, buckled, true
}

// gradientInvMassSum returns sum(InvM_k |g_k|^2) over the element.
func (b *bendingData) gradientInvMassSum(p *particles.Particles, i int, g *[4]r3.Vec) float64 {
	e := b.constraints[i]
	sum := 0.0
	for k := 0; k < 4; k++ {
		sum += p.InvM[e[k]] * r3.Norm2(g[k])
	}
	return sum
}

// move displaces every dynamic particle of element i by scale*InvM*g.
func (b *bendingData) move(p *particles.Particles, i int, g *[4]r3.Vec, scale float64) {
	e := b.constraints[i]
	for k := 0; k < 4; k++ {
		if w := p.InvM[e[k]]; w != 0 {
			p.P[e[k]] = r3.Add(p.P[e[k]], r3.Scale(scale*w, g[k]))
		}
	}
}

// PBDBending are dihedral angle constraints projected directly, with a
// separate stiffness for buckled elements.
type PBDBending struct {
	colored
	bendingData

	stiffness         *weightmap.WeightedValue
	bucklingStiffness *weightmap.WeightedValue
	expStiffness      []float64
	expBuckling       []float64
	expValue          float64
	expBucklingValue  float64
}

// NewPBDBending creates one constraint per bending element.
func NewPBDBending(p *particles.Particles, r particles.Range, elements [][4]int, props Properties, maps WeightMaps, opts Options) *PBDBending {
	c, mapping, size := layout(KindPBDBending, p, r, elements, opts)
	s := &PBDBending{
		colored:           c,
		bendingData:       newBendingData(p, r, elements, props, maps, mapping, size),
		stiffness:         weighted(props.Stiffness, 0, 1, maps.Stiffness, r, elements, mapping, size),
		bucklingStiffness: weighted(props.BucklingStiffness, 0, 1, maps.BucklingStiffness, r, elements, mapping, size),
	}
	s.ApplyProperties(0, 1)
	return s
}

func (s *PBDBending) NumConstraints() int {
	return len(s.constraints)
}

// Stiffness returns the resolved normal and buckling stiffness of element i.
func (s *PBDBending) Stiffness(i int) (normal, buckling float64) {
	return s.stiffness.GetValue(i), s.bucklingStiffness.GetValue(i)
}

func (s *PBDBending) Init() {}

func (s *PBDBending) SetProperties(props Properties) {
	s.stiffness.SetRange(props.Stiffness)
	s.bucklingStiffness.SetRange(props.BucklingStiffness)
	s.setRestAngles(props)
}

func (s *PBDBending) ApplyProperties(dt float64, numIterations int) {
	exp := func(k float64) float64 { return pbdExponent(k, numIterations) }
	s.expValue = exp(s.stiffness.Value())
	s.expBucklingValue = exp(s.bucklingStiffness.Value())
	s.expStiffness = s.stiffness.Resolve(s.expStiffness, exp)
	s.expBuckling = s.bucklingStiffness.Resolve(s.expBuckling, exp)
}

func (s *PBDBending) Apply(p *particles.Particles, dt float64) {
	s.forEachColor(func(start, end int) {
		for i := start; i < end; i++ {
			s.apply(p, i)
		}
	})
}

func (s *PBDBending) apply(p *particles.Particles, i int) {
	c, g, buckled, ok := s.evaluate(p, i)
	if !ok {
		return
	}
	var k float64
	switch {
	case buckled && s.expBuckling != nil:
		k = s.expBuckling[i]
	case buckled:
		k = s.expBucklingValue
	case s.expStiffness != nil:
		k = s.expStiffness[i]
	default:
		k = s.expValue
	}
	if k <= 0 {
		return
	}
	denom := s.gradientInvMassSum(p, i, &g)
	if denom <= epsilon {
		return
	}
	s.move(p, i, &g, -k*c/denom)
}
