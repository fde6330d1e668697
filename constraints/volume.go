package constraints

import (
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/drape/coloring"
	"github.com/pthm-cable/drape/particles"
	"github.com/pthm-cable/drape/weightmap"
)

// UnilateralVolume keeps tetrahedra from being compressed below their scaled
// rest volume and never resists expansion. It is used to stop a vertex from
// passing through a nearby face.
type UnilateralVolume struct {
	colored
	constraints [][4]int
	restVolumes []float64

	stiffness     float64
	scale         *weightmap.WeightedValue
	maxIterations int

	// lastPasses is the number of passes run by the last Apply.
	lastPasses int
}

// NewUnilateralVolume creates one constraint per tetrahedron with rest
// volumes measured on the current positions X. Only Stiffness.Low is used.
func NewUnilateralVolume(p *particles.Particles, r particles.Range, tets [][4]int, props Properties, maps WeightMaps, opts Options) *UnilateralVolume {
	c, mapping, size := layout(KindUnilateralVolume, p, r, tets, opts)

	rest := make([]float64, len(tets))
	for i, t := range tets {
		rest[i] = SignedVolume(p.X[t[0]], p.X[t[1]], p.X[t[2]], p.X[t[3]])
	}

	s := &UnilateralVolume{
		colored:     c,
		constraints: coloring.Shrink(tets, mapping, size),
		restVolumes: coloring.Shrink(rest, mapping, size),
		scale:       weighted(scaleRange(props.Scale), 0, maxScale, maps.Scale, r, tets, mapping, size),
	}
	s.SetProperties(props)
	return s
}

// SignedVolume returns the signed volume of the tetrahedron, positive when
// p3 lies on the side of triangle (p0, p1, p2) given by its right hand normal.
func SignedVolume(p0, p1, p2, p3 r3.Vec) float64 {
	return r3.Dot(r3.Sub(p1, p0), r3.Cross(r3.Sub(p2, p0), r3.Sub(p3, p0))) / 6
}

func (s *UnilateralVolume) NumConstraints() int {
	return len(s.constraints)
}

func (s *UnilateralVolume) Constraints() [][4]int {
	return s.constraints
}

// RestVolume returns the scaled rest volume of constraint i.
func (s *UnilateralVolume) RestVolume(i int) float64 {
	return s.restVolumes[i] * s.scale.GetValue(i)
}

// LastPasses returns the number of passes run by the last Apply.
func (s *UnilateralVolume) LastPasses() int {
	return s.lastPasses
}

func (s *UnilateralVolume) Init() {}

func (s *UnilateralVolume) SetProperties(props Properties) {
	s.stiffness = clampf(props.Stiffness.Low, 0, 1)
	s.scale.SetRange(scaleRange(props.Scale))
	s.maxIterations = max(props.MaxIterations, 1)
}

func (s *UnilateralVolume) ApplyProperties(dt float64, numIterations int) {}

// Apply runs up to MaxIterations passes over the colors and stops after the
// first pass in which no constraint was compressed.
func (s *UnilateralVolume) Apply(p *particles.Particles, dt float64) {
	s.lastPasses = 0
	if s.stiffness <= 0 {
		return
	}
	for pass := 0; pass < s.maxIterations; pass++ {
		var active atomic.Bool
		s.forEachColor(func(start, end int) {
			for i := start; i < end; i++ {
				if s.apply(p, i) {
					active.Store(true)
				}
			}
		})
		s.lastPasses++
		if !active.Load() {
			return
		}
	}
}

// apply corrects constraint i and reports whether it was compressed.
func (s *UnilateralVolume) apply(p *particles.Particles, i int) bool {
	t := s.constraints[i]
	p0, p1, p2, p3 := p.P[t[0]], p.P[t[1]], p.P[t[2]], p.P[t[3]]

	c := SignedVolume(p0, p1, p2, p3) - s.RestVolume(i)
	if c >= 0 {
		return false
	}

	var g [4]r3.Vec
	d1, d2, d3 := r3.Sub(p1, p0), r3.Sub(p2, p0), r3.Sub(p3, p0)
	g[1] = r3.Scale(1.0/6, r3.Cross(d2, d3))
	g[2] = r3.Scale(1.0/6, r3.Cross(d3, d1))
	g[3] = r3.Scale(1.0/6, r3.Cross(d1, d2))
	g[0] = r3.Scale(-1, r3.Add(r3.Add(g[1], g[2]), g[3]))

	denom := 0.0
	for k := 0; k < 4; k++ {
		denom += p.InvM[t[k]] * r3.Norm2(g[k])
	}
	if denom <= epsilonSq {
		return false
	}
	scale := -s.stiffness * c / denom
	for k := 0; k < 4; k++ {
		if w := p.InvM[t[k]]; w != 0 {
			p.P[t[k]] = r3.Add(p.P[t[k]], r3.Scale(scale*w, g[k]))
		}
	}
	return true
}
