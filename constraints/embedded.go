package constraints

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/drape/coloring"
	"github.com/pthm-cable/drape/particles"
	"github.com/pthm-cable/drape/weightmap"
)

// EmbeddedSpring connects a weighted point on the source particles to a
// weighted point on the target particles. The first NumSource entries of
// Indices are sources, the rest are targets.
type EmbeddedSpring struct {
	Indices   []int
	Weights   []float64
	NumSource int
	// RestLength is the unscaled distance between the two points.
	RestLength float64
}

// VertexVertex returns a spring between two particles, at rest in the
// current pose.
func VertexVertex(p *particles.Particles, a, b int) EmbeddedSpring {
	return newEmbeddedSpring(p, []int{a, b}, []float64{1, 1}, 1)
}

// VertexFace returns a spring between a particle and a barycentric point of
// a triangle, at rest in the current pose.
func VertexFace(p *particles.Particles, v int, face [3]int, bary [3]float64) EmbeddedSpring {
	return newEmbeddedSpring(p,
		[]int{v, face[0], face[1], face[2]},
		[]float64{1, bary[0], bary[1], bary[2]}, 1)
}

// FaceFace returns a spring between barycentric points of two triangles, at
// rest in the current pose.
func FaceFace(p *particles.Particles, source [3]int, sourceBary [3]float64, target [3]int, targetBary [3]float64) EmbeddedSpring {
	return newEmbeddedSpring(p,
		[]int{source[0], source[1], source[2], target[0], target[1], target[2]},
		[]float64{sourceBary[0], sourceBary[1], sourceBary[2], targetBary[0], targetBary[1], targetBary[2]}, 3)
}

func newEmbeddedSpring(p *particles.Particles, indices []int, weights []float64, numSource int) EmbeddedSpring {
	s := EmbeddedSpring{Indices: indices, Weights: weights, NumSource: numSource}
	s.normalize()
	s.RestLength = r3.Norm(s.delta(p.X))
	return s
}

// normalize rescales the weights so that sources sum to +1 and targets to
// -1. Weights are read as magnitudes; a side whose magnitudes sum to zero is
// spread uniformly.
func (s *EmbeddedSpring) normalize() {
	side := func(w []float64, sign float64) {
		sum := 0.0
		for _, v := range w {
			if v < 0 {
				v = -v
			}
			sum += v
		}
		for j := range w {
			if sum <= epsilon {
				w[j] = sign / float64(len(w))
				continue
			}
			v := w[j]
			if v < 0 {
				v = -v
			}
			w[j] = sign * v / sum
		}
	}
	side(s.Weights[:s.NumSource], 1)
	side(s.Weights[s.NumSource:], -1)
}

// delta returns the weighted sum of pos over the spring, the vector from the
// target point to the source point.
func (s *EmbeddedSpring) delta(pos []r3.Vec) r3.Vec {
	var d r3.Vec
	for j, idx := range s.Indices {
		d = r3.Add(d, r3.Scale(s.Weights[j], pos[idx]))
	}
	return d
}

func (s *EmbeddedSpring) valid() bool {
	return s.NumSource > 0 && s.NumSource < len(s.Indices) && len(s.Weights) == len(s.Indices)
}

// EmbeddedSprings are compliant springs between weighted combinations of
// particles: vertex to vertex, vertex to face or face to face.
type EmbeddedSprings struct {
	colored
	springs []EmbeddedSpring

	lambdas        []float64
	lambdasDamping []float64

	extension    *weightmap.WeightedValue
	compression  *weightmap.WeightedValue
	dampingRatio *weightmap.WeightedValue
	scale        *weightmap.WeightedValue

	softMaxStiffness float64
}

// NewEmbeddedSprings takes ownership of springs, normalizing their weights.
// Malformed springs and springs whose particles are all kinematic are
// dropped.
func NewEmbeddedSprings(p *particles.Particles, r particles.Range, springs []EmbeddedSpring, props Properties, maps WeightMaps, opts Options) *EmbeddedSprings {
	kept := make([]EmbeddedSpring, 0, len(springs))
	for _, s := range springs {
		if s.valid() {
			s.normalize()
			kept = append(kept, s)
		}
	}
	tuples := make([][]int, len(kept))
	for i := range kept {
		tuples[i] = kept[i].Indices
	}

	c, mapping, size := layout(KindEmbeddedSpring, p, r, tuples, opts)
	return &EmbeddedSprings{
		colored:          c,
		springs:          coloring.Shrink(kept, mapping, size),
		lambdas:          make([]float64, size),
		lambdasDamping:   make([]float64, size),
		extension:        weighted(props.Stiffness, 0, maxXPBDStiffness, maps.Stiffness, r, tuples, mapping, size),
		compression:      weighted(props.CompressionStiffness, 0, maxXPBDStiffness, maps.CompressionStiffness, r, tuples, mapping, size),
		dampingRatio:     weighted(props.DampingRatio, 0, maxDampingRatio, maps.DampingRatio, r, tuples, mapping, size),
		scale:            weighted(scaleRange(props.Scale), 0, maxScale, maps.Scale, r, tuples, mapping, size),
		softMaxStiffness: opts.SoftMaxStiffness,
	}
}

func (s *EmbeddedSprings) NumConstraints() int {
	return len(s.springs)
}

// Springs returns the reordered, normalized springs.
func (s *EmbeddedSprings) Springs() []EmbeddedSpring {
	return s.springs
}

func (s *EmbeddedSprings) Lambdas() []float64 {
	return s.lambdas
}

// RestLength returns the scaled rest length of spring i.
func (s *EmbeddedSprings) RestLength(i int) float64 {
	return s.springs[i].RestLength * s.scale.GetValue(i)
}

// StretchRatio returns the current length over scaled rest length of spring i.
func (s *EmbeddedSprings) StretchRatio(p *particles.Particles, i int) float64 {
	rest := s.RestLength(i)
	if rest <= epsilon {
		return 1
	}
	return r3.Norm(s.springs[i].delta(p.P)) / rest
}

func (s *EmbeddedSprings) Init() {
	clear(s.lambdas)
	clear(s.lambdasDamping)
}

func (s *EmbeddedSprings) SetProperties(props Properties) {
	s.extension.SetRange(props.Stiffness)
	s.compression.SetRange(props.CompressionStiffness)
	s.dampingRatio.SetRange(props.DampingRatio)
	s.scale.SetRange(scaleRange(props.Scale))
}

func (s *EmbeddedSprings) ApplyProperties(dt float64, numIterations int) {}

func (s *EmbeddedSprings) Apply(p *particles.Particles, dt float64) {
	if dt <= 0 {
		return
	}
	s.forEachColor(func(start, end int) {
		for i := start; i < end; i++ {
			s.apply(p, i, dt)
		}
	})
}

func (s *EmbeddedSprings) apply(p *particles.Particles, i int, dt float64) {
	sp := &s.springs[i]

	invMassSum := 0.0
	for j, idx := range sp.Indices {
		invMassSum += sp.Weights[j] * sp.Weights[j] * p.InvM[idx]
	}
	if invMassSum <= epsilon {
		return
	}

	ext, comp := s.extension.GetValue(i), s.compression.GetValue(i)
	rest := sp.RestLength * s.scale.GetValue(i)
	if ratio := s.dampingRatio.GetValue(i); ratio > 0 {
		if n, dist, ok := springAxis(sp, p.P); ok {
			k := ext
			if dist < rest {
				k = comp
			}
			rel := r3.Sub(sp.delta(p.P), sp.delta(p.X))
			if dLambda, ok := dampingDeltaLambda(r3.Dot(n, rel), invMassSum, k, ratio, dt, &s.lambdasDamping[i]); ok {
				s.move(p, sp, n, dLambda)
			}
		}
	}

	n, dist, ok := springAxis(sp, p.P)
	if !ok {
		return
	}
	c := dist - rest
	k := ext
	if c < 0 {
		k = comp
	}
	if dLambda, ok := xpbdDeltaLambda(c, invMassSum, k, dt, s.softMaxStiffness, &s.lambdas[i]); ok {
		s.move(p, sp, n, dLambda)
	}
}

func (s *EmbeddedSprings) move(p *particles.Particles, sp *EmbeddedSpring, n r3.Vec, dLambda float64) {
	for j, idx := range sp.Indices {
		if w := p.InvM[idx]; w != 0 {
			p.P[idx] = r3.Add(p.P[idx], r3.Scale(w*sp.Weights[j]*dLambda, n))
		}
	}
}

// springAxis returns the unit direction from the target point to the source
// point and their distance.
func springAxis(sp *EmbeddedSpring, pos []r3.Vec) (r3.Vec, float64, bool) {
	d := sp.delta(pos)
	dist := r3.Norm(d)
	if dist <= epsilon {
		return r3.Vec{}, 0, false
	}
	return r3.Scale(1/dist, d), dist, true
}
