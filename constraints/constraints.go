// Package constraints implements the position-based constraint families used
// to simulate cloth: PBD and XPBD springs, dihedral bending, generalized
// embedded springs and one-sided tetrahedral volumes.
//
// Every container trims constraints whose particles are all kinematic, colors
// the survivors so that no two constraints of a color share a particle, and
// physically reorders its per-constraint arrays so each color is a contiguous
// index range. Apply walks the colors in order and projects each color with
// a parallel-for; the coloring is the only synchronization on the particles.
package constraints

import (
	"log/slog"
	"math"

	"github.com/pthm-cable/drape/coloring"
	"github.com/pthm-cable/drape/parallel"
	"github.com/pthm-cable/drape/particles"
	"github.com/pthm-cable/drape/weightmap"
)

// Kind identifies a constraint family.
type Kind uint8

const (
	KindPBDSpring Kind = iota
	KindPBDAxialSpring
	KindXPBDSpring
	KindPBDBending
	KindXPBDBending
	KindXPBDAnisoBending
	KindEmbeddedSpring
	KindUnilateralVolume
)

var kindNames = [...]string{
	KindPBDSpring:        "pbd_spring",
	KindPBDAxialSpring:   "pbd_axial_spring",
	KindXPBDSpring:       "xpbd_spring",
	KindPBDBending:       "pbd_bending",
	KindXPBDBending:      "xpbd_bending",
	KindXPBDAnisoBending: "xpbd_aniso_bending",
	KindEmbeddedSpring:   "embedded_spring",
	KindUnilateralVolume: "unilateral_volume",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Solver is the per-family interface driven by the simulation step:
// Init once per step, ApplyProperties when dt or the iteration count change,
// Apply once per solver iteration.
type Solver interface {
	Kind() Kind
	NumConstraints() int
	// ColorStart returns the per-color start offsets, len = colors+1.
	ColorStart() []int
	Init()
	SetProperties(props Properties)
	ApplyProperties(dt float64, numIterations int)
	Apply(p *particles.Particles, dt float64)
}

var (
	_ Solver = (*PBDSprings)(nil)
	_ Solver = (*PBDAxialSprings)(nil)
	_ Solver = (*XPBDSprings)(nil)
	_ Solver = (*PBDBending)(nil)
	_ Solver = (*XPBDBending)(nil)
	_ Solver = (*EmbeddedSprings)(nil)
	_ Solver = (*UnilateralVolume)(nil)
)

// Properties carries the hot-reloadable tunables of every family. Each
// family reads the fields it uses and ignores the rest.
type Properties struct {
	// Stiffness is in [0, 1] for PBD families and in force units for XPBD
	// families, where it is the extension (or warp) stiffness.
	Stiffness            weightmap.Range
	CompressionStiffness weightmap.Range
	WeftStiffness        weightmap.Range
	BiasStiffness        weightmap.Range
	DampingRatio         weightmap.Range
	BucklingStiffness    weightmap.Range
	BucklingRatio        float64
	RestAngle            RestAngle
	// Scale multiplies rest lengths and rest volumes. The zero Range
	// means 1.
	Scale weightmap.Range
	// MaxIterations bounds the inner passes of the unilateral volume solver.
	MaxIterations int
}

// WeightMaps are optional per-particle maps, indexed relative to the
// particle range of the container, that spatially vary the matching
// Properties range.
type WeightMaps struct {
	Stiffness            []float64
	CompressionStiffness []float64
	WeftStiffness        []float64
	BiasStiffness        []float64
	DampingRatio         []float64
	BucklingStiffness    []float64
	RestAngle            []float64
	FlatnessRatio        []float64
	Scale                []float64
}

// Options control construction-time policies shared by all families.
type Options struct {
	Pool *parallel.Pool
	// ParallelConstraintCount is the minimum number of constraints worth
	// coloring. Smaller sets run as one sequential color in input order.
	ParallelConstraintCount int
	// SoftMaxStiffness is the XPBD stiffness at and above which a
	// constraint is projected directly instead of through its compliance.
	SoftMaxStiffness float64
	// KeepKinematic disables the trimming of fully kinematic constraints,
	// for callers that address constraints by their input index.
	KeepKinematic bool
}

// DefaultOptions is the process-wide fallback configuration.
var DefaultOptions = Options{
	ParallelConstraintCount: 100,
	SoftMaxStiffness:        1e7,
}

const (
	// epsilon guards every geometric denominator.
	epsilon = 1e-9
	// epsilonSq guards squared lengths and areas.
	epsilonSq = epsilon * epsilon

	// Clamp ranges applied when tunables are ingested.
	maxXPBDStiffness = 1e12
	maxDampingRatio  = 1000
	maxScale         = 100
)

// colored is the layout shared by every family: colorStart splits the
// reordered constraint arrays into colors.
type colored struct {
	kind       Kind
	colorStart []int
	sequential bool
	pool       *parallel.Pool
}

func (c *colored) Kind() Kind {
	return c.kind
}

func (c *colored) ColorStart() []int {
	return c.colorStart
}

// NumColors returns the number of colors.
func (c *colored) NumColors() int {
	if len(c.colorStart) == 0 {
		return 0
	}
	return len(c.colorStart) - 1
}

// forEachColor runs fn over every color range, colors in order.
func (c *colored) forEachColor(fn func(start, end int)) {
	for k := 0; k+1 < len(c.colorStart); k++ {
		start, end := c.colorStart[k], c.colorStart[k+1]
		if c.sequential {
			fn(start, end)
			continue
		}
		c.pool.For(start, end, fn)
	}
}

// layout decides where every input constraint is stored. mapping[i] is the
// new index of input constraint i, or -1 when it was trimmed as fully
// kinematic; size is the number of kept constraints.
func layout[T coloring.Tuple](kind Kind, p *particles.Particles, r particles.Range, tuples []T, opts Options) (c colored, mapping []int, size int) {
	c = colored{kind: kind, pool: opts.Pool}

	mapping, size = coloring.KeepMapping(len(tuples), func(i int) bool {
		return opts.KeepKinematic || !allKinematic(p, tuples[i])
	})

	if size < opts.ParallelConstraintCount {
		c.colorStart = coloring.Trivial(size)
		c.sequential = true
	} else {
		keptTuples := coloring.Shrink(tuples, mapping, size)
		perm, colorStart := coloring.Flatten(coloring.ComputeColoring(keptTuples, r.Offset, r.End()))
		colorIndex := make([]int, size)
		for newIndex, k := range perm {
			colorIndex[k] = newIndex
		}
		for i, k := range mapping {
			if k >= 0 {
				mapping[i] = colorIndex[k]
			}
		}
		c.colorStart = colorStart
	}

	slog.Debug("constraints laid out",
		"kind", kind.String(),
		"constraints", size,
		"trimmed", len(tuples)-size,
		"colors", len(c.colorStart)-1,
		"sequential", c.sequential,
	)
	return c, mapping, size
}

func allKinematic[T coloring.Tuple](p *particles.Particles, t T) bool {
	for k := 0; k < len(t); k++ {
		if p.InvM[t[k]] != 0 {
			return false
		}
	}
	return true
}

// weighted builds a field from a per-particle map in input constraint order
// and moves it to the container's layout.
func weighted[T coloring.Tuple](rng weightmap.Range, lo, hi float64, particleWeights []float64, r particles.Range, tuples []T, mapping []int, size int) *weightmap.WeightedValue {
	v := weightmap.FromParticleWeights(rng, lo, hi, particleWeights, r.Offset, tuples)
	v.ReorderIndicesAndShrink(mapping, size)
	return v
}

// pbdExponent converts a [0, 1] stiffness into the per-iteration value that
// yields the same total correction regardless of the iteration count.
func pbdExponent(stiffness float64, numIterations int) float64 {
	stiffness = clampf(stiffness, 0, 1)
	if numIterations <= 1 {
		return stiffness
	}
	return 1 - math.Pow(1-stiffness, 1/float64(numIterations))
}

// criticalDamping returns the damping coefficient for the given ratio of
// critical damping of a spring of stiffness k over an inverse mass invM.
func criticalDamping(ratio, k, invM float64) float64 {
	if ratio <= 0 || k <= 0 || invM <= 0 {
		return 0
	}
	return 2 * ratio * math.Sqrt(k/invM)
}

// scaleRange treats an unset scale as 1.
func scaleRange(r weightmap.Range) weightmap.Range {
	if r == (weightmap.Range{}) {
		return weightmap.Constant(1)
	}
	return r
}

func clampf(x, lo, hi float64) float64 {
	if x != x || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
