// Package weightmap resolves per-constraint scalar tunables (stiffness,
// damping ratio, scale) from a constant range and an optional weight map.
package weightmap

import (
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/drape/coloring"
)

// Range is a (Low, High) pair interpolated by a weight in [0, 1].
type Range struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Constant returns a range whose value does not depend on the weight.
func Constant(v float64) Range {
	return Range{Low: v, High: v}
}

// Lerp returns Low + (High-Low)*w.
func (r Range) Lerp(w float64) float64 {
	return r.Low + (r.High-r.Low)*w
}

// WeightedValue is a scalar field over constraints. Without a weight map it
// is the constant High, or the range at a uniform weight; with one, each
// constraint interpolates the range by its own weight. Resolved values are
// clamped to [clampMin, clampMax].
type WeightedValue struct {
	rng      Range
	clampMin float64
	clampMax float64
	weights  []float64 // per constraint, nil when constant
	uniform  float64   // weight used when weights is nil
	value    float64   // resolved constant
}

// New creates a field with an optional per-constraint weight map. Weights are
// clamped into [0, 1]; the slice is copied.
func New(r Range, clampMin, clampMax float64, perConstraint []float64) *WeightedValue {
	if clampMax < clampMin {
		clampMin, clampMax = clampMax, clampMin
	}
	v := &WeightedValue{
		clampMin: clampMin,
		clampMax: clampMax,
		uniform:  1,
	}
	if len(perConstraint) > 0 {
		v.weights = make([]float64, len(perConstraint))
		for i, w := range perConstraint {
			v.weights[i] = clamp(w, 0, 1)
		}
	}
	v.SetRange(r)
	return v
}

// FromParticleWeights builds a per-constraint field by averaging a per-particle
// weight map over each constraint's particles. particleWeights is indexed
// relative to offset; a missing or empty map yields a constant field.
func FromParticleWeights[T coloring.Tuple](r Range, clampMin, clampMax float64, particleWeights []float64, offset int, constraints []T) *WeightedValue {
	if len(particleWeights) == 0 {
		return New(r, clampMin, clampMax, nil)
	}
	if floats.Max(particleWeights) == floats.Min(particleWeights) {
		// A uniform map still scales the range but needs no per-constraint storage.
		v := &WeightedValue{clampMin: clampMin, clampMax: clampMax, uniform: clamp(particleWeights[0], 0, 1)}
		if v.clampMax < v.clampMin {
			v.clampMin, v.clampMax = v.clampMax, v.clampMin
		}
		v.SetRange(r)
		return v
	}

	perConstraint := make([]float64, len(constraints))
	for i, c := range constraints {
		sum, n := 0.0, 0
		for k := 0; k < len(c); k++ {
			p := c[k] - offset
			if p >= 0 && p < len(particleWeights) {
				sum += particleWeights[p]
				n++
			}
		}
		if n > 0 {
			perConstraint[i] = sum / float64(n)
		}
	}
	return New(r, clampMin, clampMax, perConstraint)
}

// SetRange updates the interpolated range. Cheap: the weight map is kept.
func (v *WeightedValue) SetRange(r Range) {
	v.rng = r
	v.value = clamp(r.Lerp(v.uniform), v.clampMin, v.clampMax)
}

// HasWeightMap reports whether values vary per constraint.
func (v *WeightedValue) HasWeightMap() bool {
	return v.weights != nil
}

// Len is the number of per-constraint weights, 0 for a constant field.
func (v *WeightedValue) Len() int {
	return len(v.weights)
}

// Value returns the constant value. Only meaningful without a weight map.
func (v *WeightedValue) Value() float64 {
	return v.value
}

// GetValue returns the resolved value for constraint i.
func (v *WeightedValue) GetValue(i int) float64 {
	if v.weights == nil {
		return v.value
	}
	return clamp(v.rng.Lerp(v.weights[i]), v.clampMin, v.clampMax)
}

// Resolve writes fn(GetValue(i)) for every constraint into dst, growing it
// as needed. It returns nil for a constant field.
func (v *WeightedValue) Resolve(dst []float64, fn func(float64) float64) []float64 {
	if v.weights == nil {
		return nil
	}
	if cap(dst) < len(v.weights) {
		dst = make([]float64, len(v.weights))
	}
	dst = dst[:len(v.weights)]
	for i := range v.weights {
		val := v.GetValue(i)
		if fn != nil {
			val = fn(val)
		}
		dst[i] = val
	}
	return dst
}

// ReorderIndices keeps the weight map aligned with a reordered constraint
// array: after the call, weight i is the former weight perm[i].
func (v *WeightedValue) ReorderIndices(perm []int) {
	coloring.Reorder(v.weights, perm)
}

// ReorderIndicesAndShrink moves weight i to mapping[i], dropping entries with
// a negative mapping, and resizes the map to newSize.
func (v *WeightedValue) ReorderIndicesAndShrink(mapping []int, newSize int) {
	if v.weights == nil {
		return
	}
	v.weights = coloring.Shrink(v.weights, mapping, newSize)
}

func clamp(x, lo, hi float64) float64 {
	if x != x || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
