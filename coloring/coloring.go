// Package coloring partitions particle constraints into conflict-free batches.
//
// Two constraints conflict when they reference a common particle. Constraints
// that end up in the same color can be projected concurrently without any
// synchronization on the particle buffers; colors themselves must be
// processed in order.
package coloring

import (
	"fmt"
	"math/bits"
)

// Tuple is an ordered set of particle indices referenced by one constraint.
type Tuple interface {
	~[2]int | ~[3]int | ~[4]int | ~[]int
}

// colorSet is a growable bitset of colors already used by a particle.
type colorSet []uint64

func (s colorSet) has(color int) bool {
	w := color >> 6
	return w < len(s) && s[w]&(1<<(uint(color)&63)) != 0
}

func (s *colorSet) add(color int) {
	w := color >> 6
	for len(*s) <= w {
		*s = append(*s, 0)
	}
	(*s)[w] |= 1 << (uint(color) & 63)
}

// ComputeColoring greedily assigns every constraint to the lowest color not
// yet used by any of its particles. Buckets hold constraint indices in their
// original relative order, so the result only depends on the input order.
//
// Particle indices are expected in [particleStart, particleEnd). The range is
// widened to cover any index outside it, so such indices still conflict.
func ComputeColoring[T Tuple](constraints []T, particleStart, particleEnd int) [][]int {
	if len(constraints) == 0 {
		return nil
	}
	if particleEnd < particleStart {
		particleEnd = particleStart
	}
	for _, c := range constraints {
		for k := 0; k < len(c); k++ {
			particleStart = min(particleStart, c[k])
			particleEnd = max(particleEnd, c[k]+1)
		}
	}
	numParticles := particleEnd - particleStart
	used := make([]colorSet, numParticles)

	var buckets [][]int
	var merged colorSet
	for ci, c := range constraints {
		merged = merged[:0]
		for k := 0; k < len(c); k++ {
			p := c[k] - particleStart
			for w, word := range used[p] {
				for len(merged) <= w {
					merged = append(merged, 0)
				}
				merged[w] |= word
			}
		}

		color := firstFree(merged)
		for len(buckets) <= color {
			buckets = append(buckets, nil)
		}
		buckets[color] = append(buckets[color], ci)

		for k := 0; k < len(c); k++ {
			used[c[k]-particleStart].add(color)
		}
	}
	return buckets
}

func firstFree(s colorSet) int {
	for w, word := range s {
		if word != ^uint64(0) {
			return w<<6 + bits.TrailingZeros64(^word)
		}
	}
	return len(s) << 6
}

// Flatten concatenates the buckets into a single permutation and returns the
// start offset of each color. colorStart has len(buckets)+1 entries; the last
// one equals the total number of constraints.
func Flatten(buckets [][]int) (perm []int, colorStart []int) {
	total := 0
	for _, b := range buckets {
		total += len(b)
	}
	perm = make([]int, 0, total)
	colorStart = make([]int, 0, len(buckets)+1)
	for _, b := range buckets {
		colorStart = append(colorStart, len(perm))
		perm = append(perm, b...)
	}
	colorStart = append(colorStart, len(perm))
	return perm, colorStart
}

// Trivial returns a single-color partition covering n constraints.
func Trivial(n int) []int {
	return []int{0, n}
}

// Validate checks that no two constraints of the same color share a particle
// and that colorStart covers the whole constraint slice.
func Validate[T Tuple](constraints []T, colorStart []int) error {
	if len(colorStart) < 2 {
		if len(constraints) == 0 {
			return nil
		}
		return fmt.Errorf("color start has %d entries for %d constraints", len(colorStart), len(constraints))
	}
	if colorStart[0] != 0 || colorStart[len(colorStart)-1] != len(constraints) {
		return fmt.Errorf("colors cover [%d, %d), want [0, %d)", colorStart[0], colorStart[len(colorStart)-1], len(constraints))
	}
	for c := 0; c+1 < len(colorStart); c++ {
		start, end := colorStart[c], colorStart[c+1]
		if start > end {
			return fmt.Errorf("color %d: start %d after end %d", c, start, end)
		}
		owner := make(map[int]int)
		for i := start; i < end; i++ {
			con := constraints[i]
			for k := 0; k < len(con); k++ {
				if prev, ok := owner[con[k]]; ok && prev != i {
					return fmt.Errorf("color %d: constraints %d and %d share particle %d", c, prev, i, con[k])
				}
				owner[con[k]] = i
			}
		}
	}
	return nil
}
