// Package mesh builds cloth topology: grids with pattern-space coordinates
// and the index tuples consumed by the constraint containers.
package mesh

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Grid is a rectangular cloth panel of Cols x Rows vertices hanging in the
// XY plane: columns run along +X and rows run down along -Y. Triangles wind
// so that their normals face -Z.
type Grid struct {
	Cols, Rows int
	Spacing    float64
	Positions  []r3.Vec
	// UVs are pattern-space coordinates in the same units as Spacing, with
	// U along the columns (warp) and V along the rows (weft).
	UVs       []r2.Vec
	Triangles [][3]int
}

// NewGrid builds a grid with its top-left vertex at origin.
func NewGrid(cols, rows int, spacing float64, origin r3.Vec) *Grid {
	g := &Grid{
		Cols:      cols,
		Rows:      rows,
		Spacing:   spacing,
		Positions: make([]r3.Vec, 0, cols*rows),
		UVs:       make([]r2.Vec, 0, cols*rows),
	}
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			g.Positions = append(g.Positions, r3.Add(origin, r3.Vec{X: float64(i) * spacing, Y: -float64(j) * spacing}))
			g.UVs = append(g.UVs, r2.Vec{X: float64(i) * spacing, Y: float64(j) * spacing})
		}
	}
	for j := 0; j+1 < rows; j++ {
		for i := 0; i+1 < cols; i++ {
			a, b := g.Index(i, j), g.Index(i+1, j)
			c, d := g.Index(i, j+1), g.Index(i+1, j+1)
			g.Triangles = append(g.Triangles, [3]int{a, b, d}, [3]int{a, d, c})
		}
	}
	return g
}

// Index returns the vertex index of column i, row j.
func (g *Grid) Index(i, j int) int {
	return j*g.Cols + i
}

// Len returns the number of vertices.
func (g *Grid) Len() int {
	return len(g.Positions)
}

// TopRow returns the vertex indices of the first row.
func (g *Grid) TopRow() []int {
	row := make([]int, g.Cols)
	for i := range row {
		row[i] = g.Index(i, 0)
	}
	return row
}

// Offset returns a copy of tuples with every index shifted by offset.
func Offset[T ~[2]int | ~[3]int | ~[4]int](tuples []T, offset int) []T {
	out := make([]T, len(tuples))
	for i, t := range tuples {
		for k := 0; k < len(t); k++ {
			t[k] += offset
		}
		out[i] = t
	}
	return out
}

type edgeKey struct{ a, b int }

func key(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// Edges returns the unique edges of tris in order of first appearance,
// each with its smaller index first.
func Edges(tris [][3]int) [][2]int {
	seen := make(map[edgeKey]struct{}, len(tris)*3/2)
	var edges [][2]int
	for _, t := range tris {
		for k := 0; k < 3; k++ {
			e := key(t[k], t[(k+1)%3])
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, [2]int{e.a, e.b})
		}
	}
	return edges
}

// BendingElements returns one element (a, b, c, d) per edge shared by two
// triangles, where (a, b, c) winds like the first triangle and (b, a, d)
// like the second, so a flat consistently wound sheet has zero dihedral
// angle. Non-manifold edges use their first two triangles.
func BendingElements(tris [][3]int) [][4]int {
	type half struct {
		a, b, opp int
	}
	first := make(map[edgeKey]half, len(tris)*3/2)
	done := make(map[edgeKey]struct{}, len(tris)*3/2)
	var elements [][4]int
	for _, t := range tris {
		for k := 0; k < 3; k++ {
			a, b, opp := t[k], t[(k+1)%3], t[(k+2)%3]
			e := key(a, b)
			if _, ok := done[e]; ok {
				continue
			}
			h, ok := first[e]
			if !ok {
				first[e] = half{a, b, opp}
				continue
			}
			elements = append(elements, [4]int{h.a, h.b, h.opp, opp})
			done[e] = struct{}{}
		}
	}
	return elements
}

// BendingSprings returns a spring across each bending element, joining its
// two opposite vertices.
func BendingSprings(elements [][4]int) [][2]int {
	springs := make([][2]int, len(elements))
	for i, e := range elements {
		springs[i] = [2]int{e[2], e[3]}
	}
	return springs
}

// ThicknessTets pairs every triangle of a front layer with the matching
// vertex of a back layer stored offset indices later. Each tet is wound to
// have a positive volume in positions, which must hold both layers.
func ThicknessTets(positions []r3.Vec, tris [][3]int, offset int) [][4]int {
	tets := make([][4]int, len(tris))
	for i, t := range tris {
		tet := [4]int{t[0], t[1], t[2], t[0] + offset}
		p0 := positions[tet[0]]
		n := r3.Cross(r3.Sub(positions[tet[1]], p0), r3.Sub(positions[tet[2]], p0))
		if r3.Dot(n, r3.Sub(positions[tet[3]], p0)) < 0 {
			tet[1], tet[2] = tet[2], tet[1]
		}
		tets[i] = tet
	}
	return tets
}

// Area returns the area of triangle t.
func Area(positions []r3.Vec, t [3]int) float64 {
	p0 := positions[t[0]]
	return r3.Norm(r3.Cross(r3.Sub(positions[t[1]], p0), r3.Sub(positions[t[2]], p0))) / 2
}

// Normal returns the unnormalized normal of triangle t, twice its area long.
func Normal(positions []r3.Vec, t [3]int) r3.Vec {
	p0 := positions[t[0]]
	return r3.Cross(r3.Sub(positions[t[1]], p0), r3.Sub(positions[t[2]], p0))
}

// VertexMasses spreads total mass over the vertices in proportion to the
// area of their incident triangles.
func VertexMasses(positions []r3.Vec, tris [][3]int, total float64) []float64 {
	masses := make([]float64, len(positions))
	sum := 0.0
	for _, t := range tris {
		a := Area(positions, t) / 3
		for k := 0; k < 3; k++ {
			masses[t[k]] += a
		}
		sum += 3 * a
	}
	if sum <= 0 {
		return masses
	}
	for i := range masses {
		masses[i] *= total / sum
	}
	return masses
}
