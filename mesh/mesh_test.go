package mesh

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewGrid(t *testing.T) {
	g := NewGrid(4, 3, 0.5, r3.Vec{Y: 2})

	if g.Len() != 12 {
		t.Fatalf("expected 12 vertices, got %d", g.Len())
	}
	if len(g.Triangles) != 2*3*2 {
		t.Fatalf("expected 12 triangles, got %d", len(g.Triangles))
	}

	// Bottom-right vertex
	p := g.Positions[g.Index(3, 2)]
	if math.Abs(p.X-1.5) > 1e-12 || math.Abs(p.Y-1) > 1e-12 || p.Z != 0 {
		t.Errorf("expected (1.5, 1, 0), got %v", p)
	}
	uv := g.UVs[g.Index(3, 2)]
	if math.Abs(uv.X-1.5) > 1e-12 || math.Abs(uv.Y-1) > 1e-12 {
		t.Errorf("expected uv (1.5, 1), got %v", uv)
	}

	for i, tri := range g.Triangles {
		if n := Normal(g.Positions, tri); n.Z >= 0 {
			t.Errorf("triangle %d normal %v should face -Z", i, n)
		}
	}
}

func TestEdges(t *testing.T) {
	tests := []struct {
		name       string
		cols, rows int
		want       int
	}{
		// horizontal + vertical + diagonal
		{"single quad", 2, 2, 5},
		{"strip", 4, 2, 3*2 + 4 + 3},
		{"grid", 5, 4, 4*4 + 5*3 + 4*3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGrid(tc.cols, tc.rows, 1, r3.Vec{})
			edges := Edges(g.Triangles)
			if len(edges) != tc.want {
				t.Fatalf("expected %d edges, got %d", tc.want, len(edges))
			}
			seen := map[[2]int]bool{}
			for _, e := range edges {
				if e[0] >= e[1] {
					t.Errorf("edge %v not ordered", e)
				}
				if seen[e] {
					t.Errorf("edge %v duplicated", e)
				}
				seen[e] = true
			}
		})
	}
}

func TestBendingElements(t *testing.T) {
	g := NewGrid(5, 4, 1, r3.Vec{})
	elements := BendingElements(g.Triangles)

	// One element per interior edge.
	interior := len(Edges(g.Triangles)) - 2*(g.Cols-1) - 2*(g.Rows-1)
	if len(elements) != interior {
		t.Fatalf("expected %d elements, got %d", interior, len(elements))
	}

	for _, e := range elements {
		tri1 := [3]int{e[0], e[1], e[2]}
		tri2 := [3]int{e[1], e[0], e[3]}
		n1 := Normal(g.Positions, tri1)
		n2 := Normal(g.Positions, tri2)
		// Both halves wind like the sheet, so their normals agree.
		if r3.Dot(n1, n2) <= 0 {
			t.Errorf("element %v halves wound inconsistently: %v %v", e, n1, n2)
		}
		if e[2] == e[3] {
			t.Errorf("element %v has identical opposite vertices", e)
		}
	}

	springs := BendingSprings(elements)
	for i, s := range springs {
		if s[0] != elements[i][2] || s[1] != elements[i][3] {
			t.Errorf("spring %d = %v, want opposite vertices of %v", i, s, elements[i])
		}
	}
}

func TestThicknessTets(t *testing.T) {
	front := NewGrid(3, 3, 1, r3.Vec{})
	back := NewGrid(3, 3, 1, r3.Vec{Z: -0.1})

	positions := append(append([]r3.Vec{}, front.Positions...), back.Positions...)
	tets := ThicknessTets(positions, front.Triangles, front.Len())
	if len(tets) != len(front.Triangles) {
		t.Fatalf("expected %d tets, got %d", len(front.Triangles), len(tets))
	}

	for _, tet := range tets {
		p0 := positions[tet[0]]
		v := r3.Dot(r3.Sub(positions[tet[1]], p0),
			r3.Cross(r3.Sub(positions[tet[2]], p0), r3.Sub(positions[tet[3]], p0))) / 6
		// Half unit triangle times thickness over three.
		if math.Abs(v-0.5*0.1/3) > 1e-12 {
			t.Errorf("tet %v volume %f, want %f", tet, v, 0.5*0.1/3)
		}
	}
}

func TestOffset(t *testing.T) {
	in := [][3]int{{0, 1, 2}, {2, 1, 3}}
	out := Offset(in, 10)
	if out[1] != [3]int{12, 11, 13} {
		t.Errorf("got %v", out[1])
	}
	if in[0] != [3]int{0, 1, 2} {
		t.Errorf("input modified: %v", in[0])
	}
}

func TestVertexMasses(t *testing.T) {
	g := NewGrid(4, 4, 0.25, r3.Vec{})
	masses := VertexMasses(g.Positions, g.Triangles, 2)

	sum := 0.0
	for _, m := range masses {
		if m <= 0 {
			t.Fatalf("vertex mass %f should be positive", m)
		}
		sum += m
	}
	if math.Abs(sum-2) > 1e-9 {
		t.Errorf("expected total mass 2, got %f", sum)
	}
	// Interior vertices carry more area than corners.
	if masses[g.Index(1, 1)] <= masses[g.Index(0, 0)] {
		t.Errorf("interior mass %f should exceed corner mass %f", masses[g.Index(1, 1)], masses[g.Index(0, 0)])
	}
}
