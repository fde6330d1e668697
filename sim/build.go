package sim

import (
	"log/slog"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/drape/components"
	"github.com/pthm-cable/drape/config"
	"github.com/pthm-cable/drape/constraints"
	"github.com/pthm-cable/drape/mesh"
	"github.com/pthm-cable/drape/particles"
)

// ClothSpec describes a rectangular cloth panel to add to the world.
type ClothSpec struct {
	Name      string
	Cols      int
	Rows      int
	Spacing   float64
	Origin    r3.Vec // top-left vertex of the front layer
	Mass      float64
	Layers    int
	Thickness float64
	PinMode   string // top, corners or none
}

// SpecFromConfig returns the cloth described by cfg, centred on X = 0.
func SpecFromConfig(cfg *config.Config) ClothSpec {
	c := cfg.Cloth
	width := float64(c.Cols-1) * c.Spacing
	return ClothSpec{
		Name:      "cloth",
		Cols:      c.Cols,
		Rows:      c.Rows,
		Spacing:   c.Spacing,
		Origin:    r3.Vec{X: -width / 2, Y: c.Height},
		Mass:      c.Mass,
		Layers:    c.Layers,
		Thickness: c.Thickness,
		PinMode:   cfg.Pins.Mode,
	}
}

// AddCloth builds the particles and constraint containers of a cloth and
// creates its entity.
func (w *World) AddCloth(spec ClothSpec) ecs.Entity {
	if spec.Layers < 1 {
		spec.Layers = 1
	}
	grid := mesh.NewGrid(spec.Cols, spec.Rows, spec.Spacing, spec.Origin)
	layerSize := grid.Len()
	layerMasses := mesh.VertexMasses(grid.Positions, grid.Triangles, spec.Mass)

	positions := make([]r3.Vec, 0, layerSize*spec.Layers)
	masses := make([]float64, 0, layerSize*spec.Layers)
	uvs := make([]r2.Vec, 0, layerSize*spec.Layers)
	for l := 0; l < spec.Layers; l++ {
		shift := r3.Vec{Z: -float64(l) * spec.Thickness}
		for _, x := range grid.Positions {
			positions = append(positions, r3.Add(x, shift))
		}
		masses = append(masses, layerMasses...)
		uvs = append(uvs, grid.UVs...)
	}

	r := w.particles.Add(positions, masses)

	cloth := components.Cloth{
		Name:      spec.Name,
		Range:     r,
		Layers:    spec.Layers,
		LayerSize: layerSize,
		Cols:      spec.Cols,
		Rows:      spec.Rows,
		Masses:    masses,
	}

	// Pins go kinematic before the solvers are built so that constraints
	// between pins are trimmed.
	pins := components.Pins{
		Amplitude: w.cfg.Derived.PinAmplitude,
		Frequency: w.cfg.Pins.Frequency,
	}
	for l := 0; l < spec.Layers; l++ {
		for _, i := range pinIndices(grid, spec.PinMode) {
			idx := cloth.Layer(l).Offset + i
			w.particles.SetKinematic(idx, true, 0)
			pins.Indices = append(pins.Indices, idx)
			pins.Rest = append(pins.Rest, w.particles.X[idx])
		}
	}

	surface := components.Surface{
		Triangles: mesh.Offset(grid.Triangles, r.Offset),
		UVs:       uvs,
	}
	solvers := w.buildSolvers(&cloth, grid, uvs)
	aero := components.AeroFromConfig(&w.cfg.Forces)

	entity := w.clothMap.NewEntity(&cloth, &surface, &pins, &solvers, &aero)

	slog.Info("cloth added",
		"name", spec.Name,
		"particles", r.Count,
		"pins", len(pins.Indices),
		"constraints", solvers.NumConstraints(),
		"colors", solvers.NumColors(),
	)
	return entity
}

func pinIndices(grid *mesh.Grid, mode string) []int {
	switch mode {
	case "top":
		return grid.TopRow()
	case "corners":
		return []int{grid.Index(0, 0), grid.Index(grid.Cols-1, 0)}
	default:
		return nil
	}
}

// buildSolvers creates the constraint containers of a cloth in projection
// order: stretch, shear, bending, layer ties, then volume.
func (w *World) buildSolvers(cloth *components.Cloth, grid *mesh.Grid, uvs []r2.Vec) components.Solvers {
	cfg := w.cfg
	p := w.particles
	r := cloth.Range
	opts := w.solveOpts

	var edges [][2]int
	var elements [][4]int
	for l := 0; l < cloth.Layers; l++ {
		off := cloth.Layer(l).Offset
		edges = append(edges, mesh.Offset(mesh.Edges(grid.Triangles), off)...)
		elements = append(elements, mesh.Offset(mesh.BendingElements(grid.Triangles), off)...)
	}

	var s components.Solvers
	add := func(role components.Role, solver constraints.Solver) {
		if solver.NumConstraints() == 0 {
			return
		}
		s.Entries = append(s.Entries, components.SolverEntry{Role: role, Solver: solver})
	}

	springProps := cfg.SpringProperties()
	switch cfg.Springs.Model {
	case "pbd":
		add(components.RoleStretch, constraints.NewPBDSprings(p, r, edges, springProps, constraints.WeightMaps{}, opts))
	case "axial":
		add(components.RoleStretch, constraints.NewPBDSprings(p, r, edges, springProps, constraints.WeightMaps{}, opts))
		triples := make([][3]int, 0, 2*len(elements))
		for _, e := range elements {
			triples = append(triples, [3]int{e[2], e[0], e[1]}, [3]int{e[3], e[0], e[1]})
		}
		add(components.RoleShear, constraints.NewPBDAxialSprings(p, r, triples, springProps, constraints.WeightMaps{}, opts))
	default:
		add(components.RoleStretch, constraints.NewXPBDSprings(p, r, edges, springProps, constraints.WeightMaps{}, opts))
	}

	bendProps := cfg.BendingProperties()
	switch cfg.Bending.Model {
	case "pbd":
		add(components.RoleBending, constraints.NewPBDBending(p, r, elements, bendProps, constraints.WeightMaps{}, opts))
	case "xpbd":
		add(components.RoleBending, constraints.NewXPBDBending(p, r, elements, bendProps, constraints.WeightMaps{}, opts))
	case "aniso":
		add(components.RoleBending, constraints.NewXPBDAnisoBending(p, r, elements, uvs, bendProps, constraints.WeightMaps{}, opts))
	}

	if cfg.BendingSprings.Enabled {
		add(components.RoleBendingSprings, constraints.NewPBDSprings(p, r, mesh.BendingSprings(elements), cfg.BendingSpringProperties(), constraints.WeightMaps{}, opts))
	}

	if cloth.Layers == 2 {
		front, back := cloth.Layer(0).Offset, cloth.Layer(1).Offset
		if cfg.Embedded.Enabled {
			add(components.RoleLayerTies, constraints.NewEmbeddedSprings(p, r, layerTies(p, grid, front, back), cfg.EmbeddedProperties(), constraints.WeightMaps{}, opts))
		}
		if cfg.Volume.Enabled {
			tets := mesh.ThicknessTets(p.X[r.Offset:r.End()], grid.Triangles, cloth.LayerSize)
			add(components.RoleVolume, constraints.NewUnilateralVolume(p, r, mesh.Offset(tets, r.Offset), cfg.VolumeProperties(), constraints.WeightMaps{}, opts))
		}
	}

	for _, e := range s.Entries {
		e.Solver.ApplyProperties(cfg.Derived.SubstepDT, cfg.Solver.Iterations)
	}
	return s
}

// layerTies joins every front vertex to the back vertex behind it and every
// front triangle centroid to the matching back centroid.
func layerTies(p *particles.Particles, grid *mesh.Grid, front, back int) []constraints.EmbeddedSpring {
	ties := make([]constraints.EmbeddedSpring, 0, grid.Len()+len(grid.Triangles))
	for i := 0; i < grid.Len(); i++ {
		ties = append(ties, constraints.VertexVertex(p, front+i, back+i))
	}
	centroid := [3]float64{1, 1, 1}
	for _, t := range grid.Triangles {
		ties = append(ties, constraints.FaceFace(p,
			[3]int{front + t[0], front + t[1], front + t[2]}, centroid,
			[3]int{back + t[0], back + t[1], back + t[2]}, centroid))
	}
	return ties
}

// RemoveCloth removes a cloth entity. Its particles stay allocated and are
// frozen in place.
func (w *World) RemoveCloth(e ecs.Entity) {
	cloth := w.Cloth(e)
	if cloth == nil {
		return
	}
	r := cloth.Range
	for i := r.Offset; i < r.End(); i++ {
		w.particles.SetKinematic(i, true, 0)
		w.particles.V[i] = r3.Vec{}
	}
	w.world.RemoveEntity(e)
}
